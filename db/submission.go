package db

import (
	"context"
	"fmt"
	"time"

	"github.com/riskfortress/intake/models"
)

/*
RecordSubmission record an encrypted intake submission

	@param ctx context.Context - execution context
	@param id string - submission reference ID
	@param keyVersion string - the key version the envelope was sealed under
	@param ciphertext string - the serialized encryption envelope
	@param clientID string - the submitting client identifier
	@param purgeAt time.Time - retention deadline
	@returns the stored submission entry
*/
func (d *databaseImpl) RecordSubmission(
	_ context.Context,
	id string,
	keyVersion string,
	ciphertext string,
	clientID string,
	purgeAt time.Time,
) (models.StoredSubmission, error) {
	newEntry := StoredSubmissionDBEntry{
		StoredSubmission: models.StoredSubmission{
			ID:         id,
			KeyVersion: keyVersion,
			Ciphertext: ciphertext,
			ClientID:   clientID,
			PurgeAt:    purgeAt,
		},
	}

	if err := d.validator.Struct(&newEntry); err != nil {
		return models.StoredSubmission{}, fmt.Errorf("new submission entry is invalid [%w]", err)
	}

	if tmp := d.db.Create(&newEntry); tmp.Error != nil {
		return models.StoredSubmission{}, fmt.Errorf(
			"new submission entry insert failed [%w]", tmp.Error,
		)
	}

	// Record this event
	if _, err := d.defineNewSystemEvent(
		models.SystemEventTypeSubmissionStored,
		models.SystemEventSubmissionRelated{SubmissionID: id, KeyVersion: keyVersion},
	); err != nil {
		return models.StoredSubmission{}, fmt.Errorf(
			"failed to log submission stored audit event [%w]", err,
		)
	}

	return newEntry.StoredSubmission, nil
}

// getSubmission fetch one stored submission
func (d *databaseImpl) getSubmission(id string) (StoredSubmissionDBEntry, error) {
	var entry StoredSubmissionDBEntry
	err := d.db.Where("id = ?", id).First(&entry).Error
	return entry, err
}

/*
GetSubmission fetch a stored submission by reference ID

	@param ctx context.Context - execution context
	@param id string - submission reference ID
	@returns the stored submission entry
*/
func (d *databaseImpl) GetSubmission(
	_ context.Context, id string,
) (models.StoredSubmission, error) {
	entry, err := d.getSubmission(id)
	if err != nil {
		return models.StoredSubmission{}, fmt.Errorf("failed to fetch submission %s [%w]", id, err)
	}
	return entry.StoredSubmission, nil
}

/*
ListSubmissions list stored submissions

	@param ctx context.Context - execution context
	@param filters SubmissionQueryFilter - entry listing filter
	@return list of stored submissions
*/
func (d *databaseImpl) ListSubmissions(
	_ context.Context, filters SubmissionQueryFilter,
) ([]models.StoredSubmission, error) {
	query := d.db.Model(&StoredSubmissionDBEntry{})

	if filters.TargetKeyVersion != nil {
		query = query.Where("key_version = ?", *filters.TargetKeyVersion)
	}
	if filters.NeedsReencryption != nil {
		query = query.Where("needs_reencryption = ?", *filters.NeedsReencryption)
	}

	if filters.Limit != nil {
		query = query.Limit(*filters.Limit)
	}
	if filters.Offset != nil {
		query = query.Offset(*filters.Offset)
	}

	query = query.Order("created_at")

	var entries []StoredSubmissionDBEntry
	if tmp := query.Find(&entries); tmp.Error != nil {
		return nil, fmt.Errorf("failed to list stored submissions [%w]", tmp.Error)
	}

	result := []models.StoredSubmission{}
	for _, entry := range entries {
		result = append(result, entry.StoredSubmission)
	}

	return result, nil
}

/*
FlagSubmissionsForReencryption mark all submissions under a key version
as needing re-encryption

	@param ctx context.Context - execution context
	@param keyVersion string - the affected key version
	@returns number of flagged submissions
*/
func (d *databaseImpl) FlagSubmissionsForReencryption(
	_ context.Context, keyVersion string,
) (int64, error) {
	tmp := d.db.
		Model(&StoredSubmissionDBEntry{}).
		Where("key_version = ?", keyVersion).
		Where("needs_reencryption = ?", false).
		Update("needs_reencryption", true)
	if tmp.Error != nil {
		return 0, fmt.Errorf(
			"failed to flag submissions under key %s for re-encryption [%w]", keyVersion, tmp.Error,
		)
	}
	return tmp.RowsAffected, nil
}

/*
PurgeExpiredSubmissions delete submissions past their retention deadline

	@param ctx context.Context - execution context
	@param olderThan time.Time - delete entries with purge deadline before this
	@returns number of purged submissions
*/
func (d *databaseImpl) PurgeExpiredSubmissions(
	_ context.Context, olderThan time.Time,
) (int64, error) {
	tmp := d.db.Where("purge_at <= ?", olderThan).Delete(&StoredSubmissionDBEntry{})
	if tmp.Error != nil {
		return 0, fmt.Errorf("failed to purge expired submissions [%w]", tmp.Error)
	}

	if tmp.RowsAffected > 0 {
		// Record this event
		if _, err := d.defineNewSystemEvent(models.SystemEventTypeSubmissionsPurged, nil); err != nil {
			return tmp.RowsAffected, fmt.Errorf(
				"failed to log submission purge audit event [%w]", err,
			)
		}
	}

	return tmp.RowsAffected, nil
}
