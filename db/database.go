package db

import (
	"context"
	"fmt"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/riskfortress/intake/models"
	"gorm.io/gorm"
)

// CommonListEntryQueryFilter common query filter when listing data entries
type CommonListEntryQueryFilter struct {
	Limit  *int
	Offset *int
}

// SystemEventQueryFilter audit event query filter conditions
type SystemEventQueryFilter struct {
	CommonListEntryQueryFilter
	// EventTypes the specific event types to query for
	EventTypes []models.SystemEventTypeENUMType
	// EventsAfter filter for events after this timestamp
	EventsAfter *time.Time
	// EventsBefore filter for events before this timestamp
	EventsBefore *time.Time
}

// SubmissionQueryFilter stored submission query filter conditions
type SubmissionQueryFilter struct {
	CommonListEntryQueryFilter
	// TargetKeyVersion fetch only submissions encrypted under this key version
	TargetKeyVersion *string
	// NeedsReencryption filter on the re-encryption flag
	NeedsReencryption *bool
}

// Database the database handle to interacting with the data base
type Database interface {
	// ------------------------------------------------------------------------------------
	// System audit events

	/*
		RecordSystemEvent record a new system event

			@param ctx context.Context - execution context
			@param eventType models.SystemEventTypeENUMType - event type
			@param metadata interface{} - event metadata
			@returns the audit entry
	*/
	RecordSystemEvent(
		ctx context.Context, eventType models.SystemEventTypeENUMType, metadata interface{},
	) (models.SystemEventAudit, error)

	/*
		ListSystemEvents list captured system events

			@param ctx context.Context - execution context
			@param filters SystemEventQueryFilter - entry listing filter
			@return list of system events
	*/
	ListSystemEvents(
		ctx context.Context, filters SystemEventQueryFilter,
	) ([]models.SystemEventAudit, error)

	// ------------------------------------------------------------------------------------
	// Encrypted submissions

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
	RecordSubmission(
		ctx context.Context,
		id string,
		keyVersion string,
		ciphertext string,
		clientID string,
		purgeAt time.Time,
	) (models.StoredSubmission, error)

	/*
		GetSubmission fetch a stored submission by reference ID

			@param ctx context.Context - execution context
			@param id string - submission reference ID
			@returns the stored submission entry
	*/
	GetSubmission(ctx context.Context, id string) (models.StoredSubmission, error)

	/*
		ListSubmissions list stored submissions

			@param ctx context.Context - execution context
			@param filters SubmissionQueryFilter - entry listing filter
			@return list of stored submissions
	*/
	ListSubmissions(
		ctx context.Context, filters SubmissionQueryFilter,
	) ([]models.StoredSubmission, error)

	/*
		FlagSubmissionsForReencryption mark all submissions under a key version
		as needing re-encryption

			@param ctx context.Context - execution context
			@param keyVersion string - the affected key version
			@returns number of flagged submissions
	*/
	FlagSubmissionsForReencryption(ctx context.Context, keyVersion string) (int64, error)

	/*
		PurgeExpiredSubmissions delete submissions past their retention deadline

			@param ctx context.Context - execution context
			@param olderThan time.Time - delete entries with purge deadline before this
			@returns number of purged submissions
	*/
	PurgeExpiredSubmissions(ctx context.Context, olderThan time.Time) (int64, error)
}

// databaseImpl implements Database
type databaseImpl struct {
	goutils.Component
	db        *gorm.DB
	validator *validator.Validate
}

// newDatabase define a new database client
func newDatabase(_ context.Context, sqlClient *gorm.DB) (Database, error) {
	logTags := log.Fields{"package": "intake", "module": "db", "component": "db-client"}

	instance := &databaseImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		db:        sqlClient,
		validator: validator.New(),
	}

	if err := models.RegisterWithValidator(instance.validator); err != nil {
		return nil, fmt.Errorf("failed to install custom validation macros [%w]", err)
	}

	return instance, nil
}
