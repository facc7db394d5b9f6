// Package sink - durable storage for encrypted submissions
package sink

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/riskfortress/intake/db"
	"github.com/riskfortress/intake/models"
)

// referenceIDCharset characters used in the random portion of a reference ID
const referenceIDCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// referenceIDRandomLength length of the random portion of a reference ID
const referenceIDRandomLength = 9

// defaultRetention how long stored submissions are kept before purge
const defaultRetention = time.Hour * 72

// StoreResult receipt for a durably stored submission
type StoreResult struct {
	// ID stable reference identifier for the stored submission
	ID string
	// PurgeAt when the stored submission will be deleted
	PurgeAt time.Time
}

// DurableSink persists encrypted submissions for later retrieval
type DurableSink interface {
	/*
		Store durably record an encrypted submission

			@param ctx context.Context - execution context
			@param keyVersion string - the key version the envelope was sealed under
			@param ciphertext string - the serialized encryption envelope
			@param clientID string - the submitting client identifier
			@returns storage receipt
	*/
	Store(
		ctx context.Context, keyVersion string, ciphertext string, clientID string,
	) (StoreResult, error)

	/*
		Fetch retrieve a stored submission by reference ID

			@param ctx context.Context - execution context
			@param id string - submission reference ID
			@returns the stored submission
	*/
	Fetch(ctx context.Context, id string) (models.StoredSubmission, error)

	/*
		PurgeExpired delete submissions past their retention deadline

			@param ctx context.Context - execution context
			@returns number of purged submissions
	*/
	PurgeExpired(ctx context.Context) (int64, error)
}

// durableSinkImpl implements DurableSink
type durableSinkImpl struct {
	goutils.Component
	persistence db.Client
	retention   time.Duration
	timeNow     func() time.Time
}

/*
NewDurableSink define a new durable submission sink

	@param persistence db.Client - persistence layer client
	@param retention time.Duration - submission retention period. If zero, use
	    the 72 hour default.
	@returns sink instance
*/
func NewDurableSink(persistence db.Client, retention time.Duration) (DurableSink, error) {
	logTags := log.Fields{"module": "sink", "component": "durable-sink"}

	if retention == 0 {
		retention = defaultRetention
	}

	return &durableSinkImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		persistence: persistence,
		retention:   retention,
		timeNow:     time.Now,
	}, nil
}

/*
NewReferenceID build a new submission reference ID

Format: `RF-<unix ms>-<nine random uppercase alphanumerics>`

	@param currentTime time.Time - reference timestamp
	@returns new reference ID
*/
func NewReferenceID(currentTime time.Time) (string, error) {
	random := make([]byte, referenceIDRandomLength)
	for idx := range random {
		pick, err := rand.Int(rand.Reader, big.NewInt(int64(len(referenceIDCharset))))
		if err != nil {
			return "", fmt.Errorf("failed to read from RNG [%w]", err)
		}
		random[idx] = referenceIDCharset[pick.Int64()]
	}
	return fmt.Sprintf("RF-%d-%s", currentTime.UnixMilli(), string(random)), nil
}

/*
Store durably record an encrypted submission

	@param ctx context.Context - execution context
	@param keyVersion string - the key version the envelope was sealed under
	@param ciphertext string - the serialized encryption envelope
	@param clientID string - the submitting client identifier
	@returns storage receipt
*/
func (s *durableSinkImpl) Store(
	ctx context.Context, keyVersion string, ciphertext string, clientID string,
) (StoreResult, error) {
	logTags := s.GetLogTagsForContext(ctx)

	currentTime := s.timeNow().UTC()
	referenceID, err := NewReferenceID(currentTime)
	if err != nil {
		return StoreResult{}, fmt.Errorf("failed to generate reference ID [%w]", err)
	}
	purgeAt := currentTime.Add(s.retention)

	err = s.persistence.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient db.Database) error {
			_, err := dbClient.RecordSubmission(
				ctx, referenceID, keyVersion, ciphertext, clientID, purgeAt,
			)
			return err
		},
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Submission storage failed")
		return StoreResult{}, fmt.Errorf("failed to store submission [%w]", err)
	}

	log.
		WithFields(logTags).
		WithField("reference_id", referenceID).
		WithField("key_version", keyVersion).
		Debug("Stored encrypted submission")

	return StoreResult{ID: referenceID, PurgeAt: purgeAt}, nil
}

/*
Fetch retrieve a stored submission by reference ID

	@param ctx context.Context - execution context
	@param id string - submission reference ID
	@returns the stored submission
*/
func (s *durableSinkImpl) Fetch(
	ctx context.Context, id string,
) (models.StoredSubmission, error) {
	var entry models.StoredSubmission
	err := s.persistence.UseDatabase(
		ctx, func(ctx context.Context, dbClient db.Database) error {
			read, err := dbClient.GetSubmission(ctx, id)
			if err != nil {
				return err
			}
			entry = read
			return nil
		},
	)
	return entry, err
}

/*
PurgeExpired delete submissions past their retention deadline

	@param ctx context.Context - execution context
	@returns number of purged submissions
*/
func (s *durableSinkImpl) PurgeExpired(ctx context.Context) (int64, error) {
	logTags := s.GetLogTagsForContext(ctx)

	var purged int64
	err := s.persistence.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient db.Database) error {
			count, err := dbClient.PurgeExpiredSubmissions(ctx, s.timeNow().UTC())
			if err != nil {
				return err
			}
			purged = count
			return nil
		},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired submissions [%w]", err)
	}

	if purged > 0 {
		log.WithFields(logTags).WithField("purged", purged).Info("Purged expired submissions")
	}

	return purged, nil
}
