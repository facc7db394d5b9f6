package keymgmt_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/oklog/ulid/v2"
	"github.com/riskfortress/intake/db"
	"github.com/riskfortress/intake/encryption"
	"github.com/riskfortress/intake/keymgmt"
	"github.com/riskfortress/intake/models"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

// defineTestManager test helper building a manager over a fresh temporary DB
func defineTestManager(
	ctx context.Context, t *testing.T, keyLifetime time.Duration,
) (keymgmt.Manager, db.Client) {
	assert := assert.New(t)

	testDB := fmt.Sprintf("/tmp/intake_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")

	dbClient, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	assert.Nil(err)
	assert.Nil(dbClient.RunSQLInTransaction(ctx, db.DefineTables))

	engine, err := encryption.NewEngine()
	assert.Nil(err)

	secret, err := engine.GenerateSecret()
	assert.Nil(err)

	uut, err := keymgmt.NewManager(ctx, engine, dbClient, secret, keyLifetime)
	assert.Nil(err)

	return uut, dbClient
}

// TestKeyManagerProvisionAndRotate verifies the key lifecycle basics.
//
// The test performs the following steps:
//
//  1. Build a manager - the provisioned key should be the ACTIVE current key.
//  2. Seal a payload under the current key and open it again.
//  3. Rotate - the old key becomes RETIRED, a new ACTIVE current key appears.
//  4. The old key still opens the existing envelope but refuses new
//     encryptions.
//  5. The rotation log holds one SCHEDULED entry linking both versions.
//  6. Audit events: one KEY_PROVISIONED and one KEY_ROTATED.
func TestKeyManagerProvisionAndRotate(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()
	uut, dbClient := defineTestManager(utCtx, t, 0)

	// 1. The provisioned key is the ACTIVE current key
	initialKey, err := uut.CurrentKey(utCtx)
	assert.Nil(err)
	assert.Equal(models.KeyStatusActive, initialKey.Status)
	assert.Equal("AES-256-GCM", initialKey.Algorithm)
	assert.Equal(256, initialKey.KeySize)

	// 2. Seal and open a payload
	payload := map[string]string{"note": ulid.Make().String()}
	envelope, usedVersion, err := uut.SealPayload(utCtx, payload)
	assert.Nil(err)
	assert.Equal(initialKey.Version, usedVersion)

	opened, err := uut.OpenEnvelope(utCtx, envelope, usedVersion)
	assert.Nil(err)
	assert.True(opened.Verified)
	var parsed map[string]string
	assert.Nil(json.Unmarshal(opened.Payload, &parsed))
	assert.Equal(payload, parsed)

	// 3. Rotate
	newKey, err := uut.Rotate(utCtx, models.RotationReasonScheduled, "unit-test")
	assert.Nil(err)
	assert.NotEqual(initialKey.Version, newKey.Version)
	assert.Equal(models.KeyStatusActive, newKey.Status)

	currentKey, err := uut.CurrentKey(utCtx)
	assert.Nil(err)
	assert.Equal(newKey.Version, currentKey.Version)

	oldKey, err := uut.GetKey(utCtx, initialKey.Version)
	assert.Nil(err)
	assert.Equal(models.KeyStatusRetired, oldKey.Status)

	// 4. The retired key still opens the old envelope, but refuses new seals
	opened, err = uut.OpenEnvelope(utCtx, envelope, initialKey.Version)
	assert.Nil(err)
	assert.True(opened.Verified)

	_, err = uut.SealPayloadWithVersion(utCtx, payload, initialKey.Version)
	assert.Error(err)

	// The old envelope does not open under the new key
	_, err = uut.OpenEnvelope(utCtx, envelope, newKey.Version)
	assert.ErrorIs(err, encryption.ErrDecryptionFailed)

	// 5. Rotation log
	rotations, err := uut.RotationLog(utCtx, 0)
	assert.Nil(err)
	assert.Len(rotations, 1)
	assert.Equal(initialKey.Version, rotations[0].OldVersion)
	assert.Equal(newKey.Version, rotations[0].NewVersion)
	assert.Equal(models.RotationReasonScheduled, rotations[0].Reason)
	assert.Equal("unit-test", rotations[0].RotatedBy)

	// 6. Audit events
	var events []models.SystemEventAudit
	err = dbClient.UseDatabaseInTransaction(
		utCtx, func(ctx context.Context, dbClient db.Database) error {
			read, err := dbClient.ListSystemEvents(ctx, db.SystemEventQueryFilter{})
			if err != nil {
				return err
			}
			events = read
			return nil
		},
	)
	assert.Nil(err)
	assert.Len(events, 2)
	eventTypes := map[models.SystemEventTypeENUMType]int{}
	for _, e := range events {
		eventTypes[e.EventType]++
	}
	assert.Equal(1, eventTypes[models.SystemEventTypeKeyProvisioned])
	assert.Equal(1, eventTypes[models.SystemEventTypeKeyRotated])
}

// TestKeyManagerCompromise verifies the compromise handling path.
//
// The test performs the following steps:
//
//  1. Store two submissions under the current key version.
//  2. Mark the current key compromised.
//  3. The key is COMPROMISED and refuses both sealing and opening.
//  4. A replacement current key was rotated in with reason COMPROMISE.
//  5. Both stored submissions are flagged for re-encryption.
//  6. Compromise is terminal: a second report on the same key fails.
func TestKeyManagerCompromise(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()
	uut, dbClient := defineTestManager(utCtx, t, 0)

	initialKey, err := uut.CurrentKey(utCtx)
	assert.Nil(err)

	// 1. Store two submissions under the current key version
	purgeAt := time.Now().UTC().Add(time.Hour * 72)
	for idx := 0; idx < 2; idx++ {
		err = dbClient.UseDatabaseInTransaction(
			utCtx, func(ctx context.Context, dbClient db.Database) error {
				_, err := dbClient.RecordSubmission(
					ctx,
					fmt.Sprintf("RF-%s", ulid.Make().String()),
					initialKey.Version,
					ulid.Make().String(),
					"192.0.2.60",
					purgeAt,
				)
				return err
			},
		)
		assert.Nil(err)
	}

	envelope, _, err := uut.SealPayload(utCtx, map[string]string{"note": "before compromise"})
	assert.Nil(err)

	// 2. Mark the current key compromised
	assert.Nil(uut.MarkCompromised(utCtx, initialKey.Version, "credential leak report"))

	// 3. The key refuses all use
	compromisedKey, err := uut.GetKey(utCtx, initialKey.Version)
	assert.Nil(err)
	assert.Equal(models.KeyStatusCompromised, compromisedKey.Status)

	_, err = uut.SealPayloadWithVersion(utCtx, map[string]string{}, initialKey.Version)
	assert.Error(err)
	_, err = uut.OpenEnvelope(utCtx, envelope, initialKey.Version)
	assert.Error(err)

	// 4. A replacement key was installed
	currentKey, err := uut.CurrentKey(utCtx)
	assert.Nil(err)
	assert.NotEqual(initialKey.Version, currentKey.Version)
	assert.Equal(models.KeyStatusActive, currentKey.Status)

	rotations, err := uut.RotationLog(utCtx, 1)
	assert.Nil(err)
	assert.Len(rotations, 1)
	assert.Equal(models.RotationReasonCompromise, rotations[0].Reason)

	// 5. Stored submissions are flagged for re-encryption
	needsReencryption := true
	var pending []models.StoredSubmission
	err = dbClient.UseDatabaseInTransaction(
		utCtx, func(ctx context.Context, dbClient db.Database) error {
			read, err := dbClient.ListSubmissions(
				ctx, db.SubmissionQueryFilter{NeedsReencryption: &needsReencryption},
			)
			if err != nil {
				return err
			}
			pending = read
			return nil
		},
	)
	assert.Nil(err)
	assert.Len(pending, 2)
	for _, entry := range pending {
		assert.Equal(initialKey.Version, entry.KeyVersion)
	}

	// 6. A second compromise report on the same key fails
	assert.Error(uut.MarkCompromised(utCtx, initialKey.Version, "duplicate report"))
}

// TestKeyManagerExpiry verifies the expiry sweep.
//
// The test performs the following steps:
//
//  1. Build a manager with a very short key lifetime.
//  2. CheckExpiry before expiry - no rotation.
//  3. Wait past the lifetime, CheckExpiry again - the key is EXPIRED and a
//     replacement is installed with reason EXPIRY.
//  4. Health reflects the registry: two keys, one active, one expired.
func TestKeyManagerExpiry(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()
	uut, _ := defineTestManager(utCtx, t, time.Millisecond*50)

	initialKey, err := uut.CurrentKey(utCtx)
	assert.Nil(err)

	// 2. Not expired yet
	rotated, err := uut.CheckExpiry(utCtx)
	assert.Nil(err)
	assert.False(rotated)

	// 3. Wait past the lifetime
	time.Sleep(time.Millisecond * 100)
	rotated, err = uut.CheckExpiry(utCtx)
	assert.Nil(err)
	assert.True(rotated)

	expiredKey, err := uut.GetKey(utCtx, initialKey.Version)
	assert.Nil(err)
	assert.Equal(models.KeyStatusExpired, expiredKey.Status)

	currentKey, err := uut.CurrentKey(utCtx)
	assert.Nil(err)
	assert.NotEqual(initialKey.Version, currentKey.Version)

	rotations, err := uut.RotationLog(utCtx, 0)
	assert.Nil(err)
	assert.Len(rotations, 1)
	assert.Equal(models.RotationReasonExpiry, rotations[0].Reason)

	// 4. Health summary
	health, err := uut.Health(utCtx)
	assert.Nil(err)
	assert.Equal(2, health.TotalKeys)
	assert.Equal(1, health.ActiveKeys)
	assert.Equal(1, health.ExpiredKeys)
	assert.Equal(0, health.CompromisedKeys)
	assert.NotNil(health.NextRotationDue)
	assert.Equal(currentKey.ExpiresAt, *health.NextRotationDue)
}
