// Package keymgmt - encryption key lifecycle management
package keymgmt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/oklog/ulid/v2"
	"github.com/riskfortress/intake/db"
	"github.com/riskfortress/intake/encryption"
	"github.com/riskfortress/intake/models"
)

// keyAlgorithm the AEAD algorithm recorded on every key version
const keyAlgorithm = "AES-256-GCM"

// keySizeBits recorded key size
const keySizeBits = 256

// defaultKeyLifetime how long a key version is usable before expiry
const defaultKeyLifetime = time.Hour * 24 * 90

/*
Manager the encryption key manager. It owns the in-memory key registry, the
key lifecycle state machine, and the rotation audit trail.

Key material never leaves the manager. Callers seal and open payloads through
the manager by key version.
*/
type Manager interface {
	/*
		CurrentKey fetch the metadata of the current encryption key

			@param ctx context.Context - execution context
			@returns current key record
	*/
	CurrentKey(ctx context.Context) (models.KeyRecord, error)

	/*
		GetKey fetch the metadata of one key version

			@param ctx context.Context - execution context
			@param version string - key version
			@returns key record
	*/
	GetKey(ctx context.Context, version string) (models.KeyRecord, error)

	/*
		ListKeys list all key versions in the registry

			@param ctx context.Context - execution context
			@returns all key records
	*/
	ListKeys(ctx context.Context) ([]models.KeyRecord, error)

	/*
		Rotate install a new current key and retire the previous one

			@param ctx context.Context - execution context
			@param reason models.RotationReasonENUMType - why the rotation happened
			@param rotatedBy string - the actor requesting the rotation
			@returns the new current key record
	*/
	Rotate(
		ctx context.Context, reason models.RotationReasonENUMType, rotatedBy string,
	) (models.KeyRecord, error)

	/*
		CheckExpiry expire and replace the current key if it passed its expiry

			@param ctx context.Context - execution context
			@returns whether a rotation was performed
	*/
	CheckExpiry(ctx context.Context) (bool, error)

	/*
		MarkCompromised mark a key version as compromised

		The key becomes permanently unusable, submissions sealed under it are
		flagged for re-encryption, and if it was the current key a replacement
		is rotated in immediately.

			@param ctx context.Context - execution context
			@param version string - the compromised key version
			@param detail string - free-form detail about the report
	*/
	MarkCompromised(ctx context.Context, version string, detail string) error

	/*
		SealPayload encrypt a payload under the current key

			@param ctx context.Context - execution context
			@param payload interface{} - JSON-serializable payload
			@returns the ciphertext envelope and the key version used
	*/
	SealPayload(
		ctx context.Context, payload interface{},
	) (models.EncryptionEnvelope, string, error)

	/*
		SealPayloadWithVersion encrypt a payload under a specific key version

		Only ACTIVE keys accept new encryptions.

			@param ctx context.Context - execution context
			@param payload interface{} - JSON-serializable payload
			@param version string - key version to seal with
			@returns the ciphertext envelope
	*/
	SealPayloadWithVersion(
		ctx context.Context, payload interface{}, version string,
	) (models.EncryptionEnvelope, error)

	/*
		OpenEnvelope decrypt an envelope sealed under a specific key version

		COMPROMISED keys refuse decryption. RETIRED and EXPIRED keys still open
		existing envelopes.

			@param ctx context.Context - execution context
			@param envelope models.EncryptionEnvelope - the ciphertext envelope
			@param version string - the key version the envelope was sealed under
			@returns the decrypted payload and integrity verdict
	*/
	OpenEnvelope(
		ctx context.Context, envelope models.EncryptionEnvelope, version string,
	) (encryption.DecryptionResult, error)

	/*
		RotationLog fetch the most recent rotation log entries

			@param ctx context.Context - execution context
			@param limit int - max entries to return. If <= 0, return all.
			@returns rotation log entries, oldest first
	*/
	RotationLog(ctx context.Context, limit int) ([]models.RotationLogEntry, error)

	/*
		Health aggregate view over the key registry

			@param ctx context.Context - execution context
			@returns registry health summary
	*/
	Health(ctx context.Context) (models.KeyHealth, error)
}

// registryEntry one key version held by the manager
type registryEntry struct {
	record models.KeyRecord
	secret string
}

// managerImpl implements Manager
type managerImpl struct {
	goutils.Component
	lock           sync.RWMutex
	registry       map[string]*registryEntry
	currentVersion string
	rotationLog    []models.RotationLogEntry
	engine         encryption.Engine
	persistence    db.Client
	keyLifetime    time.Duration
	timeNow        func() time.Time
}

/*
NewManager define a new key manager

The manager provisions its first key version from the provided secret. An
empty secret is a hard configuration error.

	@param ctx context.Context - execution context
	@param engine encryption.Engine - envelope encryption engine
	@param persistence db.Client - persistence layer client for audit events
	@param initialSecret string - the provisioned encryption secret
	@param keyLifetime time.Duration - key validity window. If zero, use the
	    90 day default.
	@returns manager instance
*/
func NewManager(
	ctx context.Context,
	engine encryption.Engine,
	persistence db.Client,
	initialSecret string,
	keyLifetime time.Duration,
) (Manager, error) {
	logTags := log.Fields{"module": "keymgmt", "component": "key-manager"}

	if initialSecret == "" {
		return nil, fmt.Errorf("no encryption secret provisioned")
	}
	if keyLifetime == 0 {
		keyLifetime = defaultKeyLifetime
	}

	instance := &managerImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		registry:    make(map[string]*registryEntry),
		rotationLog: []models.RotationLogEntry{},
		engine:      engine,
		persistence: persistence,
		keyLifetime: keyLifetime,
		timeNow:     time.Now,
	}

	// Install the provisioned secret as the first key version
	record := instance.defineKeyRecord()
	instance.registry[record.Version] = &registryEntry{record: record, secret: initialSecret}
	instance.currentVersion = record.Version

	err := persistence.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient db.Database) error {
			_, err := dbClient.RecordSystemEvent(
				ctx,
				models.SystemEventTypeKeyProvisioned,
				models.SystemEventKeyRelated{KeyVersion: record.Version},
			)
			return err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to log key provisioning audit event [%w]", err)
	}

	log.WithFields(logTags).WithField("key_version", record.Version).Info("Provisioned initial key")

	return instance, nil
}

// defineKeyRecord build a fresh ACTIVE key record
func (m *managerImpl) defineKeyRecord() models.KeyRecord {
	currentTime := m.timeNow().UTC()
	return models.KeyRecord{
		Version:     fmt.Sprintf("v%s", ulid.Make().String()),
		Algorithm:   keyAlgorithm,
		KeySize:     keySizeBits,
		Status:      models.KeyStatusActive,
		CreatedAt:   currentTime,
		ExpiresAt:   currentTime.Add(m.keyLifetime),
		LastRotated: currentTime,
	}
}

// getEntry fetch one registry entry. Caller must hold the lock.
func (m *managerImpl) getEntry(version string) (*registryEntry, error) {
	entry, ok := m.registry[version]
	if !ok {
		return nil, fmt.Errorf("unknown key version '%s'", version)
	}
	return entry, nil
}

/*
CurrentKey fetch the metadata of the current encryption key

	@param ctx context.Context - execution context
	@returns current key record
*/
func (m *managerImpl) CurrentKey(_ context.Context) (models.KeyRecord, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	entry, err := m.getEntry(m.currentVersion)
	if err != nil {
		return models.KeyRecord{}, err
	}
	return entry.record, nil
}

/*
GetKey fetch the metadata of one key version

	@param ctx context.Context - execution context
	@param version string - key version
	@returns key record
*/
func (m *managerImpl) GetKey(_ context.Context, version string) (models.KeyRecord, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	entry, err := m.getEntry(version)
	if err != nil {
		return models.KeyRecord{}, err
	}
	return entry.record, nil
}

/*
ListKeys list all key versions in the registry

	@param ctx context.Context - execution context
	@returns all key records
*/
func (m *managerImpl) ListKeys(_ context.Context) ([]models.KeyRecord, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	result := []models.KeyRecord{}
	for _, entry := range m.registry {
		result = append(result, entry.record)
	}
	return result, nil
}

// rotate core rotation logic. Caller must hold the write lock.
func (m *managerImpl) rotate(
	ctx context.Context,
	reason models.RotationReasonENUMType,
	rotatedBy string,
	oldStatus models.KeyStatusENUMType,
) (models.KeyRecord, error) {
	logTags := m.GetLogTagsForContext(ctx)

	oldEntry, err := m.getEntry(m.currentVersion)
	if err != nil {
		return models.KeyRecord{}, err
	}

	newSecret, err := m.engine.GenerateSecret()
	if err != nil {
		return models.KeyRecord{}, fmt.Errorf("failed to generate replacement key [%w]", err)
	}

	// Retire the outgoing key
	if oldEntry.record.Status == models.KeyStatusActive {
		if err := oldEntry.record.ValidateNextState(oldStatus); err != nil {
			return models.KeyRecord{}, err
		}
		oldEntry.record.Status = oldStatus
		oldEntry.record.LastRotated = m.timeNow().UTC()
	}

	newRecord := m.defineKeyRecord()
	m.registry[newRecord.Version] = &registryEntry{record: newRecord, secret: newSecret}
	m.currentVersion = newRecord.Version

	logEntry := models.RotationLogEntry{
		OldVersion: oldEntry.record.Version,
		NewVersion: newRecord.Version,
		RotatedAt:  m.timeNow().UTC(),
		RotatedBy:  rotatedBy,
		Reason:     reason,
	}
	m.rotationLog = append(m.rotationLog, logEntry)

	err = m.persistence.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient db.Database) error {
			_, err := dbClient.RecordSystemEvent(ctx, models.SystemEventTypeKeyRotated, logEntry)
			return err
		},
	)
	if err != nil {
		return models.KeyRecord{}, fmt.Errorf("failed to log key rotation audit event [%w]", err)
	}

	log.
		WithFields(logTags).
		WithField("old_version", oldEntry.record.Version).
		WithField("new_version", newRecord.Version).
		WithField("reason", reason).
		Info("Rotated encryption key")

	return newRecord, nil
}

/*
Rotate install a new current key and retire the previous one

	@param ctx context.Context - execution context
	@param reason models.RotationReasonENUMType - why the rotation happened
	@param rotatedBy string - the actor requesting the rotation
	@returns the new current key record
*/
func (m *managerImpl) Rotate(
	ctx context.Context, reason models.RotationReasonENUMType, rotatedBy string,
) (models.KeyRecord, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.rotate(ctx, reason, rotatedBy, models.KeyStatusRetired)
}

/*
CheckExpiry expire and replace the current key if it passed its expiry

	@param ctx context.Context - execution context
	@returns whether a rotation was performed
*/
func (m *managerImpl) CheckExpiry(ctx context.Context) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	entry, err := m.getEntry(m.currentVersion)
	if err != nil {
		return false, err
	}

	if m.timeNow().UTC().Before(entry.record.ExpiresAt) {
		return false, nil
	}

	expiredVersion := entry.record.Version

	if _, err := m.rotate(
		ctx, models.RotationReasonExpiry, "system", models.KeyStatusExpired,
	); err != nil {
		return false, fmt.Errorf("failed to replace expired key [%w]", err)
	}

	err = m.persistence.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient db.Database) error {
			_, err := dbClient.RecordSystemEvent(
				ctx,
				models.SystemEventTypeKeyExpired,
				models.SystemEventKeyRelated{KeyVersion: expiredVersion},
			)
			return err
		},
	)
	if err != nil {
		return true, fmt.Errorf("failed to log key expiry audit event [%w]", err)
	}

	return true, nil
}

/*
MarkCompromised mark a key version as compromised

The key becomes permanently unusable, submissions sealed under it are flagged
for re-encryption, and if it was the current key a replacement is rotated in
immediately.

	@param ctx context.Context - execution context
	@param version string - the compromised key version
	@param detail string - free-form detail about the report
*/
func (m *managerImpl) MarkCompromised(ctx context.Context, version string, detail string) error {
	logTags := m.GetLogTagsForContext(ctx)

	m.lock.Lock()
	defer m.lock.Unlock()

	entry, err := m.getEntry(version)
	if err != nil {
		return err
	}

	if err := entry.record.ValidateNextState(models.KeyStatusCompromised); err != nil {
		return fmt.Errorf("key compromise report rejected [%w]", err)
	}
	entry.record.Status = models.KeyStatusCompromised
	entry.record.LastRotated = m.timeNow().UTC()

	wasCurrent := version == m.currentVersion

	// Flag stored submissions and record the event
	var flagged int64
	err = m.persistence.UseDatabaseInTransaction(
		ctx, func(ctx context.Context, dbClient db.Database) error {
			count, err := dbClient.FlagSubmissionsForReencryption(ctx, version)
			if err != nil {
				return err
			}
			flagged = count
			_, err = dbClient.RecordSystemEvent(
				ctx,
				models.SystemEventTypeKeyCompromised,
				models.SystemEventKeyRelated{KeyVersion: version, Detail: detail},
			)
			return err
		},
	)
	if err != nil {
		return fmt.Errorf("failed to process key compromise report [%w]", err)
	}

	log.
		WithFields(logTags).
		WithField("key_version", version).
		WithField("flagged_submissions", flagged).
		Warn("Key marked compromised")

	// A compromised current key is replaced immediately
	if wasCurrent {
		if _, err := m.rotate(
			ctx, models.RotationReasonCompromise, "system", models.KeyStatusRetired,
		); err != nil {
			return fmt.Errorf("failed to replace compromised key [%w]", err)
		}
	}

	return nil
}

/*
SealPayload encrypt a payload under the current key

	@param ctx context.Context - execution context
	@param payload interface{} - JSON-serializable payload
	@returns the ciphertext envelope and the key version used
*/
func (m *managerImpl) SealPayload(
	ctx context.Context, payload interface{},
) (models.EncryptionEnvelope, string, error) {
	m.lock.RLock()
	currentVersion := m.currentVersion
	m.lock.RUnlock()

	envelope, err := m.SealPayloadWithVersion(ctx, payload, currentVersion)
	return envelope, currentVersion, err
}

/*
SealPayloadWithVersion encrypt a payload under a specific key version

Only ACTIVE keys accept new encryptions.

	@param ctx context.Context - execution context
	@param payload interface{} - JSON-serializable payload
	@param version string - key version to seal with
	@returns the ciphertext envelope
*/
func (m *managerImpl) SealPayloadWithVersion(
	ctx context.Context, payload interface{}, version string,
) (models.EncryptionEnvelope, error) {
	m.lock.RLock()
	entry, err := m.getEntry(version)
	if err != nil {
		m.lock.RUnlock()
		return models.EncryptionEnvelope{}, err
	}
	status := entry.record.Status
	secret := entry.secret
	m.lock.RUnlock()

	if status != models.KeyStatusActive {
		return models.EncryptionEnvelope{}, fmt.Errorf(
			"key version '%s' is %s, new encryptions refused", version, status,
		)
	}

	return m.engine.Encrypt(ctx, payload, secret)
}

/*
OpenEnvelope decrypt an envelope sealed under a specific key version

COMPROMISED keys refuse decryption. RETIRED and EXPIRED keys still open
existing envelopes.

	@param ctx context.Context - execution context
	@param envelope models.EncryptionEnvelope - the ciphertext envelope
	@param version string - the key version the envelope was sealed under
	@returns the decrypted payload and integrity verdict
*/
func (m *managerImpl) OpenEnvelope(
	ctx context.Context, envelope models.EncryptionEnvelope, version string,
) (encryption.DecryptionResult, error) {
	m.lock.RLock()
	entry, err := m.getEntry(version)
	if err != nil {
		m.lock.RUnlock()
		return encryption.DecryptionResult{}, err
	}
	status := entry.record.Status
	secret := entry.secret
	m.lock.RUnlock()

	if status == models.KeyStatusCompromised {
		return encryption.DecryptionResult{}, fmt.Errorf(
			"key version '%s' is compromised, decryption refused", version,
		)
	}

	return m.engine.Decrypt(ctx, envelope, secret)
}

/*
RotationLog fetch the most recent rotation log entries

	@param ctx context.Context - execution context
	@param limit int - max entries to return. If <= 0, return all.
	@returns rotation log entries, oldest first
*/
func (m *managerImpl) RotationLog(_ context.Context, limit int) ([]models.RotationLogEntry, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	entries := m.rotationLog
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	result := make([]models.RotationLogEntry, len(entries))
	copy(result, entries)
	return result, nil
}

/*
Health aggregate view over the key registry

	@param ctx context.Context - execution context
	@returns registry health summary
*/
func (m *managerImpl) Health(_ context.Context) (models.KeyHealth, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	health := models.KeyHealth{TotalKeys: len(m.registry)}
	for _, entry := range m.registry {
		switch entry.record.Status {
		case models.KeyStatusActive:
			health.ActiveKeys++
			expiry := entry.record.ExpiresAt
			if health.NextRotationDue == nil || expiry.Before(*health.NextRotationDue) {
				health.NextRotationDue = &expiry
			}
		case models.KeyStatusExpired:
			health.ExpiredKeys++
		case models.KeyStatusCompromised:
			health.CompromisedKeys++
		}
	}

	return health, nil
}
