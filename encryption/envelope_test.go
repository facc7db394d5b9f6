package encryption_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/riskfortress/intake/encryption"
	"github.com/riskfortress/intake/models"
	"github.com/stretchr/testify/assert"
)

// tamperBase64 flip one bit inside a base64 encoded field
func tamperBase64(t *testing.T, encoded string) string {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	assert.Nil(t, err)
	raw[0] ^= 0x01
	return base64.StdEncoding.EncodeToString(raw)
}

// TestEnvelopeRoundTrip verifies the basic encrypt / decrypt cycle.
//
// The test performs the following steps:
//
//  1. Encrypt a payload and verify the envelope shape.
//  2. Decrypt and verify the plaintext and integrity verdict.
//  3. Encrypt the same payload again - the envelopes must differ because the
//     salt and IV are fresh on every call.
func TestEnvelopeRoundTrip(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, err := encryption.NewEngine()
	assert.Nil(err)

	secret, err := uut.GenerateSecret()
	assert.Nil(err)

	payload := map[string]string{"note": uuid.NewString()}

	// 1. Encrypt and verify the envelope shape
	envelope, err := uut.Encrypt(utCtx, payload, secret)
	assert.Nil(err)
	assert.Equal(models.EnvelopeFormatVersion, envelope.Version)

	salt, err := base64.StdEncoding.DecodeString(envelope.Salt)
	assert.Nil(err)
	assert.Len(salt, 32)
	iv, err := base64.StdEncoding.DecodeString(envelope.IV)
	assert.Nil(err)
	assert.Len(iv, 12)
	tag, err := base64.StdEncoding.DecodeString(envelope.Tag)
	assert.Nil(err)
	assert.Len(tag, 16)

	createdAt, err := time.Parse(time.RFC3339, envelope.Timestamp)
	assert.Nil(err)
	assert.WithinDuration(time.Now().UTC(), createdAt, time.Minute)

	// 2. Decrypt and verify
	result, err := uut.Decrypt(utCtx, envelope, secret)
	assert.Nil(err)
	assert.True(result.Verified)
	var parsed map[string]string
	assert.Nil(json.Unmarshal(result.Payload, &parsed))
	assert.Equal(payload, parsed)

	// 3. Fresh salt and IV on every call
	other, err := uut.Encrypt(utCtx, payload, secret)
	assert.Nil(err)
	assert.NotEqual(envelope.Encrypted, other.Encrypted)
	assert.NotEqual(envelope.Salt, other.Salt)
	assert.NotEqual(envelope.IV, other.IV)
}

// TestDecryptionFailsClosed verifies every failure mode surfaces as the one
// opaque error.
//
// The test performs the following steps:
//
//  1. Decrypt with the wrong secret.
//  2. Decrypt with a tampered ciphertext, tag, IV, and salt.
//  3. Decrypt with malformed base64 fields.
//
// Every case must return ErrDecryptionFailed with no further detail.
func TestDecryptionFailsClosed(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, err := encryption.NewEngine()
	assert.Nil(err)

	secret, err := uut.GenerateSecret()
	assert.Nil(err)

	envelope, err := uut.Encrypt(utCtx, map[string]string{"note": "sensitive"}, secret)
	assert.Nil(err)

	// 1. Wrong secret
	wrongSecret, err := uut.GenerateSecret()
	assert.Nil(err)
	_, err = uut.Decrypt(utCtx, envelope, wrongSecret)
	assert.ErrorIs(err, encryption.ErrDecryptionFailed)

	// 2. Tampered fields
	tampered := envelope
	tampered.Encrypted = tamperBase64(t, envelope.Encrypted)
	_, err = uut.Decrypt(utCtx, tampered, secret)
	assert.ErrorIs(err, encryption.ErrDecryptionFailed)

	tampered = envelope
	tampered.Tag = tamperBase64(t, envelope.Tag)
	_, err = uut.Decrypt(utCtx, tampered, secret)
	assert.ErrorIs(err, encryption.ErrDecryptionFailed)

	tampered = envelope
	tampered.IV = tamperBase64(t, envelope.IV)
	_, err = uut.Decrypt(utCtx, tampered, secret)
	assert.ErrorIs(err, encryption.ErrDecryptionFailed)

	tampered = envelope
	tampered.Salt = tamperBase64(t, envelope.Salt)
	_, err = uut.Decrypt(utCtx, tampered, secret)
	assert.ErrorIs(err, encryption.ErrDecryptionFailed)

	// 3. Malformed base64
	tampered = envelope
	tampered.Encrypted = "%%% not base64 %%%"
	_, err = uut.Decrypt(utCtx, tampered, secret)
	assert.ErrorIs(err, encryption.ErrDecryptionFailed)

	// The original envelope still decrypts
	result, err := uut.Decrypt(utCtx, envelope, secret)
	assert.Nil(err)
	assert.True(result.Verified)
}

// TestIntegrityPolicy verifies the post-decrypt age and version checks.
//
// Stale or version-mismatched envelopes still decrypt, but are flagged as
// unverified.
func TestIntegrityPolicy(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, err := encryption.NewEngine()
	assert.Nil(err)

	secret, err := uut.GenerateSecret()
	assert.Nil(err)

	envelope, err := uut.Encrypt(utCtx, map[string]string{"note": "aging"}, secret)
	assert.Nil(err)

	// Case 1: an envelope older than 24 hours fails verification. The
	// timestamp is not authenticated, so decryption itself still succeeds.
	stale := envelope
	stale.Timestamp = time.Now().UTC().Add(-time.Hour * 25).Format(time.RFC3339)
	result, err := uut.Decrypt(utCtx, stale, secret)
	assert.Nil(err)
	assert.False(result.Verified)

	// Case 2: a format version mismatch fails verification
	mismatched := envelope
	mismatched.Version = "0.9.0"
	result, err = uut.Decrypt(utCtx, mismatched, secret)
	assert.Nil(err)
	assert.False(result.Verified)

	// Case 3: an unparseable timestamp fails verification
	broken := envelope
	broken.Timestamp = "yesterday"
	result, err = uut.Decrypt(utCtx, broken, secret)
	assert.Nil(err)
	assert.False(result.Verified)
}

// TestEnvelopeRotation verifies re-encryption under a new secret.
func TestEnvelopeRotation(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	uut, err := encryption.NewEngine()
	assert.Nil(err)

	oldSecret, err := uut.GenerateSecret()
	assert.Nil(err)
	newSecret, err := uut.GenerateSecret()
	assert.Nil(err)

	payload := map[string]string{"note": uuid.NewString()}
	envelope, err := uut.Encrypt(utCtx, payload, oldSecret)
	assert.Nil(err)

	// Case 1: rotation produces an envelope only the new secret opens
	rotated, err := uut.RotateEnvelope(utCtx, oldSecret, newSecret, envelope)
	assert.Nil(err)

	result, err := uut.Decrypt(utCtx, rotated, newSecret)
	assert.Nil(err)
	assert.True(result.Verified)
	var parsed map[string]string
	assert.Nil(json.Unmarshal(result.Payload, &parsed))
	assert.Equal(payload, parsed)

	_, err = uut.Decrypt(utCtx, rotated, oldSecret)
	assert.ErrorIs(err, encryption.ErrDecryptionFailed)

	// Case 2: rotation with the wrong old secret fails
	_, err = uut.RotateEnvelope(utCtx, newSecret, oldSecret, envelope)
	assert.Error(err)

	// Case 3: an unverified envelope refuses rotation
	stale := envelope
	stale.Timestamp = time.Now().UTC().Add(-time.Hour * 25).Format(time.RFC3339)
	_, err = uut.RotateEnvelope(utCtx, oldSecret, newSecret, stale)
	assert.Error(err)
}

// TestSecretAndHashHelpers verifies the secret generator and payload
// fingerprinting helpers.
func TestSecretAndHashHelpers(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut, err := encryption.NewEngine()
	assert.Nil(err)

	// Case 1: secrets decode to 32 bytes and are unique
	secret1, err := uut.GenerateSecret()
	assert.Nil(err)
	secret2, err := uut.GenerateSecret()
	assert.Nil(err)
	assert.NotEqual(secret1, secret2)
	raw, err := base64.StdEncoding.DecodeString(secret1)
	assert.Nil(err)
	assert.Len(raw, 32)

	// Case 2: payload hashes are deterministic and payload-sensitive
	hash1, err := uut.HashPayload(map[string]string{"a": "1"})
	assert.Nil(err)
	hash2, err := uut.HashPayload(map[string]string{"a": "1"})
	assert.Nil(err)
	hash3, err := uut.HashPayload(map[string]string{"a": "2"})
	assert.Nil(err)
	assert.Equal(hash1, hash2)
	assert.NotEqual(hash1, hash3)
	assert.Len(hash1, 64)
}
