package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/riskfortress/intake/models"
	"golang.org/x/crypto/pbkdf2"
)

// deriveKey derive the AES data key from the secret and salt
func deriveKey(secret string, salt []byte) []byte {
	return pbkdf2.Key([]byte(secret), salt, pbkdf2Iterations, keyLength, sha512.New)
}

// newAEAD prepare an AES-256-GCM AEAD over the derived key
func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("unable to define AES cipher [%w]", err)
	}

	aead, err := cipher.NewGCMWithTagSize(block, tagLength)
	if err != nil {
		return nil, fmt.Errorf("unable to define GCM mode [%w]", err)
	}

	return aead, nil
}

// randomBytes read n bytes from the system CSPRNG
func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if read, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes from RNG [%w]", n, err)
	} else if read != n {
		return nil, fmt.Errorf("did not get %d bytes from RNG, only %d", n, read)
	}
	return buf, nil
}

/*
Encrypt seal a payload into a ciphertext envelope

	@param ctx context.Context - execution context
	@param payload interface{} - JSON-serializable payload
	@param secret string - the encryption secret
	@returns the ciphertext envelope
*/
func (e *engineImpl) Encrypt(
	_ context.Context, payload interface{}, secret string,
) (models.EncryptionEnvelope, error) {
	if secret == "" {
		return models.EncryptionEnvelope{}, fmt.Errorf("encryption secret is empty")
	}

	plainText, err := json.Marshal(payload)
	if err != nil {
		return models.EncryptionEnvelope{}, fmt.Errorf("failed to serialize payload [%w]", err)
	}

	salt, err := randomBytes(saltLength)
	if err != nil {
		return models.EncryptionEnvelope{}, fmt.Errorf("failed to generate salt [%w]", err)
	}

	iv, err := randomBytes(ivLength)
	if err != nil {
		return models.EncryptionEnvelope{}, fmt.Errorf("failed to generate IV [%w]", err)
	}

	aead, err := newAEAD(deriveKey(secret, salt))
	if err != nil {
		return models.EncryptionEnvelope{}, fmt.Errorf("failed to setup AEAD [%w]", err)
	}

	// Seal appends the authentication tag to the ciphertext; the envelope
	// format carries the tag as a separate field.
	sealed := aead.Seal(nil, iv, plainText, nil)
	cipherText := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	return models.EncryptionEnvelope{
		Encrypted: base64.StdEncoding.EncodeToString(cipherText),
		IV:        base64.StdEncoding.EncodeToString(iv),
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Tag:       base64.StdEncoding.EncodeToString(tag),
		Version:   models.EnvelopeFormatVersion,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// open core decryption helper. The detailed error never leaves the engine.
func (e *engineImpl) open(
	envelope models.EncryptionEnvelope, secret string,
) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(envelope.Salt)
	if err != nil {
		return nil, fmt.Errorf("malformed salt [%w]", err)
	}
	iv, err := base64.StdEncoding.DecodeString(envelope.IV)
	if err != nil {
		return nil, fmt.Errorf("malformed IV [%w]", err)
	}
	tag, err := base64.StdEncoding.DecodeString(envelope.Tag)
	if err != nil {
		return nil, fmt.Errorf("malformed tag [%w]", err)
	}
	cipherText, err := base64.StdEncoding.DecodeString(envelope.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("malformed ciphertext [%w]", err)
	}

	if len(iv) != ivLength || len(tag) != tagLength {
		return nil, fmt.Errorf("envelope field lengths invalid")
	}

	aead, err := newAEAD(deriveKey(secret, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to setup AEAD [%w]", err)
	}

	plainText, err := aead.Open(nil, iv, append(cipherText, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed [%w]", err)
	}

	if !json.Valid(plainText) {
		return nil, fmt.Errorf("plaintext is not valid JSON")
	}

	return plainText, nil
}

// verifyIntegrity post-decrypt envelope policy: age and format version
func verifyIntegrity(envelope models.EncryptionEnvelope) bool {
	if envelope.Version != models.EnvelopeFormatVersion {
		return false
	}

	createdAt, err := time.Parse(time.RFC3339, envelope.Timestamp)
	if err != nil {
		return false
	}

	return time.Since(createdAt) <= time.Duration(maxEnvelopeAge)*time.Second
}

/*
Decrypt open a ciphertext envelope

Fails closed: no partial plaintext is ever returned, and all failure modes
surface as ErrDecryptionFailed.

	@param ctx context.Context - execution context
	@param envelope models.EncryptionEnvelope - the ciphertext envelope
	@param secret string - the encryption secret
	@returns the decrypted payload and integrity verdict
*/
func (e *engineImpl) Decrypt(
	_ context.Context, envelope models.EncryptionEnvelope, secret string,
) (DecryptionResult, error) {
	plainText, err := e.open(envelope, secret)
	if err != nil {
		// The cause stays in internal logs only
		log.WithError(err).WithFields(e.LogTags).Debug("envelope decryption failed")
		return DecryptionResult{}, ErrDecryptionFailed
	}

	return DecryptionResult{
		Payload:   plainText,
		Verified:  verifyIntegrity(envelope),
		Timestamp: envelope.Timestamp,
	}, nil
}

/*
RotateEnvelope re-encrypt an envelope under a new secret

	@param ctx context.Context - execution context
	@param oldSecret string - the secret the envelope was sealed with
	@param newSecret string - the secret to re-seal with
	@param envelope models.EncryptionEnvelope - the ciphertext envelope
	@returns the re-sealed envelope
*/
func (e *engineImpl) RotateEnvelope(
	ctx context.Context, oldSecret string, newSecret string,
	envelope models.EncryptionEnvelope,
) (models.EncryptionEnvelope, error) {
	decrypted, err := e.Decrypt(ctx, envelope, oldSecret)
	if err != nil {
		return models.EncryptionEnvelope{}, fmt.Errorf(
			"envelope rotation failed [%w]", err,
		)
	}

	if !decrypted.Verified {
		return models.EncryptionEnvelope{}, fmt.Errorf(
			"envelope rotation failed [%w]", ErrDecryptionFailed,
		)
	}

	return e.Encrypt(ctx, json.RawMessage(decrypted.Payload), newSecret)
}

/*
GenerateSecret generate a new random encryption secret

	@returns base64 encoded secret
*/
func (e *engineImpl) GenerateSecret() (string, error) {
	raw, err := randomBytes(keyLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate secret [%w]", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

/*
HashPayload fingerprint a payload without encrypting it

	@param payload interface{} - JSON-serializable payload
	@returns hex encoded SHA-256 of the serialized payload
*/
func (e *engineImpl) HashPayload(payload interface{}) (string, error) {
	serialized, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize payload [%w]", err)
	}
	digest := sha256.Sum256(serialized)
	return hex.EncodeToString(digest[:]), nil
}
