// Package encryption - payload envelope encryption engine
package encryption

import (
	"context"
	"errors"
	"fmt"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/riskfortress/intake/models"
)

const (
	// saltLength PBKDF2 salt length in bytes
	saltLength = 32
	// ivLength GCM initialization vector length in bytes
	ivLength = 12
	// tagLength GCM authentication tag length in bytes
	tagLength = 16
	// keyLength derived AES key length in bytes
	keyLength = 32
	// pbkdf2Iterations PBKDF2-HMAC-SHA512 iteration count
	pbkdf2Iterations = 100000
	// maxEnvelopeAge envelopes older than this fail the integrity policy
	maxEnvelopeAge = 24 * 60 * 60 // seconds
)

// ErrDecryptionFailed the single opaque decryption failure
//
// Every decryption-path failure (base64, tag verification, JSON parse) maps
// to this error so callers outside the trust boundary cannot tell which step
// failed.
var ErrDecryptionFailed = errors.New("decryption failed")

// DecryptionResult outcome of a successful decryption
type DecryptionResult struct {
	// Payload the decrypted JSON payload
	Payload []byte
	// Verified whether the envelope passed the post-decrypt integrity policy
	// (age and format version)
	Verified bool
	// Timestamp the envelope creation timestamp
	Timestamp string
}

/*
Engine the system's payload encryption engine. It is solely responsible for
producing and opening ciphertext envelopes.

Each envelope is self-contained: a fresh random salt and IV travel with the
ciphertext, and the data key is re-derived from the secret on every call.
*/
type Engine interface {
	/*
		Encrypt seal a payload into a ciphertext envelope

			@param ctx context.Context - execution context
			@param payload interface{} - JSON-serializable payload
			@param secret string - the encryption secret
			@returns the ciphertext envelope
	*/
	Encrypt(
		ctx context.Context, payload interface{}, secret string,
	) (models.EncryptionEnvelope, error)

	/*
		Decrypt open a ciphertext envelope

		Fails closed: no partial plaintext is ever returned, and all failure
		modes surface as ErrDecryptionFailed.

			@param ctx context.Context - execution context
			@param envelope models.EncryptionEnvelope - the ciphertext envelope
			@param secret string - the encryption secret
			@returns the decrypted payload and integrity verdict
	*/
	Decrypt(
		ctx context.Context, envelope models.EncryptionEnvelope, secret string,
	) (DecryptionResult, error)

	/*
		RotateEnvelope re-encrypt an envelope under a new secret

			@param ctx context.Context - execution context
			@param oldSecret string - the secret the envelope was sealed with
			@param newSecret string - the secret to re-seal with
			@param envelope models.EncryptionEnvelope - the ciphertext envelope
			@returns the re-sealed envelope
	*/
	RotateEnvelope(
		ctx context.Context, oldSecret string, newSecret string,
		envelope models.EncryptionEnvelope,
	) (models.EncryptionEnvelope, error)

	/*
		GenerateSecret generate a new random encryption secret

			@returns base64 encoded secret
	*/
	GenerateSecret() (string, error)

	/*
		HashPayload fingerprint a payload without encrypting it

			@param payload interface{} - JSON-serializable payload
			@returns hex encoded SHA-256 of the serialized payload
	*/
	HashPayload(payload interface{}) (string, error)
}

// engineImpl implements Engine
type engineImpl struct {
	goutils.Component
	validator *validator.Validate
}

/*
NewEngine define new envelope encryption engine

	@returns engine instance
*/
func NewEngine() (Engine, error) {
	logTags := log.Fields{"module": "encryption", "component": "envelope-engine"}

	instance := &engineImpl{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		validator: validator.New(),
	}
	if err := models.RegisterWithValidator(instance.validator); err != nil {
		return nil, fmt.Errorf("failed to install custom validation macros [%w]", err)
	}

	return instance, nil
}
