package models

import "time"

// EnvelopeFormatVersion the ciphertext envelope format emitted and accepted
// by the encryption engine
const EnvelopeFormatVersion = "1.0.0"

// EncryptionEnvelope a self-describing ciphertext envelope
//
// Decryption requires only the envelope and the matching secret; the salt and
// IV travel with the ciphertext. All binary fields are base64 encoded.
type EncryptionEnvelope struct {
	// Encrypted the AES-256-GCM ciphertext, without the authentication tag
	Encrypted string `json:"encrypted" validate:"required,base64"`
	// IV the 12-byte GCM initialization vector
	IV string `json:"iv" validate:"required,base64"`
	// Salt the 32-byte PBKDF2 salt the data key was derived with
	Salt string `json:"salt" validate:"required,base64"`
	// Tag the 16-byte GCM authentication tag
	Tag string `json:"tag" validate:"required,base64"`
	// Version envelope format version
	Version string `json:"version" validate:"required"`
	// Timestamp envelope creation time, RFC3339
	Timestamp string `json:"timestamp" validate:"required"`
}

// StoredSubmission an encrypted submission recorded by the durable sink
type StoredSubmission struct {
	// ID stable reference identifier returned to the submitter
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required"`

	// KeyVersion the key version the envelope was encrypted under
	KeyVersion string `json:"key_version" gorm:"column:key_version;not null" validate:"required"`

	// Ciphertext the serialized encryption envelope
	Ciphertext string `json:"ciphertext" gorm:"column:ciphertext;not null" validate:"required"`

	// ClientID the submitting client identifier (IP)
	ClientID string `json:"client_id" gorm:"column:client_id;not null" validate:"required"`

	// NeedsReencryption set when the key version was retired or compromised
	NeedsReencryption bool `json:"needs_reencryption" gorm:"column:needs_reencryption;not null;default:false"`

	// PurgeAt retention deadline; the row is deleted after this time
	PurgeAt time.Time `json:"purge_at" gorm:"column:purge_at;not null" validate:"required"`

	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}
