package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
)

// SystemEventTypeENUMType system event type ENUM value type
type SystemEventTypeENUMType string

const (
	// SystemEventTypeKeyProvisioned the initial encryption key was installed
	SystemEventTypeKeyProvisioned SystemEventTypeENUMType = "KEY_PROVISIONED"

	// SystemEventTypeKeyRotated the current encryption key was rotated
	SystemEventTypeKeyRotated SystemEventTypeENUMType = "KEY_ROTATED"

	// SystemEventTypeKeyExpired an encryption key passed its expiry
	SystemEventTypeKeyExpired SystemEventTypeENUMType = "KEY_EXPIRED"

	// SystemEventTypeKeyCompromised an encryption key was reported compromised
	SystemEventTypeKeyCompromised SystemEventTypeENUMType = "KEY_COMPROMISED"

	// SystemEventTypeSubmissionStored an encrypted submission was recorded
	SystemEventTypeSubmissionStored SystemEventTypeENUMType = "SUBMISSION_STORED"

	// SystemEventTypeSubmissionsPurged expired submissions were purged
	SystemEventTypeSubmissionsPurged SystemEventTypeENUMType = "SUBMISSIONS_PURGED"
)

// SystemEventAudit recording of events occurring at the system level
type SystemEventAudit struct {
	// ID audit entry ID
	ID string `json:"id" gorm:"column:id;primaryKey;unique" validate:"required"`
	// EventType system event type
	EventType SystemEventTypeENUMType `json:"type" gorm:"column:type;not null" validate:"required,system_event_type"`
	// Metadata a metadata relating to the event
	Metadata datatypes.JSON `json:"metadata,omitempty" gorm:"column:metadata;default:null"`
	// CreatedAt entry creation timestamp
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt entry update timestamp
	UpdatedAt time.Time `json:"updated_at"`
}

// ParseMetadata parse the metadata based on the event type
func (a SystemEventAudit) ParseMetadata(validator *validator.Validate) (interface{}, error) {
	switch a.EventType {
	// Encryption key related system audit events
	case SystemEventTypeKeyProvisioned:
		fallthrough
	case SystemEventTypeKeyExpired:
		fallthrough
	case SystemEventTypeKeyCompromised:
		var parsed SystemEventKeyRelated
		if err := json.Unmarshal(a.Metadata, &parsed); err != nil {
			return nil, fmt.Errorf("system event '%s' metadata parse failed [%w]", a.EventType, err)
		}
		return parsed, validator.Struct(&parsed)

	// Key rotation system audit events
	case SystemEventTypeKeyRotated:
		var parsed RotationLogEntry
		if err := json.Unmarshal(a.Metadata, &parsed); err != nil {
			return nil, fmt.Errorf("system event '%s' metadata parse failed [%w]", a.EventType, err)
		}
		return parsed, validator.Struct(&parsed)

	// Stored submission related system audit events
	case SystemEventTypeSubmissionStored:
		var parsed SystemEventSubmissionRelated
		if err := json.Unmarshal(a.Metadata, &parsed); err != nil {
			return nil, fmt.Errorf("system event '%s' metadata parse failed [%w]", a.EventType, err)
		}
		return parsed, validator.Struct(&parsed)
	}
	return nil, nil
}

// SystemEventKeyRelated system event metadata related to an encryption key
type SystemEventKeyRelated struct {
	// KeyVersion the encryption key version involved
	KeyVersion string `json:"key_version" validate:"required"`
	// Detail additional free-form detail about the event
	Detail string `json:"detail,omitempty"`
}

// SystemEventSubmissionRelated system event metadata related to a stored
// submission
type SystemEventSubmissionRelated struct {
	// SubmissionID the stored submission reference ID
	SubmissionID string `json:"submission_id" validate:"required"`
	// KeyVersion the key version the submission was encrypted under
	KeyVersion string `json:"key_version" validate:"required"`
}
