package models

import (
	"fmt"
	"time"
)

// KeyStatusENUMType encryption key status ENUM value type
type KeyStatusENUMType string

const (
	// KeyStatusActive the key is usable for new encryptions
	KeyStatusActive KeyStatusENUMType = "ACTIVE"
	// KeyStatusExpired the key passed its expiry time
	KeyStatusExpired KeyStatusENUMType = "EXPIRED"
	// KeyStatusCompromised the key is compromised; terminal state
	KeyStatusCompromised KeyStatusENUMType = "COMPROMISED"
	// KeyStatusRetired the key was superseded by rotation
	KeyStatusRetired KeyStatusENUMType = "RETIRED"
)

// RotationReasonENUMType key rotation reason ENUM value type
type RotationReasonENUMType string

const (
	// RotationReasonScheduled routine scheduled rotation
	RotationReasonScheduled RotationReasonENUMType = "SCHEDULED"
	// RotationReasonCompromise rotation forced by a compromise report
	RotationReasonCompromise RotationReasonENUMType = "COMPROMISE"
	// RotationReasonExpiry rotation triggered by key expiry
	RotationReasonExpiry RotationReasonENUMType = "EXPIRY"
)

// KeyRecord metadata of one encryption key version
//
// The raw key material is held by the key manager, not on this record, so the
// record can be logged and serialized freely.
type KeyRecord struct {
	// Version key version identifier
	Version string `json:"version" validate:"required"`

	// Algorithm the AEAD algorithm the key is used with
	Algorithm string `json:"algorithm" validate:"required"`
	// KeySize key size in bits
	KeySize int `json:"keySize" validate:"required"`

	// Status the key lifecycle status
	Status KeyStatusENUMType `json:"status" validate:"required,key_status"`

	// CreatedAt key creation timestamp
	CreatedAt time.Time `json:"createdAt"`
	// ExpiresAt key expiry timestamp
	ExpiresAt time.Time `json:"expiresAt"`
	// LastRotated timestamp of the last rotation touching this key
	LastRotated time.Time `json:"lastRotated"`
}

// ValidateNextState verify can transition to new status
//
// Transitions are monotonic. A key never returns to ACTIVE, and COMPROMISED
// is terminal.
func (k *KeyRecord) ValidateNextState(newStatus KeyStatusENUMType) error {
	statesWithTransitions := map[KeyStatusENUMType]map[KeyStatusENUMType]bool{
		KeyStatusActive: {
			KeyStatusRetired:     true,
			KeyStatusExpired:     true,
			KeyStatusCompromised: true,
		},
		KeyStatusRetired: {
			KeyStatusCompromised: true,
		},
		KeyStatusExpired: {
			KeyStatusCompromised: true,
		},
		KeyStatusCompromised: {},
	}

	availableNextStates, ok := statesWithTransitions[k.Status]
	if !ok {
		return fmt.Errorf("key can't transition out of status '%s'", k.Status)
	}

	if _, ok := availableNextStates[newStatus]; !ok {
		return fmt.Errorf("key can't transition from '%s' to '%s'", k.Status, newStatus)
	}

	return nil
}

// RotationLogEntry one entry of the append-only key rotation audit trail
type RotationLogEntry struct {
	// OldVersion the version superseded by the rotation
	OldVersion string `json:"oldVersion" validate:"required"`
	// NewVersion the version installed by the rotation
	NewVersion string `json:"newVersion" validate:"required"`
	// RotatedAt rotation timestamp
	RotatedAt time.Time `json:"rotatedAt"`
	// RotatedBy the actor which performed the rotation
	RotatedBy string `json:"rotatedBy" validate:"required"`
	// Reason why the rotation happened
	Reason RotationReasonENUMType `json:"reason" validate:"required,rotation_reason"`
}

// KeyHealth aggregate view over the key registry
type KeyHealth struct {
	// TotalKeys number of key versions in the registry
	TotalKeys int `json:"totalKeys"`
	// ActiveKeys number of ACTIVE key versions
	ActiveKeys int `json:"activeKeys"`
	// ExpiredKeys number of EXPIRED key versions
	ExpiredKeys int `json:"expiredKeys"`
	// CompromisedKeys number of COMPROMISED key versions
	CompromisedKeys int `json:"compromisedKeys"`
	// NextRotationDue earliest expiry among ACTIVE keys
	NextRotationDue *time.Time `json:"nextRotationDue,omitempty"`
}
