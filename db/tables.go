package db

import "github.com/riskfortress/intake/models"

// --------------------------------------------------------------------------------------
// System audit events

// SystemEventAuditDBEntry system audit event DB entry
type SystemEventAuditDBEntry struct {
	models.SystemEventAudit
}

// TableName hard code table name
func (SystemEventAuditDBEntry) TableName() string {
	return "system_audit_events"
}

// --------------------------------------------------------------------------------------
// Encrypted submissions

// StoredSubmissionDBEntry encrypted intake submission DB entry
type StoredSubmissionDBEntry struct {
	models.StoredSubmission
}

// TableName hard code table name
func (StoredSubmissionDBEntry) TableName() string {
	return "encrypted_submissions"
}
