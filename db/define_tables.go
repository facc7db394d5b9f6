package db

import (
	"context"

	"gorm.io/gorm"
)

// DefineTables helper function to prepare a database with tables. Used by
// unit-tests and by SQLite deployments at startup; managed databases use the
// Atlas migrations instead.
func DefineTables(_ context.Context, db *gorm.DB) error {
	return db.AutoMigrate(
		SystemEventAuditDBEntry{},
		StoredSubmissionDBEntry{},
	)
}
