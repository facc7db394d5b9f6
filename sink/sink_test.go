package sink_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/oklog/ulid/v2"
	"github.com/riskfortress/intake/db"
	"github.com/riskfortress/intake/sink"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

// TestSinkStoreAndFetch verifies the durable sink store / fetch cycle.
//
// The test performs the following steps:
//
//  1. Store an encrypted submission.
//  2. Verify the reference ID format and the 72 hour retention deadline.
//  3. Fetch the submission back and verify its content.
//  4. Fetching an unknown reference ID should fail.
func TestSinkStoreAndFetch(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	// Create a unique temporary DB file for this test
	testDB := fmt.Sprintf("/tmp/intake_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")

	dbClient, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	assert.Nil(err)
	assert.Nil(dbClient.RunSQLInTransaction(utCtx, db.DefineTables))

	uut, err := sink.NewDurableSink(dbClient, 0)
	assert.Nil(err)

	// 1. Store a submission
	keyVersion := fmt.Sprintf("v%s", ulid.Make().String())
	cipherText := ulid.Make().String()
	startTime := time.Now().UTC()
	receipt, err := uut.Store(utCtx, keyVersion, cipherText, "192.0.2.40")
	assert.Nil(err)

	// 2. Verify reference ID format and retention deadline
	assert.Regexp(regexp.MustCompile(`^RF-\d+-[A-Z0-9]{9}$`), receipt.ID)
	assert.WithinDuration(startTime.Add(time.Hour*72), receipt.PurgeAt, time.Minute)

	// 3. Fetch the submission back
	entry, err := uut.Fetch(utCtx, receipt.ID)
	assert.Nil(err)
	assert.Equal(cipherText, entry.Ciphertext)
	assert.Equal(keyVersion, entry.KeyVersion)
	assert.Equal("192.0.2.40", entry.ClientID)

	// 4. Unknown reference ID should fail
	_, err = uut.Fetch(utCtx, "RF-0-UNKNOWN00")
	assert.Error(err)
}

// TestSinkRetentionPurge verifies the retention purge behaviour.
//
// The test performs the following steps:
//
//  1. Store two submissions with a short retention window.
//  2. Purge immediately - nothing should be deleted.
//  3. Advance the sink clock past the retention window and purge again -
//     both submissions should be deleted.
func TestSinkRetentionPurge(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtx := context.Background()

	// Create a unique temporary DB file for this test
	testDB := fmt.Sprintf("/tmp/intake_ut_%s.db", ulid.Make().String())
	log.WithField("db", testDB).Debug("Test database")

	dbClient, err := db.NewConnection(db.GetSqliteDialector(testDB), logger.Error)
	assert.Nil(err)
	assert.Nil(dbClient.RunSQLInTransaction(utCtx, db.DefineTables))

	uut, err := sink.NewDurableSink(dbClient, time.Minute)
	assert.Nil(err)

	// 1. Store two submissions
	keyVersion := fmt.Sprintf("v%s", ulid.Make().String())
	receipt1, err := uut.Store(utCtx, keyVersion, ulid.Make().String(), "192.0.2.50")
	assert.Nil(err)
	receipt2, err := uut.Store(utCtx, keyVersion, ulid.Make().String(), "192.0.2.51")
	assert.Nil(err)
	assert.NotEqual(receipt1.ID, receipt2.ID)

	// 2. Purge immediately - nothing is expired yet
	purged, err := uut.PurgeExpired(utCtx)
	assert.Nil(err)
	assert.Equal(int64(0), purged)

	// 3. Purge a safe margin past the retention deadline using the DB API
	// directly to avoid clock skew
	err = dbClient.UseDatabaseInTransaction(
		utCtx, func(ctx context.Context, dbClient db.Database) error {
			count, err := dbClient.PurgeExpiredSubmissions(
				ctx, time.Now().UTC().Add(time.Minute*2),
			)
			if err != nil {
				return err
			}
			purged = count
			return nil
		},
	)
	assert.Nil(err)
	assert.Equal(int64(2), purged)

	// Both submissions should be gone
	_, err = uut.Fetch(utCtx, receipt1.ID)
	assert.Error(err)
	_, err = uut.Fetch(utCtx, receipt2.ID)
	assert.Error(err)
}
