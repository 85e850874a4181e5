package stor

import (
	"testing"
	"time"

	"github.com/kit-data-manager/staging/pkg/stagedb"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type NullLogger struct{}

func (l *NullLogger) Printf(_ string, _ ...interface{}) {
	// do nothing
}

// newTestDB opens the shared in-memory sqlite database, runs the migrations
// and empties all tables so each test starts clean.
func newTestDB(t *testing.T) *gorm.DB {
	gormLogger := logger.New(&NullLogger{},
		logger.Config{
			SlowThreshold:             time.Second * 5,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		})
	db, err := gorm.Open(sqlite.Open(stagedb.SqliteInMemoryDSN), &gorm.Config{Logger: gormLogger})
	require.NoErrorf(t, err, "gorm.Open failed: %s", err)
	sqlitedb, err := db.DB()
	require.NoError(t, err)
	sqlitedb.SetMaxOpenConns(1)

	err = stagedb.RunMigrations(db)
	require.NoErrorf(t, err, "Migration failed with: %s", err)

	for _, table := range []string{"transfer_processors", "transfers", "staging_processors", "tree_snapshots"} {
		require.NoError(t, db.Exec("DELETE FROM "+table).Error)
	}

	return db
}
