package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB opens a fresh SQLite file in a temp directory. A file rather
// than ":memory:" lets concurrent tests use several connections that share
// one database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.db")
	db, err := gorm.Open(sqlite.Open(DSN(path)), GormConfig(logger.Silent))
	require.NoError(t, err, "open sqlite test db")
	require.NoError(t, ConfigurePool(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// newTestStorage returns a migrated storage backed by openTestDB.
func newTestStorage(t *testing.T) *GormStorage {
	t.Helper()
	s := NewGormStorage(openTestDB(t))
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}
