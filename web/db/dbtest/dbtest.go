// Package dbtest opens a migrated in-memory database for tests.
package dbtest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-hotspot/web/db"
)

func Open(t testing.TB) *gorm.DB {
	t.Helper()

	conn, err := db.Open(sqlite.Open("file::memory:"), logger.Silent)
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// Every pooled connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Sync(conn))
	return conn
}
