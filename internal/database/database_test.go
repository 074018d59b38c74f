package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmylchreest/releasarr/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func testConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             filepath.Join(t.TempDir(), "test.db"),
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute,
		LogLevel:        "silent",
	}
}

func TestNew_SQLite(t *testing.T) {
	db, err := New(testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, "sqlite", db.Driver())

	var mode string
	require.NoError(t, db.Raw("PRAGMA journal_mode").Scan(&mode).Error)
	assert.Equal(t, "wal", mode)
}

func TestNew_InvalidDriver(t *testing.T) {
	db, err := New(config.DatabaseConfig{Driver: "invalid", DSN: "x"}, nil)
	assert.Nil(t, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestDB_CloseThenPing(t *testing.T) {
	db, err := New(testConfig(t), nil)
	require.NoError(t, err)

	require.NoError(t, db.Close())
	assert.Error(t, db.Ping(context.Background()))
}

func TestDB_Stats(t *testing.T) {
	db, err := New(testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	stats, err := db.PoolStats()
	require.NoError(t, err)
	assert.Equal(t, 6, stats.MaxOpenConnections)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Contains(t, SQLiteDSN("a.db"), "a.db?_pragma=busy_timeout(30000)")
	assert.Contains(t, SQLiteDSN("file:a.db?cache=shared"), "cache=shared&_pragma=")
	assert.Contains(t, SQLiteDSN("a.db"), "_txlock=immediate")
}

func TestIsMemoryDSN(t *testing.T) {
	assert.True(t, isMemoryDSN(":memory:"))
	assert.True(t, isMemoryDSN("file:x?mode=memory"))
	assert.False(t, isMemoryDSN("releasarr.db"))
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, gormLogLevel("silent"))
	assert.Equal(t, logger.Error, gormLogLevel("error"))
	assert.Equal(t, logger.Info, gormLogLevel("info"))
	assert.Equal(t, logger.Warn, gormLogLevel("bogus"))
}

func TestGormLogger_LogsErrors(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger("error", slog.New(slog.NewTextHandler(&buf, nil)))

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "INSERT INTO releases", 0
	}, errors.New("UNIQUE constraint failed: releases.guid"))

	assert.Contains(t, buf.String(), "database error")
	assert.Contains(t, buf.String(), "CONSTRAINT")
}

func TestTruncateSQL(t *testing.T) {
	long := string(bytes.Repeat([]byte("x"), maxSQLLogLength+10))
	assert.Len(t, truncateSQL(long), maxSQLLogLength+len("... (truncated)"))
	assert.Equal(t, "SELECT 1", truncateSQL("SELECT 1"))
}
