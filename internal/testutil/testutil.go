// Package testutil provides a migrated throwaway database and sample
// fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/releasarr/internal/database"
	"github.com/jmylchreest/releasarr/internal/database/migrations"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a migrated SQLite database in a temp dir. A file is used
// instead of :memory: so every pooled connection sees the same data.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := database.SQLiteDSN(filepath.Join(t.TempDir(), "releasarr-test.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	require.NoError(t, migrations.NewMigrator(db, nil).Up(context.Background()))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateSource inserts an enabled source with the given name and indexer key.
func CreateSource(t testing.TB, db *gorm.DB, name, indexerKey string) *models.Source {
	t.Helper()
	src := &models.Source{Name: name, IndexerKey: indexerKey, Enabled: models.BoolPtr(true)}
	require.NoError(t, db.Create(src).Error)
	return src
}

// CreateLibraryApp inserts an enabled library app.
func CreateLibraryApp(t testing.TB, db *gorm.DB, name string, kind models.LibraryKind) *models.LibraryApp {
	t.Helper()
	app := &models.LibraryApp{
		Name:    name,
		Kind:    kind,
		BaseURL: fmt.Sprintf("http://%s.local:7878", name),
		APIKey:  "test-key",
		Enabled: models.BoolPtr(true),
	}
	require.NoError(t, db.Create(app).Error)
	return app
}

// Fictional titles used by fixtures. Never use real release group names.
var (
	MovieTitles  = []string{"Harbor Lights", "The Glass Orchard", "Léon Nocturne", "Copper & Salt", "Northbound"}
	SeriesTitles = []string{"Quiet Meridian", "The Lantern Office", "Sables Mouvants"}
	Groups       = []string{"NOGRP", "FICTN", "SAMPLE"}
)

// MovieReleaseTitle builds a scene-style movie release title.
func MovieReleaseTitle(i int) string {
	return fmt.Sprintf("%s %d 1080p WEB-DL x264-%s",
		MovieTitles[i%len(MovieTitles)], 2000+i%25, Groups[i%len(Groups)])
}

// SeriesReleaseTitle builds a scene-style episode release title.
func SeriesReleaseTitle(i int) string {
	return fmt.Sprintf("%s S%02dE%02d 720p HDTV x265-%s",
		SeriesTitles[i%len(SeriesTitles)], 1+i%4, 1+i%12, Groups[i%len(Groups)])
}
