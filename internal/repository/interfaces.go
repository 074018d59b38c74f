// Package repository provides GORM-backed data access for releasarr tables.
// The ingestion, retention and library packages own their transactional
// write paths; repositories cover lookups and administrative CRUD.
package repository

import (
	"context"

	"github.com/jmylchreest/releasarr/internal/category"
	"github.com/jmylchreest/releasarr/internal/models"
)

// SourceRepository defines operations for feed source persistence.
type SourceRepository interface {
	// GetByID returns nil, nil when the source does not exist.
	GetByID(ctx context.Context, id models.ULID) (*models.Source, error)
	GetByName(ctx context.Context, name string) (*models.Source, error)
	GetAll(ctx context.Context) ([]*models.Source, error)
	GetEnabled(ctx context.Context) ([]*models.Source, error)
	// UpsertByName creates the source or updates its settings, keyed by name.
	UpsertByName(ctx context.Context, source *models.Source) error
	// UpdateIngestion records the outcome of an ingestion run.
	UpdateIngestion(ctx context.Context, id models.ULID, status models.SourceStatus, releaseCount int, lastErr string) error
	UpdateReleaseCount(ctx context.Context, id models.ULID, releaseCount int) error
}

// CategoryMappingRepository defines operations for admin category overrides.
type CategoryMappingRepository interface {
	// GetMapping returns the overrides of a source in resolver form.
	GetMapping(ctx context.Context, sourceID models.ULID) (category.Mapping, error)
	GetBySource(ctx context.Context, sourceID models.ULID) ([]*models.CategoryMapping, error)
	// Upsert creates or replaces the override for (source, external id).
	Upsert(ctx context.Context, mapping *models.CategoryMapping) error
	Delete(ctx context.Context, sourceID models.ULID, externalID int) error
}

// ReleaseRepository defines read operations on stored releases.
type ReleaseRepository interface {
	GetByID(ctx context.Context, id models.ULID) (*models.Release, error)
	GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.Release, error)
	GetBySourceAndGUID(ctx context.Context, sourceID models.ULID, guid string) (*models.Release, error)
	// CountByCategory returns release counts per category key for a source.
	CountByCategory(ctx context.Context, sourceID models.ULID) (map[string]int64, error)
	CountBySource(ctx context.Context, sourceID models.ULID) (int64, error)
	// SetPoster records a downloaded poster on the release and its entity.
	SetPoster(ctx context.Context, id models.ULID, file string) error
	// PosterFiles returns every poster file name referenced by a release or entity.
	PosterFiles(ctx context.Context) (map[string]bool, error)
}

// LibraryAppRepository defines operations for library app persistence.
type LibraryAppRepository interface {
	GetByID(ctx context.Context, id models.ULID) (*models.LibraryApp, error)
	GetAll(ctx context.Context) ([]*models.LibraryApp, error)
	GetEnabled(ctx context.Context) ([]*models.LibraryApp, error)
	UpsertByName(ctx context.Context, app *models.LibraryApp) error
	// GetSyncStatuses returns the sync status rows of every app.
	GetSyncStatuses(ctx context.Context) ([]*models.LibrarySyncStatus, error)
}

// MatchStatusRepository defines read operations on cached match outcomes.
type MatchStatusRepository interface {
	GetByReleaseID(ctx context.Context, releaseID models.ULID) (*models.MatchStatus, error)
}
