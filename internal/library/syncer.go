// Package library keeps local snapshots of Radarr and Sonarr catalogs and
// matches releases against them.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/observability"
	"github.com/jmylchreest/releasarr/internal/titlenorm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Fetcher returns the full current catalog of a library app.
type Fetcher interface {
	FetchLibrary(ctx context.Context, app *models.LibraryApp) ([]models.LibraryItem, error)
}

// Syncer replaces library snapshots.
type Syncer struct {
	db        *gorm.DB
	insertLen int
	logger    *slog.Logger
}

// NewSyncer creates a snapshot syncer.
func NewSyncer(db *gorm.DB) *Syncer {
	return &Syncer{db: db, insertLen: 200, logger: slog.Default()}
}

// WithLogger sets the logger.
func (s *Syncer) WithLogger(logger *slog.Logger) *Syncer {
	s.logger = observability.WithComponent(logger, "library_sync")
	return s
}

// Sync fetches the catalog of app and replaces its snapshot. A failed fetch
// is recorded on the sync status and the previous snapshot is kept.
func (s *Syncer) Sync(ctx context.Context, app *models.LibraryApp, fetcher Fetcher) (err error) {
	logger := s.logger.With(slog.String("app", app.Name), slog.String("kind", string(app.Kind)))
	defer observability.TimedOperationWithError(ctx, logger, "library sync", &err)()

	mediaType := app.Kind.MediaType()
	items, err := fetcher.FetchLibrary(ctx, app)
	if err != nil {
		if recErr := s.RecordFailure(ctx, app.ID, mediaType, err); recErr != nil {
			logger.Error("failed to record sync failure", slog.String("error", recErr.Error()))
		}
		return fmt.Errorf("fetching library %s: %w", app.Name, err)
	}
	return s.Replace(ctx, app.ID, mediaType, items)
}

// Replace swaps the snapshot of (appID, mediaType) for items in one
// transaction. Readers see either the old or the new snapshot.
func (s *Syncer) Replace(ctx context.Context, appID models.ULID, mediaType models.MediaType, items []models.LibraryItem) error {
	if !mediaType.Valid() {
		return models.ErrInvalidMediaType
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("replacing library snapshot: %w", err)
	}

	rows := make([]models.LibraryItem, 0, len(items))
	seen := make(map[int]bool, len(items))
	for _, item := range items {
		// The library API is the source of truth; a repeated id keeps the first row.
		if seen[item.InternalID] {
			continue
		}
		seen[item.InternalID] = true

		item.ID = models.ULID{}
		item.AppID = appID
		item.MediaType = mediaType
		item.Title = strings.TrimSpace(item.Title)
		item.TitleNormalized = titlenorm.NormalizeStrict(item.Title)
		rows = append(rows, item)
	}

	now := time.Now().UTC()
	err := s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		var app models.LibraryApp
		if err := tx.Select("id").Where("id = ?", appID).Take(&app).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrLibraryAppNotFound
			}
			return fmt.Errorf("loading library app: %w", err)
		}

		if err := tx.Where("app_id = ? AND media_type = ?", appID, mediaType).Delete(&models.LibraryItem{}).Error; err != nil {
			return fmt.Errorf("clearing snapshot: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(&rows, s.insertLen).Error; err != nil {
				return fmt.Errorf("inserting snapshot: %w", err)
			}
		}

		status := models.LibrarySyncStatus{
			AppID:         appID,
			MediaType:     mediaType,
			LastSyncAt:    &now,
			LastAttemptAt: &now,
			ItemCount:     len(rows),
		}
		return upsertStatus(tx, &status, []string{"last_sync_at", "last_attempt_at", "item_count", "last_error", "updated_at"})
	})
	if err != nil {
		return fmt.Errorf("replacing library snapshot: %w", err)
	}

	s.logger.Info("library snapshot replaced",
		slog.String("app_id", appID.String()),
		slog.String("type", string(mediaType)),
		slog.Int("items", len(rows)),
	)
	return nil
}

// RecordFailure stores a failed sync attempt. The snapshot is untouched.
func (s *Syncer) RecordFailure(ctx context.Context, appID models.ULID, mediaType models.MediaType, cause error) error {
	now := time.Now().UTC()
	status := models.LibrarySyncStatus{
		AppID:         appID,
		MediaType:     mediaType,
		LastAttemptAt: &now,
		LastError:     cause.Error(),
	}
	if err := upsertStatus(s.db.WithContext(ctx), &status, []string{"last_attempt_at", "last_error", "updated_at"}); err != nil {
		return fmt.Errorf("recording sync failure: %w", err)
	}
	return nil
}

func upsertStatus(tx *gorm.DB, status *models.LibrarySyncStatus, columns []string) error {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "app_id"}, {Name: "media_type"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(status).Error
	if err != nil {
		return fmt.Errorf("upserting sync status: %w", err)
	}
	return nil
}
