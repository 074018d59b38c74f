package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/releasarr/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sourceRepo implements SourceRepository using GORM.
type sourceRepo struct {
	db *gorm.DB
}

// NewSourceRepository creates a new SourceRepository.
func NewSourceRepository(db *gorm.DB) *sourceRepo {
	return &sourceRepo{db: db}
}

// GetByID retrieves a source by ID.
func (r *sourceRepo) GetByID(ctx context.Context, id models.ULID) (*models.Source, error) {
	var source models.Source
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&source).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting source by ID: %w", err)
	}
	return &source, nil
}

// GetByName retrieves a source by name.
func (r *sourceRepo) GetByName(ctx context.Context, name string) (*models.Source, error) {
	var source models.Source
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&source).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting source by name: %w", err)
	}
	return &source, nil
}

// GetAll retrieves all sources ordered by name.
func (r *sourceRepo) GetAll(ctx context.Context) ([]*models.Source, error) {
	var sources []*models.Source
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("getting all sources: %w", err)
	}
	return sources, nil
}

// GetEnabled retrieves all enabled sources ordered by name.
func (r *sourceRepo) GetEnabled(ctx context.Context) ([]*models.Source, error) {
	var sources []*models.Source
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("name ASC").Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("getting enabled sources: %w", err)
	}
	return sources, nil
}

// UpsertByName creates the source or updates its settings. On return
// source.ID holds the stored id.
func (r *sourceRepo) UpsertByName(ctx context.Context, source *models.Source) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"indexer_key", "enabled", "per_category_limit", "global_limit", "updated_at"}),
	}).Create(source).Error
	if err != nil {
		return fmt.Errorf("upserting source %s: %w", source.Name, err)
	}

	// On conflict the generated id was discarded; read back the stored one.
	stored, err := r.GetByName(ctx, source.Name)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("upserting source %s: %w", source.Name, models.ErrSourceNotFound)
	}
	source.ID = stored.ID
	return nil
}

// UpdateIngestion records the outcome of an ingestion run.
func (r *sourceRepo) UpdateIngestion(ctx context.Context, id models.ULID, status models.SourceStatus, releaseCount int, lastErr string) error {
	updates := map[string]any{
		"status":        status,
		"release_count": releaseCount,
		"last_error":    lastErr,
	}
	if status == models.SourceStatusSuccess {
		updates["last_ingestion_at"] = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Model(&models.Source{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("updating source ingestion: %w", err)
	}
	return nil
}

// UpdateReleaseCount stores the current release count without touching the
// ingestion status.
func (r *sourceRepo) UpdateReleaseCount(ctx context.Context, id models.ULID, releaseCount int) error {
	err := r.db.WithContext(ctx).Model(&models.Source{}).Where("id = ?", id).
		Update("release_count", releaseCount).Error
	if err != nil {
		return fmt.Errorf("updating source release count: %w", err)
	}
	return nil
}

var _ SourceRepository = (*sourceRepo)(nil)
