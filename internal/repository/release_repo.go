package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/releasarr/internal/models"
	"gorm.io/gorm"
)

// releaseRepo implements ReleaseRepository using GORM.
type releaseRepo struct {
	db *gorm.DB
}

// NewReleaseRepository creates a new ReleaseRepository.
func NewReleaseRepository(db *gorm.DB) *releaseRepo {
	return &releaseRepo{db: db}
}

// GetByID retrieves a release by ID.
func (r *releaseRepo) GetByID(ctx context.Context, id models.ULID) (*models.Release, error) {
	var release models.Release
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&release).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting release by ID: %w", err)
	}
	return &release, nil
}

// GetByIDs retrieves the releases with the given ids, in id order.
func (r *releaseRepo) GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.Release, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var releases []*models.Release
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&releases).Error; err != nil {
		return nil, fmt.Errorf("getting releases by IDs: %w", err)
	}
	return releases, nil
}

// GetBySourceAndGUID retrieves a release by its identity.
func (r *releaseRepo) GetBySourceAndGUID(ctx context.Context, sourceID models.ULID, guid string) (*models.Release, error) {
	var release models.Release
	err := r.db.WithContext(ctx).Where("source_id = ? AND guid = ?", sourceID, guid).First(&release).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting release by guid: %w", err)
	}
	return &release, nil
}

// CountByCategory returns release counts per category key for a source.
func (r *releaseRepo) CountByCategory(ctx context.Context, sourceID models.ULID) (map[string]int64, error) {
	var rows []struct {
		CategoryKey string
		Count       int64
	}
	err := r.db.WithContext(ctx).Model(&models.Release{}).
		Select("category_key, COUNT(*) AS count").
		Where("source_id = ?", sourceID).
		Group("category_key").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting releases by category: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.CategoryKey] = row.Count
	}
	return counts, nil
}

// CountBySource returns the number of releases stored for a source.
func (r *releaseRepo) CountBySource(ctx context.Context, sourceID models.ULID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Release{}).Where("source_id = ?", sourceID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting releases: %w", err)
	}
	return count, nil
}

// SetPoster stores the poster file on the release and on its entity when
// the entity has none yet.
func (r *releaseRepo) SetPoster(ctx context.Context, id models.ULID, file string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var release models.Release
		if err := tx.Select("id", "entity_id").Where("id = ?", id).First(&release).Error; err != nil {
			return fmt.Errorf("getting release for poster: %w", err)
		}
		if err := tx.Model(&models.Release{}).Where("id = ?", id).Update("poster_file", file).Error; err != nil {
			return fmt.Errorf("setting release poster: %w", err)
		}
		if release.EntityID == nil {
			return nil
		}
		err := tx.Model(&models.MediaEntity{}).
			Where("id = ? AND poster_file IS NULL", *release.EntityID).
			Update("poster_file", file).Error
		if err != nil {
			return fmt.Errorf("setting entity poster: %w", err)
		}
		return nil
	})
}

// PosterFiles returns every poster file name referenced by a release or entity.
func (r *releaseRepo) PosterFiles(ctx context.Context) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, model := range []any{&models.Release{}, &models.MediaEntity{}} {
		var files []string
		err := r.db.WithContext(ctx).Model(model).
			Where("poster_file IS NOT NULL AND poster_file <> ''").
			Distinct().Pluck("poster_file", &files).Error
		if err != nil {
			return nil, fmt.Errorf("listing poster files: %w", err)
		}
		for _, f := range files {
			out[f] = true
		}
	}
	return out, nil
}

var _ ReleaseRepository = (*releaseRepo)(nil)
