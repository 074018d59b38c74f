package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/releasarr/internal/models"
	"gorm.io/gorm"
)

// matchStatusRepo implements MatchStatusRepository using GORM.
type matchStatusRepo struct {
	db *gorm.DB
}

// NewMatchStatusRepository creates a new MatchStatusRepository.
func NewMatchStatusRepository(db *gorm.DB) *matchStatusRepo {
	return &matchStatusRepo{db: db}
}

// GetByReleaseID returns the cached status of a release, or nil.
func (r *matchStatusRepo) GetByReleaseID(ctx context.Context, releaseID models.ULID) (*models.MatchStatus, error) {
	var status models.MatchStatus
	if err := r.db.WithContext(ctx).Where("release_id = ?", releaseID).First(&status).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting match status: %w", err)
	}
	return &status, nil
}

var _ MatchStatusRepository = (*matchStatusRepo)(nil)
