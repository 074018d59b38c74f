package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/releasarr/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// libraryAppRepo implements LibraryAppRepository using GORM.
type libraryAppRepo struct {
	db *gorm.DB
}

// NewLibraryAppRepository creates a new LibraryAppRepository.
func NewLibraryAppRepository(db *gorm.DB) *libraryAppRepo {
	return &libraryAppRepo{db: db}
}

// GetByID retrieves a library app by ID.
func (r *libraryAppRepo) GetByID(ctx context.Context, id models.ULID) (*models.LibraryApp, error) {
	var app models.LibraryApp
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting library app by ID: %w", err)
	}
	return &app, nil
}

// GetAll retrieves all library apps ordered by name.
func (r *libraryAppRepo) GetAll(ctx context.Context) ([]*models.LibraryApp, error) {
	var apps []*models.LibraryApp
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("getting library apps: %w", err)
	}
	return apps, nil
}

// GetEnabled retrieves enabled library apps ordered by name.
func (r *libraryAppRepo) GetEnabled(ctx context.Context) ([]*models.LibraryApp, error) {
	var apps []*models.LibraryApp
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("name ASC").Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("getting enabled library apps: %w", err)
	}
	return apps, nil
}

// UpsertByName creates the app or updates its connection settings.
func (r *libraryAppRepo) UpsertByName(ctx context.Context, app *models.LibraryApp) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "base_url", "api_key", "enabled", "updated_at"}),
	}).Create(app).Error
	if err != nil {
		return fmt.Errorf("upserting library app %s: %w", app.Name, err)
	}

	var stored models.LibraryApp
	if err := r.db.WithContext(ctx).Select("id").Where("name = ?", app.Name).First(&stored).Error; err != nil {
		return fmt.Errorf("reading back library app %s: %w", app.Name, err)
	}
	app.ID = stored.ID
	return nil
}

// GetSyncStatuses returns the sync status rows of every app.
func (r *libraryAppRepo) GetSyncStatuses(ctx context.Context) ([]*models.LibrarySyncStatus, error) {
	var statuses []*models.LibrarySyncStatus
	if err := r.db.WithContext(ctx).Order("app_id ASC, media_type ASC").Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("getting library sync statuses: %w", err)
	}
	return statuses, nil
}

var _ LibraryAppRepository = (*libraryAppRepo)(nil)
