package repository

import (
	"context"
	"fmt"

	"github.com/jmylchreest/releasarr/internal/category"
	"github.com/jmylchreest/releasarr/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// categoryMappingRepo implements CategoryMappingRepository using GORM.
type categoryMappingRepo struct {
	db *gorm.DB
}

// NewCategoryMappingRepository creates a new CategoryMappingRepository.
func NewCategoryMappingRepository(db *gorm.DB) *categoryMappingRepo {
	return &categoryMappingRepo{db: db}
}

// GetBySource returns the overrides of a source ordered by external id.
func (r *categoryMappingRepo) GetBySource(ctx context.Context, sourceID models.ULID) ([]*models.CategoryMapping, error) {
	var mappings []*models.CategoryMapping
	if err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).Order("external_id ASC").Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("getting category mappings: %w", err)
	}
	return mappings, nil
}

// GetMapping returns the overrides of a source keyed by external id.
func (r *categoryMappingRepo) GetMapping(ctx context.Context, sourceID models.ULID) (category.Mapping, error) {
	rows, err := r.GetBySource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	mapping := make(category.Mapping, len(rows))
	for _, row := range rows {
		mapping[row.ExternalID] = category.MappingEntry{GroupKey: row.GroupKey, Label: row.Label}
	}
	return mapping, nil
}

// Upsert creates or replaces the override for (source, external id).
func (r *categoryMappingRepo) Upsert(ctx context.Context, mapping *models.CategoryMapping) error {
	if mapping.SourceID.IsZero() {
		return models.ErrSourceRequired
	}
	if !category.Valid(mapping.GroupKey) {
		return models.ErrValidation{Field: "group_key", Message: fmt.Sprintf("unknown category %q", mapping.GroupKey)}
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"group_key", "label", "updated_at"}),
	}).Create(mapping).Error
	if err != nil {
		return fmt.Errorf("upserting category mapping: %w", err)
	}
	return nil
}

// Delete removes the override for (source, external id).
func (r *categoryMappingRepo) Delete(ctx context.Context, sourceID models.ULID, externalID int) error {
	err := r.db.WithContext(ctx).
		Where("source_id = ? AND external_id = ?", sourceID, externalID).
		Delete(&models.CategoryMapping{}).Error
	if err != nil {
		return fmt.Errorf("deleting category mapping: %w", err)
	}
	return nil
}

var _ CategoryMappingRepository = (*categoryMappingRepo)(nil)
