package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmylchreest/releasarr/internal/ingestor"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/retention"
)

// SourceOverview is a source with its effective caps, per-category release
// counts and the state of its last ingestion in this process.
type SourceOverview struct {
	Source     *models.Source           `json:"source"`
	Policy     retention.Policy         `json:"policy"`
	Categories map[string]int64         `json:"categories"`
	Ingestion  *ingestor.IngestionState `json:"ingestion,omitempty"`
}

// Sources lists every source with its current per-category counts.
func (s *ReleaseService) Sources(ctx context.Context) ([]SourceOverview, error) {
	sources, err := s.sources.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}

	out := make([]SourceOverview, 0, len(sources))
	for _, source := range sources {
		counts, err := s.releases.CountByCategory(ctx, source.ID)
		if err != nil {
			return nil, err
		}
		overview := SourceOverview{
			Source:     source,
			Policy:     s.PolicyFor(source),
			Categories: counts,
		}
		if state, ok := s.states.GetState(source.ID); ok {
			overview.Ingestion = state
		}
		out = append(out, overview)
	}
	return out, nil
}

// ResolveSource finds a source by ULID or, failing that, by name.
func (s *ReleaseService) ResolveSource(ctx context.Context, ref string) (*models.Source, error) {
	ref = strings.TrimSpace(ref)
	if id, err := models.ParseULID(ref); err == nil {
		return s.source(ctx, id)
	}
	source, err := s.sources.GetByName(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("getting source: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrSourceNotFound, ref)
	}
	return source, nil
}

// Mappings returns the category overrides of a source.
func (s *ReleaseService) Mappings(ctx context.Context, sourceID models.ULID) ([]*models.CategoryMapping, error) {
	if _, err := s.source(ctx, sourceID); err != nil {
		return nil, err
	}
	return s.mappings.GetBySource(ctx, sourceID)
}

// PutMapping creates or replaces the override for one external category id
// of a source. It applies to batches ingested afterwards.
func (s *ReleaseService) PutMapping(ctx context.Context, mapping *models.CategoryMapping) error {
	if _, err := s.source(ctx, mapping.SourceID); err != nil {
		return err
	}
	if mapping.ExternalID <= 0 {
		return models.ErrValidation{Field: "external_id", Message: "must be positive"}
	}
	mapping.GroupKey = strings.ToLower(strings.TrimSpace(mapping.GroupKey))
	return s.mappings.Upsert(ctx, mapping)
}

// DeleteMapping removes the override for one external category id.
func (s *ReleaseService) DeleteMapping(ctx context.Context, sourceID models.ULID, externalID int) error {
	if _, err := s.source(ctx, sourceID); err != nil {
		return err
	}
	return s.mappings.Delete(ctx, sourceID, externalID)
}
