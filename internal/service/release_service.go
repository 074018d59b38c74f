// Package service wires the core components into the operations exposed
// over HTTP, the scheduler and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmylchreest/releasarr/internal/ingestor"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/repository"
	"github.com/jmylchreest/releasarr/internal/retention"
	"github.com/jmylchreest/releasarr/internal/storage"
)

// IngestResult is the outcome of one pushed batch.
type IngestResult struct {
	*ingestor.Result
	BatchID string `json:"batch_id"`
	// Retention is set when retention ran after the batch.
	Retention *retention.Result `json:"retention,omitempty"`
}

// ReleaseService ingests batches, tracks their state and keeps sources
// within their retention caps.
type ReleaseService struct {
	sources  repository.SourceRepository
	mappings repository.CategoryMappingRepository
	releases repository.ReleaseRepository
	engine   *ingestor.Engine
	enforcer *retention.Enforcer
	states   *ingestor.StateManager

	lock    *storage.MaintenanceLock
	posters *storage.PosterStore

	defaults         retention.Policy
	retainAfterBatch bool

	logger *slog.Logger
}

// NewReleaseService creates a release service.
func NewReleaseService(
	sources repository.SourceRepository,
	mappings repository.CategoryMappingRepository,
	releases repository.ReleaseRepository,
	engine *ingestor.Engine,
	enforcer *retention.Enforcer,
	states *ingestor.StateManager,
) *ReleaseService {
	return &ReleaseService{
		sources:  sources,
		mappings: mappings,
		releases: releases,
		engine:   engine,
		enforcer: enforcer,
		states:   states,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the service.
func (s *ReleaseService) WithLogger(logger *slog.Logger) *ReleaseService {
	s.logger = logger
	return s
}

// WithLock makes ingestion hold lock shared.
func (s *ReleaseService) WithLock(lock *storage.MaintenanceLock) *ReleaseService {
	s.lock = lock
	return s
}

// WithPosters deletes orphaned poster files from store after retention.
func (s *ReleaseService) WithPosters(store *storage.PosterStore) *ReleaseService {
	s.posters = store
	return s
}

// WithRetention sets the default caps. When afterBatch is set, retention
// runs for a source after each of its successful batches.
func (s *ReleaseService) WithRetention(defaults retention.Policy, afterBatch bool) *ReleaseService {
	s.defaults = defaults
	s.retainAfterBatch = afterBatch
	return s
}

// States exposes the ingestion state tracker.
func (s *ReleaseService) States() *ingestor.StateManager {
	return s.states
}

func (s *ReleaseService) source(ctx context.Context, id models.ULID) (*models.Source, error) {
	source, err := s.sources.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting source: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrSourceNotFound, id)
	}
	return source, nil
}

// Ingest stores one batch of feed items for a source. A second batch for
// the same source is rejected while the first is still running.
func (s *ReleaseService) Ingest(ctx context.Context, sourceID models.ULID, items []ingestor.FeedItem) (*IngestResult, error) {
	batchID := uuid.NewString()
	logger := s.logger.With(slog.String("batch_id", batchID), slog.String("source_id", sourceID.String()))

	source, err := s.source(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !models.BoolVal(source.Enabled) {
		return nil, fmt.Errorf("%w: %s", models.ErrSourceDisabled, source.Name)
	}

	if err := s.states.Start(source); err != nil {
		return nil, err
	}

	if s.lock != nil {
		release, err := s.lock.AcquireShared(ctx)
		if err != nil {
			s.states.Fail(sourceID, err)
			return nil, fmt.Errorf("waiting for maintenance lock: %w", err)
		}
		defer release()
	}

	result, err := s.ingest(ctx, source, items, logger)
	if err != nil {
		s.states.Fail(sourceID, err)
		if uerr := s.sources.UpdateIngestion(context.WithoutCancel(ctx), sourceID, models.SourceStatusFailed, source.ReleaseCount, err.Error()); uerr != nil {
			logger.Error("failed to record ingestion failure", slog.String("error", uerr.Error()))
		}
		logger.Error("ingestion failed",
			slog.String("source_name", source.Name),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	s.states.Complete(sourceID, result)

	out := &IngestResult{Result: result, BatchID: batchID}
	if s.retainAfterBatch {
		ret, err := s.enforce(ctx, source)
		if err != nil {
			logger.Warn("post-ingestion retention failed", slog.String("error", err.Error()))
		} else {
			out.Retention = ret
		}
	}
	return out, nil
}

func (s *ReleaseService) ingest(ctx context.Context, source *models.Source, items []ingestor.FeedItem, logger *slog.Logger) (*ingestor.Result, error) {
	mapping, err := s.mappings.GetMapping(ctx, source.ID)
	if err != nil {
		return nil, err
	}
	if err := s.sources.UpdateIngestion(ctx, source.ID, models.SourceStatusIngesting, source.ReleaseCount, ""); err != nil {
		return nil, err
	}

	logger.Info("starting ingestion",
		slog.String("source_name", source.Name),
		slog.Int("items", len(items)),
	)

	result, err := s.engine.IngestBatch(ctx, ingestor.Batch{Source: source, Items: items, Mapping: mapping})
	if err != nil {
		return nil, err
	}

	// The batch is committed; record the outcome even if ctx is gone.
	bg := context.WithoutCancel(ctx)
	count, err := s.releases.CountBySource(bg, source.ID)
	if err != nil {
		return nil, err
	}
	if err := s.sources.UpdateIngestion(bg, source.ID, models.SourceStatusSuccess, int(count), ""); err != nil {
		logger.Error("failed to update source status", slog.String("error", err.Error()))
	}
	return result, nil
}

// PolicyFor returns the caps of source: its overrides, else the defaults.
func (s *ReleaseService) PolicyFor(source *models.Source) retention.Policy {
	p := s.defaults
	if source.PerCategoryLimit != nil {
		p.PerCategory = *source.PerCategoryLimit
	}
	if source.GlobalLimit != nil {
		p.Global = *source.GlobalLimit
	}
	return p
}

// EnforceRetention runs retention for one source and removes the posters
// it orphaned.
func (s *ReleaseService) EnforceRetention(ctx context.Context, sourceID models.ULID) (*retention.Result, error) {
	source, err := s.source(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	return s.enforce(ctx, source)
}

func (s *ReleaseService) enforce(ctx context.Context, source *models.Source) (*retention.Result, error) {
	result, err := s.enforcer.Enforce(ctx, source.ID, s.PolicyFor(source))
	if err != nil {
		return nil, err
	}
	s.removePosters(result.OrphanedPosters)

	if len(result.EvictedIDs) > 0 {
		if err := s.sources.UpdateReleaseCount(context.WithoutCancel(ctx), source.ID, int(result.TotalAfter)); err != nil {
			s.logger.Warn("failed to update release count", slog.String("error", err.Error()))
		}
	}
	return result, nil
}

// EnforceAll runs retention for every enabled source. A failing source
// does not stop the others.
func (s *ReleaseService) EnforceAll(ctx context.Context) ([]*retention.Result, error) {
	sources, err := s.sources.GetEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}

	var results []*retention.Result
	var errs []error
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.enforce(ctx, source)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", source.Name, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Purge deletes the given releases and their posters.
func (s *ReleaseService) Purge(ctx context.Context, ids []models.ULID) (*retention.PurgeResult, error) {
	result, err := s.enforcer.Purge(ctx, ids)
	if err != nil {
		return nil, err
	}
	s.removePosters(result.OrphanedPosters)
	return result, nil
}

// SavePoster stores a poster for a release and records it on the release
// and, when it has none yet, on the release's entity.
func (s *ReleaseService) SavePoster(ctx context.Context, releaseID models.ULID, contentType string, r io.Reader) (string, error) {
	if s.posters == nil {
		return "", errors.New("poster storage is not configured")
	}
	release, err := s.releases.GetByID(ctx, releaseID)
	if err != nil {
		return "", err
	}
	if release == nil {
		return "", fmt.Errorf("%w: %s", models.ErrReleaseNotFound, releaseID)
	}

	name, err := storage.PosterName(releaseID, contentType)
	if err != nil {
		return "", err
	}
	if err := s.posters.Save(name, r); err != nil {
		return "", err
	}
	if err := s.releases.SetPoster(ctx, releaseID, name); err != nil {
		return "", err
	}
	return name, nil
}

// SweepPosters deletes poster files no row references.
func (s *ReleaseService) SweepPosters(ctx context.Context) ([]string, error) {
	if s.posters == nil {
		return nil, nil
	}
	referenced, err := s.releases.PosterFiles(ctx)
	if err != nil {
		return nil, err
	}
	return s.posters.Sweep(referenced)
}

func (s *ReleaseService) removePosters(names []string) {
	if s.posters == nil || len(names) == 0 {
		return
	}
	if _, err := s.posters.RemoveOrphans(names); err != nil {
		s.logger.Warn("failed to remove some orphaned posters", slog.String("error", err.Error()))
	}
}
