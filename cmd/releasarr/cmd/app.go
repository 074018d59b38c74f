package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/releasarr/internal/arrclient"
	"github.com/jmylchreest/releasarr/internal/arrstatus"
	"github.com/jmylchreest/releasarr/internal/config"
	"github.com/jmylchreest/releasarr/internal/database"
	"github.com/jmylchreest/releasarr/internal/database/migrations"
	"github.com/jmylchreest/releasarr/internal/ingestor"
	"github.com/jmylchreest/releasarr/internal/library"
	"github.com/jmylchreest/releasarr/internal/repository"
	"github.com/jmylchreest/releasarr/internal/retention"
	"github.com/jmylchreest/releasarr/internal/service"
	"github.com/jmylchreest/releasarr/internal/storage"
	"github.com/jmylchreest/releasarr/internal/titleparse"
)

// app holds the wired components shared by serve and the one-shot commands.
type app struct {
	cfg      *config.Config
	db       *database.DB
	lock     *storage.MaintenanceLock
	arr      *arrclient.Client
	releases *service.ReleaseService
	library  *service.LibraryService
}

// newApp opens the database, applies pending migrations, seeds sources and
// library apps from cfg and wires the services.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	db, err := database.New(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a, err := wire(ctx, cfg, db, log)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return a, nil
}

func wire(ctx context.Context, cfg *config.Config, db *database.DB, log *slog.Logger) (*app, error) {
	if err := migrations.NewMigrator(db.DB, log).Up(ctx); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	lock, err := storage.NewMaintenanceLock(cfg.Storage.LockPath())
	if err != nil {
		return nil, fmt.Errorf("opening maintenance lock: %w", err)
	}
	posters, err := storage.NewPosterStore(cfg.Storage.PosterPath())
	if err != nil {
		return nil, fmt.Errorf("opening poster store: %w", err)
	}
	posters.WithLogger(log)

	sourceRepo := repository.NewSourceRepository(db.DB)
	mappingRepo := repository.NewCategoryMappingRepository(db.DB)
	releaseRepo := repository.NewReleaseRepository(db.DB)
	appRepo := repository.NewLibraryAppRepository(db.DB)

	if err := service.SeedFromConfig(ctx, cfg, sourceRepo, appRepo, log); err != nil {
		return nil, err
	}

	engine := ingestor.NewEngine(db.DB, titleparse.New()).
		WithLogger(log).
		WithGUIDPolicy(ingestor.GUIDPolicy{
			TimeBucket: cfg.Ingestion.GUIDTimeBucket,
			SizeBucket: cfg.Ingestion.GUIDSizeBucket,
		}).
		WithMaxBatchSize(cfg.Ingestion.MaxBatchSize)
	enforcer := retention.NewEnforcer(db.DB).WithLogger(log)

	releases := service.NewReleaseService(sourceRepo, mappingRepo, releaseRepo, engine, enforcer, ingestor.NewStateManager()).
		WithLogger(log).
		WithLock(lock).
		WithPosters(posters).
		WithRetention(retention.Policy{
			PerCategory: cfg.Retention.PerCategoryLimit,
			Global:      cfg.Retention.GlobalLimit,
		}, cfg.Retention.Enabled)

	arr := arrclient.New(cfg.Library, appRepo).WithLogger(log)
	external := arrstatus.NewExternalCache(arr, cfg.Match.ExternalCacheTTL).WithLogger(log)
	matcher := library.NewMatcher(db.DB).WithLogger(log)
	cache := arrstatus.NewCache(db.DB, matcher, external, cfg.Match.StatusTTL).WithLogger(log)
	syncer := library.NewSyncer(db.DB).WithLogger(log)

	libraries := service.NewLibraryService(appRepo, releaseRepo, syncer, arr, cache).
		WithLogger(log).
		WithStatusStore(repository.NewMatchStatusRepository(db.DB))

	return &app{
		cfg:      cfg,
		db:       db,
		lock:     lock,
		arr:      arr,
		releases: releases,
		library:  libraries,
	}, nil
}

// Close releases the database connection.
func (a *app) Close() error {
	return a.db.Close()
}
