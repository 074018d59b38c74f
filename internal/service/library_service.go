package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/releasarr/internal/arrstatus"
	"github.com/jmylchreest/releasarr/internal/library"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/repository"
)

// AppStatus is a library app together with its per-type sync status.
type AppStatus struct {
	App   *models.LibraryApp          `json:"app"`
	Syncs []*models.LibrarySyncStatus `json:"syncs"`
}

// LibraryService keeps library snapshots current and answers "is this
// release already in my library".
type LibraryService struct {
	apps     repository.LibraryAppRepository
	releases repository.ReleaseRepository
	syncer   *library.Syncer
	fetcher  library.Fetcher
	cache    *arrstatus.Cache
	statuses repository.MatchStatusRepository
	logger   *slog.Logger
}

// NewLibraryService creates a library service.
func NewLibraryService(
	apps repository.LibraryAppRepository,
	releases repository.ReleaseRepository,
	syncer *library.Syncer,
	fetcher library.Fetcher,
	cache *arrstatus.Cache,
) *LibraryService {
	return &LibraryService{
		apps:     apps,
		releases: releases,
		syncer:   syncer,
		fetcher:  fetcher,
		cache:    cache,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the service.
func (s *LibraryService) WithLogger(logger *slog.Logger) *LibraryService {
	s.logger = logger
	return s
}

// WithStatusStore sets the repository CachedMatch reads from.
func (s *LibraryService) WithStatusStore(statuses repository.MatchStatusRepository) *LibraryService {
	s.statuses = statuses
	return s
}

// SyncApp refreshes the snapshot of one app.
func (s *LibraryService) SyncApp(ctx context.Context, id models.ULID) error {
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if app == nil {
		return fmt.Errorf("%w: %s", models.ErrLibraryAppNotFound, id)
	}
	return s.syncer.Sync(ctx, app, s.fetcher)
}

// SyncAll refreshes every enabled app. One unreachable app does not stop
// the others; all failures are returned joined.
func (s *LibraryService) SyncAll(ctx context.Context) error {
	apps, err := s.apps.GetEnabled(ctx)
	if err != nil {
		return fmt.Errorf("listing library apps: %w", err)
	}

	var errs []error
	for _, app := range apps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.syncer.Sync(ctx, app, s.fetcher); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		s.logger.Warn("library sync finished with failures",
			slog.Int("apps", len(apps)),
			slog.Int("failed", len(errs)),
		)
	}
	return errors.Join(errs...)
}

// Status lists every app with its sync statuses.
func (s *LibraryService) Status(ctx context.Context) ([]AppStatus, error) {
	apps, err := s.apps.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	statuses, err := s.apps.GetSyncStatuses(ctx)
	if err != nil {
		return nil, err
	}

	byApp := make(map[models.ULID][]*models.LibrarySyncStatus, len(apps))
	for _, st := range statuses {
		byApp[st.AppID] = append(byApp[st.AppID], st)
	}

	out := make([]AppStatus, 0, len(apps))
	for _, app := range apps {
		syncs := byApp[app.ID]
		if syncs == nil {
			syncs = []*models.LibrarySyncStatus{}
		}
		out = append(out, AppStatus{App: app, Syncs: syncs})
	}
	return out, nil
}

// MatchReleases resolves the library status of the given releases. Ids
// that do not exist are left out of the result.
func (s *LibraryService) MatchReleases(ctx context.Context, ids []models.ULID) (map[models.ULID]*models.MatchStatus, error) {
	releases, err := s.releases.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.cache.Resolve(ctx, releases)
}

// MatchRelease resolves the library status of one release.
func (s *LibraryService) MatchRelease(ctx context.Context, id models.ULID) (*models.MatchStatus, error) {
	release, err := s.releases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if release == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrReleaseNotFound, id)
	}
	statuses, err := s.cache.Resolve(ctx, []*models.Release{release})
	if err != nil {
		return nil, err
	}
	return statuses[release.ID], nil
}

// CachedMatch returns the last stored match status of a release without
// resolving it again, or nil when none was stored.
func (s *LibraryService) CachedMatch(ctx context.Context, id models.ULID) (*models.MatchStatus, error) {
	if s.statuses == nil {
		return nil, errors.New("match status store not configured")
	}
	return s.statuses.GetByReleaseID(ctx, id)
}
