// Package arrstatus reconciles releases against the library apps and caches
// the outcome per release.
package arrstatus

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jmylchreest/releasarr/internal/library"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/observability"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const idChunkSize = 500

// target is one library system a release is checked against.
type target struct {
	kind      models.LibraryKind
	mediaType models.MediaType
}

var (
	radarr = target{kind: models.LibraryKindRadarr, mediaType: models.MediaTypeMovie}
	sonarr = target{kind: models.LibraryKindSonarr, mediaType: models.MediaTypeSeries}
)

// targetsFor picks the systems to check: movies go to radarr, series to
// sonarr and releases of unknown type to both.
func targetsFor(r *models.Release) []target {
	if r.MediaType != nil {
		switch models.MediaType(*r.MediaType) {
		case models.MediaTypeMovie:
			return []target{radarr}
		case models.MediaTypeSeries:
			return []target{sonarr}
		}
	}
	return []target{radarr, sonarr}
}

// Cache resolves and persists MatchStatus rows.
type Cache struct {
	db       *gorm.DB
	matcher  *library.Matcher
	external *ExternalCache
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewCache creates a status cache. external may be nil, in which case
// only the synced snapshots are consulted.
func NewCache(db *gorm.DB, matcher *library.Matcher, external *ExternalCache, ttl time.Duration) *Cache {
	return &Cache{
		db:       db,
		matcher:  matcher,
		external: external,
		ttl:      ttl,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger.
func (c *Cache) WithLogger(logger *slog.Logger) *Cache {
	c.logger = observability.WithComponent(logger, "arrstatus")
	return c
}

// WithClock replaces the time source.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// resolution collects the outcome for one release while a batch runs.
type resolution struct {
	release *models.Release
	hits    map[models.LibraryKind]*library.MatchResult
	pending []target
}

// Resolve returns the match status of every release, keyed by release id.
// Statuses computed in this call are persisted in one upsert pass stamped
// with the batch time.
func (c *Cache) Resolve(ctx context.Context, releases []*models.Release) (map[models.ULID]*models.MatchStatus, error) {
	out := make(map[models.ULID]*models.MatchStatus, len(releases))
	if len(releases) == 0 {
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	fresh, err := c.freshStatuses(ctx, releases, now)
	if err != nil {
		return nil, err
	}

	var toStore []*models.MatchStatus
	var work []*resolution
	reused := 0
	for _, r := range releases {
		if st := reuse(fresh, r); st != nil {
			if st.ReleaseID != r.ID {
				st = copyStatus(st, r)
				toStore = append(toStore, st)
			}
			out[r.ID] = st
			reused++
			continue
		}
		work = append(work, &resolution{
			release: r,
			hits:    make(map[models.LibraryKind]*library.MatchResult),
			pending: targetsFor(r),
		})
	}

	for _, t := range []target{radarr, sonarr} {
		if err := c.matchSnapshot(ctx, t, work); err != nil {
			return nil, err
		}
		c.matchExternal(ctx, t, work)
	}

	for _, w := range work {
		st := buildStatus(w, now)
		out[w.release.ID] = st
		toStore = append(toStore, st)
	}

	stored, err := c.store(ctx, toStore)
	if err != nil {
		return nil, err
	}
	for i := range stored {
		out[stored[i].ReleaseID] = &stored[i]
	}

	c.logger.Debug("resolved match statuses",
		slog.Int("releases", len(releases)),
		slog.Int("reused", reused),
		slog.Int("resolved", len(work)),
	)
	return out, nil
}

// freshStatuses loads statuses checked within the TTL, indexed by entity
// id and by release id.
func (c *Cache) freshStatuses(ctx context.Context, releases []*models.Release, now time.Time) (map[models.ULID]*models.MatchStatus, error) {
	cutoff := now.Add(-c.ttl)
	byKey := make(map[models.ULID]*models.MatchStatus)

	var entityIDs, releaseIDs []models.ULID
	for _, r := range releases {
		releaseIDs = append(releaseIDs, r.ID)
		if r.EntityID != nil {
			entityIDs = append(entityIDs, *r.EntityID)
		}
	}

	db := c.db.WithContext(ctx)
	for chunk := range slices.Chunk(entityIDs, idChunkSize) {
		var rows []models.MatchStatus
		if err := db.Where("entity_id IN ? AND checked_at > ?", chunk, cutoff).
			Order("checked_at DESC").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("loading entity match statuses: %w", err)
		}
		for i := range rows {
			if _, ok := byKey[*rows[i].EntityID]; !ok {
				byKey[*rows[i].EntityID] = &rows[i]
			}
		}
	}
	for chunk := range slices.Chunk(releaseIDs, idChunkSize) {
		var rows []models.MatchStatus
		if err := db.Where("release_id IN ? AND checked_at > ?", chunk, cutoff).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("loading release match statuses: %w", err)
		}
		for i := range rows {
			byKey[rows[i].ReleaseID] = &rows[i]
		}
	}
	return byKey, nil
}

// reuse returns the fresh status shared by the release's entity, else the
// release's own fresh status.
func reuse(fresh map[models.ULID]*models.MatchStatus, r *models.Release) *models.MatchStatus {
	if r.EntityID != nil {
		if st, ok := fresh[*r.EntityID]; ok {
			return st
		}
	}
	return fresh[r.ID]
}

// copyStatus clones an entity's status for another release of it. The
// original check time is kept so reuse never extends freshness.
func copyStatus(src *models.MatchStatus, r *models.Release) *models.MatchStatus {
	st := *src
	st.BaseModel = models.BaseModel{}
	st.ReleaseID = r.ID
	st.EntityID = r.EntityID
	return &st
}

func candidate(r *models.Release) library.Candidate {
	title := r.Title
	if r.TitleClean != nil && *r.TitleClean != "" {
		title = *r.TitleClean
	}
	return library.Candidate{Title: title, TmdbID: r.TmdbID, TvdbID: r.TvdbID}
}

// externalID returns the id the target indexes by.
func externalID(t target, r *models.Release) *int {
	if t.mediaType == models.MediaTypeSeries {
		return r.TvdbID
	}
	return r.TmdbID
}

func wants(w *resolution, t target) bool {
	if _, done := w.hits[t.kind]; done {
		return false
	}
	return slices.Contains(w.pending, t)
}

// matchSnapshot runs the library matcher for every release still pending on t.
func (c *Cache) matchSnapshot(ctx context.Context, t target, work []*resolution) error {
	var idx []*resolution
	var candidates []library.Candidate
	for _, w := range work {
		if wants(w, t) {
			idx = append(idx, w)
			candidates = append(candidates, candidate(w.release))
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	results, err := c.matcher.MatchAll(ctx, candidates, t.mediaType)
	if err != nil {
		return fmt.Errorf("matching %s releases: %w", t.kind, err)
	}
	for i, res := range results {
		if res != nil {
			idx[i].hits[t.kind] = res
		}
	}
	return nil
}

// matchExternal consults the external cache for releases the snapshot did
// not match. A stale cache is refreshed at most once per batch and target;
// when that refresh fails every release is checked against the kept
// previous set, which may be empty.
func (c *Cache) matchExternal(ctx context.Context, t target, work []*resolution) {
	if c.external == nil {
		return
	}

	refreshed := false
	for _, w := range work {
		if !wants(w, t) {
			continue
		}

		if !refreshed {
			refreshed = true
			if err := c.external.ensureFresh(ctx, t.mediaType); err != nil {
				c.logger.Warn("external existence refresh failed",
					slog.String("type", string(t.mediaType)),
					slog.String("error", err.Error()),
				)
			}
		}

		if id := externalID(t, w.release); id != nil {
			if res := c.external.lookupID(t.mediaType, *id); res != nil {
				w.hits[t.kind] = res
			}
			continue
		}
		if res := c.external.LookupTitle(t.mediaType, candidate(w.release).Title); res != nil {
			w.hits[t.kind] = res
		}
	}
}

func buildStatus(w *resolution, now time.Time) *models.MatchStatus {
	r := w.release
	st := &models.MatchStatus{
		ReleaseID: r.ID,
		EntityID:  r.EntityID,
		TmdbID:    r.TmdbID,
		TvdbID:    r.TvdbID,
		CheckedAt: now,
	}
	if hit := w.hits[models.LibraryKindRadarr]; hit != nil {
		st.InRadarr = true
		st.RadarrMovieID = models.IntPtr(hit.InternalID)
		st.RadarrURL = hit.URL
		st.RadarrLayer = string(hit.Layer)
		st.TmdbID = firstNonNil(st.TmdbID, hit.TmdbID)
		st.TvdbID = firstNonNil(st.TvdbID, hit.TvdbID)
	}
	if hit := w.hits[models.LibraryKindSonarr]; hit != nil {
		st.InSonarr = true
		st.SonarrSeriesID = models.IntPtr(hit.InternalID)
		st.SonarrURL = hit.URL
		st.SonarrLayer = string(hit.Layer)
		st.TmdbID = firstNonNil(st.TmdbID, hit.TmdbID)
		st.TvdbID = firstNonNil(st.TvdbID, hit.TvdbID)
	}
	return st
}

func firstNonNil(a, b *int) *int {
	if a != nil {
		return a
	}
	return b
}

// statusColumns are rewritten when a release is checked again.
var statusColumns = []string{
	"entity_id",
	"in_radarr", "radarr_movie_id", "radarr_url", "radarr_layer",
	"in_sonarr", "sonarr_series_id", "sonarr_url", "sonarr_layer",
	"tmdb_id", "tvdb_id", "checked_at", "updated_at",
}

// store upserts statuses on release_id in one transaction and reads the
// rows back so callers see the persisted ids.
func (c *Cache) store(ctx context.Context, statuses []*models.MatchStatus) ([]models.MatchStatus, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	var stored []models.MatchStatus
	err := c.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		ids := make([]models.ULID, 0, len(statuses))
		for chunk := range slices.Chunk(statuses, idChunkSize) {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "release_id"}},
				DoUpdates: clause.AssignmentColumns(statusColumns),
			}).Create(chunk).Error; err != nil {
				return err
			}
			for _, st := range chunk {
				ids = append(ids, st.ReleaseID)
			}
		}
		for chunk := range slices.Chunk(ids, idChunkSize) {
			var rows []models.MatchStatus
			if err := tx.Where("release_id IN ?", chunk).Find(&rows).Error; err != nil {
				return err
			}
			stored = append(stored, rows...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storing match statuses: %w", err)
	}
	return stored, nil
}
