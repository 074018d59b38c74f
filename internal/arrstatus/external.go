package arrstatus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/releasarr/internal/library"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/observability"
	"github.com/jmylchreest/releasarr/internal/titlenorm"
	"golang.org/x/sync/singleflight"
)

// Layers reported for hits served by the external cache.
const (
	LayerExternalID    library.Layer = "external_cache_id"
	LayerExternalTitle library.Layer = "external_cache_title"
)

// ExternalEntry is one item reported by a live library app.
type ExternalEntry struct {
	App  *models.LibraryApp
	Item models.LibraryItem
}

// ExistenceSource lists what the library apps currently hold. It is only
// consulted when the synced snapshot has no answer.
type ExistenceSource interface {
	FetchExisting(ctx context.Context, mediaType models.MediaType) ([]ExternalEntry, error)
}

// externalSet is one fetched view of a media type.
type externalSet struct {
	fetchedAt time.Time
	byID      map[int]*library.MatchResult
	byTitle   map[string]*library.MatchResult
}

// ExternalCache is a short-lived, per media type view of the live library
// apps. Concurrent refreshes of one type share a single fetch.
type ExternalCache struct {
	source ExistenceSource
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	flight singleflight.Group

	mu   sync.RWMutex
	sets map[models.MediaType]*externalSet
}

// NewExternalCache creates a cache over source whose entries expire after ttl.
func NewExternalCache(source ExistenceSource, ttl time.Duration) *ExternalCache {
	return &ExternalCache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
		sets:   make(map[models.MediaType]*externalSet),
	}
}

// WithLogger sets the logger.
func (c *ExternalCache) WithLogger(logger *slog.Logger) *ExternalCache {
	c.logger = observability.WithComponent(logger, "external_cache")
	return c
}

// WithClock replaces the time source.
func (c *ExternalCache) WithClock(now func() time.Time) *ExternalCache {
	c.now = now
	return c
}

// Stale reports whether mediaType has never been fetched or has expired.
func (c *ExternalCache) Stale(mediaType models.MediaType) bool {
	c.mu.RLock()
	set := c.sets[mediaType]
	c.mu.RUnlock()
	return set == nil || c.now().Sub(set.fetchedAt) >= c.ttl
}

// Refresh fetches mediaType from the source and replaces the cached set.
// On failure the previous set is kept.
func (c *ExternalCache) Refresh(ctx context.Context, mediaType models.MediaType) error {
	_, err, shared := c.flight.Do(string(mediaType), func() (any, error) {
		entries, err := c.source.FetchExisting(ctx, mediaType)
		if err != nil {
			return nil, err
		}
		set := buildSet(mediaType, entries, c.now())

		c.mu.Lock()
		c.sets[mediaType] = set
		c.mu.Unlock()

		c.logger.Debug("external cache refreshed",
			slog.String("type", string(mediaType)),
			slog.Int("entries", len(entries)),
		)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("refreshing %s existence cache: %w", mediaType, err)
	}
	if shared {
		c.logger.Debug("external cache refresh coalesced", slog.String("type", string(mediaType)))
	}
	return nil
}

// ensureFresh refreshes mediaType when it is stale.
func (c *ExternalCache) ensureFresh(ctx context.Context, mediaType models.MediaType) error {
	if !c.Stale(mediaType) {
		return nil
	}
	return c.Refresh(ctx, mediaType)
}

// LookupID finds an external id (tmdb for movies, tvdb for series),
// refreshing the set first when it is stale.
func (c *ExternalCache) LookupID(ctx context.Context, mediaType models.MediaType, id int) (*library.MatchResult, error) {
	if err := c.ensureFresh(ctx, mediaType); err != nil {
		return nil, err
	}
	return c.lookupID(mediaType, id), nil
}

// lookupID finds an external id in the current set without refreshing.
func (c *ExternalCache) lookupID(mediaType models.MediaType, id int) *library.MatchResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if set := c.sets[mediaType]; set != nil {
		return set.byID[id]
	}
	return nil
}

// LookupTitle finds a title in the current set without refreshing.
func (c *ExternalCache) LookupTitle(mediaType models.MediaType, title string) *library.MatchResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.sets[mediaType]
	if set == nil {
		return nil
	}
	for _, v := range titlenorm.BuildVariants(title) {
		if r, ok := set.byTitle[v]; ok {
			return r
		}
	}
	return nil
}

func buildSet(mediaType models.MediaType, entries []ExternalEntry, now time.Time) *externalSet {
	set := &externalSet{
		fetchedAt: now,
		byID:      make(map[int]*library.MatchResult),
		byTitle:   make(map[string]*library.MatchResult),
	}
	for i := range entries {
		e := &entries[i]
		if e.App == nil {
			continue
		}
		id := e.Item.TmdbID
		if mediaType == models.MediaTypeSeries {
			id = e.Item.TvdbID
		}
		if id != nil {
			if _, ok := set.byID[*id]; !ok {
				set.byID[*id] = externalResult(LayerExternalID, e)
			}
		}
		for _, title := range []string{e.Item.Title, e.Item.OriginalTitle} {
			key := titlenorm.NormalizeStrict(title)
			if key == "" {
				continue
			}
			if _, ok := set.byTitle[key]; !ok {
				set.byTitle[key] = externalResult(LayerExternalTitle, e)
			}
		}
	}
	return set
}

func externalResult(layer library.Layer, e *ExternalEntry) *library.MatchResult {
	return &library.MatchResult{
		Layer:      layer,
		AppID:      e.App.ID,
		AppName:    e.App.Name,
		AppBaseURL: e.App.BaseURL,
		InternalID: e.Item.InternalID,
		TmdbID:     e.Item.TmdbID,
		TvdbID:     e.Item.TvdbID,
		Title:      e.Item.Title,
		URL:        library.DeepLink(e.App, &e.Item),
	}
}
