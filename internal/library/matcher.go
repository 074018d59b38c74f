package library

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/observability"
	"github.com/jmylchreest/releasarr/internal/titlenorm"
	"gorm.io/gorm"
)

// Layer names the matching rule that produced a MatchResult.
type Layer string

const (
	LayerExternalID     Layer = "external_id"
	LayerNormalized     Layer = "normalized_title"
	LayerOriginalTitle  Layer = "original_title"
	LayerSlug           Layer = "slug"
	LayerDisplayTitle   Layer = "display_title"
	LayerAlternateTitle Layer = "alternate_title"
)

// Candidate is what is known about a release when matching it.
type Candidate struct {
	Title  string
	TmdbID *int
	TvdbID *int
}

// MatchResult is a library hit.
type MatchResult struct {
	Layer      Layer       `json:"layer"`
	AppID      models.ULID `json:"app_id"`
	AppName    string      `json:"app_name"`
	AppBaseURL string      `json:"app_base_url"`
	InternalID int         `json:"internal_id"`
	TmdbID     *int        `json:"tmdb_id,omitempty"`
	TvdbID     *int        `json:"tvdb_id,omitempty"`
	Title      string      `json:"title"`
	URL        string      `json:"url"`
}

// Matcher answers "is this already in a library" against the synced
// snapshots. No match is a nil result, not an error.
type Matcher struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewMatcher creates a matcher.
func NewMatcher(db *gorm.DB) *Matcher {
	return &Matcher{db: db, logger: slog.Default()}
}

// WithLogger sets the logger.
func (m *Matcher) WithLogger(logger *slog.Logger) *Matcher {
	m.logger = observability.WithComponent(logger, "library_matcher")
	return m
}

// Match matches one candidate against the snapshot of mediaType.
func (m *Matcher) Match(ctx context.Context, c Candidate, mediaType models.MediaType) (*MatchResult, error) {
	snap, err := m.Snapshot(ctx, mediaType)
	if err != nil {
		return nil, err
	}
	return snap.Match(c), nil
}

// MatchAll matches candidates against one snapshot load. The result at
// index i belongs to candidates[i].
func (m *Matcher) MatchAll(ctx context.Context, candidates []Candidate, mediaType models.MediaType) ([]*MatchResult, error) {
	snap, err := m.Snapshot(ctx, mediaType)
	if err != nil {
		return nil, err
	}
	out := make([]*MatchResult, len(candidates))
	hits := 0
	for i, c := range candidates {
		out[i] = snap.Match(c)
		if out[i] != nil {
			hits++
		}
	}
	m.logger.Debug("matched candidates",
		slog.String("type", string(mediaType)),
		slog.Int("candidates", len(candidates)),
		slog.Int("matched", hits),
		slog.Int("snapshot_items", snap.Len()),
	)
	return out, nil
}

// MatchByIDs matches external ids (tmdb for movies, tvdb for series).
// Ids without a hit are absent from the map.
func (m *Matcher) MatchByIDs(ctx context.Context, ids []int, mediaType models.MediaType) (map[int]*MatchResult, error) {
	snap, err := m.Snapshot(ctx, mediaType)
	if err != nil {
		return nil, err
	}
	out := make(map[int]*MatchResult)
	for _, id := range ids {
		c := Candidate{}
		if mediaType == models.MediaTypeSeries {
			c.TvdbID = &id
		} else {
			c.TmdbID = &id
		}
		if r := snap.Match(c); r != nil {
			out[id] = r
		}
	}
	return out, nil
}

// MatchTitles matches titles. Titles without a hit are absent from the map.
func (m *Matcher) MatchTitles(ctx context.Context, titles []string, mediaType models.MediaType) (map[string]*MatchResult, error) {
	snap, err := m.Snapshot(ctx, mediaType)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*MatchResult)
	for _, title := range titles {
		if r := snap.Match(Candidate{Title: title}); r != nil {
			out[title] = r
		}
	}
	return out, nil
}

// Snapshot loads the items of every enabled app of mediaType in one read
// transaction and indexes them.
func (m *Matcher) Snapshot(ctx context.Context, mediaType models.MediaType) (*Snapshot, error) {
	if !mediaType.Valid() {
		return nil, models.ErrInvalidMediaType
	}

	var apps []models.LibraryApp
	var items []models.LibraryItem
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("enabled = ? AND kind = ?", true, kindFor(mediaType)).Order("name ASC").Find(&apps).Error; err != nil {
			return fmt.Errorf("loading library apps: %w", err)
		}
		if len(apps) == 0 {
			return nil
		}
		ids := make([]models.ULID, len(apps))
		for i := range apps {
			ids[i] = apps[i].ID
		}
		if err := tx.Where("app_id IN ? AND media_type = ?", ids, mediaType).Order("internal_id ASC").Find(&items).Error; err != nil {
			return fmt.Errorf("loading library items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return newSnapshot(mediaType, apps, items), nil
}

func kindFor(t models.MediaType) models.LibraryKind {
	if t == models.MediaTypeSeries {
		return models.LibraryKindSonarr
	}
	return models.LibraryKindRadarr
}

// Snapshot is an indexed, immutable view of one library type.
type Snapshot struct {
	mediaType models.MediaType
	apps      map[models.ULID]*models.LibraryApp
	items     int

	byExternalID map[int]*models.LibraryItem
	byNormalized map[string]*models.LibraryItem
	byOriginal   map[string]*models.LibraryItem
	bySlug       map[string]*models.LibraryItem
	byDisplay    map[string]*models.LibraryItem
	byAlternate  map[string]*models.LibraryItem
}

// newSnapshot indexes items. Apps are iterated by name and items by
// internal id, and the first item wins a key.
func newSnapshot(mediaType models.MediaType, apps []models.LibraryApp, items []models.LibraryItem) *Snapshot {
	s := &Snapshot{
		mediaType:    mediaType,
		items:        len(items),
		apps:         make(map[models.ULID]*models.LibraryApp, len(apps)),
		byExternalID: make(map[int]*models.LibraryItem),
		byNormalized: make(map[string]*models.LibraryItem),
		byOriginal:   make(map[string]*models.LibraryItem),
		bySlug:       make(map[string]*models.LibraryItem),
		byDisplay:    make(map[string]*models.LibraryItem),
		byAlternate:  make(map[string]*models.LibraryItem),
	}
	for i := range apps {
		s.apps[apps[i].ID] = &apps[i]
	}

	byApp := make(map[models.ULID][]*models.LibraryItem)
	for i := range items {
		byApp[items[i].AppID] = append(byApp[items[i].AppID], &items[i])
	}

	for i := range apps {
		for _, item := range byApp[apps[i].ID] {
			if id := s.externalID(item.TmdbID, item.TvdbID); id != nil {
				putFirst(s.byExternalID, *id, item)
			}
			if item.TitleNormalized != "" {
				putFirst(s.byNormalized, item.TitleNormalized, item)
			}
			if k := foldKey(item.OriginalTitle); k != "" {
				putFirst(s.byOriginal, k, item)
			}
			if k := foldKey(item.TitleSlug); k != "" {
				putFirst(s.bySlug, k, item)
			}
			if k := foldKey(item.Title); k != "" {
				putFirst(s.byDisplay, k, item)
			}
			for _, alt := range item.AlternateTitles {
				if k := titlenorm.NormalizeStrict(alt); k != "" {
					putFirst(s.byAlternate, k, item)
				}
				if k := titlenorm.NormalizeLoose(alt); k != "" {
					putFirst(s.byAlternate, k, item)
				}
			}
		}
	}
	return s
}

func putFirst[K comparable](m map[K]*models.LibraryItem, k K, item *models.LibraryItem) {
	if _, ok := m[k]; !ok {
		m[k] = item
	}
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// externalID picks the id used for this library type.
func (s *Snapshot) externalID(tmdb, tvdb *int) *int {
	if s.mediaType == models.MediaTypeSeries {
		return tvdb
	}
	return tmdb
}

// Len returns the number of items in the snapshot.
func (s *Snapshot) Len() int {
	return s.items
}

// Match runs the layers in order and returns the first hit.
func (s *Snapshot) Match(c Candidate) *MatchResult {
	if id := s.externalID(c.TmdbID, c.TvdbID); id != nil {
		if item, ok := s.byExternalID[*id]; ok {
			return s.result(LayerExternalID, item)
		}
	}

	title := strings.TrimSpace(c.Title)
	if title == "" {
		return nil
	}

	if item, ok := s.byNormalized[titlenorm.NormalizeStrict(title)]; ok {
		return s.result(LayerNormalized, item)
	}
	if item, ok := s.byOriginal[foldKey(title)]; ok {
		return s.result(LayerOriginalTitle, item)
	}

	variants := titlenorm.BuildVariants(title)

	// Slugs are more stable than display titles for series.
	if s.mediaType == models.MediaTypeSeries {
		for _, v := range variants {
			if item, ok := s.bySlug[titlenorm.Slug(v)]; ok {
				return s.result(LayerSlug, item)
			}
		}
	}

	if item, ok := s.byDisplay[foldKey(title)]; ok {
		return s.result(LayerDisplayTitle, item)
	}

	for _, v := range variants {
		if item, ok := s.byAlternate[v]; ok {
			return s.result(LayerAlternateTitle, item)
		}
	}
	return nil
}

func (s *Snapshot) result(layer Layer, item *models.LibraryItem) *MatchResult {
	app := s.apps[item.AppID]
	r := &MatchResult{
		Layer:      layer,
		AppID:      item.AppID,
		InternalID: item.InternalID,
		TmdbID:     item.TmdbID,
		TvdbID:     item.TvdbID,
		Title:      item.Title,
	}
	if app != nil {
		r.AppName = app.Name
		r.AppBaseURL = app.BaseURL
		r.URL = DeepLink(app, item)
	}
	return r
}

// DeepLink returns the web UI URL of item in app.
func DeepLink(app *models.LibraryApp, item *models.LibraryItem) string {
	base := strings.TrimRight(app.BaseURL, "/")
	switch app.Kind {
	case models.LibraryKindSonarr:
		if item.TitleSlug != "" {
			return base + "/series/" + url.PathEscape(item.TitleSlug)
		}
	case models.LibraryKindRadarr:
		if item.TmdbID != nil {
			return base + "/movie/" + strconv.Itoa(*item.TmdbID)
		}
		if item.TitleSlug != "" {
			return base + "/movie/" + url.PathEscape(item.TitleSlug)
		}
	}
	return base
}
