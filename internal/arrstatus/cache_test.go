package arrstatus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/releasarr/internal/library"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	calls   map[models.MediaType]int
	entries map[models.MediaType][]ExternalEntry
	err     error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls:   make(map[models.MediaType]int),
		entries: make(map[models.MediaType][]ExternalEntry),
	}
}

func (f *fakeSource) FetchExisting(_ context.Context, t models.MediaType) ([]ExternalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[t]++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[t], nil
}

func (f *fakeSource) count(t models.MediaType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[t]
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newRelease(t *testing.T, db *gorm.DB, sourceID models.ULID, guid, title, mediaType string, tmdb *int, entity *models.ULID) *models.Release {
	t.Helper()
	rel := &models.Release{
		SourceID:    sourceID,
		GUID:        guid,
		Title:       title,
		TitleClean:  models.StringPtr(title),
		MediaType:   models.StringPtr(mediaType),
		CategoryKey: "films",
		TmdbID:      tmdb,
		EntityID:    entity,
	}
	require.NoError(t, db.Create(rel).Error)
	return rel
}

func newEntity(t *testing.T, db *gorm.DB, title string) *models.MediaEntity {
	t.Helper()
	e := &models.MediaEntity{CategoryKey: "films", TitleKey: title, Title: title}
	require.NoError(t, db.Create(e).Error)
	return e
}

func TestResolve_SnapshotMatchIsPersisted(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")
	app := testutil.CreateLibraryApp(t, db, "movies", models.LibraryKindRadarr)
	require.NoError(t, library.NewSyncer(db).Replace(ctx, app.ID, models.MediaTypeMovie, []models.LibraryItem{
		{InternalID: 7, TmdbID: models.IntPtr(1001), Title: "Harbor Lights", Year: 2012},
	}))

	clk := &clock{now: base}
	cache := NewCache(db, library.NewMatcher(db), nil, time.Hour).WithClock(clk.Now)

	hit := newRelease(t, db, src.ID, "g1", "Harbor Lights", "movie", nil, nil)
	miss := newRelease(t, db, src.ID, "g2", "Northbound", "movie", nil, nil)

	out, err := cache.Resolve(ctx, []*models.Release{hit, miss})
	require.NoError(t, err)
	require.Len(t, out, 2)

	st := out[hit.ID]
	require.NotNil(t, st)
	assert.True(t, st.InRadarr)
	assert.False(t, st.InSonarr)
	assert.Equal(t, 7, *st.RadarrMovieID)
	assert.Equal(t, string(library.LayerNormalized), st.RadarrLayer)
	assert.Equal(t, app.BaseURL+"/movie/1001", st.RadarrURL)
	assert.Equal(t, 1001, *st.TmdbID)
	assert.True(t, base.Equal(st.CheckedAt))

	assert.False(t, out[miss.ID].InRadarr)

	var stored models.MatchStatus
	require.NoError(t, db.Where("release_id = ?", hit.ID).Take(&stored).Error)
	assert.Equal(t, st.ID, stored.ID)
	assert.True(t, stored.InRadarr)
}

func TestResolve_FreshEntityStatusIsReused(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")
	app := testutil.CreateLibraryApp(t, db, "movies", models.LibraryKindRadarr)
	syncer := library.NewSyncer(db)
	require.NoError(t, syncer.Replace(ctx, app.ID, models.MediaTypeMovie, []models.LibraryItem{
		{InternalID: 7, Title: "Harbor Lights"},
	}))

	clk := &clock{now: base}
	cache := NewCache(db, library.NewMatcher(db), nil, time.Hour).WithClock(clk.Now)
	entity := newEntity(t, db, "harbor lights")

	first := newRelease(t, db, src.ID, "g1", "Harbor Lights", "movie", nil, &entity.ID)
	_, err := cache.Resolve(ctx, []*models.Release{first})
	require.NoError(t, err)

	// Empty the library: a reused status must not consult it.
	require.NoError(t, syncer.Replace(ctx, app.ID, models.MediaTypeMovie, nil))
	clk.now = base.Add(30 * time.Minute)

	second := newRelease(t, db, src.ID, "g2", "Harbor Lights", "movie", nil, &entity.ID)
	out, err := cache.Resolve(ctx, []*models.Release{second})
	require.NoError(t, err)

	st := out[second.ID]
	require.NotNil(t, st)
	assert.True(t, st.InRadarr)
	assert.Equal(t, second.ID, st.ReleaseID)
	assert.True(t, base.Equal(st.CheckedAt), "reuse keeps the original check time")

	// Past the TTL the entity is checked again.
	clk.now = base.Add(2 * time.Hour)
	out, err = cache.Resolve(ctx, []*models.Release{second})
	require.NoError(t, err)
	assert.False(t, out[second.ID].InRadarr)
	assert.True(t, clk.now.Equal(out[second.ID].CheckedAt))
}

func TestResolve_ExternalIDFallback(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")
	app := testutil.CreateLibraryApp(t, db, "movies", models.LibraryKindRadarr)

	source := newFakeSource()
	source.entries[models.MediaTypeMovie] = []ExternalEntry{
		{App: app, Item: models.LibraryItem{InternalID: 9, TmdbID: models.IntPtr(42), Title: "The Glass Orchard"}},
	}
	clk := &clock{now: base}
	external := NewExternalCache(source, 10*time.Minute).WithClock(clk.Now)
	cache := NewCache(db, library.NewMatcher(db), external, time.Hour).WithClock(clk.Now)

	a := newRelease(t, db, src.ID, "g1", "Verger", "movie", models.IntPtr(42), nil)
	b := newRelease(t, db, src.ID, "g2", "Unknown", "movie", models.IntPtr(43), nil)

	out, err := cache.Resolve(ctx, []*models.Release{a, b})
	require.NoError(t, err)
	assert.True(t, out[a.ID].InRadarr)
	assert.Equal(t, string(LayerExternalID), out[a.ID].RadarrLayer)
	assert.Equal(t, 9, *out[a.ID].RadarrMovieID)
	assert.False(t, out[b.ID].InRadarr)
	assert.Equal(t, 1, source.count(models.MediaTypeMovie))
	assert.Zero(t, source.count(models.MediaTypeSeries))
}

func TestResolve_TitleOnlyRefreshesOncePerBatch(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")
	app := testutil.CreateLibraryApp(t, db, "shows", models.LibraryKindSonarr)

	source := newFakeSource()
	source.entries[models.MediaTypeSeries] = []ExternalEntry{
		{App: app, Item: models.LibraryItem{InternalID: 3, TvdbID: models.IntPtr(5001), Title: "Quiet Meridian", TitleSlug: "quiet-meridian"}},
	}
	clk := &clock{now: base}
	external := NewExternalCache(source, 10*time.Minute).WithClock(clk.Now)
	cache := NewCache(db, library.NewMatcher(db), external, time.Hour).WithClock(clk.Now)

	releases := []*models.Release{
		newRelease(t, db, src.ID, "g1", "Quiet Meridian", "series", nil, nil),
		newRelease(t, db, src.ID, "g2", "The Lantern Office", "series", nil, nil),
		newRelease(t, db, src.ID, "g3", "Sables Mouvants", "series", nil, nil),
	}
	out, err := cache.Resolve(ctx, releases)
	require.NoError(t, err)
	assert.Equal(t, 1, source.count(models.MediaTypeSeries))

	st := out[releases[0].ID]
	assert.True(t, st.InSonarr)
	assert.Equal(t, string(LayerExternalTitle), st.SonarrLayer)
	assert.Equal(t, app.BaseURL+"/series/quiet-meridian", st.SonarrURL)
	assert.Equal(t, 5001, *st.TvdbID)
	assert.False(t, out[releases[1].ID].InSonarr)

	// Still within the external TTL: no new fetch.
	clk.now = base.Add(5 * time.Minute)
	more := newRelease(t, db, src.ID, "g4", "Quiet Meridian", "series", nil, nil)
	_, err = cache.Resolve(ctx, []*models.Release{more})
	require.NoError(t, err)
	assert.Equal(t, 1, source.count(models.MediaTypeSeries))
}

func TestResolve_UnknownTypeChecksBothSystems(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")

	source := newFakeSource()
	external := NewExternalCache(source, 10*time.Minute)
	cache := NewCache(db, library.NewMatcher(db), external, time.Hour)

	rel := &models.Release{SourceID: src.ID, GUID: "g1", Title: "Harbor Lights", CategoryKey: "other"}
	require.NoError(t, db.Create(rel).Error)

	_, err := cache.Resolve(ctx, []*models.Release{rel})
	require.NoError(t, err)
	assert.Equal(t, 1, source.count(models.MediaTypeMovie))
	assert.Equal(t, 1, source.count(models.MediaTypeSeries))
}

func TestResolve_SourceErrorsDegradeToNotFound(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")

	source := newFakeSource()
	source.err = errors.New("connection refused")
	external := NewExternalCache(source, 10*time.Minute)
	cache := NewCache(db, library.NewMatcher(db), external, time.Hour)

	a := newRelease(t, db, src.ID, "g1", "Harbor Lights", "movie", models.IntPtr(1), nil)
	b := newRelease(t, db, src.ID, "g2", "Northbound", "movie", models.IntPtr(2), nil)

	out, err := cache.Resolve(ctx, []*models.Release{a, b})
	require.NoError(t, err)
	assert.False(t, out[a.ID].InRadarr)
	assert.False(t, out[b.ID].InRadarr)
	assert.Equal(t, 1, source.count(models.MediaTypeMovie), "a failed source is not retried within a batch")
}

func TestResolve_FailedRefreshFallsBackToKeptSetForEveryRelease(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")
	app := testutil.CreateLibraryApp(t, db, "movies", models.LibraryKindRadarr)

	source := newFakeSource()
	source.entries[models.MediaTypeMovie] = []ExternalEntry{
		{App: app, Item: models.LibraryItem{InternalID: 4, TmdbID: models.IntPtr(603), Title: "Harbor Lights"}},
	}
	clk := &clock{now: base}
	external := NewExternalCache(source, 10*time.Minute).WithClock(clk.Now)
	require.NoError(t, external.Refresh(ctx, models.MediaTypeMovie))

	clk.now = base.Add(time.Hour)
	source.mu.Lock()
	source.err = errors.New("connection refused")
	source.mu.Unlock()
	cache := NewCache(db, library.NewMatcher(db), external, time.Hour).WithClock(clk.Now)

	byID := newRelease(t, db, src.ID, "g1", "Northbound", "movie", models.IntPtr(77), nil)
	known := newRelease(t, db, src.ID, "g2", "Lumieres du Port", "movie", models.IntPtr(603), nil)
	titleOnly := newRelease(t, db, src.ID, "g3", "Harbor Lights", "movie", nil, nil)

	out, err := cache.Resolve(ctx, []*models.Release{byID, known, titleOnly})
	require.NoError(t, err)
	assert.False(t, out[byID.ID].InRadarr)
	assert.True(t, out[known.ID].InRadarr)
	assert.Equal(t, string(LayerExternalID), out[known.ID].RadarrLayer)
	assert.True(t, out[titleOnly.ID].InRadarr)
	assert.Equal(t, string(LayerExternalTitle), out[titleOnly.ID].RadarrLayer)
	assert.Equal(t, 2, source.count(models.MediaTypeMovie))

	// The same title-only release resolved alone gets the same answer.
	alone := newRelease(t, db, src.ID, "g4", "Harbor Lights", "movie", nil, nil)
	out, err = cache.Resolve(ctx, []*models.Release{alone})
	require.NoError(t, err)
	assert.True(t, out[alone.ID].InRadarr)
}

func TestResolve_Empty(t *testing.T) {
	db := testutil.NewTestDB(t)
	out, err := NewCache(db, library.NewMatcher(db), nil, time.Hour).Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
