package arrstatus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func movieApp() *models.LibraryApp {
	return &models.LibraryApp{
		BaseModel: models.BaseModel{ID: models.NewULID()},
		Name:      "movies",
		Kind:      models.LibraryKindRadarr,
		BaseURL:   "http://radarr.local:7878",
	}
}

func TestExternalCache_RefreshIfStale(t *testing.T) {
	source := newFakeSource()
	source.entries[models.MediaTypeMovie] = []ExternalEntry{
		{App: movieApp(), Item: models.LibraryItem{InternalID: 1, TmdbID: models.IntPtr(603), Title: "Harbor Lights"}},
	}
	clk := &clock{now: base}
	cache := NewExternalCache(source, 10*time.Minute).WithClock(clk.Now)
	ctx := context.Background()

	assert.True(t, cache.Stale(models.MediaTypeMovie))

	r, err := cache.LookupID(ctx, models.MediaTypeMovie, 603)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "http://radarr.local:7878/movie/603", r.URL)

	_, err = cache.LookupID(ctx, models.MediaTypeMovie, 604)
	require.NoError(t, err)
	assert.Equal(t, 1, source.count(models.MediaTypeMovie))

	clk.now = base.Add(10 * time.Minute)
	assert.True(t, cache.Stale(models.MediaTypeMovie))
	_, err = cache.LookupID(ctx, models.MediaTypeMovie, 603)
	require.NoError(t, err)
	assert.Equal(t, 2, source.count(models.MediaTypeMovie))
}

func TestExternalCache_LookupTitleUsesVariants(t *testing.T) {
	source := newFakeSource()
	source.entries[models.MediaTypeMovie] = []ExternalEntry{
		{App: movieApp(), Item: models.LibraryItem{InternalID: 2, Title: "Copper and Salt", OriginalTitle: "Cuivre et Sel"}},
	}
	cache := NewExternalCache(source, time.Minute)

	assert.Nil(t, cache.LookupTitle(models.MediaTypeMovie, "Copper and Salt"), "nothing fetched yet")

	require.NoError(t, cache.Refresh(context.Background(), models.MediaTypeMovie))
	for _, title := range []string{"Copper & Salt", "COPPER AND SALT", "cuivre et sel"} {
		r := cache.LookupTitle(models.MediaTypeMovie, title)
		require.NotNil(t, r, title)
		assert.Equal(t, 2, r.InternalID)
		assert.Equal(t, LayerExternalTitle, r.Layer)
	}
}

func TestExternalCache_FailedRefreshKeepsPreviousSet(t *testing.T) {
	source := newFakeSource()
	source.entries[models.MediaTypeMovie] = []ExternalEntry{
		{App: movieApp(), Item: models.LibraryItem{InternalID: 1, TmdbID: models.IntPtr(603), Title: "Harbor Lights"}},
	}
	cache := NewExternalCache(source, time.Minute)
	ctx := context.Background()
	require.NoError(t, cache.Refresh(ctx, models.MediaTypeMovie))

	source.mu.Lock()
	source.err = assert.AnError
	source.mu.Unlock()

	require.Error(t, cache.Refresh(ctx, models.MediaTypeMovie))
	assert.NotNil(t, cache.LookupTitle(models.MediaTypeMovie, "harbor lights"))
}

func TestExternalCache_ConcurrentRefresh(t *testing.T) {
	source := newFakeSource()
	cache := NewExternalCache(source, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, cache.Refresh(ctx, models.MediaTypeSeries))
		}()
	}
	wg.Wait()

	calls := source.count(models.MediaTypeSeries)
	assert.GreaterOrEqual(t, calls, 1)
	assert.LessOrEqual(t, calls, 8)
	assert.False(t, cache.Stale(models.MediaTypeSeries))
}
