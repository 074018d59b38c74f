package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/releasarr/internal/ingestor"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/repository"
	"github.com/jmylchreest/releasarr/internal/retention"
	"github.com/jmylchreest/releasarr/internal/storage"
	"github.com/jmylchreest/releasarr/internal/testutil"
	"github.com/jmylchreest/releasarr/internal/titleparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newReleaseService(t *testing.T) (*ReleaseService, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	svc := NewReleaseService(
		repository.NewSourceRepository(db),
		repository.NewCategoryMappingRepository(db),
		repository.NewReleaseRepository(db),
		ingestor.NewEngine(db, titleparse.New()),
		retention.NewEnforcer(db),
		ingestor.NewStateManager(),
	)
	return svc, db
}

func feedItems(n int) []ingestor.FeedItem {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	items := make([]ingestor.FeedItem, 0, n)
	for i := range n {
		published := base.Add(time.Duration(i) * time.Hour)
		items = append(items, ingestor.FeedItem{
			GUID:          fmt.Sprintf("guid-%d", i),
			Title:         testutil.MovieReleaseTitle(i),
			PublishedAt:   &published,
			StdCategoryID: models.IntPtr(2040),
			CategoryIDs:   []int{2040},
		})
	}
	return items
}

func TestReleaseService_Ingest(t *testing.T) {
	svc, db := newReleaseService(t)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")

	res, err := svc.Ingest(ctx, src.ID, feedItems(3))
	require.NoError(t, err)
	assert.Equal(t, 3, res.New)
	assert.NotEmpty(t, res.BatchID)
	assert.Nil(t, res.Retention)

	stored, err := repository.NewSourceRepository(db).GetByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusSuccess, stored.Status)
	assert.Equal(t, 3, stored.ReleaseCount)
	assert.NotNil(t, stored.LastIngestionAt)

	state, ok := svc.States().GetState(src.ID)
	require.True(t, ok)
	assert.Equal(t, ingestor.StateCompleted, state.Status)
	assert.Equal(t, 3, state.New)
}

func TestReleaseService_IngestRejects(t *testing.T) {
	svc, db := newReleaseService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, models.NewULID(), feedItems(1))
	assert.ErrorIs(t, err, models.ErrSourceNotFound)

	disabled := testutil.CreateSource(t, db, "off", "")
	require.NoError(t, db.Model(disabled).Update("enabled", false).Error)
	_, err = svc.Ingest(ctx, disabled.ID, feedItems(1))
	assert.ErrorIs(t, err, models.ErrSourceDisabled)

	busy := testutil.CreateSource(t, db, "busy", "")
	require.NoError(t, svc.States().Start(busy))
	_, err = svc.Ingest(ctx, busy.ID, feedItems(1))
	assert.ErrorIs(t, err, models.ErrIngestionInProgress)
}

func TestReleaseService_IngestWaitsForMaintenance(t *testing.T) {
	svc, db := newReleaseService(t)
	lock, err := storage.NewMaintenanceLock(filepath.Join(t.TempDir(), "releasarr.lock"))
	require.NoError(t, err)
	svc.WithLock(lock)
	src := testutil.CreateSource(t, db, "alpha", "")

	unlock, err := lock.TryExclusive()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = svc.Ingest(ctx, src.ID, feedItems(1))
	require.Error(t, err)
	assert.False(t, svc.States().IsIngesting(src.ID))

	unlock()
	res, err := svc.Ingest(context.Background(), src.ID, feedItems(1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.New)
}

func TestReleaseService_RetentionAfterBatch(t *testing.T) {
	svc, db := newReleaseService(t)
	svc.WithRetention(retention.Policy{Global: 10}, true)
	ctx := context.Background()

	src := testutil.CreateSource(t, db, "alpha", "")
	require.NoError(t, db.Model(src).Update("global_limit", 2).Error)

	res, err := svc.Ingest(ctx, src.ID, feedItems(4))
	require.NoError(t, err)
	require.NotNil(t, res.Retention)
	assert.Len(t, res.Retention.EvictedIDs, 2)
	assert.Equal(t, int64(2), res.Retention.TotalAfter)

	stored, err := repository.NewSourceRepository(db).GetByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ReleaseCount)
}

func TestReleaseService_PolicyFor(t *testing.T) {
	svc, _ := newReleaseService(t)
	svc.WithRetention(retention.Policy{PerCategory: 500, Global: 3000}, false)

	assert.Equal(t, retention.Policy{PerCategory: 500, Global: 3000}, svc.PolicyFor(&models.Source{}))
	assert.Equal(t, retention.Policy{PerCategory: 0, Global: 3000},
		svc.PolicyFor(&models.Source{PerCategoryLimit: models.IntPtr(0)}))
}

func TestReleaseService_EnforceAll(t *testing.T) {
	svc, db := newReleaseService(t)
	svc.WithRetention(retention.Policy{Global: 1}, false)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta"} {
		src := testutil.CreateSource(t, db, name, "")
		_, err := svc.Ingest(ctx, src.ID, feedItems(3))
		require.NoError(t, err)
	}

	results, err := svc.EnforceAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Len(t, r.EvictedIDs, 2)
	}

	_, err = svc.EnforceRetention(ctx, models.NewULID())
	assert.ErrorIs(t, err, models.ErrSourceNotFound)
}

func TestReleaseService_PostersFollowReleases(t *testing.T) {
	svc, db := newReleaseService(t)
	store, err := storage.NewPosterStore(t.TempDir())
	require.NoError(t, err)
	svc.WithPosters(store)
	ctx := context.Background()

	src := testutil.CreateSource(t, db, "alpha", "")
	rel := &models.Release{SourceID: src.ID, GUID: "g-1", Title: "Harbor Lights 2012", CategoryKey: "films"}
	require.NoError(t, db.Create(rel).Error)

	name, err := svc.SavePoster(ctx, rel.ID, "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(rel.ID.String())+".png", name)

	ok, err := store.Exists(name)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.SavePoster(ctx, models.NewULID(), "image/png", strings.NewReader("x"))
	assert.ErrorIs(t, err, models.ErrReleaseNotFound)

	// An unreferenced file is swept, the release's poster is kept.
	require.NoError(t, store.Save("stale.jpg", strings.NewReader("old")))
	swept, err := svc.SweepPosters(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale.jpg"}, swept)

	purged, err := svc.Purge(ctx, []models.ULID{rel.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged.Deleted)
	assert.Equal(t, []string{name}, purged.OrphanedPosters)

	ok, err = store.Exists(name)
	require.NoError(t, err)
	assert.False(t, ok)
}
