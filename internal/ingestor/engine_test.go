package ingestor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/releasarr/internal/category"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/testutil"
	"github.com/jmylchreest/releasarr/internal/titleparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	return NewEngine(db, titleparse.New()), db
}

func movieItem(guid, title string) FeedItem {
	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return FeedItem{
		GUID:          guid,
		Title:         title,
		PublishedAt:   &published,
		StdCategoryID: models.IntPtr(2040),
		CategoryIDs:   []int{2040},
	}
}

func loadRelease(t *testing.T, db *gorm.DB, sourceID models.ULID, guid string) models.Release {
	t.Helper()
	var rel models.Release
	require.NoError(t, db.Where("source_id = ? AND guid = ?", sourceID, guid).Take(&rel).Error)
	return rel
}

func TestEngine_SameItemTwiceStoresOneRow(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")

	item := movieItem("g-1", testutil.MovieReleaseTitle(0))

	first, err := engine.IngestBatch(ctx, Batch{Source: src, Items: []FeedItem{item}})
	require.NoError(t, err)
	assert.Equal(t, 1, first.New)
	assert.Equal(t, 0, first.Updated)
	require.Len(t, first.NewReleaseIDs, 1)

	second, err := engine.IngestBatch(ctx, Batch{Source: src, Items: []FeedItem{item}})
	require.NoError(t, err)
	assert.Equal(t, 0, second.New)
	assert.Equal(t, 1, second.Updated)
	assert.Empty(t, second.NewReleaseIDs)

	var count int64
	require.NoError(t, db.Model(&models.Release{}).Where("source_id = ?", src.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEngine_InBatchDuplicatesCountOnce(t *testing.T) {
	engine, db := newTestEngine(t)
	src := testutil.CreateSource(t, db, "alpha", "")

	a := movieItem("g-1", testutil.MovieReleaseTitle(0))
	b := movieItem("g-1", testutil.MovieReleaseTitle(0))
	b.Seeders = models.IntPtr(9)

	res, err := engine.IngestBatch(context.Background(), Batch{Source: src, Items: []FeedItem{a, b}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Received)
	assert.Equal(t, 1, res.Unique)
	assert.Equal(t, 1, res.New)

	rel := loadRelease(t, db, src.ID, "g-1")
	require.NotNil(t, rel.Seeders)
	assert.Equal(t, 9, *rel.Seeders)
}

func TestEngine_NullFieldsPreserveStoredValues(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")

	item := movieItem("g-1", testutil.MovieReleaseTitle(0))
	item.Seeders = models.IntPtr(42)
	item.SizeBytes = func() *int64 { v := int64(1 << 30); return &v }()
	item.InfoHash = "ABC123"
	_, err := engine.IngestBatch(ctx, Batch{Source: src, Items: []FeedItem{item}})
	require.NoError(t, err)

	// The info hash outranks the feed guid, so both polls key on it.
	repoll := movieItem("g-1", testutil.MovieReleaseTitle(0)+" PROPER")
	repoll.InfoHash = "abc123"
	repoll.CategoryIDs = nil
	repoll.StdCategoryID = nil
	res, err := engine.IngestBatch(ctx, Batch{Source: src, Items: []FeedItem{repoll}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.New)
	assert.Equal(t, 1, res.Updated)

	var count int64
	require.NoError(t, db.Model(&models.Release{}).Where("source_id = ?", src.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	rel := loadRelease(t, db, src.ID, "abc123")
	require.NotNil(t, rel.Seeders)
	assert.Equal(t, 42, *rel.Seeders)
	require.NotNil(t, rel.SizeBytes)
	assert.Equal(t, int64(1<<30), *rel.SizeBytes)
	require.NotNil(t, rel.InfoHash)
	assert.Equal(t, "abc123", *rel.InfoHash)
	assert.Equal(t, models.IntList{2040}, rel.CategoryIDs)
	// Title is always replaced.
	assert.Equal(t, testutil.MovieReleaseTitle(0)+" PROPER", rel.Title)
	// An unresolvable re-poll does not downgrade the category.
	assert.Equal(t, string(category.Film), rel.CategoryKey)
}

func TestEngine_TwoSourcesConvergeOnOneEntity(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()
	alpha := testutil.CreateSource(t, db, "alpha", "")
	beta := testutil.CreateSource(t, db, "beta", "")

	resA, err := engine.IngestBatch(ctx, Batch{Source: alpha, Items: []FeedItem{
		movieItem("a-1", "Harbor.Lights.2003.1080p.WEB-DL.x264-NOGRP"),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, resA.EntitiesCreated)

	resB, err := engine.IngestBatch(ctx, Batch{Source: beta, Items: []FeedItem{
		movieItem("b-1", "Harbor Lights 2003 2160p BluRay x265-FICTN"),
	}})
	require.NoError(t, err)
	assert.Equal(t, 0, resB.EntitiesCreated)
	assert.Equal(t, 1, resB.Bound)

	relA := loadRelease(t, db, alpha.ID, "a-1")
	relB := loadRelease(t, db, beta.ID, "b-1")
	require.NotNil(t, relA.EntityID)
	require.NotNil(t, relB.EntityID)
	assert.Equal(t, *relA.EntityID, *relB.EntityID)

	var entity models.MediaEntity
	require.NoError(t, db.First(&entity, "id = ?", *relA.EntityID).Error)
	assert.Equal(t, string(category.Film), entity.CategoryKey)
	assert.Equal(t, "harbor lights", entity.TitleKey)
	assert.Equal(t, 2003, entity.Year)
}

func TestEngine_ConcurrentSourcesShareOneEntity(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()
	alpha := testutil.CreateSource(t, db, "alpha", "")
	beta := testutil.CreateSource(t, db, "beta", "")

	batches := []Batch{
		{Source: alpha, Items: []FeedItem{movieItem("a-1", "Harbor.Lights.2003.1080p.WEB-DL.x264-NOGRP")}},
		{Source: beta, Items: []FeedItem{movieItem("b-1", "Harbor Lights 2003 2160p BluRay x265-FICTN")}},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(batches))
	created := make([]int, len(batches))
	for i := range batches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := engine.IngestBatch(ctx, batches[i])
			errs[i] = err
			if res != nil {
				created[i] = res.EntitiesCreated
			}
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, created[0]+created[1])

	relA := loadRelease(t, db, alpha.ID, "a-1")
	relB := loadRelease(t, db, beta.ID, "b-1")
	require.NotNil(t, relA.EntityID)
	require.NotNil(t, relB.EntityID)
	assert.Equal(t, *relA.EntityID, *relB.EntityID)

	var entities int64
	require.NoError(t, db.Model(&models.MediaEntity{}).Count(&entities).Error)
	assert.Equal(t, int64(1), entities)
}

func TestEngine_EntityGetsExternalIDs(t *testing.T) {
	engine, db := newTestEngine(t)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")

	_, err := engine.IngestBatch(ctx, Batch{Source: src, Items: []FeedItem{movieItem("g-1", "Northbound 2011 720p")}})
	require.NoError(t, err)

	withID := movieItem("g-2", "Northbound 2011 1080p")
	withID.TmdbID = models.IntPtr(777)
	_, err = engine.IngestBatch(ctx, Batch{Source: src, Items: []FeedItem{withID}})
	require.NoError(t, err)

	rel := loadRelease(t, db, src.ID, "g-2")
	require.NotNil(t, rel.EntityID)
	var entity models.MediaEntity
	require.NoError(t, db.First(&entity, "id = ?", *rel.EntityID).Error)
	require.NotNil(t, entity.TmdbID)
	assert.Equal(t, 777, *entity.TmdbID)
}

func TestEngine_OtherCategoryIsNotBound(t *testing.T) {
	engine, db := newTestEngine(t)
	src := testutil.CreateSource(t, db, "alpha", "")

	item := FeedItem{GUID: "g-1", Title: "Random Upload 2020"}
	res, err := engine.IngestBatch(context.Background(), Batch{Source: src, Items: []FeedItem{item}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Bound)

	rel := loadRelease(t, db, src.ID, "g-1")
	assert.Equal(t, string(category.Other), rel.CategoryKey)
	assert.Nil(t, rel.EntityID)
}

func TestEngine_UsesAdminMapping(t *testing.T) {
	engine, db := newTestEngine(t)
	src := testutil.CreateSource(t, db, "alpha", "")

	item := FeedItem{GUID: "g-1", Title: "Quiet Meridian S01E02 720p", CategoryIDs: []int{102185}}
	mapping := category.Mapping{102185: {GroupKey: string(category.Anime), Label: "Anime"}}

	_, err := engine.IngestBatch(context.Background(), Batch{Source: src, Items: []FeedItem{item}, Mapping: mapping})
	require.NoError(t, err)

	rel := loadRelease(t, db, src.ID, "g-1")
	assert.Equal(t, string(category.Anime), rel.CategoryKey)
	require.NotNil(t, rel.SpecCategoryID)
	assert.Equal(t, 102185, *rel.SpecCategoryID)
	require.NotNil(t, rel.Season)
	assert.Equal(t, 1, *rel.Season)
}

func TestEngine_RollsBackWholeBatch(t *testing.T) {
	engine, db := newTestEngine(t)
	src := testutil.CreateSource(t, db, "alpha", "")

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_entities", func(tx *gorm.DB) {
		if tx.Statement.Table == "media_entities" {
			_ = tx.AddError(errors.New("entity insert failed"))
		}
	}))

	items := []FeedItem{movieItem("g-1", "Harbor Lights 2003"), movieItem("g-2", "Northbound 2011")}
	_, err := engine.IngestBatch(context.Background(), Batch{Source: src, Items: items})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Release{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEngine_CancelledBeforeStart(t *testing.T) {
	engine, db := newTestEngine(t)
	src := testutil.CreateSource(t, db, "alpha", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.IngestBatch(ctx, Batch{Source: src, Items: []FeedItem{movieItem("g-1", "Harbor Lights 2003")}})
	assert.ErrorIs(t, err, context.Canceled)

	var count int64
	require.NoError(t, db.Model(&models.Release{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEngine_Validation(t *testing.T) {
	engine, db := newTestEngine(t)
	src := testutil.CreateSource(t, db, "alpha", "")

	_, err := engine.IngestBatch(context.Background(), Batch{})
	assert.ErrorIs(t, err, models.ErrSourceRequired)

	engine.WithMaxBatchSize(1)
	_, err = engine.IngestBatch(context.Background(), Batch{Source: src, Items: []FeedItem{
		movieItem("g-1", "a"), movieItem("g-2", "b"),
	}})
	var verr models.ErrValidation
	assert.ErrorAs(t, err, &verr)

	res, err := engine.IngestBatch(context.Background(), Batch{Source: src})
	require.NoError(t, err)
	assert.Zero(t, res.New)
}
