package retention

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmylchreest/releasarr/internal/category"
	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// seed inserts a release published hoursAgo before base.
func seed(t *testing.T, db *gorm.DB, sourceID models.ULID, guid string, key category.Key, hoursAgo int, poster string) *models.Release {
	t.Helper()
	published := base.Add(-time.Duration(hoursAgo) * time.Hour)
	rel := &models.Release{
		SourceID:    sourceID,
		GUID:        guid,
		Title:       guid,
		CategoryKey: string(key),
		PublishedAt: &published,
		PosterFile:  models.StringPtr(poster),
	}
	require.NoError(t, db.Create(rel).Error)
	return rel
}

func TestEnforce_PerCategoryCap(t *testing.T) {
	db := testutil.NewTestDB(t)
	enforcer := NewEnforcer(db)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")

	seed(t, db, src.ID, "new", category.Film, 1, "")
	seed(t, db, src.ID, "mid", category.Film, 2, "")
	old := seed(t, db, src.ID, "old", category.Film, 3, "old.jpg")
	require.NoError(t, db.Create(&models.MatchStatus{ReleaseID: old.ID, CheckedAt: base}).Error)

	res, err := enforcer.Enforce(ctx, src.ID, Policy{PerCategory: 2})
	require.NoError(t, err)
	assert.Equal(t, []models.ULID{old.ID}, res.EvictedIDs)
	assert.Equal(t, []string{"old.jpg"}, res.OrphanedPosters)
	assert.Equal(t, int64(3), res.Before[string(category.Film)])
	assert.Equal(t, int64(2), res.After[string(category.Film)])
	assert.Equal(t, int64(3), res.TotalBefore)
	assert.Equal(t, int64(2), res.TotalAfter)

	var remaining []string
	require.NoError(t, db.Model(&models.Release{}).Order("guid").Pluck("guid", &remaining).Error)
	assert.Equal(t, []string{"mid", "new"}, remaining)

	var statuses int64
	require.NoError(t, db.Model(&models.MatchStatus{}).Count(&statuses).Error)
	assert.Zero(t, statuses)

	again, err := enforcer.Enforce(ctx, src.ID, Policy{PerCategory: 2})
	require.NoError(t, err)
	assert.Empty(t, again.EvictedIDs)
	assert.Empty(t, again.OrphanedPosters)
}

func TestEnforce_OtherIsExemptFromPerCategoryButNotGlobal(t *testing.T) {
	db := testutil.NewTestDB(t)
	enforcer := NewEnforcer(db)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")

	for i := range 4 {
		seed(t, db, src.ID, fmt.Sprintf("other-%d", i), category.Other, i+1, "")
	}

	res, err := enforcer.Enforce(ctx, src.ID, Policy{PerCategory: 1})
	require.NoError(t, err)
	assert.Empty(t, res.EvictedIDs)

	res, err = enforcer.Enforce(ctx, src.ID, Policy{PerCategory: 1, Global: 3})
	require.NoError(t, err)
	require.Len(t, res.EvictedIDs, 1)
	assert.Equal(t, int64(3), res.TotalAfter)

	var oldest int64
	require.NoError(t, db.Model(&models.Release{}).Where("guid = ?", "other-3").Count(&oldest).Error)
	assert.Zero(t, oldest)
}

func TestEnforce_BothPassesEvictOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	enforcer := NewEnforcer(db)
	src := testutil.CreateSource(t, db, "alpha", "")

	seed(t, db, src.ID, "f1", category.Film, 1, "")
	seed(t, db, src.ID, "s1", category.Serie, 2, "")
	seed(t, db, src.ID, "f2", category.Film, 3, "")

	// f2 is beyond both the film cap and the global cap.
	res, err := enforcer.Enforce(context.Background(), src.ID, Policy{PerCategory: 1, Global: 2})
	require.NoError(t, err)
	assert.Len(t, res.EvictedIDs, 1)
	assert.Equal(t, int64(2), res.TotalAfter)
}

func TestEnforce_TiesBrokenByIDDescending(t *testing.T) {
	db := testutil.NewTestDB(t)
	enforcer := NewEnforcer(db)
	src := testutil.CreateSource(t, db, "alpha", "")

	first := seed(t, db, src.ID, "first", category.Film, 1, "")
	second := seed(t, db, src.ID, "second", category.Film, 1, "")
	lower := first.ID
	if second.ID.Compare(first.ID) < 0 {
		lower = second.ID
	}

	res, err := enforcer.Enforce(context.Background(), src.ID, Policy{PerCategory: 1})
	require.NoError(t, err)
	assert.Equal(t, []models.ULID{lower}, res.EvictedIDs)
}

func TestEnforce_SharedPosterIsNotOrphaned(t *testing.T) {
	db := testutil.NewTestDB(t)
	enforcer := NewEnforcer(db)
	src := testutil.CreateSource(t, db, "alpha", "")

	seed(t, db, src.ID, "keep", category.Film, 1, "shared.jpg")
	seed(t, db, src.ID, "drop", category.Film, 2, "shared.jpg")

	res, err := enforcer.Enforce(context.Background(), src.ID, Policy{PerCategory: 1})
	require.NoError(t, err)
	assert.Len(t, res.EvictedIDs, 1)
	assert.Empty(t, res.OrphanedPosters)
}

func TestEnforce_DisabledLimits(t *testing.T) {
	db := testutil.NewTestDB(t)
	enforcer := NewEnforcer(db)
	src := testutil.CreateSource(t, db, "alpha", "")

	for i := range 3 {
		seed(t, db, src.ID, fmt.Sprintf("f-%d", i), category.Film, i, "")
	}

	res, err := enforcer.Enforce(context.Background(), src.ID, Policy{})
	require.NoError(t, err)
	assert.Empty(t, res.EvictedIDs)
	assert.Equal(t, int64(3), res.TotalAfter)
}

func TestPurge(t *testing.T) {
	db := testutil.NewTestDB(t)
	enforcer := NewEnforcer(db)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")

	a := seed(t, db, src.ID, "a", category.Film, 1, "a.jpg")
	b := seed(t, db, src.ID, "b", category.Film, 2, "")

	res, err := enforcer.Purge(ctx, []models.ULID{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Deleted)
	assert.Equal(t, []string{"a.jpg"}, res.OrphanedPosters)

	res, err = enforcer.Purge(ctx, []models.ULID{a.ID, b.ID})
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
	assert.Empty(t, res.OrphanedPosters)
}
