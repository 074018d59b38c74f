package service

import (
	"context"
	"testing"

	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReleaseService_Mappings(t *testing.T) {
	svc, db := newReleaseService(t)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")

	require.NoError(t, svc.PutMapping(ctx, &models.CategoryMapping{
		SourceID: src.ID, ExternalID: 2040, GroupKey: " Series ", Label: "TV rips",
	}))

	var verr models.ErrValidation
	err := svc.PutMapping(ctx, &models.CategoryMapping{SourceID: src.ID, ExternalID: 2050, GroupKey: "podcasts"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "group_key", verr.Field)

	err = svc.PutMapping(ctx, &models.CategoryMapping{SourceID: src.ID, ExternalID: 0, GroupKey: "films"})
	require.ErrorAs(t, err, &verr)

	err = svc.PutMapping(ctx, &models.CategoryMapping{SourceID: models.NewULID(), ExternalID: 1, GroupKey: "films"})
	assert.ErrorIs(t, err, models.ErrSourceNotFound)

	mappings, err := svc.Mappings(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "series", mappings[0].GroupKey)

	_, err = svc.Ingest(ctx, src.ID, feedItems(2))
	require.NoError(t, err)

	overview, err := svc.Sources(ctx)
	require.NoError(t, err)
	require.Len(t, overview, 1)
	assert.Equal(t, map[string]int64{"series": 2}, overview[0].Categories)
	require.NotNil(t, overview[0].Ingestion)
	assert.Equal(t, 2, overview[0].Ingestion.New)

	require.NoError(t, svc.DeleteMapping(ctx, src.ID, 2040))
	mappings, err = svc.Mappings(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestReleaseService_ResolveSource(t *testing.T) {
	svc, db := newReleaseService(t)
	ctx := context.Background()
	src := testutil.CreateSource(t, db, "alpha", "")

	byID, err := svc.ResolveSource(ctx, src.ID.String())
	require.NoError(t, err)
	assert.Equal(t, src.ID, byID.ID)

	byName, err := svc.ResolveSource(ctx, " alpha ")
	require.NoError(t, err)
	assert.Equal(t, src.ID, byName.ID)

	_, err = svc.ResolveSource(ctx, "beta")
	assert.ErrorIs(t, err, models.ErrSourceNotFound)
}
