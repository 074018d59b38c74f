package repository

import (
	"context"
	"testing"

	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/jmylchreest/releasarr/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryAppRepo_UpsertByName(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewLibraryAppRepository(db)
	ctx := context.Background()

	app := &models.LibraryApp{Name: "movies", Kind: models.LibraryKindRadarr, BaseURL: "http://radarr.local:7878/", APIKey: "k1", Enabled: models.BoolPtr(true)}
	require.NoError(t, repo.UpsertByName(ctx, app))
	require.False(t, app.ID.IsZero())

	updated := &models.LibraryApp{Name: "movies", Kind: models.LibraryKindRadarr, BaseURL: "http://radarr.lan:7878", APIKey: "k2", Enabled: models.BoolPtr(true)}
	require.NoError(t, repo.UpsertByName(ctx, updated))
	assert.Equal(t, app.ID, updated.ID)

	found, err := repo.GetByID(ctx, app.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "http://radarr.lan:7878", found.BaseURL)
	assert.Equal(t, "k2", found.APIKey)
}

func TestLibraryAppRepo_RejectsInvalidApp(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewLibraryAppRepository(db)
	ctx := context.Background()

	err := repo.UpsertByName(ctx, &models.LibraryApp{Name: "x", Kind: "plex", BaseURL: "http://x"})
	assert.ErrorIs(t, err, models.ErrInvalidLibraryKind)

	err = repo.UpsertByName(ctx, &models.LibraryApp{Name: "x", Kind: models.LibraryKindSonarr, BaseURL: "not a url"})
	assert.ErrorIs(t, err, models.ErrInvalidURL)
}

func TestLibraryAppRepo_GetEnabledAndStatuses(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewLibraryAppRepository(db)
	ctx := context.Background()

	radarr := testutil.CreateLibraryApp(t, db, "movies", models.LibraryKindRadarr)
	sonarr := testutil.CreateLibraryApp(t, db, "shows", models.LibraryKindSonarr)
	require.NoError(t, db.Model(sonarr).Update("enabled", false).Error)

	enabled, err := repo.GetEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, radarr.ID, enabled[0].ID)

	require.NoError(t, db.Create(&models.LibrarySyncStatus{AppID: radarr.ID, MediaType: models.MediaTypeMovie, ItemCount: 3}).Error)
	statuses, err := repo.GetSyncStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 3, statuses[0].ItemCount)
}
