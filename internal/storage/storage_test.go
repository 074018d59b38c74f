package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/releasarr/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosterName(t *testing.T) {
	id := models.NewULID()

	name, err := PosterName(id, "image/JPEG; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(id.String())+".jpg", name)

	_, err = PosterName(id, "text/html")
	assert.ErrorIs(t, err, ErrUnsupportedPoster)
}

func TestPosterStore_SaveAndRemoveOrphans(t *testing.T) {
	store, err := NewPosterStore(filepath.Join(t.TempDir(), "posters"))
	require.NoError(t, err)

	require.NoError(t, store.Save("a.jpg", strings.NewReader("jpeg")))
	require.NoError(t, store.Save("b.png", strings.NewReader("png")))

	data, err := os.ReadFile(filepath.Join(store.Dir(), "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	removed, err := store.RemoveOrphans([]string{"a.jpg", "missing.jpg"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	ok, err := store.Exists("a.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = store.Exists("b.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPosterStore_RejectsPaths(t *testing.T) {
	store, err := NewPosterStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../x.jpg", "sub/x.jpg", ".hidden", "/etc/passwd"} {
		assert.ErrorIs(t, store.Save(name, strings.NewReader("x")), ErrInvalidPosterName, name)
	}

	removed, err := store.RemoveOrphans([]string{"../../etc/passwd", "fine.jpg"})
	assert.ErrorIs(t, err, ErrInvalidPosterName)
	assert.Equal(t, 1, removed)
}

func TestPosterStore_SaveLeavesNoTempFiles(t *testing.T) {
	store, err := NewPosterStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("a.jpg", strings.NewReader("first")))
	require.NoError(t, store.Save("a.jpg", strings.NewReader("second")))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(store.Dir(), "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestPosterStore_Sweep(t *testing.T) {
	store, err := NewPosterStore(t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{"keep.jpg", "stale.jpg"} {
		require.NoError(t, store.Save(name, strings.NewReader(name)))
	}

	stale, err := store.Sweep(map[string]bool{"keep.jpg": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"stale.jpg"}, stale)

	ok, err := store.Exists("keep.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMaintenanceLock_SharedBlocksExclusive(t *testing.T) {
	lock, err := NewMaintenanceLock(filepath.Join(t.TempDir(), "run", "releasarr.lock"))
	require.NoError(t, err)
	ctx := context.Background()

	release1, err := lock.AcquireShared(ctx)
	require.NoError(t, err)
	release2, err := lock.AcquireShared(ctx)
	require.NoError(t, err)

	_, err = lock.TryExclusive()
	assert.ErrorIs(t, err, ErrLocked)

	release1()
	release1()
	_, err = lock.TryExclusive()
	assert.ErrorIs(t, err, ErrLocked, "second shared holder still active")

	release2()
	unlock, err := lock.TryExclusive()
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = lock.AcquireShared(waitCtx)
	assert.Error(t, err, "shared waits while exclusive is held")

	unlock()
	release, err := lock.AcquireShared(ctx)
	require.NoError(t, err)
	release()
}
