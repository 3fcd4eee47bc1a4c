package storetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runBestToRemoveTests(t *testing.T, factory StoreFactory) {
	t.Run("EmptyStore", func(t *testing.T) { testBestEmpty(t, factory) })
	t.Run("HighestRatioWins", func(t *testing.T) { testBestHighestRatio(t, factory) })
	t.Run("LockedExcluded", func(t *testing.T) { testBestLockedExcluded(t, factory) })
	t.Run("UncachedAndUnplayedExcluded", func(t *testing.T) { testBestExclusions(t, factory) })
	t.Run("TieKeepsInsertionOrder", func(t *testing.T) { testBestTie(t, factory) })
	t.Run("LargerWinsOnEqualPlays", func(t *testing.T) { testBestLargerWinsOnEqualPlays(t, factory) })
}

func testBestEmpty(t *testing.T, factory StoreFactory) {
	store := factory(t)
	best, err := store.BestToRemove(t.Context())
	require.NoError(t, err)
	assert.Nil(t, best)
}

func testBestHighestRatio(t *testing.T, factory StoreFactory) {
	store := factory(t)

	// A: 100 bytes / 1 play = 100. B: 1000 bytes / 20 plays = 50.
	addCached(t, store, "A", 100, 1)
	addCached(t, store, "B", 1000, 20)

	best, err := store.BestToRemove(t.Context())
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "A", best.ContentID)
}

func testBestLockedExcluded(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	addCached(t, store, "A", 100, 1)
	addCached(t, store, "B", 1000, 20)

	lockID, err := store.AddLock(ctx, "A")
	require.NoError(t, err)

	best, err := store.BestToRemove(ctx)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "B", best.ContentID)

	_, err = store.AddLock(ctx, "B")
	require.NoError(t, err)
	best, err = store.BestToRemove(ctx)
	require.NoError(t, err)
	assert.Nil(t, best)

	require.NoError(t, store.RemoveLock(ctx, lockID))
	best, err = store.BestToRemove(ctx)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "A", best.ContentID)
}

func testBestExclusions(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	// Registered but never cached.
	require.NoError(t, store.AddSong(ctx, "queued", "/cache/queued"))
	require.NoError(t, store.IncrementPlaybacks(ctx, "queued"))

	// Cached but never played.
	addCached(t, store, "cold", 5000, 0)

	best, err := store.BestToRemove(ctx)
	require.NoError(t, err)
	assert.Nil(t, best)

	addCached(t, store, "played", 10, 1)
	best, err = store.BestToRemove(ctx)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "played", best.ContentID)

	require.NoError(t, store.UncacheSong(ctx, "played"))
	best, err = store.BestToRemove(ctx)
	require.NoError(t, err)
	assert.Nil(t, best)
}

func testBestTie(t *testing.T, factory StoreFactory) {
	store := factory(t)

	addCached(t, store, "first", 200, 2)
	addCached(t, store, "second", 100, 1)

	best, err := store.BestToRemove(t.Context())
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "first", best.ContentID)
}

func testBestLargerWinsOnEqualPlays(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	addCached(t, store, "A", 100, 1)
	addCached(t, store, "B", 101, 1)

	best, err := store.BestToRemove(ctx)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "B", best.ContentID)

	_, err = store.AddLock(ctx, "B")
	require.NoError(t, err)
	best, err = store.BestToRemove(ctx)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "A", best.ContentID)
}
