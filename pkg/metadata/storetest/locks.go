package storetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLockTests(t *testing.T, factory StoreFactory) {
	t.Run("AddAndRemove", func(t *testing.T) { testAddAndRemoveLock(t, factory) })
	t.Run("MonotonicIDs", func(t *testing.T) { testMonotonicLockIDs(t, factory) })
	t.Run("RemoveUnknownIsNoop", func(t *testing.T) { testRemoveUnknownLock(t, factory) })
	t.Run("UnknownContentIsUnlocked", func(t *testing.T) { testUnknownContentUnlocked(t, factory) })
}

func testAddAndRemoveLock(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	require.NoError(t, store.AddSong(ctx, "a", "/cache/a"))
	require.NoError(t, store.AddSong(ctx, "ab", "/cache/ab"))

	first, err := store.AddLock(ctx, "a")
	require.NoError(t, err)
	second, err := store.AddLock(ctx, "a")
	require.NoError(t, err)

	locked, err := store.IsLocked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, locked)

	// Prefix of a locked id must not read as locked.
	locked, err = store.IsLocked(ctx, "ab")
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, store.RemoveLock(ctx, first))
	locked, err = store.IsLocked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, locked, "second lock still held")

	require.NoError(t, store.RemoveLock(ctx, second))
	locked, err = store.IsLocked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, locked)
}

func testMonotonicLockIDs(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	require.NoError(t, store.AddSong(ctx, "a", "/cache/a"))

	var last int64
	for i := 0; i < 5; i++ {
		id, err := store.AddLock(ctx, "a")
		require.NoError(t, err)
		assert.Greater(t, id, last)
		require.NoError(t, store.RemoveLock(ctx, id))
		last = id
	}
}

func testRemoveUnknownLock(t *testing.T, factory StoreFactory) {
	store := factory(t)
	assert.NoError(t, store.RemoveLock(t.Context(), 424242))
}

func testUnknownContentUnlocked(t *testing.T, factory StoreFactory) {
	store := factory(t)
	locked, err := store.IsLocked(t.Context(), "never-added")
	require.NoError(t, err)
	assert.False(t, locked)
}
