// Package storetest holds the conformance suite every metadata.Store
// backend must pass.
package storetest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocache/pkg/metadata"
)

// StoreFactory creates a fresh, empty Store for each test. Factories use
// t.TempDir() for paths and t.Cleanup() for teardown.
type StoreFactory func(t *testing.T) metadata.Store

// RunConformanceSuite runs the full suite against the provided factory.
// Each test gets a fresh store instance.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("Songs", func(t *testing.T) {
		runSongTests(t, factory)
	})

	t.Run("Locks", func(t *testing.T) {
		runLockTests(t, factory)
	})

	t.Run("BestToRemove", func(t *testing.T) {
		runBestToRemoveTests(t, factory)
	})
}

// addCached registers id, marks it cached and gives it a size and play
// count.
func addCached(t *testing.T, store metadata.Store, id string, size, plays int64) {
	t.Helper()
	ctx := t.Context()

	require.NoError(t, store.AddSong(ctx, id, "/cache/"+id))
	require.NoError(t, store.CacheSong(ctx, id))
	require.NoError(t, store.SetSizeBytes(ctx, id, size))
	for i := int64(0); i < plays; i++ {
		require.NoError(t, store.IncrementPlaybacks(ctx, id))
	}
}
