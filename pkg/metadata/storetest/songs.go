package storetest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocache/pkg/metadata"
)

func runSongTests(t *testing.T, factory StoreFactory) {
	t.Run("AddSongDefaults", func(t *testing.T) { testAddSongDefaults(t, factory) })
	t.Run("AddSongFirstWriteWins", func(t *testing.T) { testAddSongFirstWriteWins(t, factory) })
	t.Run("UnknownIDIsNotFound", func(t *testing.T) { testUnknownIDIsNotFound(t, factory) })
	t.Run("CacheAndUncache", func(t *testing.T) { testCacheAndUncache(t, factory) })
	t.Run("SongFields", func(t *testing.T) { testSongFields(t, factory) })
	t.Run("ListInInsertionOrder", func(t *testing.T) { testListInInsertionOrder(t, factory) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, factory) })
	t.Run("Healthcheck", func(t *testing.T) { testHealthcheck(t, factory) })
}

func testAddSongDefaults(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	require.NoError(t, store.AddSong(ctx, "file$a.flac", "/cache/a"))

	info, err := store.GetCacheInfo(ctx, "file$a.flac")
	require.NoError(t, err)
	assert.Equal(t, &metadata.CacheInfo{
		ContentID:     "file$a.flac",
		CacheLocation: "/cache/a",
		StartChunk:    metadata.NoChunk,
		EndChunk:      metadata.NoChunk,
	}, info)

	song, err := store.GetSongInfo(ctx, "file$a.flac")
	require.NoError(t, err)
	assert.Equal(t, metadata.NewSongInfo("file$a.flac"), song)
	assert.Equal(t, metadata.Unknown, song.Title)
	assert.Equal(t, metadata.UnknownDuration, song.Duration)
}

func testAddSongFirstWriteWins(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	require.NoError(t, store.AddSong(ctx, "x", "/loc0"))
	require.NoError(t, store.SetTitle(ctx, "x", "Kind of Blue"))
	require.NoError(t, store.AddSong(ctx, "x", "/loc1"))

	info, err := store.GetCacheInfo(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "/loc0", info.CacheLocation)

	song, err := store.GetSongInfo(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "Kind of Blue", song.Title)

	list, err := store.ListCacheInfo(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testUnknownIDIsNotFound(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	ops := map[string]func() error{
		"CacheSong":          func() error { return store.CacheSong(ctx, "ghost") },
		"UncacheSong":        func() error { return store.UncacheSong(ctx, "ghost") },
		"SetStartChunk":      func() error { return store.SetStartChunk(ctx, "ghost", 0) },
		"SetEndChunk":        func() error { return store.SetEndChunk(ctx, "ghost", 1) },
		"SetSizeBytes":       func() error { return store.SetSizeBytes(ctx, "ghost", 10) },
		"IncrementPlaybacks": func() error { return store.IncrementPlaybacks(ctx, "ghost") },
		"SetLink":            func() error { return store.SetLink(ctx, "ghost", "l") },
		"SetThumbnailURL":    func() error { return store.SetThumbnailURL(ctx, "ghost", "u") },
		"SetTitle":           func() error { return store.SetTitle(ctx, "ghost", "t") },
		"SetArtist":          func() error { return store.SetArtist(ctx, "ghost", "a") },
		"SetDuration":        func() error { return store.SetDuration(ctx, "ghost", 1) },
		"AddLock": func() error {
			_, err := store.AddLock(ctx, "ghost")
			return err
		},
		"GetCacheInfo": func() error {
			_, err := store.GetCacheInfo(ctx, "ghost")
			return err
		},
		"GetSongInfo": func() error {
			_, err := store.GetSongInfo(ctx, "ghost")
			return err
		},
	}

	for name, op := range ops {
		err := op()
		assert.Truef(t, metadata.IsNotFoundError(err), "%s: want NotFound, got %v", name, err)
	}
}

func testCacheAndUncache(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	require.NoError(t, store.AddSong(ctx, "s", "/cache/s"))
	require.NoError(t, store.CacheSong(ctx, "s"))
	require.NoError(t, store.CacheSong(ctx, "s"))
	require.NoError(t, store.SetStartChunk(ctx, "s", 0))
	require.NoError(t, store.SetEndChunk(ctx, "s", 12))
	require.NoError(t, store.SetSizeBytes(ctx, "s", 4096))
	require.NoError(t, store.IncrementPlaybacks(ctx, "s"))

	info, err := store.GetCacheInfo(ctx, "s")
	require.NoError(t, err)
	assert.True(t, info.Cached)
	assert.EqualValues(t, 0, info.StartChunk)
	assert.EqualValues(t, 12, info.EndChunk)
	assert.EqualValues(t, 4096, info.SizeBytes)
	assert.EqualValues(t, 1, info.Playbacks)

	require.NoError(t, store.UncacheSong(ctx, "s"))
	require.NoError(t, store.UncacheSong(ctx, "s"))

	info, err = store.GetCacheInfo(ctx, "s")
	require.NoError(t, err)
	assert.False(t, info.Cached)
	assert.Equal(t, metadata.NoChunk, info.StartChunk)
	assert.Equal(t, metadata.NoChunk, info.EndChunk)
	assert.Zero(t, info.SizeBytes)
	assert.EqualValues(t, 1, info.Playbacks, "play count survives eviction")
	assert.Equal(t, "/cache/s", info.CacheLocation)

	err = store.SetSizeBytes(ctx, "s", -1)
	assert.True(t, metadata.IsInvalidArgumentError(err))
}

func testSongFields(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	require.NoError(t, store.AddSong(ctx, "http$https://example.com/a.mp3", "/cache/a"))
	id := "http$https://example.com/a.mp3"

	require.NoError(t, store.SetLink(ctx, id, "https://example.com/a"))
	require.NoError(t, store.SetThumbnailURL(ctx, id, "https://example.com/a.jpg"))
	require.NoError(t, store.SetTitle(ctx, id, "So What"))
	require.NoError(t, store.SetArtist(ctx, id, "Miles Davis"))
	require.NoError(t, store.SetDuration(ctx, id, 545))

	song, err := store.GetSongInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, &metadata.SongInfo{
		ContentID:    id,
		Link:         "https://example.com/a",
		ThumbnailURL: "https://example.com/a.jpg",
		Title:        "So What",
		Artist:       "Miles Davis",
		Duration:     545,
	}, song)
}

func testListInInsertionOrder(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	ids := []string{"zeta", "alpha", "mid", "beta"}
	for _, id := range ids {
		require.NoError(t, store.AddSong(ctx, id, "/cache/"+id))
	}

	list, err := store.ListCacheInfo(ctx)
	require.NoError(t, err)
	require.Len(t, list, len(ids))
	for i, info := range list {
		assert.Equal(t, ids[i], info.ContentID)
	}
}

func testConcurrentIncrements(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	require.NoError(t, store.AddSong(ctx, "hot", "/cache/hot"))

	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := store.IncrementPlaybacks(ctx, "hot"); err != nil {
					errs <- fmt.Errorf("increment: %w", err)
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	info, err := store.GetCacheInfo(ctx, "hot")
	require.NoError(t, err)
	assert.EqualValues(t, workers*perWorker, info.Playbacks)
}

func testHealthcheck(t *testing.T, factory StoreFactory) {
	store := factory(t)
	assert.NoError(t, store.Healthcheck(t.Context()))
}
