// Package metadata defines the durable record of cache state, song
// metadata, playback counts and delete locks. Backends live under
// pkg/metadata/store.
package metadata

import "context"

// Store is the persistent metadata store.
//
// All methods are safe for concurrent use. Methods taking a content id fail
// with a NotFound StoreError when AddSong was never called for it, except
// AddSong itself and IsLocked.
type Store interface {
	// AddSong creates the cache and song records of id with sentinel
	// defaults. When id already exists it does nothing: the first location
	// recorded wins.
	AddSong(ctx context.Context, id, location string) error

	// CacheSong marks id as cached. Idempotent.
	CacheSong(ctx context.Context, id string) error

	// UncacheSong marks id as not cached and resets its chunk bounds and
	// size. Idempotent.
	UncacheSong(ctx context.Context, id string) error

	SetStartChunk(ctx context.Context, id string, chunk int64) error
	SetEndChunk(ctx context.Context, id string, chunk int64) error
	SetSizeBytes(ctx context.Context, id string, size int64) error
	IncrementPlaybacks(ctx context.Context, id string) error

	SetLink(ctx context.Context, id, link string) error
	SetThumbnailURL(ctx context.Context, id, url string) error
	SetTitle(ctx context.Context, id, title string) error
	SetArtist(ctx context.Context, id, artist string) error
	SetDuration(ctx context.Context, id string, seconds int64) error

	// AddLock records a durable delete lock on id and returns its lock id.
	// Lock ids increase monotonically and are never reused.
	AddLock(ctx context.Context, id string) (int64, error)

	// RemoveLock deletes the lock row. Removing an unknown lock id is a no-op.
	RemoveLock(ctx context.Context, lockID int64) error

	// IsLocked reports whether at least one lock row exists for id.
	IsLocked(ctx context.Context, id string) (bool, error)

	GetCacheInfo(ctx context.Context, id string) (*CacheInfo, error)
	GetSongInfo(ctx context.Context, id string) (*SongInfo, error)

	// ListCacheInfo returns every cache record in insertion order.
	ListCacheInfo(ctx context.Context) ([]*CacheInfo, error)

	// BestToRemove returns the cached, unlocked entry with the highest
	// size-over-plays ratio, or nil when no entry qualifies. See
	// SelectBestToRemove for the exact rules.
	BestToRemove(ctx context.Context) (*CacheInfo, error)

	Healthcheck(ctx context.Context) error
	Close() error
}
