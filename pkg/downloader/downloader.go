// Package downloader fetches one content id from its source, transcodes it
// to raw PCM and stores it as numbered chunk files that become playable
// before the transfer completes.
package downloader

import (
	"context"
	"errors"
)

// PCM output format of every transfer: signed 16-bit little-endian, 48 kHz,
// stereo.
const (
	SampleRate     = 48000
	Channels       = 2
	BytesPerSample = 2

	// BytesPerSecond is the PCM data rate.
	BytesPerSecond = SampleRate * Channels * BytesPerSample

	// ChunkSeconds is the audio duration held by one chunk file.
	ChunkSeconds = 10

	// ChunkSize is the byte size of every chunk except the last.
	ChunkSize = BytesPerSecond * ChunkSeconds

	// StreamableChunks is the number of chunks that must be on disk before
	// playback may start.
	StreamableChunks = 2
)

var (
	// ErrBusy is returned by DeleteCache while a transfer runs or a delete
	// lock is held.
	ErrBusy = errors.New("cache is in use")

	// ErrContinuousSource is returned by BeginDownload for live sources,
	// which are never cached.
	ErrContinuousSource = errors.New("continuous sources are not cached")

	// ErrNotStarted is returned by Wait when no transfer was ever begun.
	ErrNotStarted = errors.New("download not started")

	// ErrUnknownKind is returned for content ids whose kind has no
	// registered source.
	ErrUnknownKind = errors.New("unknown source kind")

	// ErrInvalidContentID is returned for malformed content ids.
	ErrInvalidContentID = errors.New("invalid content id")
)

// Downloader owns the cache directory of one content id.
//
// All methods are safe for concurrent use.
type Downloader interface {
	ContentID() string

	// Dir is the cache directory holding the chunk files.
	Dir() string

	// Downloaded reports whether the last transfer completed successfully.
	Downloaded() bool

	// Downloading reports whether a transfer is running.
	Downloading() bool

	// CachedSizeBytes is the number of PCM bytes written to Dir.
	CachedSizeBytes() int64

	// Chunks is the number of chunk files written to Dir.
	Chunks() int

	// LockCount is the number of outstanding delete locks.
	LockCount() int

	// Info returns the probed source metadata, if a probe happened.
	Info() (SourceInfo, bool)

	// EstimateCacheSize predicts the final size in bytes, probing the
	// source when needed.
	EstimateCacheSize(ctx context.Context) (int64, error)

	// BeginDownload starts the transfer in the background. It is a no-op
	// while downloading or once downloaded. Probe failures and continuous
	// sources are reported synchronously and emit no events.
	BeginDownload(ctx context.Context) error

	// GetCacheLocation begins the transfer if needed, waits until the
	// content is streamable, takes a delete lock and returns Dir. It fails
	// when the transfer fails before becoming streamable. Cancelling ctx
	// only stops this caller waiting.
	GetCacheLocation(ctx context.Context) (string, error)

	// LockIfStreamable takes a delete lock and returns Dir when the content
	// is streamable. It never begins a transfer.
	LockIfStreamable() (dir string, ok bool)

	// ReleaseDeleteLock drops one delete lock. The count never goes below
	// zero.
	ReleaseDeleteLock()

	// DeleteCache removes Dir and resets the downloaded state. It fails
	// with ErrBusy while downloading or locked.
	DeleteCache(ctx context.Context) error

	// Wait blocks until the current transfer attempt ends and returns its
	// outcome.
	Wait(ctx context.Context) error

	// Subscribe registers l for lifecycle events and returns a function
	// that unregisters it.
	Subscribe(l Listener) (unsubscribe func())
}

// Listener receives the lifecycle events of a Downloader. Events of one
// attempt arrive in order: start, streamable, finish. Callbacks run on the
// transfer goroutine and must not block.
type Listener interface {
	OnStart(d Downloader)
	OnStreamable(d Downloader)
	OnFinish(d Downloader, err error)
}

// ListenerFuncs adapts optional functions to a Listener.
type ListenerFuncs struct {
	Start      func(d Downloader)
	Streamable func(d Downloader)
	Finish     func(d Downloader, err error)
}

func (l ListenerFuncs) OnStart(d Downloader) {
	if l.Start != nil {
		l.Start(d)
	}
}

func (l ListenerFuncs) OnStreamable(d Downloader) {
	if l.Streamable != nil {
		l.Streamable(d)
	}
}

func (l ListenerFuncs) OnFinish(d Downloader, err error) {
	if l.Finish != nil {
		l.Finish(d, err)
	}
}

// EstimateSize converts a duration in seconds to the PCM byte size it will
// occupy, rounded up to whole chunks. Unknown durations estimate one chunk.
func EstimateSize(seconds int64) int64 {
	if seconds <= 0 {
		return ChunkSize
	}
	bytes := seconds * BytesPerSecond
	chunks := (bytes + ChunkSize - 1) / ChunkSize
	return chunks * ChunkSize
}
