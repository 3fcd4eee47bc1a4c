package downloader

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/internal/telemetry"
)

// attempt carries the outcome of one BeginDownload. Every waiter of the
// attempt observes the same channels, so all of them see one outcome.
type attempt struct {
	streamable chan struct{}
	done       chan struct{}
	err        error
}

func newAttempt() *attempt {
	return &attempt{
		streamable: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Transfer is the Downloader shared by all source kinds.
type Transfer struct {
	id         string
	kind       string
	dir        string
	source     Source
	transcoder Transcoder
	chunkSize  int
	threshold  int

	// base scopes background transfers; they outlive the call that
	// started them.
	base context.Context

	mu          sync.Mutex
	downloading bool
	downloaded  bool
	streamable  bool
	locks       int
	size        int64
	chunks      int
	info        *SourceInfo
	current     *attempt
	listeners   map[int]Listener
	nextID      int
}

// TransferOptions configures a Transfer. Zero values take the package
// defaults.
type TransferOptions struct {
	Transcoder       Transcoder
	ChunkSize        int
	StreamableChunks int
	Context          context.Context
}

// NewTransfer returns a Transfer storing the chunks of id in dir.
func NewTransfer(id, kind, dir string, source Source, opts TransferOptions) *Transfer {
	t := &Transfer{
		id:         id,
		kind:       kind,
		dir:        dir,
		source:     source,
		transcoder: opts.Transcoder,
		chunkSize:  opts.ChunkSize,
		threshold:  opts.StreamableChunks,
		base:       opts.Context,
		listeners:  make(map[int]Listener),
	}
	if t.transcoder == nil {
		t.transcoder = &FFmpegTranscoder{}
	}
	if t.chunkSize <= 0 {
		t.chunkSize = ChunkSize
	}
	if t.threshold <= 0 {
		t.threshold = StreamableChunks
	}
	if t.base == nil {
		t.base = context.Background()
	}
	return t
}

func (t *Transfer) ContentID() string { return t.id }

func (t *Transfer) Dir() string { return t.dir }

func (t *Transfer) Downloaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloaded
}

func (t *Transfer) Downloading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloading
}

func (t *Transfer) CachedSizeBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

func (t *Transfer) Chunks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chunks
}

func (t *Transfer) LockCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locks
}

func (t *Transfer) Info() (SourceInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.info == nil {
		return SourceInfo{}, false
	}
	return *t.info, true
}

// Subscribe registers l for lifecycle events.
func (t *Transfer) Subscribe(l Listener) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = l
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// snapshotListeners returns the listeners in registration order. Callers
// must hold t.mu.
func (t *Transfer) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(t.listeners))
	for id := 0; id < t.nextID; id++ {
		if l, ok := t.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

// probe returns the cached probe result or probes the source.
func (t *Transfer) probe(ctx context.Context) (SourceInfo, error) {
	t.mu.Lock()
	if t.info != nil {
		info := *t.info
		t.mu.Unlock()
		return info, nil
	}
	t.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanTransferProbe)
	defer span.End()
	span.SetAttributes(telemetry.ContentID(t.id), telemetry.SourceKind(t.kind))

	info, err := t.source.Probe(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return SourceInfo{}, fmt.Errorf("failed to probe %s: %w", t.id, err)
	}

	span.SetAttributes(telemetry.Continuous(info.Continuous))

	t.mu.Lock()
	t.info = &info
	t.mu.Unlock()
	return info, nil
}

// EstimateCacheSize predicts the PCM size from the probed duration.
func (t *Transfer) EstimateCacheSize(ctx context.Context) (int64, error) {
	info, err := t.probe(ctx)
	if err != nil {
		return 0, err
	}
	if info.PCM && info.SizeBytes > 0 {
		chunks := (info.SizeBytes + int64(t.chunkSize) - 1) / int64(t.chunkSize)
		return chunks * int64(t.chunkSize), nil
	}
	if info.Duration <= 0 {
		return int64(t.chunkSize), nil
	}
	bytes := info.Duration * BytesPerSecond
	chunks := (bytes + int64(t.chunkSize) - 1) / int64(t.chunkSize)
	return chunks * int64(t.chunkSize), nil
}

// BeginDownload starts a transfer unless one runs or already succeeded.
func (t *Transfer) BeginDownload(ctx context.Context) error {
	t.mu.Lock()
	if t.downloading || t.downloaded {
		t.mu.Unlock()
		return nil
	}
	a := newAttempt()
	t.downloading = true
	t.streamable = false
	t.size = 0
	t.chunks = 0
	t.current = a
	t.mu.Unlock()

	info, err := t.probe(ctx)
	if err == nil && info.Continuous {
		err = ErrContinuousSource
	}
	if err == nil {
		if mkErr := os.MkdirAll(t.dir, 0755); mkErr != nil {
			err = fmt.Errorf("failed to create cache directory: %w", mkErr)
		}
	}
	if err != nil {
		t.mu.Lock()
		t.downloading = false
		a.err = err
		close(a.done)
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	listeners := t.snapshotListeners()
	t.mu.Unlock()
	for _, l := range listeners {
		l.OnStart(t)
	}

	logger.Info("Download started",
		logger.KeyContentID, t.id,
		logger.KeyKind, t.kind,
		logger.KeyPath, t.dir)

	go t.run(a, info)
	return nil
}

// run performs one attempt. It is the only writer of chunk files.
func (t *Transfer) run(a *attempt, info SourceInfo) {
	start := time.Now()
	ctx, span := telemetry.StartTransferSpan(t.base, t.id, t.kind)
	defer span.End()

	transcoder := t.transcoder
	if info.PCM {
		transcoder = PassthroughTranscoder{}
	}

	err := func() error {
		body, err := t.source.Open(ctx)
		if err != nil {
			return fmt.Errorf("failed to open source: %w", err)
		}
		defer func() { _ = body.Close() }()

		w := NewChunkWriter(t.dir, t.chunkSize, func(index, size int) {
			t.chunkDone(ctx, a, index, size)
		})
		err = transcoder.Transcode(ctx, body, w)
		if closeErr := w.Close(); err == nil {
			err = closeErr
		}
		return err
	}()

	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	span.SetAttributes(telemetry.Bytes(t.CachedSizeBytes()), telemetry.Chunks(t.Chunks()))
	t.finish(a, err, start)
}

func (t *Transfer) chunkDone(ctx context.Context, a *attempt, index, size int) {
	t.mu.Lock()
	t.chunks++
	t.size += int64(size)
	becameStreamable := !t.streamable && t.chunks >= t.threshold
	if becameStreamable {
		t.streamable = true
		close(a.streamable)
	}
	var listeners []Listener
	if becameStreamable {
		listeners = t.snapshotListeners()
	}
	t.mu.Unlock()

	logger.Debug("Chunk written", logger.KeyContentID, t.id, logger.KeyChunk, index, logger.Size(int64(size)))

	if becameStreamable {
		telemetry.AddEvent(ctx, telemetry.EventStreamable, telemetry.Chunks(t.threshold))
		for _, l := range listeners {
			l.OnStreamable(t)
		}
	}
}

func (t *Transfer) finish(a *attempt, err error, start time.Time) {
	t.mu.Lock()
	t.downloading = false
	becameStreamable := false
	if err == nil {
		t.downloaded = true
		// Content shorter than the threshold becomes streamable at the end.
		if !t.streamable {
			t.streamable = true
			close(a.streamable)
			becameStreamable = true
		}
	} else {
		t.streamable = false
	}
	a.err = err
	close(a.done)
	listeners := t.snapshotListeners()
	size, chunks := t.size, t.chunks
	t.mu.Unlock()

	if err != nil {
		logger.Warn("Download failed",
			logger.KeyContentID, t.id,
			logger.KeyChunks, chunks,
			logger.DurationMs(start),
			logger.Err(err))
	} else {
		logger.Info("Download finished",
			logger.KeyContentID, t.id,
			logger.KeyChunks, chunks,
			logger.Size(size),
			logger.DurationMs(start))
	}

	for _, l := range listeners {
		if becameStreamable {
			l.OnStreamable(t)
		}
		l.OnFinish(t, err)
	}
}

// GetCacheLocation waits for the content to become streamable and takes a
// delete lock.
func (t *Transfer) GetCacheLocation(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.streamable {
		t.locks++
		t.mu.Unlock()
		return t.dir, nil
	}
	t.mu.Unlock()

	if err := t.BeginDownload(ctx); err != nil {
		return "", err
	}

	t.mu.Lock()
	a := t.current
	t.mu.Unlock()
	if a == nil {
		return "", ErrNotStarted
	}

	select {
	case <-a.streamable:
	case <-a.done:
		// streamable is closed before done on success.
		select {
		case <-a.streamable:
		default:
			return "", a.err
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}

	t.mu.Lock()
	t.locks++
	t.mu.Unlock()
	return t.dir, nil
}

func (t *Transfer) LockIfStreamable() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.streamable {
		return "", false
	}
	t.locks++
	return t.dir, true
}

func (t *Transfer) ReleaseDeleteLock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.locks > 0 {
		t.locks--
	}
}

// DeleteCache removes the cache directory. State is unchanged on failure.
func (t *Transfer) DeleteCache(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.downloading || t.locks != 0 {
		return ErrBusy
	}
	if err := os.RemoveAll(t.dir); err != nil {
		return fmt.Errorf("failed to remove cache directory: %w", err)
	}

	t.downloaded = false
	t.streamable = false
	t.size = 0
	t.chunks = 0

	logger.Debug("Cache deleted", logger.KeyContentID, t.id, logger.KeyPath, t.dir)
	return nil
}

// Wait blocks until the current attempt ends.
func (t *Transfer) Wait(ctx context.Context) error {
	t.mu.Lock()
	a := t.current
	downloaded := t.downloaded
	t.mu.Unlock()

	if a == nil {
		if downloaded {
			return nil
		}
		return ErrNotStarted
	}

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Adopt marks content already present in Dir as downloaded, so a restarted
// worker serves it without a new transfer.
func (t *Transfer) Adopt(size int64, chunks int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.downloading {
		return
	}
	t.downloaded = true
	t.streamable = true
	t.size = size
	t.chunks = chunks
}

var _ Downloader = (*Transfer)(nil)
