package cachemanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/internal/telemetry"
	"github.com/marmos91/dittocache/pkg/downloader"
)

// QueueSource starts tracking id and queues its download. Queueing a
// tracked id is a cache hit and does nothing.
func (m *Manager) QueueSource(ctx context.Context, id string) error {
	ctx, span := telemetry.StartCacheSpan(ctx, telemetry.SpanCacheQueue, id)
	defer span.End()

	m.mu.Lock()
	if _, ok := m.entries[id]; ok {
		m.mu.Unlock()
		span.SetAttributes(telemetry.CacheHit(true))
		m.recordRequest(ResultHit)
		logger.DebugCtx(ctx, "Source already tracked", logger.KeyContentID, id)
		return nil
	}

	dl, err := m.factory(id)
	if err != nil {
		m.mu.Unlock()
		telemetry.RecordError(ctx, err)
		m.recordRequest(ResultError)
		return fmt.Errorf("failed to create downloader for %s: %w", id, err)
	}

	e := &entry{id: id, dl: dl, pos: len(m.order)}
	m.entries[id] = e
	m.order = append(m.order, e)
	dl.Subscribe(m.listener(e))

	res, hasResidue := m.residue[id]
	delete(m.residue, id)
	m.mu.Unlock()

	span.SetAttributes(telemetry.CacheHit(false))
	m.recordRequest(ResultMiss)

	if m.store != nil {
		if err := m.store.AddSong(ctx, id, dl.Dir()); err != nil {
			m.logStoreError("add_song", id, err)
		}
	}

	if hasResidue && m.adopt(e, res) {
		return nil
	}

	m.queueDownload(e)
	return nil
}

// adopt takes over a cache directory recorded by an earlier process. It
// reports false when the directory is gone or the downloader cannot adopt.
func (m *Manager) adopt(e *entry, res residue) bool {
	a, ok := e.dl.(adopter)
	st, err := os.Stat(e.dl.Dir())
	if !ok || err != nil || !st.IsDir() {
		m.mu.Lock()
		m.total -= res.size
		m.reportUsage()
		m.mu.Unlock()
		if m.store != nil {
			ctx, cancel := m.storeContext()
			m.logStoreError("uncache_song", e.id, m.store.UncacheSong(ctx, e.id))
			cancel()
		}
		return false
	}

	a.Adopt(res.size, res.chunks)

	m.mu.Lock()
	// The residue bytes already count toward total.
	e.accounted = res.size
	m.reportUsage()
	m.mu.Unlock()

	logger.Info("Adopted cached content",
		logger.KeyContentID, e.id,
		logger.KeyChunks, res.chunks,
		logger.Size(res.size))
	return true
}

// queueDownload appends e to the wait queue and starts the queue head when
// no transfer is active.
func (m *Manager) queueDownload(e *entry) {
	m.mu.Lock()
	next := m.enqueueLocked(e)
	m.reportUsage()
	m.mu.Unlock()

	if next != nil {
		go m.startDownload(next)
	}
}

// enqueueLocked appends e to the wait queue and returns the entry to start,
// if any. Callers must hold m.mu.
func (m *Manager) enqueueLocked(e *entry) *entry {
	if e.admission == nil {
		e.admission = newAdmission()
	}
	e.queued = true
	m.queue = append(m.queue, e)
	return m.popLocked()
}

// popLocked makes the queue head active when no transfer is active.
// Callers must hold m.mu.
func (m *Manager) popLocked() *entry {
	if m.active != nil || len(m.queue) == 0 {
		return nil
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	next.queued = false
	m.active = next
	return next
}

// startDownload frees room for e and begins its transfer. The active slot
// is released by the finish event, or right away when no transfer starts.
func (m *Manager) startDownload(e *entry) {
	ctx := logger.ContentContext(context.Background(), e.id)

	required, err := e.dl.EstimateCacheSize(ctx)
	if err == nil {
		err = m.FreeSpace(ctx, required+1)
	}
	if err == nil {
		err = e.dl.BeginDownload(ctx)
	}

	if err != nil {
		level := logger.WarnCtx
		if errors.Is(err, downloader.ErrContinuousSource) {
			level = logger.InfoCtx
		}
		level(ctx, "Download not started", logger.Err(err))
		m.observeDownload(DownloadSkipped, 0)
		m.settle(e, err)
		m.release(e)
		return
	}

	// Already downloaded, or finished before we got here. A failed finish
	// settles through the listener.
	if !e.dl.Downloading() {
		if e.dl.Downloaded() {
			m.settle(e, nil)
		}
		m.release(e)
	}
}

// release frees the active slot held by e and starts the next queued
// download. It does nothing when e is not active.
func (m *Manager) release(e *entry) {
	m.mu.Lock()
	if m.active != e {
		m.mu.Unlock()
		return
	}
	m.active = nil
	next := m.popLocked()
	m.reportUsage()
	m.mu.Unlock()

	if next != nil {
		go m.startDownload(next)
	}
}

// listener mirrors the transfer events of e.
func (m *Manager) listener(e *entry) downloader.Listener {
	return downloader.ListenerFuncs{
		Start: func(downloader.Downloader) {
			m.mu.Lock()
			e.started = time.Now()
			m.mu.Unlock()
		},
		Streamable: func(downloader.Downloader) {
			m.settle(e, nil)
		},
		Finish: func(d downloader.Downloader, err error) {
			m.onFinish(e, err)
			m.release(e)
		},
	}
}

func (m *Manager) onFinish(e *entry, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settleLocked(e, err)

	elapsed := time.Duration(0)
	if !e.started.IsZero() {
		elapsed = time.Since(e.started)
	}
	if err != nil {
		m.observeDownload(DownloadFailure, elapsed)
		return
	}
	m.observeDownload(DownloadSuccess, elapsed)

	// Evicted meanwhile: nothing to account.
	if m.entries[e.id] != e || !e.dl.Downloaded() {
		return
	}

	size := e.dl.CachedSizeBytes()
	m.total += size - e.accounted
	e.accounted = size
	m.reportUsage()

	// Holding m.mu orders this mirror against eviction of the same entry.
	if m.store != nil {
		m.mirrorFinished(e)
	}
}

// mirrorFinished records a completed download in the store. Callers must
// hold m.mu.
func (m *Manager) mirrorFinished(e *entry) {
	ctx, cancel := m.storeContext()
	defer cancel()

	id := e.id
	chunks := int64(e.dl.Chunks())
	m.logStoreError("cache_song", id, m.store.CacheSong(ctx, id))
	m.logStoreError("set_size_bytes", id, m.store.SetSizeBytes(ctx, id, e.accounted))
	if chunks > 0 {
		m.logStoreError("set_start_chunk", id, m.store.SetStartChunk(ctx, id, 0))
		m.logStoreError("set_end_chunk", id, m.store.SetEndChunk(ctx, id, chunks-1))
	}

	info, ok := e.dl.Info()
	if !ok {
		return
	}
	if info.Title != "" {
		m.logStoreError("set_title", id, m.store.SetTitle(ctx, id, info.Title))
	}
	if info.Artist != "" {
		m.logStoreError("set_artist", id, m.store.SetArtist(ctx, id, info.Artist))
	}
	if info.Link != "" {
		m.logStoreError("set_link", id, m.store.SetLink(ctx, id, info.Link))
	}
	if info.ThumbnailURL != "" {
		m.logStoreError("set_thumbnail_url", id, m.store.SetThumbnailURL(ctx, id, info.ThumbnailURL))
	}
	if info.Duration > 0 {
		m.logStoreError("set_duration", id, m.store.SetDuration(ctx, id, info.Duration))
	}
}

func (m *Manager) recordRequest(result string) {
	if m.metrics != nil {
		m.metrics.RecordRequest(result)
	}
}

func (m *Manager) observeDownload(result string, d time.Duration) {
	if m.metrics != nil {
		m.metrics.ObserveDownload(result, d)
	}
}
