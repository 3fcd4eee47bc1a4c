package cachemanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/internal/telemetry"
	"github.com/marmos91/dittocache/pkg/downloader"
)

// FreeSpace makes room for amount more bytes. It deletes caches starting
// from the least played entry and skips entries that are locked,
// transferring or waiting to transfer. When the tracked list is exhausted,
// residue of earlier processes is deleted in the store's BestToRemove
// order.
//
// Freeing less than requested is not an error. Asking for more than the
// configured maximum fails with ErrConfiguration.
func (m *Manager) FreeSpace(ctx context.Context, amount int64) error {
	if amount > m.config.MaxSize {
		return fmt.Errorf("%w: need %d bytes, cache holds %d", ErrConfiguration, amount, m.config.MaxSize)
	}

	ctx, span := telemetry.StartCacheSpan(ctx, telemetry.SpanCacheFree, "", telemetry.Required(amount))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.freeSpaceLocked(ctx, amount)
	span.SetAttributes(telemetry.CacheSize(m.total))
	return nil
}

// freeSpaceLocked evicts until total+amount fits and returns the number of
// accounted bytes freed. Callers must hold m.mu.
func (m *Manager) freeSpaceLocked(ctx context.Context, amount int64) int64 {
	fits := func() bool { return m.total+amount <= m.config.MaxSize }
	if fits() {
		return 0
	}

	before := m.total
	evicted := 0
	for i := len(m.order) - 1; i >= 0 && !fits(); i-- {
		if m.evictLocked(ctx, i) {
			evicted++
		}
	}
	for !fits() && m.store != nil {
		if !m.evictResidueLocked(ctx) {
			break
		}
		evicted++
	}

	freed := before - m.total
	logger.Debug("Freed cache space",
		logger.KeyRequired, amount,
		logger.KeyEvicted, evicted,
		logger.KeyCacheSize, m.total,
		logger.KeyCacheMax, m.config.MaxSize,
		logger.Size(freed))
	if !fits() {
		logger.Warn("Cache over capacity after eviction",
			logger.KeyRequired, amount,
			logger.KeyCacheSize, m.total,
			logger.KeyCacheMax, m.config.MaxSize)
	}
	m.reportUsage()
	return freed
}

// evictLocked tries to delete the cache of order[i]. Callers must hold m.mu.
func (m *Manager) evictLocked(ctx context.Context, i int) bool {
	e := m.order[i]
	if e == m.active || e.queued {
		return false
	}
	// Never started: nothing on disk to reclaim.
	if e.dl.CachedSizeBytes() == 0 && !e.dl.Downloaded() {
		return false
	}

	if err := e.dl.DeleteCache(ctx); err != nil {
		if errors.Is(err, downloader.ErrBusy) {
			m.recordEviction(EvictionBusy)
			logger.Debug("Skipping busy cache", logger.KeyContentID, e.id, logger.KeyLocks, e.dl.LockCount())
		} else {
			m.recordEviction(EvictionError)
			logger.Warn("Failed to delete cache", logger.KeyContentID, e.id, logger.Err(err))
		}
		return false
	}

	size := e.accounted
	m.removeAt(i)
	m.recordEviction(EvictionDeleted)
	logger.Info("Evicted cache", logger.KeyContentID, e.id, logger.KeyPlayCount, e.plays, logger.Size(size))

	if m.store != nil {
		m.logStoreError("uncache_song", e.id, m.store.UncacheSong(ctx, e.id))
	}
	return true
}

// evictResidueLocked deletes the store's best eviction candidate when it is
// residue of an earlier process. Callers must hold m.mu.
func (m *Manager) evictResidueLocked(ctx context.Context) bool {
	best, err := m.store.BestToRemove(ctx)
	if err != nil {
		logger.Warn("Failed to query eviction candidate", logger.Err(err))
		return false
	}
	if best == nil {
		return false
	}
	res, ok := m.residue[best.ContentID]
	if !ok {
		// Tracked entries were already tried by the list scan.
		return false
	}
	return m.deleteResidueLocked(ctx, best.ContentID, res)
}

// deleteResidueLocked removes the cache directory of an untracked id.
// Callers must hold m.mu.
func (m *Manager) deleteResidueLocked(ctx context.Context, id string, res residue) bool {
	dl, err := m.factory(id)
	if err == nil {
		err = dl.DeleteCache(ctx)
	}
	if err != nil {
		m.recordEviction(EvictionError)
		logger.Warn("Failed to delete residue", logger.KeyContentID, id, logger.Err(err))
		// Forget it so the scan cannot pick it forever.
		delete(m.residue, id)
		return false
	}

	delete(m.residue, id)
	m.total -= res.size
	m.recordEviction(EvictionDeleted)
	logger.Info("Evicted residue", logger.KeyContentID, id, logger.Size(res.size))
	m.logStoreError("uncache_song", id, m.store.UncacheSong(ctx, id))
	return true
}

// Purge deletes every cache that is not locked or transferring, including
// residue, and returns the number of accounted bytes freed.
func (m *Manager) Purge(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.total
	for i := len(m.order) - 1; i >= 0; i-- {
		m.evictLocked(ctx, i)
	}
	if m.store != nil {
		for id, res := range m.residue {
			if locked, err := m.store.IsLocked(ctx, id); err == nil && locked {
				continue
			}
			m.deleteResidueLocked(ctx, id, res)
		}
	}
	m.reportUsage()

	freed := before - m.total
	logger.Info("Cache purged", logger.Size(freed), logger.KeyCacheSize, m.total)
	return freed, ctx.Err()
}

// Run sweeps the cache every EvictInterval until ctx is done, deleting
// caches while the total exceeds the maximum. Locks released after a
// FreeSpace pass are reclaimed this way.
func (m *Manager) Run(ctx context.Context) error {
	if m.config.EvictInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(m.config.EvictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one eviction pass and returns the bytes freed.
func (m *Manager) Sweep(ctx context.Context) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freeSpaceLocked(ctx, 0)
}

func (m *Manager) recordEviction(result string) {
	if m.metrics != nil {
		m.metrics.RecordEviction(result)
	}
}
