package cachemanager

import (
	"context"
	"fmt"

	"github.com/marmos91/dittocache/internal/logger"
)

// Restore loads the cached entries recorded by earlier processes from the
// store. Their sizes count toward the total until they are queued again,
// which adopts the directory, or evicted. It does nothing without a store.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	infos, err := m.store.ListCacheInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to list cache records: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	restored := 0
	for _, info := range infos {
		if !info.Cached || info.SizeBytes <= 0 {
			continue
		}
		if _, tracked := m.entries[info.ContentID]; tracked {
			continue
		}
		if _, seen := m.residue[info.ContentID]; seen {
			continue
		}
		chunks := 0
		if info.StartChunk >= 0 && info.EndChunk >= info.StartChunk {
			chunks = int(info.EndChunk-info.StartChunk) + 1
		}
		m.residue[info.ContentID] = residue{size: info.SizeBytes, chunks: chunks}
		m.total += info.SizeBytes
		restored++
	}
	m.reportUsage()

	logger.Info("Cache state restored",
		"entries", restored,
		logger.KeyCacheSize, m.total,
		logger.KeyCacheMax, m.config.MaxSize)
	return nil
}
