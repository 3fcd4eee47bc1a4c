package cachemanager

import (
	"context"
	"fmt"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/internal/telemetry"
)

// GetCacheLocation counts a playback of id, promotes it past less played
// entries and returns its cache directory once it is streamable. The caller
// holds a delete lock on the directory until ReleaseDeleteLock.
func (m *Manager) GetCacheLocation(ctx context.Context, id string) (string, error) {
	ctx, span := telemetry.StartCacheSpan(ctx, telemetry.SpanCacheLocate, id)
	defer span.End()

	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		m.recordRequest(ResultNotFound)
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.plays++
	m.promoteLocked(e)
	plays := e.plays
	m.mu.Unlock()

	if m.store != nil {
		m.logStoreError("increment_playbacks", id, m.store.IncrementPlaybacks(ctx, id))
	}

	dir, err := m.awaitStreamable(ctx, e)
	if err != nil {
		telemetry.RecordError(ctx, err)
		m.recordRequest(ResultError)
		return "", err
	}

	m.recordRequest(ResultServed)
	logger.DebugCtx(ctx, "Serving cache location",
		logger.KeyContentID, id,
		logger.KeyPath, dir,
		logger.KeyPlayCount, plays)
	return dir, nil
}

// admission is one pass of an entry through the wait queue. ready is closed
// once the content is streamable or the pass ended without it, in which
// case err holds the reason.
type admission struct {
	ready chan struct{}
	err   error
}

func newAdmission() *admission {
	return &admission{ready: make(chan struct{})}
}

// awaitStreamable takes a delete lock on e once its content is streamable.
// Content that is neither streamable nor transferring goes through the wait
// queue, so callers never start a transfer outside the active slot.
func (m *Manager) awaitStreamable(ctx context.Context, e *entry) (string, error) {
	for {
		m.mu.Lock()
		if m.entries[e.id] != e {
			m.mu.Unlock()
			return "", fmt.Errorf("%w: %s", ErrNotFound, e.id)
		}
		if dir, ok := e.dl.LockIfStreamable(); ok {
			m.mu.Unlock()
			return dir, nil
		}
		var next *entry
		if e.admission == nil {
			if e.dl.Downloading() {
				e.admission = newAdmission()
			} else {
				// Idle after a failed or skipped attempt.
				next = m.enqueueLocked(e)
				m.reportUsage()
			}
		}
		adm := e.admission
		m.mu.Unlock()

		if next != nil {
			go m.startDownload(next)
		}

		select {
		case <-adm.ready:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if adm.err != nil {
			return "", adm.err
		}
	}
}

// settle resolves the pending admission of e.
func (m *Manager) settle(e *entry, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settleLocked(e, err)
}

// settleLocked resolves the pending admission of e. Callers must hold m.mu.
func (m *Manager) settleLocked(e *entry, err error) {
	a := e.admission
	if a == nil {
		return
	}
	e.admission = nil
	a.err = err
	close(a.ready)
}

// promoteLocked moves e ahead of each predecessor with strictly fewer
// plays, one adjacent swap at a time. Callers must hold m.mu.
func (m *Manager) promoteLocked(e *entry) {
	i := e.pos
	for i > 0 && m.order[i-1].plays < e.plays {
		prev := m.order[i-1]
		m.order[i-1], m.order[i] = e, prev
		prev.pos = i
		i--
	}
	e.pos = i
}

// ReleaseDeleteLock drops one delete lock taken by GetCacheLocation.
func (m *Manager) ReleaseDeleteLock(id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.dl.ReleaseDeleteLock()
	return nil
}

// Tracked reports whether id is tracked.
func (m *Manager) Tracked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id]
	return ok
}
