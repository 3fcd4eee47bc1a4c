// Package cachemanager tracks the downloads of a worker and keeps the disk
// cache under its configured maximum.
//
// Tracked downloads are ordered by play count, most played first. Only one
// transfer runs at a time; the others wait in a FIFO queue. Before a
// transfer starts, the manager frees space by deleting caches from the least
// played end of the list, skipping any that are locked or transferring.
package cachemanager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/pkg/downloader"
	"github.com/marmos91/dittocache/pkg/metadata"
)

var (
	// ErrNotFound is returned for content ids that were never queued.
	ErrNotFound = errors.New("content not tracked")

	// ErrConfiguration is returned when a single request needs more space
	// than the whole cache holds.
	ErrConfiguration = errors.New("requested space exceeds cache capacity")
)

// storeTimeout bounds metadata writes made from transfer callbacks.
const storeTimeout = 10 * time.Second

// Config bounds the cache.
type Config struct {
	// MaxSize is the maximum number of cached bytes.
	MaxSize int64

	// EvictInterval is the period of the background eviction sweep run by
	// Run. Zero disables the sweep.
	EvictInterval time.Duration
}

// DownloaderFactory builds the downloader of a content id.
type DownloaderFactory func(id string) (downloader.Downloader, error)

// adopter is implemented by downloaders that can take over a cache
// directory left by a previous process.
type adopter interface {
	Adopt(size int64, chunks int)
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore mirrors cache state to store and enables eviction of residue
// left by earlier processes.
func WithStore(store metadata.Store) Option {
	return func(m *Manager) { m.store = store }
}

// WithMetrics reports cache activity to metrics.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// entry is a tracked download.
type entry struct {
	id    string
	dl    downloader.Downloader
	plays int64
	pos   int

	// accounted is the part of Manager.total contributed by this entry.
	accounted int64
	started   time.Time
	queued    bool

	// admission is set from queueing until the content is streamable or
	// the attempt ends.
	admission *admission
}

// residue is a cached entry recorded by an earlier process that has not
// been queued again.
type residue struct {
	size   int64
	chunks int
}

// Manager is the cache manager of one worker.
type Manager struct {
	config  Config
	factory DownloaderFactory
	store   metadata.Store
	metrics Metrics

	mu      sync.Mutex
	entries map[string]*entry
	order   []*entry // by plays, highest first
	queue   []*entry
	active  *entry
	total   int64
	residue map[string]residue
}

// New returns a Manager creating downloaders through factory.
func New(config Config, factory DownloaderFactory, opts ...Option) *Manager {
	m := &Manager{
		config:  config,
		factory: factory,
		entries: make(map[string]*entry),
		residue: make(map[string]residue),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Stats is a snapshot of the manager state.
type Stats struct {
	TotalBytes int64
	MaxBytes   int64
	Tracked    int
	Queued     int
	Residue    int

	// Active is the content id of the running transfer, if any.
	Active string
}

// Stats returns the current state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		TotalBytes: m.total,
		MaxBytes:   m.config.MaxSize,
		Tracked:    len(m.order),
		Queued:     len(m.queue),
		Residue:    len(m.residue),
	}
	if m.active != nil {
		s.Active = m.active.id
	}
	return s
}

// Entry describes one tracked download.
type Entry struct {
	ContentID   string
	Plays       int64
	SizeBytes   int64
	Downloaded  bool
	Downloading bool
	Locks       int
}

// Entries lists the tracked downloads from most to least played.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.order))
	for _, e := range m.order {
		out = append(out, Entry{
			ContentID:   e.id,
			Plays:       e.plays,
			SizeBytes:   e.dl.CachedSizeBytes(),
			Downloaded:  e.dl.Downloaded(),
			Downloading: e.dl.Downloading(),
			Locks:       e.dl.LockCount(),
		})
	}
	return out
}

// reportUsage publishes the size gauges. Callers must hold m.mu.
func (m *Manager) reportUsage() {
	if m.metrics == nil {
		return
	}
	m.metrics.SetUsage(m.total, m.config.MaxSize, len(m.order), len(m.queue))
}

// removeAt drops order[i] and reindexes the entries after it. Callers must
// hold m.mu.
func (m *Manager) removeAt(i int) {
	e := m.order[i]
	m.order = append(m.order[:i], m.order[i+1:]...)
	for j := i; j < len(m.order); j++ {
		m.order[j].pos = j
	}
	delete(m.entries, e.id)
	m.total -= e.accounted
	e.accounted = 0
}

func (m *Manager) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

func (m *Manager) logStoreError(op, id string, err error) {
	if err != nil {
		logger.Warn("Metadata update failed", "op", op, logger.KeyContentID, id, logger.Err(err))
	}
}
