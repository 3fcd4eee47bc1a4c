package downloader

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// SourceInfo is what a probe learns about a source.
type SourceInfo struct {
	// Continuous marks live streams with no end.
	Continuous bool

	// PCM marks sources that already carry the output format, which skip
	// the transcoder.
	PCM bool

	// Duration in seconds, or 0 when unknown.
	Duration int64

	// SizeBytes of the encoded source, or 0 when unknown.
	SizeBytes int64

	Title        string
	Artist       string
	Link         string
	ThumbnailURL string
}

// Source is one fetchable piece of content.
type Source interface {
	// Probe inspects the source without reading its body.
	Probe(ctx context.Context) (SourceInfo, error)

	// Open streams the encoded source bytes.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SourceFactory builds the Source for the reference part of a content id.
type SourceFactory func(ref string) (Source, error)

// Registry maps content id kinds to source factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]SourceFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]SourceFactory)}
}

// Register binds kind to factory, replacing any previous binding.
func (r *Registry) Register(kind string, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Source resolves id to a Source.
func (r *Registry) Source(id string) (kind string, src Source, err error) {
	kind, ref, err := ParseContentID(id)
	if err != nil {
		return "", nil, err
	}

	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	src, err = factory(ref)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create %s source: %w", kind, err)
	}
	return kind, src, nil
}
