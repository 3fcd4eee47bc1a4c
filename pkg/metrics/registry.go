// Package metrics owns the optional Prometheus registry of a worker and the
// HTTP server exposing it. Collectors live in pkg/metrics/prometheus; when
// InitRegistry was never called their constructors return nil and callers
// skip reporting entirely.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics and returns the registry. It registers the Go
// runtime and process collectors. Calling it again returns the same registry.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry != nil {
		return registry
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Reset disables metrics and drops the registry. Tests use it to start from
// a clean registry.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
}
