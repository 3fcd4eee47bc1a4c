// Package prometheus implements the metric interfaces of the cache manager
// and the RPC layer on the registry of pkg/metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittocache/pkg/cachemanager"
	"github.com/marmos91/dittocache/pkg/metrics"
)

// cacheMetrics is the Prometheus implementation of cachemanager.Metrics.
type cacheMetrics struct {
	size             prometheus.Gauge
	max              prometheus.Gauge
	tracked          prometheus.Gauge
	queueDepth       prometheus.Gauge
	requests         *prometheus.CounterVec
	evictions        *prometheus.CounterVec
	downloads        *prometheus.CounterVec
	downloadDuration prometheus.Histogram
}

// NewCacheMetrics returns the cache manager metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCacheMetrics() cachemanager.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &cacheMetrics{
		size: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittocache_cache_size_bytes",
			Help: "Bytes currently accounted to the cache",
		}),
		max: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittocache_cache_max_bytes",
			Help: "Configured maximum cache size in bytes",
		}),
		tracked: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittocache_cache_tracked",
			Help: "Number of tracked downloads",
		}),
		queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittocache_cache_queue_depth",
			Help: "Number of downloads waiting for the transfer slot",
		}),
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocache_cache_requests_total",
				Help: "Total cache requests by result",
			},
			[]string{"result"}, // hit, miss, served, not_found, error
		),
		evictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocache_cache_evictions_total",
				Help: "Total eviction attempts by result",
			},
			[]string{"result"}, // deleted, busy, error
		),
		downloads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocache_downloads_total",
				Help: "Total downloads by result",
			},
			[]string{"result"}, // success, failure, skipped
		),
		downloadDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dittocache_download_duration_seconds",
			Help:    "Duration of completed transfers in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
}

func (m *cacheMetrics) RecordRequest(result string) {
	m.requests.WithLabelValues(result).Inc()
}

func (m *cacheMetrics) RecordEviction(result string) {
	m.evictions.WithLabelValues(result).Inc()
}

func (m *cacheMetrics) ObserveDownload(result string, duration time.Duration) {
	m.downloads.WithLabelValues(result).Inc()
	if result == cachemanager.DownloadSuccess {
		m.downloadDuration.Observe(duration.Seconds())
	}
}

func (m *cacheMetrics) SetUsage(totalBytes, maxBytes int64, tracked, queued int) {
	m.size.Set(float64(totalBytes))
	m.max.Set(float64(maxBytes))
	m.tracked.Set(float64(tracked))
	m.queueDepth.Set(float64(queued))
}
