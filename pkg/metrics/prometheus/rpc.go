package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittocache/pkg/metrics"
	"github.com/marmos91/dittocache/pkg/rpc"
)

type rpcMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRPCMetrics returns the responder metrics, or nil if metrics are not
// enabled.
func NewRPCMetrics() rpc.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &rpcMetrics{
		calls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittocache_rpc_calls_total",
				Help: "Total RPC calls served by procedure and status",
			},
			[]string{"procedure", "status"}, // status: success, error
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittocache_rpc_call_duration_seconds",
				Help:    "Duration of RPC handler execution in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"procedure"},
		),
	}
}

func (m *rpcMetrics) RecordCall(procedure string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.calls.WithLabelValues(procedure, status).Inc()
	m.duration.WithLabelValues(procedure).Observe(duration.Seconds())
}
