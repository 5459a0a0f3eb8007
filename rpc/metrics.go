package rpc

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type serverMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	events    *prometheus.CounterVec
	wsClients prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsRegistry *serverMetrics
)

// metrics returns the lazily-initialised registry used to record RPC
// activity and event feed throughput.
func metrics() *serverMetrics {
	metricsOnce.Do(func() {
		metricsRegistry = &serverMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marketd",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marketd",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "marketd",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marketd",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Total settlement events emitted segmented by event type.",
			}, []string{"type"}),
			wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "marketd",
				Subsystem: "events",
				Name:      "ws_clients",
				Help:      "Number of connected event stream subscribers.",
			}),
		}
		prometheus.MustRegister(
			metricsRegistry.requests,
			metricsRegistry.errors,
			metricsRegistry.latency,
			metricsRegistry.events,
			metricsRegistry.wsClients,
		)
	})
	return metricsRegistry
}
