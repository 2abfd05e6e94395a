// Package metrics exposes the monitor's Prometheus instrumentation:
// blocks processed, reorg depth, pending-tx set size, classifier
// latency, and sanity-heartbeat state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the monitor registers. Handlers
// pull values through the standard prometheus.Registry rather than
// passing a struct of counters by hand, matching the teacher's
// gatherer-over-a-registry pattern.
type Metrics struct {
	Registry *prometheus.Registry

	BlocksProcessed   prometheus.Counter
	ReorgsDetected    prometheus.Counter
	ReorgDepth        prometheus.Histogram
	PendingTxGauge    prometheus.Gauge
	ClassifyDuration  prometheus.Histogram
	FilterReregisters prometheus.Counter
	SanityOK          prometheus.Gauge
}

// New registers and returns a fresh collector set.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		BlocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ethmonitor", Name: "blocks_processed_total",
			Help: "Number of blocks the block-check loop has ingested.",
		}),
		ReorgsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ethmonitor", Name: "reorgs_detected_total",
			Help: "Number of chain reorganizations detected.",
		}),
		ReorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ethmonitor", Name: "reorg_depth_blocks",
			Help:    "Depth, in blocks, of detected reorgs.",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 1000},
		}),
		PendingTxGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ethmonitor", Name: "pending_tx_set_size",
			Help: "Current size of the unconfirmed-transaction tracker.",
		}),
		ClassifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ethmonitor", Name: "classify_duration_seconds",
			Help:    "Wall-clock duration of one transaction-classifier invocation.",
			Buckets: prometheus.DefBuckets,
		}),
		FilterReregisters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ethmonitor", Name: "filter_reregistrations_total",
			Help: "Number of times the pending-transaction filter was re-registered.",
		}),
		SanityOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ethmonitor", Name: "sanity_ok",
			Help: "1 if the last sanity check passed, 0 otherwise.",
		}),
	}
	reg.MustRegister(
		m.BlocksProcessed, m.ReorgsDetected, m.ReorgDepth, m.PendingTxGauge,
		m.ClassifyDuration, m.FilterReregisters, m.SanityOK,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
