package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus counters/histograms for graph execution,
// namespaced "workflow_engine_". It is optional: an Engine constructed
// without a Metrics does no instrumentation.
type Metrics struct {
	runsTotal      *prometheus.CounterVec
	nodeLatency    *prometheus.HistogramVec
	iterationsUsed prometheus.Histogram
}

// NewMetrics registers the engine's metrics with registry. Pass
// prometheus.DefaultRegisterer to use the global registry, or a fresh
// prometheus.NewRegistry() for test isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow_engine",
			Name:      "runs_total",
			Help:      "Completed graph runs, labeled by terminal status",
		}, []string{"status"}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflow_engine",
			Name:      "node_execution_ms",
			Help:      "Per-node execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}, []string{"node_type", "success"}),
		iterationsUsed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "workflow_engine",
			Name:      "iterations_used",
			Help:      "Loop iterations consumed by a completed or failed run",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		}),
	}
}

func (m *Metrics) recordNode(nodeType string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "true"
	if !success {
		status = "false"
	}
	m.nodeLatency.WithLabelValues(nodeType, status).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) recordRun(status string, iterations int) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.iterationsUsed.Observe(float64(iterations))
}
