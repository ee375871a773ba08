package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/fiber-bom/internal/model"
)

// Metrics holds the Prometheus collectors for batch telemetry. It satisfies
// batch.Observer.
type Metrics struct {
	reg        *prometheus.Registry
	boundaries *prometheus.CounterVec
	stages     *prometheus.HistogramVec
	batches    *prometheus.CounterVec
}

// NewMetrics creates a registry with the Go and process collectors plus the
// batch collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		boundaries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiberbom_boundaries_total",
				Help: "Boundaries processed, by variant and outcome.",
			},
			[]string{"variant", "status"},
		),
		stages: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fiberbom_boundary_duration_seconds",
				Help:    "Time spent per boundary stage.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"variant", "stage"},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiberbom_batches_total",
				Help: "Batches run, by variant and final status.",
			},
			[]string{"variant", "status"},
		),
	}
	reg.MustRegister(m.boundaries, m.stages, m.batches)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registerer exposes the registry for extra collectors.
func (m *Metrics) Registerer() prometheus.Registerer { return m.reg }

func (m *Metrics) ObserveStage(variant string, stage model.Stage, d time.Duration) {
	m.stages.WithLabelValues(variant, string(stage)).Observe(d.Seconds())
}

func (m *Metrics) ObserveBoundary(variant string, r model.BoundaryResult) {
	m.boundaries.WithLabelValues(variant, string(r.Status)).Inc()
}

func (m *Metrics) ObserveBatch(variant string, status model.RunStatus) {
	m.batches.WithLabelValues(variant, string(status)).Inc()
}
