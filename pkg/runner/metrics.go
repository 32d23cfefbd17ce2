package runner

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/splidsboel/assignment3/pkg/fsutil"
	"github.com/splidsboel/assignment3/pkg/results"
)

// MetricsFileName is the Prometheus text exposition written per run.
const MetricsFileName = "metrics.prom"

// runMetrics holds the per-run collectors. Every run gets a fresh
// registry so exported files only describe that run.
type runMetrics struct {
	registry *prometheus.Registry

	queryDuration *prometheus.HistogramVec
	queries       *prometheus.CounterVec
	relaxed       *prometheus.CounterVec
	algorithmTime *prometheus.GaugeVec
}

func newRunMetrics() *runMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &runMetrics{
		registry: reg,
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chbench_query_duration_seconds",
			Help:    "Engine-reported query time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 12), // 1us to ~4s
		}, []string{"algorithm"}),
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chbench_queries_total",
			Help: "Total measured queries by result",
		}, []string{"algorithm", "result"}),
		relaxed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chbench_relaxed_edges_total",
			Help: "Total edges relaxed across measured queries",
		}, []string{"algorithm"}),
		algorithmTime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chbench_algorithm_wall_seconds",
			Help: "Wall-clock time spent measuring an algorithm",
		}, []string{"algorithm"}),
	}
}

func (m *runMetrics) observe(algorithm string, records []results.Record, wall time.Duration) {
	hist := m.queryDuration.WithLabelValues(algorithm)
	relaxed := m.relaxed.WithLabelValues(algorithm)

	for _, rec := range records {
		hist.Observe(float64(rec.TimeNS) / float64(time.Second))
		relaxed.Add(float64(rec.Relaxed))

		result := "reachable"
		if !rec.Reachable() {
			result = "unreachable"
		}

		m.queries.WithLabelValues(algorithm, result).Inc()
	}

	m.algorithmTime.WithLabelValues(algorithm).Set(wall.Seconds())
}

func (m *runMetrics) write(path string, owner *fsutil.OwnerConfig) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}

	fsutil.Chown(path, owner)

	return nil
}
