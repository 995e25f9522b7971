package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "health_agg"

// Metrics holds the Prometheus counters, histograms, and gauges for the aggregation service.
type Metrics struct {
	RecordsLoaded      *prometheus.CounterVec // labels: dataset
	MalformedValues    *prometheus.CounterVec // labels: dataset
	UnresolvedRegions  *prometheus.CounterVec // labels: dataset
	ReloadErrors       prometheus.Counter
	ReloadDuration     prometheus.Histogram
	SnapshotGeneration prometheus.Gauge
	PipelineRunning    prometheus.Gauge

	// Publishing metrics.
	SeriesPublished *prometheus.CounterVec // labels: dataset
	PublishErrors   prometheus.Counter

	// API response cache.
	CacheLookups *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsLoaded,
		m.MalformedValues,
		m.UnresolvedRegions,
		m.ReloadErrors,
		m.ReloadDuration,
		m.SnapshotGeneration,
		m.PipelineRunning,
		m.SeriesPublished,
		m.PublishErrors,
		m.CacheLookups,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Records loaded into snapshots, by dataset.",
		}, []string{"dataset"}),
		MalformedValues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_values_total",
			Help:      "Record values excluded from aggregation because they did not parse.",
		}, []string{"dataset"}),
		UnresolvedRegions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unresolved_regions_total",
			Help:      "Records whose region identifier matched no known region.",
		}, []string{"dataset"}),
		ReloadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reload_errors_total",
			Help:      "Snapshot reloads that failed.",
		}),
		ReloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reload_duration_seconds",
			Help:      "Duration of a complete reload-aggregate-publish cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		SnapshotGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_generation",
			Help:      "Generation number of the snapshot currently served.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the refresh pipeline is active, 0 when shut down.",
		}),
		SeriesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_published_total",
			Help:      "Aggregate series written to the sink, by dataset.",
		}, []string{"dataset"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed attempts to publish aggregates.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "API response cache lookups by result.",
		}, []string{"result"}),
	}
}
