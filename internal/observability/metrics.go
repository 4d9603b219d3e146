package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "station_demand"

// Metrics holds the Prometheus counters, histograms, and gauges for the analysis service.
type Metrics struct {
	AnalysisRuns     *prometheus.CounterVec // labels: policy, outcome={success,error}
	AnalysisDuration prometheus.Histogram
	RecordsLoaded    prometheus.Counter
	RecordsSkipped   prometheus.Counter
	StationsBy       *prometheus.GaugeVec // labels: pattern
	PipelineRunning  prometheus.Gauge

	// Store paging metrics.
	PagesFetched      prometheus.Counter
	PageFetchDuration prometheus.Histogram

	// Collaborator metrics.
	BlobBytesWritten  prometheus.Counter
	ReportsPublished  prometheus.Counter
	BreakerState      *prometheus.GaugeVec   // labels: name; 0 closed, 1 half-open, 2 open
	BreakerRequests   *prometheus.CounterVec // labels: name, outcome={success,failure,rejected}
	BreakerTransition *prometheus.CounterVec // labels: name, to
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		AnalysisRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_runs_total",
			Help:      help("Analysis runs by policy and outcome."),
		}, []string{"policy", "outcome"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      help("Duration of a complete load-classify-publish run."),
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RecordsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      help("Demand records read from the store."),
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      help("Malformed demand records left out of aggregation."),
		}),
		StationsBy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stations_by_pattern",
			Help:      help("Stations per pattern in the latest run."),
		}, []string{"pattern"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 when the scheduled analysis loop is active, 0 when shut down."),
		}),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_pages_fetched_total",
			Help:      help("Record pages read from the store."),
		}),
		PageFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_page_fetch_duration_seconds",
			Help:      help("Duration of a single store page read."),
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		BlobBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_bytes_written_total",
			Help:      help("Bytes written to object storage."),
		}),
		ReportsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_messages_published_total",
			Help:      help("Pattern assignment messages written to the sink topic."),
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      help("Circuit breaker state: 0 closed, 1 half-open, 2 open."),
		}, []string{"name"}),
		BreakerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_requests_total",
			Help:      help("Calls through a circuit breaker by outcome."),
		}, []string{"name", "outcome"}),
		BreakerTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      help("Circuit breaker state changes."),
		}, []string{"name", "to"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.AnalysisRuns,
		m.AnalysisDuration,
		m.RecordsLoaded,
		m.RecordsSkipped,
		m.StationsBy,
		m.PipelineRunning,
		m.PagesFetched,
		m.PageFetchDuration,
		m.BlobBytesWritten,
		m.ReportsPublished,
		m.BreakerState,
		m.BreakerRequests,
		m.BreakerTransition,
	}
}
