package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aurora_field"

// Metrics holds the Prometheus collectors for fetching, recomputing and
// serving the aurora field.
type Metrics struct {
	PipelineRunning prometheus.Gauge

	// Upstream fetch metrics.
	FetchRequests *prometheus.CounterVec // labels: outcome={success,error}
	FetchDuration prometheus.Histogram
	IngestEntries *prometheus.CounterVec // labels: result={kept,malformed,zero_probability}

	// Recompute scheduler metrics.
	ComputationsStarted   prometheus.Counter
	ComputationsPublished prometheus.Counter
	ComputationsCancelled prometheus.Counter
	ComputeDuration       prometheus.Histogram
	FieldSamples          *prometheus.GaugeVec // labels: hemisphere={north,south}
	FieldVersion          prometheus.Gauge

	// Downstream metrics.
	MessagesProduced prometheus.Counter
	RenderRequests   *prometheus.CounterVec // labels: cache={hit,miss}
	RenderDuration   prometheus.Histogram
	StreamClients    prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the fetch pipeline is active, 0 when shut down.",
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Upstream field fetches by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one upstream field fetch.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		IngestEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_entries_total",
			Help:      "Raw field entries seen during ingestion by result.",
		}, []string{"result"}),
		ComputationsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "computations_started_total",
			Help:      "Downsampling computations started by the scheduler.",
		}),
		ComputationsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "computations_published_total",
			Help:      "Downsampling computations whose result was published.",
		}),
		ComputationsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "computations_cancelled_total",
			Help:      "Downsampling computations superseded before publication.",
		}),
		ComputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compute_duration_seconds",
			Help:      "Duration of one ingest and downsample computation.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		FieldSamples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "field_samples",
			Help:      "Samples in the latest published field per hemisphere.",
		}, []string{"hemisphere"}),
		FieldVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "field_version",
			Help:      "Version of the latest published field.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total field messages written to the sink topic.",
		}),
		RenderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_requests_total",
			Help:      "PNG render requests by cache result.",
		}, []string{"cache"}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Duration of rasterizing and encoding one PNG.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected websocket stream clients.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.FetchRequests,
		m.FetchDuration,
		m.IngestEntries,
		m.ComputationsStarted,
		m.ComputationsPublished,
		m.ComputationsCancelled,
		m.ComputeDuration,
		m.FieldSamples,
		m.FieldVersion,
		m.MessagesProduced,
		m.RenderRequests,
		m.RenderDuration,
		m.StreamClients,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// NewMetricsWithRegistry registers all metrics with reg. Tests use it to
// gather values through a private registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}
