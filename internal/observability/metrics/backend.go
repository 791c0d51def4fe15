package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BackendMetrics contains Prometheus metrics for backend dataset requests
type BackendMetrics struct {
	registry *prometheus.Registry

	fetchesTotal    *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	httpStatusTotal *prometheus.CounterVec
	responseBytes   *prometheus.HistogramVec
}

// NewBackendMetrics creates and registers new backend metrics
func NewBackendMetrics(registry *prometheus.Registry) (*BackendMetrics, error) {
	m := &BackendMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *BackendMetrics) initMetrics() {
	m.fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdmonitor_backend_fetches_total",
			Help: "Total number of dataset fetches after retries",
		},
		[]string{"dataset", "status"}, // status: success, error
	)

	m.fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "birdmonitor_backend_fetch_duration_seconds",
			Help: "Time taken to fetch a dataset including retries",
			// 10ms to ~20s
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		},
		[]string{"dataset"},
	)

	m.retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdmonitor_backend_retries_total",
			Help: "Total number of retried dataset requests",
		},
		[]string{"dataset"},
	)

	m.httpStatusTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdmonitor_backend_http_responses_total",
			Help: "Backend HTTP responses by status code",
		},
		[]string{"dataset", "status_code"},
	)

	m.responseBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "birdmonitor_backend_response_bytes",
			Help:    "Size of dataset response bodies",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		},
		[]string{"dataset"},
	)
}

// Describe implements the Collector interface
func (m *BackendMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.fetchesTotal.Describe(ch)
	m.fetchDuration.Describe(ch)
	m.retriesTotal.Describe(ch)
	m.httpStatusTotal.Describe(ch)
	m.responseBytes.Describe(ch)
}

// Collect implements the Collector interface
func (m *BackendMetrics) Collect(ch chan<- prometheus.Metric) {
	m.fetchesTotal.Collect(ch)
	m.fetchDuration.Collect(ch)
	m.retriesTotal.Collect(ch)
	m.httpStatusTotal.Collect(ch)
	m.responseBytes.Collect(ch)
}

// RecordFetch records a finished dataset fetch. A nil receiver is a no-op.
func (m *BackendMetrics) RecordFetch(dataset, status string, seconds float64) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(dataset, status).Inc()
	m.fetchDuration.WithLabelValues(dataset).Observe(seconds)
}

// RecordRetry records one retried request
func (m *BackendMetrics) RecordRetry(dataset string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(dataset).Inc()
}

// RecordHTTPStatus records the status code of one HTTP response
func (m *BackendMetrics) RecordHTTPStatus(dataset, statusCode string) {
	if m == nil {
		return
	}
	m.httpStatusTotal.WithLabelValues(dataset, statusCode).Inc()
}

// RecordResponseSize records the size of a response body
func (m *BackendMetrics) RecordResponseSize(dataset string, size int) {
	if m == nil {
		return
	}
	m.responseBytes.WithLabelValues(dataset).Observe(float64(size))
}
