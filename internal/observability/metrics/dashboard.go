package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DashboardMetrics contains Prometheus metrics for view loading and derived state
type DashboardMetrics struct {
	registry *prometheus.Registry

	viewLoadsTotal        *prometheus.CounterVec
	viewLoadDuration      *prometheus.HistogramVec
	heartbeatTotal        *prometheus.CounterVec
	memoTotal             *prometheus.CounterVec
	selectionChangesTotal *prometheus.CounterVec
	decodeErrorsTotal     *prometheus.CounterVec
	activeSessions        prometheus.Gauge
	recordsHeld           prometheus.Gauge
}

// NewDashboardMetrics creates and registers new dashboard metrics
func NewDashboardMetrics(registry *prometheus.Registry) (*DashboardMetrics, error) {
	m := &DashboardMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DashboardMetrics) initMetrics() {
	m.viewLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdmonitor_view_loads_total",
			Help: "Total number of view loads by outcome",
		},
		[]string{"view", "outcome"}, // outcome: ready, failed, cached, discarded
	)

	m.viewLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "birdmonitor_view_load_duration_seconds",
			Help: "Time from Loading to Ready or Failed",
			// 1ms to ~0.5s; slower loads fall in +Inf
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
		},
		[]string{"view"},
	)

	m.heartbeatTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdmonitor_heartbeat_total",
			Help: "Heartbeat fetches by status",
		},
		[]string{"status"},
	)

	m.memoTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdmonitor_derive_memo_total",
			Help: "Derived-data pipeline lookups by result",
		},
		[]string{"result"}, // result: hit, miss
	)

	m.selectionChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdmonitor_selection_changes_total",
			Help: "Species selection requests by status",
		},
		[]string{"status"},
	)

	m.decodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdmonitor_decode_errors_total",
			Help: "Total number of dataset bodies rejected by the decoders",
		},
		[]string{"dataset", "kind"}, // kind: malformed-payload, invalid-record
	)

	m.activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "birdmonitor_active_sessions",
		Help: "Number of mounted dashboard sessions",
	})

	m.recordsHeld = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "birdmonitor_records_held",
		Help: "Number of detection records in the last committed sequence",
	})
}

// Describe implements the Collector interface
func (m *DashboardMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.viewLoadsTotal.Describe(ch)
	m.viewLoadDuration.Describe(ch)
	m.heartbeatTotal.Describe(ch)
	m.memoTotal.Describe(ch)
	m.selectionChangesTotal.Describe(ch)
	m.decodeErrorsTotal.Describe(ch)
	m.activeSessions.Describe(ch)
	m.recordsHeld.Describe(ch)
}

// Collect implements the Collector interface
func (m *DashboardMetrics) Collect(ch chan<- prometheus.Metric) {
	m.viewLoadsTotal.Collect(ch)
	m.viewLoadDuration.Collect(ch)
	m.heartbeatTotal.Collect(ch)
	m.memoTotal.Collect(ch)
	m.selectionChangesTotal.Collect(ch)
	m.decodeErrorsTotal.Collect(ch)
	m.activeSessions.Collect(ch)
	m.recordsHeld.Collect(ch)
}

// RecordViewLoad records a finished view load. A nil receiver is a no-op.
func (m *DashboardMetrics) RecordViewLoad(view, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.viewLoadsTotal.WithLabelValues(view, outcome).Inc()
	if outcome == OutcomeReady || outcome == OutcomeFailed {
		m.viewLoadDuration.WithLabelValues(view).Observe(seconds)
	}
}

// RecordHeartbeat records a heartbeat fetch result
func (m *DashboardMetrics) RecordHeartbeat(status string) {
	if m == nil {
		return
	}
	m.heartbeatTotal.WithLabelValues(status).Inc()
}

// RecordMemo records a derived-data pipeline lookup
func (m *DashboardMetrics) RecordMemo(result string) {
	if m == nil {
		return
	}
	m.memoTotal.WithLabelValues(result).Inc()
}

// RecordSelection records a species selection request
func (m *DashboardMetrics) RecordSelection(status string) {
	if m == nil {
		return
	}
	m.selectionChangesTotal.WithLabelValues(status).Inc()
}

// RecordDecodeError records a body rejected by a decoder
func (m *DashboardMetrics) RecordDecodeError(dataset, kind string) {
	if m == nil {
		return
	}
	m.decodeErrorsTotal.WithLabelValues(dataset, kind).Inc()
}

// SessionMounted increments the active session gauge
func (m *DashboardMetrics) SessionMounted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge
func (m *DashboardMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// SetRecordsHeld sets the committed record count
func (m *DashboardMetrics) SetRecordsHeld(n int) {
	if m == nil {
		return
	}
	m.recordsHeld.Set(float64(n))
}
