// Package metrics provides Prometheus collectors for the dashboard.
package metrics

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Outcome label values for view loads.
const (
	OutcomeReady  = "ready"
	OutcomeFailed = "failed"
	// OutcomeCached means every required dataset was already held.
	OutcomeCached = "cached"
	// OutcomeDiscarded means the session was closed before the load committed.
	OutcomeDiscarded = "discarded"
)

// Memo label values.
const (
	MemoHit  = "hit"
	MemoMiss = "miss"
)

// Histogram bucket parameters.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)
