// Package testutil provides shared test helpers: a fake dashboard backend
// and channel waits with consistent timeouts.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 1 * time.Second

	// PollInterval is the tick used with require.Eventually.
	PollInterval = 5 * time.Millisecond
)

// WaitFor receives one value from ch or fails the test after timeout.
func WaitFor[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.FailNow(t, msg)
	}
	var zero T
	return zero
}
