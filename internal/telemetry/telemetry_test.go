package telemetry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naturethrive/birdmonitor/internal/errors"
)

// setupMockSentry initializes telemetry against an in-memory transport.
// Tests in this file share the global Sentry hub and must not run in parallel.
func setupMockSentry(t *testing.T) *MockTransport {
	t.Helper()
	transport := NewMockTransport()
	require.NoError(t, Init(Config{
		Enabled:     true,
		Environment: "test",
		Release:     "test",
		Transport:   transport,
	}, nil))
	t.Cleanup(Shutdown)
	return transport
}

func TestInitDisabledIsNoOp(t *testing.T) {
	require.NoError(t, Init(Config{}, nil))
	assert.False(t, Enabled())
	assert.Nil(t, errors.GetTelemetryReporter())
	assert.True(t, Flush(DefaultFlushTimeout))
}

func TestInitRequiresDSN(t *testing.T) {
	err := Init(Config{Enabled: true}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.False(t, Enabled())
}

func TestNetworkErrorIsReported(t *testing.T) {
	transport := setupMockSentry(t)
	assert.True(t, Enabled())

	_ = errors.Newf("status 503 from http://backend.test/api/summary?token=abc").
		Component("backend").
		Category(errors.CategoryNetwork).
		Context("dataset", "records").
		Build()
	require.True(t, Flush(DefaultFlushTimeout))

	require.Equal(t, 1, transport.GetEventCount())
	event := transport.GetLastEvent()
	assert.Equal(t, sentry.LevelWarning, event.Level)
	assert.Equal(t, "backend", event.Tags["component"])
	assert.Equal(t, "network", event.Tags["category"])
	assert.Contains(t, event.Message, "?[REDACTED]")
	assert.NotContains(t, event.Message, "token=abc")
	assert.Empty(t, event.ServerName)
}

func TestRecoveredErrorsAreNotReported(t *testing.T) {
	transport := setupMockSentry(t)

	_ = errors.Newf("species %q is not present", "Owl").
		Component("selection").
		Category(errors.CategoryUnknownSpecies).
		Build()
	_ = errors.Newf("context canceled").
		Component("backend").
		Category(errors.CategoryCancellation).
		Build()
	Flush(DefaultFlushTimeout)

	assert.Equal(t, 0, transport.GetEventCount())
}

func TestShutdownUninstallsReporter(t *testing.T) {
	transport := setupMockSentry(t)
	Shutdown()

	assert.False(t, Enabled())
	assert.Nil(t, errors.GetTelemetryReporter())

	_ = errors.Newf("payload broken").Category(errors.CategoryMalformedPayload).Build()
	assert.Equal(t, 0, transport.GetEventCount())
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	event := &sentry.Event{
		ServerName: "my-host",
		User:       sentry.User{ID: "42", Email: "someone@example.com"},
		Contexts:   map[string]sentry.Context{"os": {"name": "linux"}, "dataset": {"value": "records"}},
		Tags:       map[string]string{"hostname": "my-host", "component": "backend"},
		Extra:      map[string]any{"component": "backend", "path": "/home/user"},
	}

	filtered := applyPrivacyFilters(event)
	assert.Empty(t, filtered.ServerName)
	assert.True(t, filtered.User.IsEmpty())
	assert.NotContains(t, filtered.Contexts, "os")
	assert.Contains(t, filtered.Contexts, "dataset")
	assert.NotContains(t, filtered.Tags, "hostname")
	assert.Equal(t, map[string]any{"component": "backend"}, filtered.Extra)
}

func TestReleaseName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "birdmonitor@dev", releaseName(""))
	assert.Equal(t, "birdmonitor@1.2.0", releaseName("1.2.0"))
}
