package observability

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/naturethrive/birdmonitor/internal/logger"
	"github.com/naturethrive/birdmonitor/internal/observability/metrics"
)

func TestNewMetricsRegistersCollectors(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Backend.RecordFetch("records", metrics.StatusSuccess, 0.02)
	m.Backend.RecordRetry("records")
	m.Dashboard.RecordViewLoad("summary", metrics.OutcomeReady, 0.03)
	m.Dashboard.RecordMemo(metrics.MemoHit)

	assert.Equal(t, 1, testutil.CollectAndCount(m.Backend, "birdmonitor_backend_fetches_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Dashboard, "birdmonitor_view_loads_total"))

	count, err := testutil.GatherAndCount(m.Registry(), "birdmonitor_backend_retries_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilCollectorsAreNoOps(t *testing.T) {
	var b *metrics.BackendMetrics
	var d *metrics.DashboardMetrics

	assert.NotPanics(t, func() {
		b.RecordFetch("records", metrics.StatusError, 1)
		d.RecordDecodeError("records", "invalid-record")
		d.RecordViewLoad("analytics", metrics.OutcomeFailed, 1)
		d.SessionMounted()
	})
}

func TestEndpointServesMetrics(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Dashboard.RecordHeartbeat(metrics.StatusSuccess)

	e, err := NewEndpoint("127.0.0.1:0", m, logger.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, e.Start(ctx))

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://"+e.Addr()+"/metrics", http.NoBody)
	require.NoError(t, err)
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `birdmonitor_heartbeat_total{status="success"} 1`)

	cancel()
	e.Wait()
	client.CloseIdleConnections()
}

func TestNewEndpointValidation(t *testing.T) {
	_, err := NewEndpoint("", &Metrics{}, nil)
	require.Error(t, err)

	_, err = NewEndpoint(":0", nil, nil)
	require.Error(t, err)
}
