package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/position-dashboard/internal/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("dashboard")

	m.ObserveFetch(SourcePrice, nil, 120*time.Millisecond)
	m.ObserveFetch(SourcePrice, apperrors.NewNetworkError("coingecko", errors.New("timeout")), time.Second)
	m.ObserveFetch(SourceLending, apperrors.NewNoPositionError("lending", "no obligation"), time.Millisecond)
	m.RecordStale()
	m.RecordStale()
	m.RecordCommit("populated")
	m.RecordPriceFailure("bitcoin", apperrors.NewParseError("coingecko", nil))
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.SetCircuitOpen("price-feed", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues(SourcePrice, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues(SourcePrice, "network_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues(SourceLending, "no_position")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.staleDiscards))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commits.WithLabelValues("populated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.priceFailures.WithLabelValues("bitcoin", "parse_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.circuitState.WithLabelValues("price-feed")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New("dashboard")
	m.RecordCommit("empty")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `dashboard_state_commits_total{status="empty"} 1`)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFetch(SourceSlot, nil, time.Second)
		m.RecordStale()
		m.RecordCommit("errored")
		m.RecordSinkError("redis")
		m.SessionOpened()
		m.SessionClosed()
		m.SetCircuitOpen("x", false)
	})
	assert.Nil(t, m.Registry())
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "parse_failure", Result(apperrors.NewParseError("rpc", nil)))
	assert.Equal(t, "error", Result(errors.New("boom")))
}
