// Package metrics exposes dashboard counters on a private Prometheus registry.
// All methods are safe on a nil *Metrics so components can run without one.
package metrics

import (
	"errors"
	"net/http"
	"time"

	apperrors "github.com/position-dashboard/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch sources
const (
	SourcePrice   = "price"
	SourceSlot    = "slot"
	SourceLending = "lending"
	SourcePerp    = "perp"
)

// Metrics holds the dashboard collectors
type Metrics struct {
	registry *prometheus.Registry

	fetches        *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	staleDiscards  prometheus.Counter
	commits        *prometheus.CounterVec
	priceFailures  *prometheus.CounterVec
	sinkErrors     *prometheus.CounterVec
	activeSessions prometheus.Gauge
	circuitState   *prometheus.GaugeVec
}

// New registers all collectors under namespace
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Upstream fetches by source and result",
		}, []string{"source", "result"}),

		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Upstream fetch latency by source",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),

		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_discarded_total",
			Help:      "Fetch results dropped because a newer generation or sequence had committed",
		}),

		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_commits_total",
			Help:      "DisplayState commits by resulting status",
		}, []string{"status"}),

		priceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_failures_total",
			Help:      "Price feed failures by asset and kind",
		}, []string{"asset", "kind"}),

		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Commit sink failures by sink",
		}, []string{"sink"}),

		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Dashboard sessions currently mounted",
		}),

		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_open",
			Help:      "1 when the named circuit breaker is open or half-open",
		}, []string{"name"}),
	}

	registry.MustRegister(
		m.fetches,
		m.fetchDuration,
		m.staleDiscards,
		m.commits,
		m.priceFailures,
		m.sinkErrors,
		m.activeSessions,
		m.circuitState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveFetch records one upstream fetch
func (m *Metrics) ObserveFetch(source string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(source, Result(err)).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordStale counts one discarded stale result
func (m *Metrics) RecordStale() {
	if m == nil {
		return
	}
	m.staleDiscards.Inc()
}

// RecordCommit counts one accepted commit
func (m *Metrics) RecordCommit(status string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(status).Inc()
}

// RecordPriceFailure counts one failed price lookup
func (m *Metrics) RecordPriceFailure(asset string, err error) {
	if m == nil {
		return
	}
	m.priceFailures.WithLabelValues(asset, Result(err)).Inc()
}

// RecordSinkError counts one failed sink write
func (m *Metrics) RecordSinkError(sink string) {
	if m == nil {
		return
	}
	m.sinkErrors.WithLabelValues(sink).Inc()
}

// SessionOpened increments the active session gauge
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// ActiveSessions exposes the session gauge
func (m *Metrics) ActiveSessions() prometheus.Gauge {
	return m.activeSessions
}

// SetCircuitOpen reports a circuit breaker state
func (m *Metrics) SetCircuitOpen(name string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.circuitState.WithLabelValues(name).Set(v)
}

// Result maps an error to a low-cardinality label
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrNoMatchingPosition):
		return "no_position"
	case errors.Is(err, apperrors.ErrParseFailure):
		return "parse_failure"
	case errors.Is(err, apperrors.ErrNetworkFailure):
		return "network_failure"
	default:
		return "error"
	}
}
