package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the lookup client.
// All methods are safe on a nil receiver so metrics stay optional.
type Metrics struct {
	// Attempts counts HTTP attempts by operation and outcome kind.
	Attempts *prometheus.CounterVec

	// Retries counts retry attempts scheduled by operation.
	Retries *prometheus.CounterVec

	// CallLatency covers a logical call including retries and backoff.
	CallLatency *prometheus.HistogramVec

	// CacheLookups counts establishment cache lookups by backend and result.
	CacheLookups *prometheus.CounterVec

	// Rollbacks counts optimistic mutations undone after a failed call.
	Rollbacks *prometheus.CounterVec

	// Degraded is 1 while the client's circuit breaker is open.
	Degraded prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanplate_client_attempts_total",
			Help: "HTTP attempts against the lookup service by operation and outcome",
		}, []string{"op", "outcome"}),

		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanplate_client_retries_total",
			Help: "Retries scheduled after a transient failure",
		}, []string{"op"}),

		CallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cleanplate_client_call_duration_seconds",
			Help:    "Duration of logical calls including retries and backoff",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"op"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanplate_establishment_cache_lookups_total",
			Help: "Establishment cache lookups by backend and result",
		}, []string{"backend", "result"}),

		Rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanplate_optimistic_rollbacks_total",
			Help: "Optimistic local mutations reverted after the server call failed",
		}, []string{"op"}),

		Degraded: f.NewGauge(prometheus.GaugeOpts{
			Name: "cleanplate_client_degraded",
			Help: "1 while repeated transient failures mark the service as degraded",
		}),
	}
}

// IncrementAttempt records one HTTP attempt.
func (m *Metrics) IncrementAttempt(op, outcome string) {
	if m != nil {
		m.Attempts.WithLabelValues(op, outcome).Inc()
	}
}

// IncrementRetry records a scheduled retry.
func (m *Metrics) IncrementRetry(op string) {
	if m != nil {
		m.Retries.WithLabelValues(op).Inc()
	}
}

// ObserveCall records the duration of a logical call that began at start.
func (m *Metrics) ObserveCall(op string, start time.Time) {
	if m != nil {
		m.CallLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// RecordCacheHit records a cache hit for backend.
func (m *Metrics) RecordCacheHit(backend string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(backend, "hit").Inc()
	}
}

// RecordCacheMiss records a cache miss for backend.
func (m *Metrics) RecordCacheMiss(backend string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(backend, "miss").Inc()
	}
}

// IncrementRollback records an optimistic rollback.
func (m *Metrics) IncrementRollback(op string) {
	if m != nil {
		m.Rollbacks.WithLabelValues(op).Inc()
	}
}

// SetDegraded flips the degraded gauge.
func (m *Metrics) SetDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}
