// Package observability groups the Prometheus instruments used by the engine
// and the HTTP layer.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	// Turns counts handled turns by outcome: ok, fallback, invalid, error.
	Turns *prometheus.CounterVec

	// RecallDegraded counts semantic recalls that degraded to an empty
	// result, by cause: embedding, index, timeout.
	RecallDegraded *prometheus.CounterVec

	// RememberFailures counts semantic memory writes that were skipped.
	RememberFailures prometheus.Counter

	// Purges counts user purges by outcome.
	Purges *prometheus.CounterVec

	// TurnLatency observes end-to-end turn handling latency.
	TurnLatency prometheus.Histogram
}

// NewMetrics registers and returns the instruments under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Handled conversation turns by outcome.",
		}, []string{"outcome"}),
		RecallDegraded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recall_degraded_total",
			Help:      "Semantic recalls that degraded to empty results, by cause.",
		}, []string{"cause"}),
		RememberFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remember_failures_total",
			Help:      "Semantic memory writes skipped because of failures.",
		}),
		Purges: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purges_total",
			Help:      "User purges by outcome.",
		}, []string{"outcome"}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "End-to-end turn handling latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveTurnLatency records one turn's duration.
func (m *Metrics) ObserveTurnLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.TurnLatency.Observe(d.Seconds())
}

// CountTurn increments the turn counter for an outcome. Nil-safe so the
// engine can run without metrics wired.
func (m *Metrics) CountTurn(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

// CountRecallDegraded increments the degraded-recall counter for a cause.
func (m *Metrics) CountRecallDegraded(cause string) {
	if m == nil {
		return
	}
	m.RecallDegraded.WithLabelValues(cause).Inc()
}

// CountRememberFailure increments the skipped-write counter.
func (m *Metrics) CountRememberFailure() {
	if m == nil {
		return
	}
	m.RememberFailures.Inc()
}

// CountPurge increments the purge counter for an outcome.
func (m *Metrics) CountPurge(outcome string) {
	if m == nil {
		return
	}
	m.Purges.WithLabelValues(outcome).Inc()
}

// MetricsHandler returns the HTTP handler for the /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
