// Package metrics holds the Prometheus instruments of the event-sourcing core.
//
// All recording methods are safe on a nil *Metrics so that components can be
// built without instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "budget"

// Projection outcomes.
const (
	OutcomeApplied       = "applied"
	OutcomeUndecryptable = "undecryptable"
	OutcomeIgnored       = "ignored"
	OutcomeFailed        = "failed"
)

type Metrics struct {
	eventsAppended       *prometheus.CounterVec
	concurrencyConflicts *prometheus.CounterVec
	snapshotsWritten     *prometheus.CounterVec
	rehydrationDuration  *prometheus.HistogramVec
	eventsProjected      *prometheus.CounterVec
	outboxPublished      prometheus.Counter
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Events committed to the event store.",
		}, []string{"aggregate_type"}),
		concurrencyConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_conflicts_total",
			Help:      "Appends rejected by the optimistic concurrency check.",
		}, []string{"aggregate_type"}),
		snapshotsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_written_total",
			Help:      "Aggregate snapshots persisted.",
		}, []string{"aggregate_type"}),
		rehydrationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rehydration_duration_seconds",
			Help:      "Time spent loading an aggregate.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"aggregate_type", "source"}),
		eventsProjected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_projected_total",
			Help:      "Events handled by the projection dispatcher.",
		}, []string{"event_type", "outcome"}),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox events published to the bus.",
		}),
	}

	reg.MustRegister(
		m.eventsAppended,
		m.concurrencyConflicts,
		m.snapshotsWritten,
		m.rehydrationDuration,
		m.eventsProjected,
		m.outboxPublished,
	)

	return m
}

func (m *Metrics) EventsAppended(aggregateType string, n int) {
	if m == nil {
		return
	}
	m.eventsAppended.WithLabelValues(aggregateType).Add(float64(n))
}

func (m *Metrics) ConcurrencyConflict(aggregateType string) {
	if m == nil {
		return
	}
	m.concurrencyConflicts.WithLabelValues(aggregateType).Inc()
}

func (m *Metrics) SnapshotWritten(aggregateType string) {
	if m == nil {
		return
	}
	m.snapshotsWritten.WithLabelValues(aggregateType).Inc()
}

// Rehydrated records a load; source is "snapshot" or "stream".
func (m *Metrics) Rehydrated(aggregateType, source string, started time.Time) {
	if m == nil {
		return
	}
	m.rehydrationDuration.WithLabelValues(aggregateType, source).Observe(time.Since(started).Seconds())
}

func (m *Metrics) Projected(eventType, outcome string) {
	if m == nil {
		return
	}
	m.eventsProjected.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) OutboxPublished(n int) {
	if m == nil {
		return
	}
	m.outboxPublished.Add(float64(n))
}
