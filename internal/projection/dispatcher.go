// Package projection keeps the read models in step with the event log.
//
// The Dispatcher receives events from the bus at least once and in order per
// aggregate, opens their personal data and hands them to the projectors that
// subscribed to their type. Projectors are idempotent: they skip events whose
// version is not newer than the row they would update.
package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/example/budget-event-sourced/internal/encryption"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
	"github.com/example/budget-event-sourced/internal/metrics"
)

// ErrUnknownEventType is returned for an event of an aggregate type a
// projector owns that no projector handles. It means the projector is older
// than the writer and must not be skipped.
var ErrUnknownEventType = errors.New("unknown event type")

// ErrMalformedMessage marks a bus message that can never be projected.
var ErrMalformedMessage = errors.New("malformed event message")

type HandlerFunc func(ctx context.Context, e store.Event) error

// Opener decrypts the personal data of an event. *encryption.Gate implements it.
type Opener interface {
	Open(ctx context.Context, e store.Event) (store.Event, error)
}

// Projector subscribes its handlers to a dispatcher.
type Projector interface {
	Register(d *Dispatcher)
}

type Dispatcher struct {
	handlers map[string][]HandlerFunc
	claimed  map[string]bool
	opener   Opener
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Dispatcher)

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher returns a dispatcher that opens events with opener. A nil
// opener passes payloads through unchanged.
func NewDispatcher(opener Opener, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string][]HandlerFunc),
		claimed:  make(map[string]bool),
		opener:   opener,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With().Str("component", "projector").Logger()
	return d
}

// Subscribe adds fn to the handlers of eventType. Handlers run in
// subscription order.
func (d *Dispatcher) Subscribe(eventType string, fn HandlerFunc) {
	d.handlers[eventType] = append(d.handlers[eventType], fn)
}

// Claim marks aggregateType as owned: its events must have a handler.
func (d *Dispatcher) Claim(aggregateType string) {
	d.claimed[aggregateType] = true
}

func (d *Dispatcher) Register(projectors ...Projector) {
	for _, p := range projectors {
		p.Register(d)
	}
}

// Dispatch runs every handler subscribed to the event's type. An error means
// the event was not fully projected and must be delivered again.
func (d *Dispatcher) Dispatch(ctx context.Context, e store.Event) error {
	logger := d.logger.With().
		Str("event_id", e.ID).
		Str("event_type", e.EventType).
		Str("aggregate_id", e.AggregateID).
		Int("version", e.Version).
		Logger()

	handlers := d.handlers[e.EventType]
	if len(handlers) == 0 {
		if d.claimed[e.AggregateType] {
			d.metrics.Projected(e.EventType, metrics.OutcomeFailed)
			logger.Error().Str("aggregate_type", e.AggregateType).Msg("no projector handles event type")
			return fmt.Errorf("%w: %s on %s", ErrUnknownEventType, e.EventType, e.AggregateType)
		}
		d.metrics.Projected(e.EventType, metrics.OutcomeIgnored)
		logger.Debug().Msg("event ignored")
		return nil
	}

	outcome := metrics.OutcomeApplied
	opened, err := d.open(ctx, e)
	if errors.Is(err, encryption.ErrUndecryptable) {
		logger.Warn().Err(err).Msg("personal data undecryptable, projecting redacted event")
		outcome = metrics.OutcomeUndecryptable
		opened, err = encryption.Redact(e)
	}
	if err != nil {
		d.metrics.Projected(e.EventType, metrics.OutcomeFailed)
		logger.Error().Err(err).Msg("failed to open event")
		return err
	}

	for _, h := range handlers {
		if err := h(ctx, opened); err != nil {
			d.metrics.Projected(e.EventType, metrics.OutcomeFailed)
			logger.Error().Err(err).Msg("projection failed")
			return fmt.Errorf("project %s %s: %w", e.EventType, e.ID, err)
		}
	}

	d.metrics.Projected(e.EventType, outcome)
	logger.Debug().Msg("event projected")
	return nil
}

// HandleMessage decodes a bus message carrying one JSON event and dispatches it.
func (d *Dispatcher) HandleMessage(ctx context.Context, key, value []byte) error {
	var e store.Event
	if err := json.Unmarshal(value, &e); err != nil {
		d.logger.Error().Err(err).Bytes("key", key).Msg("undecodable message")
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return d.Dispatch(ctx, e)
}

func (d *Dispatcher) open(ctx context.Context, e store.Event) (store.Event, error) {
	if d.opener == nil {
		return e, nil
	}
	return d.opener.Open(ctx, e)
}
