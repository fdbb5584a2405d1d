package aggregate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

// ApplyFunc mutates an aggregate with one event.
type ApplyFunc[T Root] func(agg T, e store.Event) error

// Type describes one aggregate type: its stream name, a constructor for the
// empty aggregate and the closed table of event handlers.
type Type[T Root] struct {
	Name     string
	New      func() T
	Handlers map[string]ApplyFunc[T]
}

func NewType[T Root](name string, newFn func() T, handlers map[string]ApplyFunc[T]) *Type[T] {
	return &Type[T]{Name: name, New: newFn, Handlers: handlers}
}

// Handles reports whether eventType is in the handler table.
func (t *Type[T]) Handles(eventType string) bool {
	_, ok := t.Handlers[eventType]
	return ok
}

// Apply runs the handler for e and advances the aggregate to e.Version.
// UpdatedAt is set to e.OccurredOn before the handler runs, so a handler may
// override it.
func (t *Type[T]) Apply(agg T, e store.Event) error {
	handler, ok := t.Handlers[e.EventType]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrUnknownEventType, e.EventType, t.Name)
	}

	b := agg.Recorder()
	if b.ID == "" {
		b.ID = e.AggregateID
	}
	if b.UserID == "" {
		b.UserID = e.UserID
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = e.OccurredOn
	}
	b.UpdatedAt = e.OccurredOn

	if err := handler(agg, e); err != nil {
		return fmt.Errorf("apply %s v%d to %s %s: %w", e.EventType, e.Version, t.Name, e.AggregateID, err)
	}
	b.Version = e.Version
	return nil
}

// Raise applies a new event to agg and queues it for the next save. The
// record keeps its typed Data so that the store can recognise personal data.
func (t *Type[T]) Raise(agg T, r store.Record) error {
	if r.OccurredOn.IsZero() {
		r.OccurredOn = time.Now()
	}
	r.OccurredOn = store.Timestamp(r.OccurredOn)
	if r.RequestID == "" {
		r.RequestID = store.DefaultRequestID
	}

	payload, err := r.Payload()
	if err != nil {
		return err
	}

	b := agg.Recorder()
	if b.ID == "" {
		return fmt.Errorf("%w: %s event raised before the aggregate has an id", ErrInvalidOperation, r.EventType)
	}
	if b.UserID == "" {
		b.UserID = r.UserID
	}

	e := store.Event{
		ID:            uuid.New().String(),
		AggregateID:   b.ID,
		AggregateType: t.Name,
		EventType:     r.EventType,
		Version:       b.Version + 1,
		UserID:        r.UserID,
		RequestID:     r.RequestID,
		Payload:       payload,
		OccurredOn:    r.OccurredOn,
	}
	if err := t.Apply(agg, e); err != nil {
		return err
	}

	b.pending = append(b.pending, r)
	return nil
}
