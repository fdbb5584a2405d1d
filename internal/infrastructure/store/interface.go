package store

import (
	"context"
	"iter"
	"time"
)

// EventStore is the append-only, versioned-per-aggregate event log.
type EventStore interface {
	// Append persists records as versions expectedVersion+1..expectedVersion+len(records).
	// It fails with ErrConcurrencyConflict when the stored version differs from
	// expectedVersion. Either every record is persisted or none is.
	Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, records []Record) ([]Event, error)

	// ReadStream yields the events of one aggregate with version > fromVersion in
	// version order. The sequence is lazy and may be iterated again.
	ReadStream(ctx context.Context, aggregateID string, fromVersion int) iter.Seq2[Event, error]

	// ReadByEventTypes returns the events of the given types that occurred
	// strictly before the given instant, in version order.
	ReadByEventTypes(ctx context.Context, aggregateID string, eventTypes []string, before time.Time) ([]Event, error)

	// SaveSnapshot replaces the snapshot of an aggregate.
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error

	// LoadSnapshot returns nil when no snapshot exists.
	LoadSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
}

// Outbox exposes committed events that still have to reach the message bus.
type Outbox interface {
	PendingOutbox(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, eventIDs []string) error
}
