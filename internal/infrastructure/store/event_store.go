package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRequestID is stored when a command carries no request id.
var DefaultRequestID = uuid.Nil.String()

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrEmptyAppend         = errors.New("no events to append")
	ErrInvalidVersion      = errors.New("expected version must not be negative")
)

// Event is an immutable fact recorded for one aggregate.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	EventType     string          `json:"eventType"`
	Version       int             `json:"version"`
	UserID        string          `json:"userId,omitempty"`
	RequestID     string          `json:"requestId"`
	Payload       json.RawMessage `json:"payload"`
	OccurredOn    time.Time       `json:"occurredOn"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// Record is an event that has not been appended yet.
type Record struct {
	EventType  string
	UserID     string
	RequestID  string
	OccurredOn time.Time
	// Data is marshalled to JSON unless it already is a json.RawMessage.
	Data any
}

// Payload returns the JSON form of the record data.
func (r Record) Payload() (json.RawMessage, error) {
	if raw, ok := r.Data.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(r.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", r.EventType, err)
	}
	return data, nil
}

// Timestamp normalises an instant to what every backend can store exactly.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// buildEvents turns records into events numbered after expectedVersion.
func buildEvents(aggregateID, aggregateType string, expectedVersion int, records []Record) ([]Event, error) {
	if len(records) == 0 {
		return nil, ErrEmptyAppend
	}
	if expectedVersion < 0 {
		return nil, ErrInvalidVersion
	}

	now := time.Now()
	events := make([]Event, 0, len(records))
	for i, r := range records {
		payload, err := r.Payload()
		if err != nil {
			return nil, err
		}
		occurredOn := r.OccurredOn
		if occurredOn.IsZero() {
			occurredOn = now
		}
		requestID := r.RequestID
		if requestID == "" {
			requestID = DefaultRequestID
		}
		events = append(events, Event{
			ID:            uuid.New().String(),
			AggregateID:   aggregateID,
			AggregateType: aggregateType,
			EventType:     r.EventType,
			Version:       expectedVersion + i + 1,
			UserID:        r.UserID,
			RequestID:     requestID,
			Payload:       payload,
			OccurredOn:    Timestamp(occurredOn),
		})
	}
	return events, nil
}

func conflictError(aggregateID string, current, expected int) error {
	return fmt.Errorf("%w: aggregate %s is at version %d, expected %d", ErrConcurrencyConflict, aggregateID, current, expected)
}

// MemoryEventStore keeps streams, snapshots and the outbox in process memory.
type MemoryEventStore struct {
	mu        sync.RWMutex
	events    map[string][]Event // aggregateID -> events
	snapshots map[string]Snapshot
	outbox    []string
	byID      map[string]Event
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		events:    make(map[string][]Event),
		snapshots: make(map[string]Snapshot),
		byID:      make(map[string]Event),
	}
}

// Append stores the batch if the stream is still at expectedVersion.
func (es *MemoryEventStore) Append(_ context.Context, aggregateID, aggregateType string, expectedVersion int, records []Record) ([]Event, error) {
	events, err := buildEvents(aggregateID, aggregateType, expectedVersion, records)
	if err != nil {
		return nil, err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	if current := len(es.events[aggregateID]); current != expectedVersion {
		return nil, conflictError(aggregateID, current, expectedVersion)
	}

	es.events[aggregateID] = append(es.events[aggregateID], events...)
	for _, e := range events {
		es.byID[e.ID] = e
		es.outbox = append(es.outbox, e.ID)
	}

	return slices.Clone(events), nil
}

// ReadStream yields events after fromVersion from a consistent view of the stream.
func (es *MemoryEventStore) ReadStream(ctx context.Context, aggregateID string, fromVersion int) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		es.mu.RLock()
		stream := es.events[aggregateID]
		es.mu.RUnlock()

		start := max(fromVersion, 0)
		for _, e := range stream[min(start, len(stream)):] {
			if err := ctx.Err(); err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (es *MemoryEventStore) ReadByEventTypes(_ context.Context, aggregateID string, eventTypes []string, before time.Time) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	before = Timestamp(before)
	var out []Event
	for _, e := range es.events[aggregateID] {
		if slices.Contains(eventTypes, e.EventType) && e.OccurredOn.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (es *MemoryEventStore) SaveSnapshot(_ context.Context, snapshot *Snapshot) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	if existing, ok := es.snapshots[snapshot.AggregateID]; ok && existing.Version >= snapshot.Version {
		return nil
	}
	es.snapshots[snapshot.AggregateID] = *snapshot
	return nil
}

func (es *MemoryEventStore) LoadSnapshot(_ context.Context, aggregateID string) (*Snapshot, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	snapshot, ok := es.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

// DeleteSnapshot drops the cached state of an aggregate.
func (es *MemoryEventStore) DeleteSnapshot(aggregateID string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	delete(es.snapshots, aggregateID)
}

func (es *MemoryEventStore) PendingOutbox(_ context.Context, limit int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	n := min(limit, len(es.outbox))
	events := make([]Event, 0, n)
	for _, id := range es.outbox[:n] {
		events = append(events, es.byID[id])
	}
	return events, nil
}

func (es *MemoryEventStore) MarkPublished(_ context.Context, eventIDs []string) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.outbox = slices.DeleteFunc(es.outbox, func(id string) bool {
		return slices.Contains(eventIDs, id)
	})
	return nil
}

// Version returns the current version of a stream.
func (es *MemoryEventStore) Version(aggregateID string) int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.events[aggregateID])
}
