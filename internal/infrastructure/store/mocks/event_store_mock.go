package mocks

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

// MockEventStore is a mock implementation of store.EventStore for testing.
// Reads and writes go to an in-memory store unless an error is injected.
type MockEventStore struct {
	*store.MemoryEventStore

	mu sync.Mutex

	// For tracking calls in tests
	AppendCalls       []AppendCall
	SaveSnapshotCalls []store.Snapshot
	AppendErr         error
	SaveSnapshotErr   error
	LoadSnapshotErr   error
	ReadErr           error
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	AggregateID     string
	AggregateType   string
	ExpectedVersion int
	Records         []store.Record
}

// NewMockEventStore creates a new MockEventStore
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		MemoryEventStore: store.NewMemoryEventStore(),
		AppendCalls:      make([]AppendCall, 0),
	}
}

func (m *MockEventStore) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, records []store.Record) ([]store.Event, error) {
	m.mu.Lock()
	m.AppendCalls = append(m.AppendCalls, AppendCall{
		AggregateID:     aggregateID,
		AggregateType:   aggregateType,
		ExpectedVersion: expectedVersion,
		Records:         records,
	})
	err := m.AppendErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.MemoryEventStore.Append(ctx, aggregateID, aggregateType, expectedVersion, records)
}

func (m *MockEventStore) ReadStream(ctx context.Context, aggregateID string, fromVersion int) iter.Seq2[store.Event, error] {
	if m.ReadErr != nil {
		return func(yield func(store.Event, error) bool) {
			yield(store.Event{}, m.ReadErr)
		}
	}
	return m.MemoryEventStore.ReadStream(ctx, aggregateID, fromVersion)
}

func (m *MockEventStore) ReadByEventTypes(ctx context.Context, aggregateID string, eventTypes []string, before time.Time) ([]store.Event, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.MemoryEventStore.ReadByEventTypes(ctx, aggregateID, eventTypes, before)
}

func (m *MockEventStore) SaveSnapshot(ctx context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	m.SaveSnapshotCalls = append(m.SaveSnapshotCalls, *snapshot)
	err := m.SaveSnapshotErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.MemoryEventStore.SaveSnapshot(ctx, snapshot)
}

func (m *MockEventStore) LoadSnapshot(ctx context.Context, aggregateID string) (*store.Snapshot, error) {
	if m.LoadSnapshotErr != nil {
		return nil, m.LoadSnapshotErr
	}
	return m.MemoryEventStore.LoadSnapshot(ctx, aggregateID)
}

// AppendedRecords returns every record passed to Append, in call order.
func (m *MockEventStore) AppendedRecords() []store.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []store.Record
	for _, call := range m.AppendCalls {
		records = append(records, call.Records...)
	}
	return records
}

// Reset clears recorded calls and injected errors
func (m *MockEventStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MemoryEventStore = store.NewMemoryEventStore()
	m.AppendCalls = make([]AppendCall, 0)
	m.SaveSnapshotCalls = nil
	m.AppendErr = nil
	m.SaveSnapshotErr = nil
	m.LoadSnapshotErr = nil
	m.ReadErr = nil
}
