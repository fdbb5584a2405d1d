package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	offsets := make([]int64, 0, len(r.committed))
	for _, m := range r.committed {
		offsets = append(offsets, m.Offset)
	}
	return offsets
}

// ============================================
// Producer Tests
// ============================================

func TestProducer_PublishEventsKeysByAggregate(t *testing.T) {
	writer := &fakeWriter{}
	producer := &Producer{writer: writer}
	occurredOn := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	events := []store.Event{
		{ID: "ev-1", AggregateID: "env-1", AggregateType: "BudgetEnvelope", EventType: "BudgetEnvelopeAdded", Version: 1, Payload: json.RawMessage(`{}`), OccurredOn: occurredOn},
		{ID: "ev-2", AggregateID: "env-1", AggregateType: "BudgetEnvelope", EventType: "BudgetEnvelopeCredited", Version: 2, Payload: json.RawMessage(`{}`), OccurredOn: occurredOn},
	}
	require.NoError(t, producer.PublishEvents(context.Background(), events))

	require.Len(t, writer.messages, 2)
	assert.Equal(t, []byte("env-1"), writer.messages[0].Key)
	assert.Equal(t, occurredOn, writer.messages[0].Time)

	var decoded store.Event
	require.NoError(t, json.Unmarshal(writer.messages[1].Value, &decoded))
	assert.Equal(t, "ev-2", decoded.ID)
	assert.Equal(t, 2, decoded.Version)
}

func TestProducer_PublishEventsEmptyBatch(t *testing.T) {
	writer := &fakeWriter{err: errors.New("must not be called")}
	producer := &Producer{writer: writer}

	assert.NoError(t, producer.PublishEvents(context.Background(), nil))
}

func TestProducer_PublishEventsWriteError(t *testing.T) {
	writeErr := errors.New("leader not available")
	producer := &Producer{writer: &fakeWriter{err: writeErr}}

	err := producer.PublishEvents(context.Background(), []store.Event{{ID: "ev-1", AggregateID: "env-1"}})

	assert.ErrorIs(t, err, writeErr)
}

// ============================================
// Consumer Tests
// ============================================

func TestConsumer_CommitsAfterHandling(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{
		{Key: []byte("a"), Value: []byte("1"), Offset: 10},
		{Key: []byte("a"), Value: []byte("2"), Offset: 11},
	}}
	consumer := newConsumer(reader, RetryBackoff(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled []string
	err := consumer.Consume(ctx, func(_ context.Context, _, value []byte) error {
		handled = append(handled, string(value))
		if len(handled) == 2 {
			cancel()
		}
		return nil
	})

	assert.True(t, IsContextDone(err))
	assert.Equal(t, []string{"1", "2"}, handled)
	assert.Equal(t, []int64{10, 11}, reader.committedOffsets())
}

func TestConsumer_RetriesTransientFailure(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{{Value: []byte("1"), Offset: 3}}}
	consumer := newConsumer(reader, RetryBackoff(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	err := consumer.Consume(ctx, func(context.Context, []byte, []byte) error {
		attempts++
		if attempts < 3 {
			return errors.New("read model unavailable")
		}
		cancel()
		return nil
	})

	assert.True(t, IsContextDone(err))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int64{3}, reader.committedOffsets())
}

func TestConsumer_SkipsPermanentFailure(t *testing.T) {
	poison := errors.New("poison")
	reader := &fakeReader{pending: []kafka.Message{
		{Value: []byte("bad"), Offset: 1},
		{Value: []byte("good"), Offset: 2},
	}}
	consumer := newConsumer(reader,
		RetryBackoff(time.Millisecond),
		SkipOn(func(err error) bool { return errors.Is(err, poison) }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := consumer.Consume(ctx, func(_ context.Context, _, value []byte) error {
		if string(value) == "bad" {
			return poison
		}
		cancel()
		return nil
	})

	assert.True(t, IsContextDone(err))
	assert.Equal(t, []int64{1, 2}, reader.committedOffsets())
}

func TestConsumer_StopsWhileRetrying(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{{Value: []byte("1"), Offset: 7}}}
	consumer := newConsumer(reader, RetryBackoff(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := consumer.Consume(ctx, func(context.Context, []byte, []byte) error {
		return errors.New("still failing")
	})

	assert.True(t, IsContextDone(err))
	assert.Empty(t, reader.committedOffsets())
}
