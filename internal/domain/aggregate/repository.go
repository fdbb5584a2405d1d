package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/budget-event-sourced/internal/infrastructure/store"
	"github.com/example/budget-event-sourced/internal/metrics"
)

type options struct {
	snapshotInterval int
	logger           zerolog.Logger
	metrics          *metrics.Metrics
}

type Option func(*options)

// WithSnapshotInterval sets how many events may accumulate between snapshots.
// Zero disables snapshots.
func WithSnapshotInterval(n int) Option {
	return func(o *options) { o.snapshotInterval = n }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Repository loads and saves aggregates of one type.
type Repository[T Root] struct {
	store   store.EventStore
	typ     *Type[T]
	opts    options
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewRepository[T Root](es store.EventStore, typ *Type[T], opts ...Option) *Repository[T] {
	o := options{
		snapshotInterval: store.DefaultSnapshotInterval,
		logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[T]{
		store:   es,
		typ:     typ,
		opts:    o,
		logger:  o.logger.With().Str("component", "repository").Str("aggregate_type", typ.Name).Logger(),
		metrics: o.metrics,
	}
}

func (r *Repository[T]) Type() *Type[T] { return r.typ }

// Load rehydrates an aggregate from its latest snapshot and the events after it.
// A snapshot that cannot be read is ignored and the full stream is used.
func (r *Repository[T]) Load(ctx context.Context, id string) (T, error) {
	started := time.Now()

	agg, fromVersion := r.fromSnapshot(ctx, id)
	found := fromVersion > 0

	applied, err := r.applyStream(ctx, agg, id, fromVersion, nil)
	if err != nil {
		var zero T
		return zero, err
	}
	if !found && applied == 0 {
		var zero T
		return zero, fmt.Errorf("%w: %s %s", ErrAggregateNotFound, r.typ.Name, id)
	}

	source := "stream"
	if found {
		source = "snapshot"
	}
	r.metrics.Rehydrated(r.typ.Name, source, started)
	return agg, nil
}

// LoadFromScratch rehydrates from version 0, ignoring any snapshot.
func (r *Repository[T]) LoadFromScratch(ctx context.Context, id string) (T, error) {
	return r.loadUntil(ctx, id, nil)
}

// LoadAsOf rehydrates the state the aggregate had at t, applying only events
// with occurredOn <= t.
func (r *Repository[T]) LoadAsOf(ctx context.Context, id string, t time.Time) (T, error) {
	asOf := store.Timestamp(t)
	return r.loadUntil(ctx, id, func(e store.Event) bool {
		return !e.OccurredOn.After(asOf)
	})
}

func (r *Repository[T]) loadUntil(ctx context.Context, id string, include func(store.Event) bool) (T, error) {
	started := time.Now()
	agg := r.typ.New()

	applied, err := r.applyStream(ctx, agg, id, 0, include)
	if err != nil {
		var zero T
		return zero, err
	}
	if applied == 0 {
		var zero T
		return zero, fmt.Errorf("%w: %s %s", ErrAggregateNotFound, r.typ.Name, id)
	}

	r.metrics.Rehydrated(r.typ.Name, "stream", started)
	return agg, nil
}

func (r *Repository[T]) fromSnapshot(ctx context.Context, id string) (T, int) {
	snapshot, err := r.store.LoadSnapshot(ctx, id)
	if err != nil {
		r.logger.Warn().Err(err).Str("aggregate_id", id).Msg("snapshot unavailable, replaying full stream")
		return r.typ.New(), 0
	}
	if snapshot == nil || snapshot.AggregateType != r.typ.Name {
		return r.typ.New(), 0
	}

	agg := r.typ.New()
	if err := json.Unmarshal(snapshot.State, agg); err != nil {
		r.logger.Warn().Err(err).Str("aggregate_id", id).Int("version", snapshot.Version).Msg("discarding unreadable snapshot")
		return r.typ.New(), 0
	}

	b := agg.Recorder()
	b.Version = snapshot.Version
	b.snapshotVersion = snapshot.Version
	return agg, snapshot.Version
}

func (r *Repository[T]) applyStream(ctx context.Context, agg T, id string, fromVersion int, include func(store.Event) bool) (int, error) {
	applied := 0
	for e, err := range r.store.ReadStream(ctx, id, fromVersion) {
		if err != nil {
			return applied, fmt.Errorf("read %s %s: %w", r.typ.Name, id, err)
		}
		if include != nil && !include(e) {
			continue
		}
		if err := r.typ.Apply(agg, e); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Save appends the pending events of agg at the version it was loaded at and
// writes a snapshot when the interval has been reached. Snapshot failures are
// logged, never returned.
func (r *Repository[T]) Save(ctx context.Context, agg T) ([]store.Event, error) {
	b := agg.Recorder()
	pending := b.PendingEvents()
	if len(pending) == 0 {
		return nil, nil
	}

	events, err := r.store.Append(ctx, b.ID, r.typ.Name, b.PersistedVersion(), pending)
	if err != nil {
		if errors.Is(err, store.ErrConcurrencyConflict) {
			r.metrics.ConcurrencyConflict(r.typ.Name)
		}
		return nil, err
	}
	b.ClearPendingEvents()
	r.metrics.EventsAppended(r.typ.Name, len(events))

	if store.SnapshotDue(b.Version, b.snapshotVersion, r.opts.snapshotInterval) {
		if err := r.snapshot(ctx, b.ID); err != nil {
			r.logger.Warn().Err(err).Str("aggregate_id", b.ID).Int("version", b.Version).Msg("snapshot failed")
		} else {
			b.snapshotVersion = b.Version
		}
	}

	return events, nil
}

// snapshot stores the state rebuilt from the persisted stream, so it holds the
// same sealed values as the events and nothing from in-process plaintext.
func (r *Repository[T]) snapshot(ctx context.Context, id string) error {
	persisted, err := r.Load(ctx, id)
	if err != nil {
		return err
	}
	b := persisted.Recorder()
	if b.Version <= b.snapshotVersion {
		return nil
	}

	state, err := json.Marshal(persisted)
	if err != nil {
		return fmt.Errorf("failed to marshal aggregate state: %w", err)
	}

	if err := r.store.SaveSnapshot(ctx, &store.Snapshot{
		AggregateID:   id,
		AggregateType: r.typ.Name,
		Version:       b.Version,
		State:         state,
		CreatedAt:     store.Timestamp(time.Now()),
	}); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	r.metrics.SnapshotWritten(r.typ.Name)
	r.logger.Debug().Str("aggregate_id", id).Int("version", b.Version).Msg("snapshot written")
	return nil
}
