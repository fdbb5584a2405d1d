package aggregate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/budget-event-sourced/internal/domain/aggregate"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
	"github.com/example/budget-event-sourced/internal/infrastructure/store/mocks"
)

// tally is a minimal aggregate used to exercise the generic machinery.
type tally struct {
	aggregate.Base
	Total   int  `json:"total"`
	Closed  bool `json:"closed"`
	Applied int  `json:"applied"`
}

func (t *tally) IsDeleted() bool { return t.Closed }

type tallyOpened struct{}

type tallyAdded struct {
	N int `json:"n"`
}

type tallyReset struct {
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var tallyType = aggregate.NewType("Tally", func() *tally { return &tally{} }, map[string]aggregate.ApplyFunc[*tally]{
	"TallyOpened": func(t *tally, e store.Event) error {
		t.Applied++
		return nil
	},
	"TallyAdded": func(t *tally, e store.Event) error {
		var p tallyAdded
		if err := e.Decode(&p); err != nil {
			return err
		}
		t.Total += p.N
		t.Applied++
		return nil
	},
	"TallyClosed": func(t *tally, e store.Event) error {
		t.Closed = true
		t.Applied++
		return nil
	},
	"TallyRewound": func(t *tally, e store.Event) error {
		var p tallyReset
		if err := e.Decode(&p); err != nil {
			return err
		}
		t.Total = p.Total
		t.UpdatedAt = p.UpdatedAt
		t.Applied++
		return nil
	},
	"TallyReplayed": func(t *tally, e store.Event) error {
		var p tallyReset
		if err := e.Decode(&p); err != nil {
			return err
		}
		t.Total = p.Total
		t.Applied++
		return nil
	},
})

var tallyCorrections = aggregate.Corrections[*tally]{
	ReplayedType: "TallyReplayed",
	RewoundType:  "TallyRewound",
	Replayed: func(rebuilt *tally) any {
		return tallyReset{Total: rebuilt.Total, UpdatedAt: rebuilt.UpdatedAt}
	},
	Rewound: func(past, _ *tally) any {
		return tallyReset{Total: past.Total, UpdatedAt: past.UpdatedAt}
	},
}

func newTestRepository(interval int) (*aggregate.Repository[*tally], *mocks.MockEventStore) {
	es := mocks.NewMockEventStore()
	return aggregate.NewRepository(es, tallyType, aggregate.WithSnapshotInterval(interval)), es
}

func openTally(t *testing.T, id string, at time.Time) *tally {
	t.Helper()
	agg := &tally{}
	agg.ID = id
	require.NoError(t, tallyType.Raise(agg, store.Record{EventType: "TallyOpened", UserID: "user-1", OccurredOn: at}))
	return agg
}

func add(t *testing.T, agg *tally, n int, at time.Time) {
	t.Helper()
	require.NoError(t, tallyType.Raise(agg, store.Record{EventType: "TallyAdded", UserID: "user-1", OccurredOn: at, Data: tallyAdded{N: n}}))
}

// ============================================
// Recorder Tests
// ============================================

func TestRaise_AppliesAndQueues(t *testing.T) {
	agg := openTally(t, "t-1", time.Now())
	add(t, agg, 5, time.Now())

	assert.Equal(t, 5, agg.Total)
	assert.Equal(t, 2, agg.Version)
	assert.Equal(t, 0, agg.PersistedVersion())
	assert.Equal(t, "user-1", agg.UserID)
	require.Len(t, agg.PendingEvents(), 2)
	assert.Equal(t, tallyAdded{N: 5}, agg.PendingEvents()[1].Data)

	agg.ClearPendingEvents()
	assert.Empty(t, agg.PendingEvents())
	assert.Equal(t, 2, agg.PersistedVersion())
}

func TestRaise_UnknownEventTypeQueuesNothing(t *testing.T) {
	agg := openTally(t, "t-1", time.Now())

	err := tallyType.Raise(agg, store.Record{EventType: "TallyExploded", UserID: "user-1"})

	assert.ErrorIs(t, err, aggregate.ErrUnknownEventType)
	assert.Len(t, agg.PendingEvents(), 1)
	assert.Equal(t, 1, agg.Version)
}

func TestRaise_WithoutID(t *testing.T) {
	err := tallyType.Raise(&tally{}, store.Record{EventType: "TallyOpened", UserID: "user-1"})
	assert.ErrorIs(t, err, aggregate.ErrInvalidOperation)
}

func TestGuard(t *testing.T) {
	agg := openTally(t, "t-1", time.Now())

	assert.NoError(t, aggregate.Guard(agg, "user-1"))
	assert.ErrorIs(t, aggregate.Guard(agg, "user-2"), aggregate.ErrNotOwnedByUser)
	assert.ErrorIs(t, aggregate.Guard(agg, ""), aggregate.ErrNotOwnedByUser)

	require.NoError(t, tallyType.Raise(agg, store.Record{EventType: "TallyClosed", UserID: "user-1"}))
	assert.ErrorIs(t, aggregate.Guard(agg, "user-1"), aggregate.ErrInvalidOperation)
}

// ============================================
// Repository Tests
// ============================================

func TestRepository_SaveAndLoad(t *testing.T) {
	repo, es := newTestRepository(20)
	ctx := context.Background()

	agg := openTally(t, "t-1", time.Now())
	add(t, agg, 3, time.Now())
	add(t, agg, 4, time.Now())

	events, err := repo.Save(ctx, agg)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Len(t, es.AppendCalls, 1)
	assert.Equal(t, 0, es.AppendCalls[0].ExpectedVersion)
	assert.Equal(t, "Tally", es.AppendCalls[0].AggregateType)

	loaded, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Total)
	assert.Equal(t, 3, loaded.Version)
	assert.Equal(t, "user-1", loaded.UserID)
	assert.Empty(t, loaded.PendingEvents())
}

func TestRepository_SaveWithNothingPending(t *testing.T) {
	repo, es := newTestRepository(20)
	events, err := repo.Save(context.Background(), &tally{})
	require.NoError(t, err)
	assert.Nil(t, events)
	assert.Empty(t, es.AppendCalls)
}

func TestRepository_LoadMissing(t *testing.T) {
	repo, _ := newTestRepository(20)

	_, err := repo.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, aggregate.ErrAggregateNotFound)

	_, err = repo.LoadFromScratch(context.Background(), "nope")
	assert.ErrorIs(t, err, aggregate.ErrAggregateNotFound)
}

func TestRepository_LoadUnknownEventType(t *testing.T) {
	repo, es := newTestRepository(20)
	ctx := context.Background()

	_, err := es.MemoryEventStore.Append(ctx, "t-1", "Tally", 0, []store.Record{{EventType: "TallyRenamed", UserID: "user-1"}})
	require.NoError(t, err)

	_, err = repo.Load(ctx, "t-1")
	assert.ErrorIs(t, err, aggregate.ErrUnknownEventType)
}

func TestRepository_StaleSaveConflicts(t *testing.T) {
	repo, _ := newTestRepository(20)
	ctx := context.Background()

	_, err := repo.Save(ctx, openTally(t, "t-1", time.Now()))
	require.NoError(t, err)

	first, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)
	second, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)

	add(t, first, 1, time.Now())
	add(t, second, 2, time.Now())

	_, err = repo.Save(ctx, first)
	require.NoError(t, err)
	_, err = repo.Save(ctx, second)
	assert.ErrorIs(t, err, store.ErrConcurrencyConflict)
}

func TestRepository_WritesSnapshotAtInterval(t *testing.T) {
	repo, es := newTestRepository(5)
	ctx := context.Background()

	agg := openTally(t, "t-1", time.Now())
	for range 3 {
		add(t, agg, 1, time.Now())
	}
	_, err := repo.Save(ctx, agg)
	require.NoError(t, err)
	assert.Empty(t, es.SaveSnapshotCalls)

	add(t, agg, 1, time.Now())
	_, err = repo.Save(ctx, agg)
	require.NoError(t, err)
	require.Len(t, es.SaveSnapshotCalls, 1)
	assert.Equal(t, 5, es.SaveSnapshotCalls[0].Version)

	for range 4 {
		add(t, agg, 1, time.Now())
	}
	_, err = repo.Save(ctx, agg)
	require.NoError(t, err)
	assert.Len(t, es.SaveSnapshotCalls, 1)

	add(t, agg, 1, time.Now())
	_, err = repo.Save(ctx, agg)
	require.NoError(t, err)
	require.Len(t, es.SaveSnapshotCalls, 2)
	assert.Equal(t, 10, es.SaveSnapshotCalls[1].Version)
}

func TestRepository_SnapshotFailureDoesNotFailSave(t *testing.T) {
	repo, es := newTestRepository(2)
	es.SaveSnapshotErr = errors.New("disk full")

	agg := openTally(t, "t-1", time.Now())
	add(t, agg, 1, time.Now())

	events, err := repo.Save(context.Background(), agg)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Len(t, es.SaveSnapshotCalls, 1)
}

func TestRepository_RehydrationEquivalence(t *testing.T) {
	ctx := context.Background()
	const total = 25

	full, _ := newTestRepository(0)
	agg := openTally(t, "t-1", time.Now())
	for i := 1; i < total; i++ {
		add(t, agg, i, time.Now())
	}
	_, err := full.Save(ctx, agg)
	require.NoError(t, err)

	expected, err := full.LoadFromScratch(ctx, "t-1")
	require.NoError(t, err)

	for _, interval := range []int{1, 2, 3, 7, 10, 20, 24, 25} {
		repo, es := newTestRepository(interval)

		agg := openTally(t, "t-1", expected.CreatedAt)
		_, err := repo.Save(ctx, agg)
		require.NoError(t, err)
		for i := 1; i < total; i++ {
			loaded, err := repo.Load(ctx, "t-1")
			require.NoError(t, err)
			add(t, loaded, i, time.Now())
			_, err = repo.Save(ctx, loaded)
			require.NoError(t, err)
		}

		fromSnapshot, err := repo.Load(ctx, "t-1")
		require.NoError(t, err)
		fromScratch, err := repo.LoadFromScratch(ctx, "t-1")
		require.NoError(t, err)

		snapshot, err := es.LoadSnapshot(ctx, "t-1")
		require.NoError(t, err)
		require.NotNil(t, snapshot, "interval %d", interval)

		assert.Equal(t, expected.Total, fromSnapshot.Total, "interval %d", interval)
		assert.Equal(t, fromScratch.Total, fromSnapshot.Total, "interval %d", interval)
		assert.Equal(t, fromScratch.Version, fromSnapshot.Version, "interval %d", interval)
		assert.Equal(t, fromScratch.Closed, fromSnapshot.Closed, "interval %d", interval)
		assert.Equal(t, fromScratch.UserID, fromSnapshot.UserID, "interval %d", interval)
		assert.True(t, fromScratch.CreatedAt.Equal(fromSnapshot.CreatedAt), "interval %d", interval)
		assert.True(t, fromScratch.UpdatedAt.Equal(fromSnapshot.UpdatedAt), "interval %d", interval)
	}
}

func TestRepository_UnreadableSnapshotFallsBackToStream(t *testing.T) {
	repo, es := newTestRepository(20)
	ctx := context.Background()

	agg := openTally(t, "t-1", time.Now())
	add(t, agg, 9, time.Now())
	_, err := repo.Save(ctx, agg)
	require.NoError(t, err)

	require.NoError(t, es.MemoryEventStore.SaveSnapshot(ctx, &store.Snapshot{
		AggregateID: "t-1", AggregateType: "Tally", Version: 1, State: []byte(`not json`),
	}))

	loaded, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Total)

	es.LoadSnapshotErr = errors.New("snapshot table offline")
	loaded, err = repo.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Total)
}

func TestRepository_LoadAsOf(t *testing.T) {
	repo, _ := newTestRepository(20)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	agg := openTally(t, "t-1", t0)
	add(t, agg, 1, t0.Add(time.Hour))
	add(t, agg, 10, t0.Add(2*time.Hour))
	add(t, agg, 100, t0.Add(3*time.Hour))
	_, err := repo.Save(ctx, agg)
	require.NoError(t, err)

	tests := []struct {
		at   time.Time
		want int
	}{
		{t0, 0},
		{t0.Add(time.Hour), 1},
		{t0.Add(150 * time.Minute), 11},
		{t0.Add(24 * time.Hour), 111},
	}
	for _, tt := range tests {
		past, err := repo.LoadAsOf(ctx, "t-1", tt.at)
		require.NoError(t, err)
		assert.Equal(t, tt.want, past.Total, "at %s", tt.at)
	}

	_, err = repo.LoadAsOf(ctx, "t-1", t0.Add(-time.Minute))
	assert.ErrorIs(t, err, aggregate.ErrAggregateNotFound)
}

// ============================================
// Recovery Tests
// ============================================

func newTestRecovery(t *testing.T) (*aggregate.Recovery[*tally], *aggregate.Repository[*tally], time.Time) {
	t.Helper()
	repo, _ := newTestRepository(20)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	agg := openTally(t, "t-1", t0)
	add(t, agg, 500, t0.Add(time.Hour))
	add(t, agg, 300, t0.Add(2*time.Hour))
	add(t, agg, -100, t0.Add(3*time.Hour))
	_, err := repo.Save(context.Background(), agg)
	require.NoError(t, err)

	return aggregate.NewRecovery(repo, tallyCorrections), repo, t0
}

func TestRecovery_Rewind(t *testing.T) {
	recovery, repo, t0 := newTestRecovery(t)
	ctx := context.Background()

	rewound, err := recovery.Rewind(ctx, "t-1", "user-1", "", t0.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 500, rewound.Total)
	assert.Equal(t, 5, rewound.Version)
	assert.True(t, rewound.UpdatedAt.Equal(t0.Add(time.Hour)))

	loaded, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 500, loaded.Total)
	assert.Equal(t, 5, loaded.Version)
}

func TestRecovery_RewindBeforeCreation(t *testing.T) {
	recovery, _, t0 := newTestRecovery(t)

	_, err := recovery.Rewind(context.Background(), "t-1", "user-1", "", t0.Add(-time.Second))
	assert.ErrorIs(t, err, aggregate.ErrInvalidOperation)
}

func TestRecovery_RequiresOwnership(t *testing.T) {
	recovery, _, t0 := newTestRecovery(t)
	ctx := context.Background()

	_, err := recovery.Rewind(ctx, "t-1", "user-2", "", t0.Add(time.Hour))
	assert.ErrorIs(t, err, aggregate.ErrNotOwnedByUser)

	_, err = recovery.Replay(ctx, "t-1", "user-2", "")
	assert.ErrorIs(t, err, aggregate.ErrNotOwnedByUser)
}

func TestRecovery_ReplayIsIdempotent(t *testing.T) {
	recovery, repo, _ := newTestRecovery(t)
	ctx := context.Background()

	before, err := repo.Load(ctx, "t-1")
	require.NoError(t, err)

	first, err := recovery.Replay(ctx, "t-1", "user-1", "")
	require.NoError(t, err)
	second, err := recovery.Replay(ctx, "t-1", "user-1", "")
	require.NoError(t, err)

	assert.Equal(t, before.Total, first.Total)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, 6, second.Version)
}

func TestRecovery_ReplayMissing(t *testing.T) {
	recovery, _, _ := newTestRecovery(t)
	_, err := recovery.Replay(context.Background(), "missing", "user-1", "")
	assert.ErrorIs(t, err, aggregate.ErrAggregateNotFound)
}
