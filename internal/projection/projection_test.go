package projection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/budget-event-sourced/internal/domain/budgetplan"
	"github.com/example/budget-event-sourced/internal/domain/envelope"
	"github.com/example/budget-event-sourced/internal/domain/user"
	"github.com/example/budget-event-sourced/internal/encryption"
	"github.com/example/budget-event-sourced/internal/infrastructure/keystore"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
	"github.com/example/budget-event-sourced/internal/readmodel"
)

type testEnv struct {
	eventStore *store.MemoryEventStore
	keys       *keystore.MemoryKeyStore
	gate       *encryption.Gate
	views      *readmodel.MemoryStore
	dispatcher *Dispatcher
}

func newTestEnv() *testEnv {
	eventStore := store.NewMemoryEventStore()
	keys := keystore.NewMemoryKeyStore()
	gate := encryption.NewGate(eventStore, keys)
	views := readmodel.NewMemoryStore()

	dispatcher := NewDispatcher(gate)
	dispatcher.Register(
		NewEnvelopeProjector(views),
		NewLedgerProjector(views, eventStore, gate),
		NewBudgetPlanProjector(views),
		NewUserProjector(views),
	)

	return &testEnv{
		eventStore: eventStore,
		keys:       keys,
		gate:       gate,
		views:      views,
		dispatcher: dispatcher,
	}
}

func (env *testEnv) newUser(t *testing.T) string {
	t.Helper()
	userID := uuid.NewString()
	_, err := env.keys.Create(context.Background(), userID)
	require.NoError(t, err)
	return userID
}

// project dispatches the events of a stream after fromVersion, in order.
func (env *testEnv) project(t *testing.T, aggregateID string, fromVersion int) {
	t.Helper()
	ctx := context.Background()
	for e, err := range env.eventStore.ReadStream(ctx, aggregateID, fromVersion) {
		require.NoError(t, err)
		require.NoError(t, env.dispatcher.Dispatch(ctx, e))
	}
}

func seedEnvelope(t *testing.T, es store.EventStore, envelopeID, userID string, t0 time.Time) {
	t.Helper()
	_, err := es.Append(context.Background(), envelopeID, envelope.AggregateType, 0, []store.Record{
		{EventType: envelope.EventAdded, UserID: userID, OccurredOn: t0, Data: envelope.Added{Name: "Holidays", TargetedAmount: "1000.00", Currency: "USD"}},
		{EventType: envelope.EventCredited, UserID: userID, OccurredOn: t0.Add(1 * time.Hour), Data: envelope.Credited{CreditMoney: "500.00", Description: "salary"}},
		{EventType: envelope.EventCredited, UserID: userID, OccurredOn: t0.Add(2 * time.Hour), Data: envelope.Credited{CreditMoney: "300.00", Description: "bonus"}},
		{EventType: envelope.EventDebited, UserID: userID, OccurredOn: t0.Add(3 * time.Hour), Data: envelope.Debited{DebitMoney: "100.00", Description: "flight"}},
	})
	require.NoError(t, err)
}

// ============================================
// Dispatcher Tests
// ============================================

func TestDispatcher_UnknownEventOfClaimedAggregateFails(t *testing.T) {
	env := newTestEnv()

	err := env.dispatcher.Dispatch(context.Background(), store.Event{
		ID:            uuid.NewString(),
		AggregateID:   uuid.NewString(),
		AggregateType: envelope.AggregateType,
		EventType:     "BudgetEnvelopeFrozen",
		Version:       2,
		Payload:       json.RawMessage(`{}`),
	})

	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestDispatcher_IgnoresUnclaimedAggregate(t *testing.T) {
	env := newTestEnv()

	err := env.dispatcher.Dispatch(context.Background(), store.Event{
		ID:            uuid.NewString(),
		AggregateID:   uuid.NewString(),
		AggregateType: "Household",
		EventType:     "HouseholdCreated",
		Version:       1,
		Payload:       json.RawMessage(`{}`),
	})

	assert.NoError(t, err)
}

func TestDispatcher_HandleMessage(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	err := env.dispatcher.HandleMessage(ctx, []byte("key"), []byte("{not json"))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	userID := env.newUser(t)
	envelopeID := uuid.NewString()
	_, err = envelope.NewService(env.gate).Add(ctx, envelopeID, userID, "", "Groceries", decimal.NewFromInt(200), "EUR")
	require.NoError(t, err)

	for e, err := range env.eventStore.ReadStream(ctx, envelopeID, 0) {
		require.NoError(t, err)
		value, err := json.Marshal(e)
		require.NoError(t, err)
		require.NoError(t, env.dispatcher.HandleMessage(ctx, []byte(e.AggregateID), value))
	}

	view, err := env.views.GetEnvelope(ctx, envelopeID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", view.Name)
	assert.Equal(t, "200.00", view.TargetedAmount)
}

func TestDispatcher_UndecryptableEventIsProjectedRedacted(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := env.newUser(t)
	envelopeID := uuid.NewString()

	service := envelope.NewService(env.gate)
	_, err := service.Add(ctx, envelopeID, userID, "", "Groceries", decimal.NewFromInt(200), "EUR")
	require.NoError(t, err)
	_, err = service.Credit(ctx, envelopeID, userID, "", decimal.NewFromInt(50), "market")
	require.NoError(t, err)

	require.NoError(t, env.keys.Delete(ctx, userID))
	env.project(t, envelopeID, 0)

	view, err := env.views.GetEnvelope(ctx, envelopeID)
	require.NoError(t, err)
	assert.Empty(t, view.Name)
	assert.Equal(t, "50.00", view.CurrentAmount)

	entries, err := env.views.ListLedgerEntries(ctx, envelopeID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Description)
}

// ============================================
// Envelope Projection Tests
// ============================================

func TestEnvelopeProjector_DuplicateDeliveryIsSkipped(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := env.newUser(t)
	envelopeID := uuid.NewString()
	seedEnvelope(t, env.eventStore, envelopeID, userID, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))

	env.project(t, envelopeID, 0)
	env.project(t, envelopeID, 0)

	view, err := env.views.GetEnvelope(ctx, envelopeID)
	require.NoError(t, err)
	assert.Equal(t, "700.00", view.CurrentAmount)
	assert.Equal(t, 4, view.Version)

	entries, err := env.views.ListLedgerEntries(ctx, envelopeID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestEnvelopeProjector_EventsForMissingViewAreNoOps(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	envelopeID := uuid.NewString()

	err := env.dispatcher.Dispatch(ctx, store.Event{
		ID:            uuid.NewString(),
		AggregateID:   envelopeID,
		AggregateType: envelope.AggregateType,
		EventType:     envelope.EventRenamed,
		Version:       2,
		Payload:       json.RawMessage(`{"name":"Food"}`),
	})
	require.NoError(t, err)

	_, err = env.views.GetEnvelope(ctx, envelopeID)
	assert.ErrorIs(t, err, readmodel.ErrNotFound)
}

// ============================================
// Ledger Projection Tests
// ============================================

func TestLedgerProjector_RewindReconcilesLedger(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := env.newUser(t)
	envelopeID := uuid.NewString()
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	seedEnvelope(t, env.gate, envelopeID, userID, t0)

	service := envelope.NewService(env.gate)
	_, err := service.Rewind(ctx, envelopeID, userID, "", t0.Add(90*time.Minute))
	require.NoError(t, err)

	env.project(t, envelopeID, 0)

	view, err := env.views.GetEnvelope(ctx, envelopeID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", view.CurrentAmount)
	assert.True(t, view.UpdatedAt.Equal(t0.Add(time.Hour)))

	entries, err := env.views.ListLedgerEntries(ctx, envelopeID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, readmodel.EntryTypeCredit, entries[0].EntryType)
	assert.Equal(t, "500.00", entries[0].Amount)
	assert.Equal(t, "salary", entries[0].Description)
}

func TestLedgerProjector_ReplayKeepsEarlierRewind(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := env.newUser(t)
	envelopeID := uuid.NewString()
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	seedEnvelope(t, env.gate, envelopeID, userID, t0)

	service := envelope.NewService(env.gate)
	_, err := service.Rewind(ctx, envelopeID, userID, "", t0.Add(90*time.Minute))
	require.NoError(t, err)
	_, err = service.Credit(ctx, envelopeID, userID, "", decimal.RequireFromString("25.00"), "refund")
	require.NoError(t, err)
	env.project(t, envelopeID, 0)

	replayed, err := service.Replay(ctx, envelopeID, userID, "")
	require.NoError(t, err)
	env.project(t, envelopeID, replayed.Version-1)

	view, err := env.views.GetEnvelope(ctx, envelopeID)
	require.NoError(t, err)
	assert.Equal(t, "525.00", view.CurrentAmount)
	assert.Equal(t, replayed.Version, view.Version)

	entries, err := env.views.ListLedgerEntries(ctx, envelopeID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "500.00", entries[0].Amount)
	assert.Equal(t, "25.00", entries[1].Amount)
	assert.Equal(t, "refund", entries[1].Description)
}

// ============================================
// Budget Plan Projection Tests
// ============================================

func TestBudgetPlanProjector_Lifecycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	userID := env.newUser(t)
	planID := uuid.NewString()

	service := budgetplan.NewService(env.gate)
	_, err := service.Generate(ctx, planID, userID, "", time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC), "EUR", []budgetplan.NewEntry{
		{ID: "salary", Kind: budgetplan.KindIncome, Name: "Salary", Amount: decimal.NewFromInt(3000)},
		{ID: "rent", Kind: budgetplan.KindNeed, Name: "Rent", Amount: decimal.NewFromInt(1200)},
	})
	require.NoError(t, err)
	_, err = service.AdjustEntry(ctx, planID, userID, "", "rent", "Rent", decimal.NewFromInt(1250), "housing")
	require.NoError(t, err)
	_, err = service.RemoveEntry(ctx, planID, userID, "", "salary")
	require.NoError(t, err)
	_, err = service.ChangeCurrency(ctx, planID, userID, "", "USD")
	require.NoError(t, err)

	env.project(t, planID, 0)

	view, err := env.views.GetBudgetPlan(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), view.Date.UTC())
	assert.Equal(t, "USD", view.Currency)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "Rent", view.Entries[0].Name)
	assert.Equal(t, "1250.00", view.Entries[0].Amount)
	assert.Equal(t, "housing", view.Entries[0].Category)

	replayed, err := service.Replay(ctx, planID, userID, "")
	require.NoError(t, err)
	env.project(t, planID, replayed.Version-1)

	view, err = env.views.GetBudgetPlan(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, replayed.Version, view.Version)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "Rent", view.Entries[0].Name)
}

// ============================================
// User Projection Tests
// ============================================

func TestUserProjector_SignUpAndErase(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	service := user.NewService(env.gate, env.keys)
	userID := uuid.NewString()

	_, err := service.SignUp(ctx, userID, "", "ada@example.com", "Ada", "Lovelace", "en")
	require.NoError(t, err)
	_, err = service.ChangeLanguagePreference(ctx, userID, "", "fr")
	require.NoError(t, err)
	env.project(t, userID, 0)

	view, err := env.views.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", view.Email)
	assert.Equal(t, "fr", view.LanguagePreference)

	err = service.Erase(ctx, userID, "")
	require.NoError(t, err)
	env.project(t, userID, 2)

	view, err = env.views.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.True(t, view.IsErased)
	assert.Empty(t, view.Email)
	assert.Empty(t, view.Firstname)
	assert.Equal(t, "fr", view.LanguagePreference)
	assert.Equal(t, 3, view.Version)
}
