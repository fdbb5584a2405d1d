package envelope

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/budget-event-sourced/internal/domain/aggregate"
	"github.com/example/budget-event-sourced/internal/domain/money"
	"github.com/example/budget-event-sourced/internal/encryption"
	"github.com/example/budget-event-sourced/internal/infrastructure/keystore"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
	"github.com/example/budget-event-sourced/internal/infrastructure/store/mocks"
)

func newTestEnvelopeService() (*Service, *mocks.MockEventStore) {
	eventStore := mocks.NewMockEventStore()
	return NewService(eventStore), eventStore
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func addTestEnvelope(t *testing.T, s *Service, userID string) *Envelope {
	t.Helper()
	e, err := s.Add(context.Background(), uuid.NewString(), userID, "", "Groceries", dec("1000.00"), "USD")
	require.NoError(t, err)
	return e
}

// ============================================
// Add Tests
// ============================================

func TestService_Add_Success(t *testing.T) {
	service, eventStore := newTestEnvelopeService()
	userID := uuid.NewString()

	e := addTestEnvelope(t, service, userID)

	assert.Equal(t, "Groceries", e.Name)
	assert.Equal(t, "1000.00", money.Format(e.TargetedAmount))
	assert.Equal(t, "0.00", money.Format(e.CurrentAmount))
	assert.Equal(t, 1, e.Version)
	assert.Equal(t, userID, e.UserID)

	require.Len(t, eventStore.AppendCalls, 1)
	call := eventStore.AppendCalls[0]
	assert.Equal(t, AggregateType, call.AggregateType)
	assert.Equal(t, 0, call.ExpectedVersion)
	require.Len(t, call.Records, 1)
	assert.Equal(t, EventAdded, call.Records[0].EventType)
	assert.Equal(t, Added{Name: "Groceries", TargetedAmount: "1000.00", Currency: "USD"}, call.Records[0].Data)
}

func TestService_Add_InvalidTarget(t *testing.T) {
	service, eventStore := newTestEnvelopeService()

	_, err := service.Add(context.Background(), uuid.NewString(), uuid.NewString(), "", "Rent", dec("0"), "USD")

	assert.ErrorIs(t, err, money.ErrInvalidAmount)
	assert.Empty(t, eventStore.AppendCalls)
}

// ============================================
// Credit / Debit Tests
// ============================================

func TestService_CreditDebitScenario(t *testing.T) {
	service, _ := newTestEnvelopeService()
	ctx := context.Background()
	userID := uuid.NewString()
	e := addTestEnvelope(t, service, userID)

	_, err := service.Credit(ctx, e.ID, userID, "", dec("500.00"), "description A")
	require.NoError(t, err)
	_, err = service.Debit(ctx, e.ID, userID, "", dec("200.00"), "description B")
	require.NoError(t, err)

	loaded, err := service.Get(ctx, e.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, "300.00", money.Format(loaded.CurrentAmount))
	assert.Equal(t, 3, loaded.Version)
}

func TestService_Credit_Rules(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   error
	}{
		{"zero", "0.00", money.ErrInvalidAmount},
		{"negative", "-1.00", money.ErrInvalidAmount},
		{"above target", "1000.01", ErrTargetExceeded},
		{"exactly target", "1000.00", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _ := newTestEnvelopeService()
			userID := uuid.NewString()
			e := addTestEnvelope(t, service, userID)

			_, err := service.Credit(context.Background(), e.ID, userID, "", dec(tt.amount), "")
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestService_Debit_InsufficientFunds(t *testing.T) {
	service, eventStore := newTestEnvelopeService()
	ctx := context.Background()
	userID := uuid.NewString()
	e := addTestEnvelope(t, service, userID)

	_, err := service.Credit(ctx, e.ID, userID, "", dec("50.00"), "")
	require.NoError(t, err)

	_, err = service.Debit(ctx, e.ID, userID, "", dec("50.01"), "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Len(t, eventStore.AppendCalls, 2)
}

func TestService_ChangeTargetedAmount(t *testing.T) {
	service, _ := newTestEnvelopeService()
	ctx := context.Background()
	userID := uuid.NewString()
	e := addTestEnvelope(t, service, userID)

	_, err := service.Credit(ctx, e.ID, userID, "", dec("400.00"), "")
	require.NoError(t, err)

	_, err = service.ChangeTargetedAmount(ctx, e.ID, userID, "", dec("399.99"))
	assert.ErrorIs(t, err, ErrTargetBelowCurrent)

	updated, err := service.ChangeTargetedAmount(ctx, e.ID, userID, "", dec("400.00"))
	require.NoError(t, err)
	assert.Equal(t, "400.00", money.Format(updated.TargetedAmount))
}

// ============================================
// Ownership / Deletion Tests
// ============================================

func TestService_OtherUserIsRejected(t *testing.T) {
	service, eventStore := newTestEnvelopeService()
	ctx := context.Background()
	e := addTestEnvelope(t, service, uuid.NewString())
	intruder := uuid.NewString()

	_, err := service.Credit(ctx, e.ID, intruder, "", dec("1.00"), "")
	assert.ErrorIs(t, err, aggregate.ErrNotOwnedByUser)

	_, err = service.Rename(ctx, e.ID, intruder, "", "Mine now")
	assert.ErrorIs(t, err, aggregate.ErrNotOwnedByUser)

	_, err = service.Get(ctx, e.ID, intruder)
	assert.ErrorIs(t, err, aggregate.ErrNotOwnedByUser)

	assert.Len(t, eventStore.AppendCalls, 1)
}

func TestService_DeletedEnvelopeRejectsMutations(t *testing.T) {
	service, eventStore := newTestEnvelopeService()
	ctx := context.Background()
	userID := uuid.NewString()
	e := addTestEnvelope(t, service, userID)

	deleted, err := service.Delete(ctx, e.ID, userID, "")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted())

	_, err = service.Credit(ctx, e.ID, userID, "", dec("1.00"), "")
	assert.ErrorIs(t, err, aggregate.ErrInvalidOperation)
	_, err = service.Delete(ctx, e.ID, userID, "")
	assert.ErrorIs(t, err, aggregate.ErrInvalidOperation)
	_, err = service.Replay(ctx, e.ID, userID, "")
	assert.ErrorIs(t, err, aggregate.ErrInvalidOperation)

	assert.Len(t, eventStore.AppendCalls, 2)
}

func TestService_MissingEnvelope(t *testing.T) {
	service, _ := newTestEnvelopeService()

	_, err := service.Credit(context.Background(), uuid.NewString(), uuid.NewString(), "", dec("1.00"), "")
	assert.ErrorIs(t, err, aggregate.ErrAggregateNotFound)
}

// ============================================
// Rewind / Replay Tests
// ============================================

// seedHistory appends the envelope history directly so that each event has a
// known occurredOn.
func seedHistory(t *testing.T, es store.EventStore, envelopeID, userID string, t0 time.Time) {
	t.Helper()
	_, err := es.Append(context.Background(), envelopeID, AggregateType, 0, []store.Record{
		{EventType: EventAdded, UserID: userID, OccurredOn: t0, Data: Added{Name: "Holidays", TargetedAmount: "1000.00", Currency: "USD"}},
		{EventType: EventCredited, UserID: userID, OccurredOn: t0.Add(1 * time.Hour), Data: Credited{CreditMoney: "500.00"}},
		{EventType: EventCredited, UserID: userID, OccurredOn: t0.Add(2 * time.Hour), Data: Credited{CreditMoney: "300.00"}},
		{EventType: EventDebited, UserID: userID, OccurredOn: t0.Add(3 * time.Hour), Data: Debited{DebitMoney: "100.00"}},
	})
	require.NoError(t, err)
}

func TestService_Rewind(t *testing.T) {
	service, eventStore := newTestEnvelopeService()
	ctx := context.Background()
	envelopeID, userID := uuid.NewString(), uuid.NewString()
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	seedHistory(t, eventStore, envelopeID, userID, t0)

	rewound, err := service.Rewind(ctx, envelopeID, userID, "", t0.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "500.00", money.Format(rewound.CurrentAmount))
	assert.Equal(t, 5, rewound.Version)

	records := eventStore.AppendedRecords()
	last := records[len(records)-1]
	require.Equal(t, EventRewound, last.EventType)
	payload := last.Data.(Rewound)
	assert.Equal(t, "500.00", payload.CurrentAmount)
	assert.Equal(t, "1000.00", payload.TargetedAmount)
	assert.True(t, payload.UpdatedAt.Equal(t0.Add(time.Hour)))
	assert.True(t, payload.PreviousUpdatedAt.Equal(t0.Add(3*time.Hour)))

	loaded, err := service.Get(ctx, envelopeID, userID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", money.Format(loaded.CurrentAmount))

	// History is kept: the later credit and debit are still in the stream.
	assert.Equal(t, 5, eventStore.Version(envelopeID))
}

func TestService_RewindThenMutate(t *testing.T) {
	service, eventStore := newTestEnvelopeService()
	ctx := context.Background()
	envelopeID, userID := uuid.NewString(), uuid.NewString()
	t0 := time.Now().Add(-24 * time.Hour)
	seedHistory(t, eventStore, envelopeID, userID, t0)

	_, err := service.Rewind(ctx, envelopeID, userID, "", t0.Add(30*time.Minute))
	require.NoError(t, err)

	credited, err := service.Credit(ctx, envelopeID, userID, "", dec("25.00"), "")
	require.NoError(t, err)
	assert.Equal(t, "25.00", money.Format(credited.CurrentAmount))
}

func TestService_RewindBeforeCreation(t *testing.T) {
	service, eventStore := newTestEnvelopeService()
	envelopeID, userID := uuid.NewString(), uuid.NewString()
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	seedHistory(t, eventStore, envelopeID, userID, t0)

	_, err := service.Rewind(context.Background(), envelopeID, userID, "", t0.Add(-time.Hour))
	assert.ErrorIs(t, err, aggregate.ErrInvalidOperation)
}

func TestService_ReplayIsIdempotent(t *testing.T) {
	service, eventStore := newTestEnvelopeService()
	ctx := context.Background()
	envelopeID, userID := uuid.NewString(), uuid.NewString()
	seedHistory(t, eventStore, envelopeID, userID, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))

	before, err := service.Get(ctx, envelopeID, userID)
	require.NoError(t, err)

	_, err = service.Replay(ctx, envelopeID, userID, "")
	require.NoError(t, err)
	_, err = service.Replay(ctx, envelopeID, userID, "")
	require.NoError(t, err)

	records := eventStore.AppendedRecords()
	first := records[len(records)-2].Data.(Replayed)
	second := records[len(records)-1].Data.(Replayed)
	assert.Equal(t, money.Format(before.CurrentAmount), first.CurrentAmount)
	assert.Equal(t, first.CurrentAmount, second.CurrentAmount)
	assert.Equal(t, first.TargetedAmount, second.TargetedAmount)
	assert.Equal(t, first.Name, second.Name)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))
}

func TestService_SnapshotRehydrationMatchesFullReplay(t *testing.T) {
	eventStore := mocks.NewMockEventStore()
	service := NewService(eventStore, aggregate.WithSnapshotInterval(4))
	ctx := context.Background()
	userID := uuid.NewString()
	e := addTestEnvelope(t, service, userID)

	for range 10 {
		_, err := service.Credit(ctx, e.ID, userID, "", dec("10.00"), "")
		require.NoError(t, err)
	}
	require.NotEmpty(t, eventStore.SaveSnapshotCalls)

	fromSnapshot, err := service.Get(ctx, e.ID, userID)
	require.NoError(t, err)
	fromScratch, err := service.repo.LoadFromScratch(ctx, e.ID)
	require.NoError(t, err)

	assert.True(t, fromScratch.CurrentAmount.Equal(fromSnapshot.CurrentAmount))
	assert.True(t, fromScratch.TargetedAmount.Equal(fromSnapshot.TargetedAmount))
	assert.Equal(t, fromScratch.Name, fromSnapshot.Name)
	assert.Equal(t, fromScratch.Version, fromSnapshot.Version)
	assert.Equal(t, "100.00", money.Format(fromSnapshot.CurrentAmount))
}

// ============================================
// Encryption Tests
// ============================================

func TestService_PersonalDataIsSealedAndSnapshotsHoldNoPlaintext(t *testing.T) {
	eventStore := mocks.NewMockEventStore()
	keys := keystore.NewMemoryKeyStore()
	userID := uuid.NewString()
	_, err := keys.Create(context.Background(), userID)
	require.NoError(t, err)

	service := NewService(encryption.NewGate(eventStore, keys), aggregate.WithSnapshotInterval(2))
	ctx := context.Background()

	e, err := service.Add(ctx, uuid.NewString(), userID, "", "Secret savings", dec("100.00"), "EUR")
	require.NoError(t, err)
	assert.Equal(t, "Secret savings", e.Name)

	_, err = service.Credit(ctx, e.ID, userID, "", dec("10.00"), "birthday gift")
	require.NoError(t, err)

	for ev, err := range eventStore.ReadStream(ctx, e.ID, 0) {
		require.NoError(t, err)
		assert.NotContains(t, string(ev.Payload), "Secret savings")
		assert.NotContains(t, string(ev.Payload), "birthday gift")
	}

	snapshot, err := eventStore.LoadSnapshot(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.NotContains(t, string(snapshot.State), "Secret savings")

	loaded, err := service.Get(ctx, e.ID, userID)
	require.NoError(t, err)
	assert.True(t, encryption.IsSealed(loaded.Name))
	assert.Equal(t, "10.00", money.Format(loaded.CurrentAmount))
}

func TestService_AddWithoutKeyIsRejected(t *testing.T) {
	eventStore := mocks.NewMockEventStore()
	service := NewService(encryption.NewGate(eventStore, keystore.NewMemoryKeyStore()))

	_, err := service.Add(context.Background(), uuid.NewString(), uuid.NewString(), "", "Rent", dec("900.00"), "EUR")

	assert.ErrorIs(t, err, keystore.ErrKeyNotFound)
	assert.Empty(t, eventStore.AppendCalls)
}
