package command

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/budget-event-sourced/internal/domain/budgetplan"
	"github.com/example/budget-event-sourced/internal/domain/envelope"
	"github.com/example/budget-event-sourced/internal/domain/money"
	"github.com/example/budget-event-sourced/internal/domain/user"
	"github.com/example/budget-event-sourced/internal/encryption"
	"github.com/example/budget-event-sourced/internal/infrastructure/keystore"
	"github.com/example/budget-event-sourced/internal/infrastructure/store/mocks"
)

func newTestHandler() (*Handler, *mocks.MockEventStore) {
	eventStore := mocks.NewMockEventStore()
	keys := keystore.NewMemoryKeyStore()
	gate := encryption.NewGate(eventStore, keys)

	handler := NewHandler(
		envelope.NewService(gate),
		budgetplan.NewService(gate),
		user.NewService(gate, keys),
	)
	return handler, eventStore
}

func signUpTestUser(t *testing.T, h *Handler) string {
	t.Helper()
	userID := uuid.NewString()
	_, err := h.SignUp(context.Background(), SignUp{
		UserID:             userID,
		Email:              "jane@example.com",
		Firstname:          "Jane",
		Lastname:           "Doe",
		LanguagePreference: "en",
	})
	require.NoError(t, err)
	return userID
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	require.ErrorIs(t, err, ErrInvalidCommand)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	fields := make([]string, len(ve.Fields))
	for i, f := range ve.Fields {
		fields[i] = f.Field
	}
	return fields
}

// ============================================
// Envelope Command Tests
// ============================================

func TestHandler_EnvelopeScenario(t *testing.T) {
	handler, _ := newTestHandler()
	ctx := context.Background()
	userID := signUpTestUser(t, handler)
	envelopeID := uuid.NewString()

	_, err := handler.AddEnvelope(ctx, AddEnvelope{
		EnvelopeID:     envelopeID,
		UserID:         userID,
		Name:           "Holidays",
		TargetedAmount: "1000.00",
		Currency:       "USD",
	})
	require.NoError(t, err)

	_, err = handler.CreditEnvelope(ctx, CreditEnvelope{EnvelopeID: envelopeID, UserID: userID, Amount: "500.00", Description: "salary"})
	require.NoError(t, err)

	e, err := handler.DebitEnvelope(ctx, DebitEnvelope{EnvelopeID: envelopeID, UserID: userID, Amount: "200.00"})
	require.NoError(t, err)

	assert.Equal(t, "300.00", money.Format(e.CurrentAmount))
	assert.Equal(t, 3, e.Version)
	assert.Equal(t, "Holidays", e.Name)
}

func TestHandler_AddEnvelope_Validation(t *testing.T) {
	handler, eventStore := newTestHandler()
	userID := uuid.NewString()

	tests := []struct {
		name      string
		cmd       AddEnvelope
		wantField string
	}{
		{
			name:      "envelope id is not a uuid",
			cmd:       AddEnvelope{EnvelopeID: "42", UserID: userID, Name: "Rent", TargetedAmount: "10", Currency: "EUR"},
			wantField: "envelopeId",
		},
		{
			name:      "missing name",
			cmd:       AddEnvelope{EnvelopeID: uuid.NewString(), UserID: userID, TargetedAmount: "10", Currency: "EUR"},
			wantField: "name",
		},
		{
			name:      "amount is not a number",
			cmd:       AddEnvelope{EnvelopeID: uuid.NewString(), UserID: userID, Name: "Rent", TargetedAmount: "ten", Currency: "EUR"},
			wantField: "targetedAmount",
		},
		{
			name:      "unknown currency",
			cmd:       AddEnvelope{EnvelopeID: uuid.NewString(), UserID: userID, Name: "Rent", TargetedAmount: "10", Currency: "DOLLARS"},
			wantField: "currency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.AddEnvelope(context.Background(), tt.cmd)
			assert.Equal(t, []string{tt.wantField}, fieldsOf(t, err))
		})
	}
	assert.Empty(t, eventStore.AppendCalls)
}

func TestHandler_CreditEnvelope_NonPositiveAmount(t *testing.T) {
	handler, _ := newTestHandler()

	_, err := handler.CreditEnvelope(context.Background(), CreditEnvelope{
		EnvelopeID: uuid.NewString(),
		UserID:     uuid.NewString(),
		Amount:     "-5.00",
	})

	assert.ErrorIs(t, err, money.ErrInvalidAmount)
}

func TestHandler_RewindEnvelope_RequiresDate(t *testing.T) {
	handler, _ := newTestHandler()

	_, err := handler.RewindEnvelope(context.Background(), RewindEnvelope{
		EnvelopeID: uuid.NewString(),
		UserID:     uuid.NewString(),
	})

	assert.Equal(t, []string{"desiredDateTime"}, fieldsOf(t, err))
}

// ============================================
// Budget Plan Command Tests
// ============================================

func TestHandler_GenerateBudgetPlan(t *testing.T) {
	handler, _ := newTestHandler()
	ctx := context.Background()
	userID := signUpTestUser(t, handler)

	p, err := handler.GenerateBudgetPlan(ctx, GenerateBudgetPlan{
		BudgetPlanID: uuid.NewString(),
		UserID:       userID,
		Date:         time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
		Currency:     "EUR",
		Entries: []BudgetPlanEntry{
			{EntryID: uuid.NewString(), Kind: "income", Name: "Salary", Amount: "2500.00"},
			{EntryID: uuid.NewString(), Kind: "need", Name: "Rent", Amount: "900.00", Category: "housing"},
		},
	})
	require.NoError(t, err)

	assert.Len(t, p.Entries, 2)
	assert.Equal(t, "900.00", money.Format(p.Totals()[budgetplan.KindNeed]))
}

func TestHandler_GenerateBudgetPlan_InvalidEntry(t *testing.T) {
	handler, _ := newTestHandler()

	_, err := handler.GenerateBudgetPlan(context.Background(), GenerateBudgetPlan{
		BudgetPlanID: uuid.NewString(),
		UserID:       uuid.NewString(),
		Date:         time.Now(),
		Currency:     "EUR",
		Entries: []BudgetPlanEntry{
			{EntryID: uuid.NewString(), Kind: "luxury", Name: "Yacht", Amount: "1.00"},
		},
	})

	assert.Equal(t, []string{"entries[0].kind"}, fieldsOf(t, err))
}

func TestHandler_AdjustBudgetPlanEntry_UnknownEntry(t *testing.T) {
	handler, _ := newTestHandler()
	ctx := context.Background()
	userID := signUpTestUser(t, handler)
	planID := uuid.NewString()

	_, err := handler.GenerateBudgetPlan(ctx, GenerateBudgetPlan{BudgetPlanID: planID, UserID: userID, Date: time.Now(), Currency: "EUR"})
	require.NoError(t, err)

	_, err = handler.AdjustBudgetPlanEntry(ctx, AdjustBudgetPlanEntry{
		BudgetPlanID: planID,
		UserID:       userID,
		EntryID:      uuid.NewString(),
		Name:         "Groceries",
		Amount:       "300.00",
	})

	assert.ErrorIs(t, err, budgetplan.ErrEntryNotFound)
}

// ============================================
// User Command Tests
// ============================================

func TestHandler_SignUp_InvalidEmail(t *testing.T) {
	handler, _ := newTestHandler()

	_, err := handler.SignUp(context.Background(), SignUp{
		UserID:             uuid.NewString(),
		Email:              "not-an-email",
		Firstname:          "Jane",
		Lastname:           "Doe",
		LanguagePreference: "en",
	})

	assert.Equal(t, []string{"email"}, fieldsOf(t, err))
}

func TestHandler_EraseUser_BlocksPersonalData(t *testing.T) {
	handler, _ := newTestHandler()
	ctx := context.Background()
	userID := signUpTestUser(t, handler)

	require.NoError(t, handler.EraseUser(ctx, EraseUser{UserID: userID}))

	_, err := handler.AddEnvelope(ctx, AddEnvelope{
		EnvelopeID:     uuid.NewString(),
		UserID:         userID,
		Name:           "Holidays",
		TargetedAmount: "100.00",
		Currency:       "EUR",
	})
	assert.ErrorIs(t, err, keystore.ErrKeyNotFound)
}
