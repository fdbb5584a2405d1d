package readmodel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Envelopes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveEnvelope(ctx, &EnvelopeView{ID: "b", UserID: "u1", CreatedAt: now.Add(time.Second)}))
	require.NoError(t, s.SaveEnvelope(ctx, &EnvelopeView{ID: "a", UserID: "u1", CreatedAt: now}))
	require.NoError(t, s.SaveEnvelope(ctx, &EnvelopeView{ID: "c", UserID: "u1", IsDeleted: true}))
	require.NoError(t, s.SaveEnvelope(ctx, &EnvelopeView{ID: "d", UserID: "u2"}))

	views, err := s.ListEnvelopes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0].ID)
	assert.Equal(t, "b", views[1].ID)

	v, err := s.GetEnvelope(ctx, "a")
	require.NoError(t, err)
	v.Name = "changed"
	stored, _ := s.GetEnvelope(ctx, "a")
	assert.Empty(t, stored.Name)

	_, err = s.GetEnvelope(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeleteLedgerEntriesAfter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, s.SaveLedgerEntry(ctx, &LedgerEntry{ID: id, EnvelopeID: "env", CreatedAt: t0.Add(time.Duration(i) * time.Hour)}))
	}
	require.NoError(t, s.SaveLedgerEntry(ctx, &LedgerEntry{ID: "other", EnvelopeID: "env2", CreatedAt: t0.Add(5 * time.Hour)}))

	require.NoError(t, s.DeleteLedgerEntriesAfter(ctx, "env", t0.Add(time.Hour)))

	entries, err := s.ListLedgerEntries(ctx, "env")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].ID)
	assert.Equal(t, "e2", entries[1].ID)

	others, err := s.ListLedgerEntries(ctx, "env2")
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestMemoryStore_BudgetPlanEntriesAreCopied(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	plan := &BudgetPlanView{ID: "p", UserID: "u", Entries: []BudgetPlanEntryView{{ID: "x", Name: "Rent"}}}
	require.NoError(t, s.SaveBudgetPlan(ctx, plan))

	plan.Entries[0].Name = "changed"

	stored, err := s.GetBudgetPlan(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "Rent", stored.Entries[0].Name)

	plans, err := s.ListBudgetPlans(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, plans, 1)
}
