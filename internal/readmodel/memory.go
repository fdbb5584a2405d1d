package readmodel

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of every read model repository.
// Rows are copied in and out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	envelopes   map[string]EnvelopeView
	ledger      map[string]LedgerEntry
	budgetPlans map[string]BudgetPlanView
	users       map[string]UserView
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		envelopes:   make(map[string]EnvelopeView),
		ledger:      make(map[string]LedgerEntry),
		budgetPlans: make(map[string]BudgetPlanView),
		users:       make(map[string]UserView),
	}
}

// Repositories returns the store behind every repository interface.
func (s *MemoryStore) Repositories() Repositories {
	return Repositories{Envelopes: s, Ledger: s, BudgetPlans: s, Users: s}
}

func (s *MemoryStore) GetEnvelope(_ context.Context, id string) (*EnvelopeView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.envelopes[id]
	if !ok {
		return nil, fmt.Errorf("envelope %s: %w", id, ErrNotFound)
	}
	return &v, nil
}

func (s *MemoryStore) ListEnvelopes(_ context.Context, userID string) ([]*EnvelopeView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var views []*EnvelopeView
	for _, v := range s.envelopes {
		if v.UserID == userID && !v.IsDeleted {
			views = append(views, &v)
		}
	}
	slices.SortFunc(views, func(a, b *EnvelopeView) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return views, nil
}

func (s *MemoryStore) SaveEnvelope(_ context.Context, v *EnvelopeView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.envelopes[v.ID] = *v
	return nil
}

func (s *MemoryStore) SaveLedgerEntry(_ context.Context, e *LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger[e.ID] = *e
	return nil
}

func (s *MemoryStore) DeleteLedgerEntriesAfter(_ context.Context, envelopeID string, after time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.ledger {
		if e.EnvelopeID == envelopeID && e.CreatedAt.After(after) {
			delete(s.ledger, id)
		}
	}
	return nil
}

func (s *MemoryStore) ListLedgerEntries(_ context.Context, envelopeID string) ([]*LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*LedgerEntry
	for _, e := range s.ledger {
		if e.EnvelopeID == envelopeID {
			entries = append(entries, &e)
		}
	}
	slices.SortFunc(entries, func(a, b *LedgerEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return entries, nil
}

func (s *MemoryStore) GetBudgetPlan(_ context.Context, id string) (*BudgetPlanView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.budgetPlans[id]
	if !ok {
		return nil, fmt.Errorf("budget plan %s: %w", id, ErrNotFound)
	}
	v.Entries = slices.Clone(v.Entries)
	return &v, nil
}

func (s *MemoryStore) ListBudgetPlans(_ context.Context, userID string) ([]*BudgetPlanView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var views []*BudgetPlanView
	for _, v := range s.budgetPlans {
		if v.UserID == userID && !v.IsDeleted {
			v.Entries = slices.Clone(v.Entries)
			views = append(views, &v)
		}
	}
	slices.SortFunc(views, func(a, b *BudgetPlanView) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return views, nil
}

func (s *MemoryStore) SaveBudgetPlan(_ context.Context, v *BudgetPlanView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *v
	stored.Entries = slices.Clone(v.Entries)
	s.budgetPlans[v.ID] = stored
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*UserView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &v, nil
}

func (s *MemoryStore) SaveUser(_ context.Context, v *UserView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[v.ID] = *v
	return nil
}
