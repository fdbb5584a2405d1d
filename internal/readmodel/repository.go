// Package readmodel holds the denormalised views built by the projectors and
// the repositories they are stored in.
package readmodel

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get methods when no row has the given id.
var ErrNotFound = errors.New("read model not found")

type EnvelopeRepository interface {
	GetEnvelope(ctx context.Context, id string) (*EnvelopeView, error)
	ListEnvelopes(ctx context.Context, userID string) ([]*EnvelopeView, error)
	SaveEnvelope(ctx context.Context, v *EnvelopeView) error
}

type LedgerRepository interface {
	// SaveLedgerEntry inserts the entry or replaces the one with the same id.
	SaveLedgerEntry(ctx context.Context, e *LedgerEntry) error
	// DeleteLedgerEntriesAfter removes the entries of an envelope created
	// strictly after the given instant.
	DeleteLedgerEntriesAfter(ctx context.Context, envelopeID string, after time.Time) error
	// ListLedgerEntries returns the entries of an envelope, oldest first.
	ListLedgerEntries(ctx context.Context, envelopeID string) ([]*LedgerEntry, error)
}

type BudgetPlanRepository interface {
	GetBudgetPlan(ctx context.Context, id string) (*BudgetPlanView, error)
	ListBudgetPlans(ctx context.Context, userID string) ([]*BudgetPlanView, error)
	// SaveBudgetPlan upserts the plan and replaces its entries.
	SaveBudgetPlan(ctx context.Context, v *BudgetPlanView) error
}

type UserRepository interface {
	GetUser(ctx context.Context, id string) (*UserView, error)
	SaveUser(ctx context.Context, v *UserView) error
}

// Repositories groups the repositories one backend provides.
type Repositories struct {
	Envelopes   EnvelopeRepository
	Ledger      LedgerRepository
	BudgetPlans BudgetPlanRepository
	Users       UserRepository
}
