// Package query serves the read models to their owners.
package query

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/example/budget-event-sourced/internal/readmodel"
)

// EnvelopeDetails is an envelope with its ledger, oldest entry first.
type EnvelopeDetails struct {
	*readmodel.EnvelopeView
	Ledger []*readmodel.LedgerEntry `json:"ledger"`
}

// Handler answers queries from the read models. Views of other users are
// reported as readmodel.ErrNotFound so that their existence does not leak.
type Handler struct {
	repos  readmodel.Repositories
	logger zerolog.Logger
}

func NewHandler(repos readmodel.Repositories, logger zerolog.Logger) *Handler {
	return &Handler{
		repos:  repos,
		logger: logger.With().Str("component", "query").Logger(),
	}
}

// Envelopes
func (h *Handler) GetEnvelope(ctx context.Context, userID, envelopeID string) (*readmodel.EnvelopeView, error) {
	v, err := h.repos.Envelopes.GetEnvelope(ctx, envelopeID)
	if err != nil {
		return nil, h.failed(err, "get envelope", envelopeID)
	}
	if v.UserID != userID || v.IsDeleted {
		return nil, readmodel.ErrNotFound
	}
	return v, nil
}

func (h *Handler) ListEnvelopes(ctx context.Context, userID string) ([]*readmodel.EnvelopeView, error) {
	views, err := h.repos.Envelopes.ListEnvelopes(ctx, userID)
	if err != nil {
		return nil, h.failed(err, "list envelopes", userID)
	}
	return views, nil
}

func (h *Handler) GetEnvelopeDetails(ctx context.Context, userID, envelopeID string) (*EnvelopeDetails, error) {
	v, err := h.GetEnvelope(ctx, userID, envelopeID)
	if err != nil {
		return nil, err
	}
	ledger, err := h.repos.Ledger.ListLedgerEntries(ctx, envelopeID)
	if err != nil {
		return nil, h.failed(err, "list ledger", envelopeID)
	}
	if ledger == nil {
		ledger = []*readmodel.LedgerEntry{}
	}
	return &EnvelopeDetails{EnvelopeView: v, Ledger: ledger}, nil
}

// Budget plans
func (h *Handler) GetBudgetPlan(ctx context.Context, userID, planID string) (*readmodel.BudgetPlanView, error) {
	v, err := h.repos.BudgetPlans.GetBudgetPlan(ctx, planID)
	if err != nil {
		return nil, h.failed(err, "get budget plan", planID)
	}
	if v.UserID != userID || v.IsDeleted {
		return nil, readmodel.ErrNotFound
	}
	return v, nil
}

func (h *Handler) ListBudgetPlans(ctx context.Context, userID string) ([]*readmodel.BudgetPlanView, error) {
	views, err := h.repos.BudgetPlans.ListBudgetPlans(ctx, userID)
	if err != nil {
		return nil, h.failed(err, "list budget plans", userID)
	}
	return views, nil
}

// Users
func (h *Handler) GetUser(ctx context.Context, userID string) (*readmodel.UserView, error) {
	v, err := h.repos.Users.GetUser(ctx, userID)
	if err != nil {
		return nil, h.failed(err, "get user", userID)
	}
	if v.IsErased {
		return nil, readmodel.ErrNotFound
	}
	return v, nil
}

// failed logs unexpected read model errors. Not found is a normal answer.
func (h *Handler) failed(err error, op, id string) error {
	if !errors.Is(err, readmodel.ErrNotFound) {
		h.logger.Error().Err(err).Str("id", id).Msgf("%s failed", op)
	}
	return err
}
