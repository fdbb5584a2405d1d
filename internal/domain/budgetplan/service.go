package budgetplan

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/budget-event-sourced/internal/domain/aggregate"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

type Service struct {
	repo     *aggregate.Repository[*BudgetPlan]
	recovery *aggregate.Recovery[*BudgetPlan]
}

func NewService(es store.EventStore, opts ...aggregate.Option) *Service {
	repo := aggregate.NewRepository(es, Type, opts...)
	return &Service{
		repo:     repo,
		recovery: aggregate.NewRecovery(repo, Corrections),
	}
}

func (s *Service) Get(ctx context.Context, planID, userID string) (*BudgetPlan, error) {
	p, err := s.repo.Load(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !p.OwnedBy(userID) {
		return nil, aggregate.ErrNotOwnedByUser
	}
	return p, nil
}

func (s *Service) Generate(ctx context.Context, planID, userID, requestID string, date time.Time, currency string, entries []NewEntry) (*BudgetPlan, error) {
	p, err := Generate(planID, userID, requestID, date, currency, entries)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) AddEntry(ctx context.Context, planID, userID, requestID string, entry NewEntry) (*BudgetPlan, error) {
	return s.mutate(ctx, planID, func(p *BudgetPlan) error {
		return p.AddEntry(userID, requestID, entry)
	})
}

func (s *Service) AdjustEntry(ctx context.Context, planID, userID, requestID, entryID, name string, amount decimal.Decimal, category string) (*BudgetPlan, error) {
	return s.mutate(ctx, planID, func(p *BudgetPlan) error {
		return p.AdjustEntry(userID, requestID, entryID, name, amount, category)
	})
}

func (s *Service) RemoveEntry(ctx context.Context, planID, userID, requestID, entryID string) (*BudgetPlan, error) {
	return s.mutate(ctx, planID, func(p *BudgetPlan) error {
		return p.RemoveEntry(userID, requestID, entryID)
	})
}

func (s *Service) ChangeCurrency(ctx context.Context, planID, userID, requestID, currency string) (*BudgetPlan, error) {
	return s.mutate(ctx, planID, func(p *BudgetPlan) error {
		return p.ChangeCurrency(userID, requestID, currency)
	})
}

func (s *Service) Remove(ctx context.Context, planID, userID, requestID string) (*BudgetPlan, error) {
	return s.mutate(ctx, planID, func(p *BudgetPlan) error {
		return p.Remove(userID, requestID)
	})
}

func (s *Service) Rewind(ctx context.Context, planID, userID, requestID string, t time.Time) (*BudgetPlan, error) {
	return s.recovery.Rewind(ctx, planID, userID, requestID, t)
}

func (s *Service) Replay(ctx context.Context, planID, userID, requestID string) (*BudgetPlan, error) {
	return s.recovery.Replay(ctx, planID, userID, requestID)
}

func (s *Service) mutate(ctx context.Context, planID string, fn func(*BudgetPlan) error) (*BudgetPlan, error) {
	p, err := s.repo.Load(ctx, planID)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if _, err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
