package projection

import (
	"context"
	"errors"
	"slices"

	"github.com/example/budget-event-sourced/internal/domain/budgetplan"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
	"github.com/example/budget-event-sourced/internal/readmodel"
)

// BudgetPlanProjector maintains BudgetPlanView rows with their entries.
type BudgetPlanProjector struct {
	repo readmodel.BudgetPlanRepository
}

func NewBudgetPlanProjector(repo readmodel.BudgetPlanRepository) *BudgetPlanProjector {
	return &BudgetPlanProjector{repo: repo}
}

func (p *BudgetPlanProjector) Register(d *Dispatcher) {
	d.Claim(budgetplan.AggregateType)
	d.Subscribe(budgetplan.EventGenerated, p.handleGenerated)
	d.Subscribe(budgetplan.EventEntryAdded, p.handleEntryAdded)
	d.Subscribe(budgetplan.EventEntryAdjusted, p.handleEntryAdjusted)
	d.Subscribe(budgetplan.EventEntryRemoved, p.handleEntryRemoved)
	d.Subscribe(budgetplan.EventCurrencyChanged, p.handleCurrencyChanged)
	d.Subscribe(budgetplan.EventRemoved, p.handleRemoved)
	d.Subscribe(budgetplan.EventRewound, p.handleRewound)
	d.Subscribe(budgetplan.EventReplayed, p.handleReplayed)
}

func (p *BudgetPlanProjector) handleGenerated(ctx context.Context, e store.Event) error {
	var d budgetplan.Generated
	if err := e.Decode(&d); err != nil {
		return err
	}

	existing, err := p.repo.GetBudgetPlan(ctx, e.AggregateID)
	if err != nil && !errors.Is(err, readmodel.ErrNotFound) {
		return err
	}
	if existing != nil {
		return nil
	}

	return p.repo.SaveBudgetPlan(ctx, &readmodel.BudgetPlanView{
		ID:        e.AggregateID,
		UserID:    e.UserID,
		Date:      d.Date,
		Currency:  d.Currency,
		Entries:   []readmodel.BudgetPlanEntryView{},
		Version:   e.Version,
		CreatedAt: e.OccurredOn,
		UpdatedAt: e.OccurredOn,
	})
}

func (p *BudgetPlanProjector) handleEntryAdded(ctx context.Context, e store.Event) error {
	var d budgetplan.EntryAdded
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.BudgetPlanView) {
		v.Entries = append(v.Entries, readmodel.BudgetPlanEntryView{
			ID:       d.EntryID,
			Kind:     string(d.Kind),
			Name:     d.Name,
			Amount:   d.Amount,
			Category: d.Category,
		})
	})
}

func (p *BudgetPlanProjector) handleEntryAdjusted(ctx context.Context, e store.Event) error {
	var d budgetplan.EntryAdjusted
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.BudgetPlanView) {
		for i := range v.Entries {
			if v.Entries[i].ID == d.EntryID {
				v.Entries[i].Name = d.Name
				v.Entries[i].Amount = d.Amount
				v.Entries[i].Category = d.Category
			}
		}
	})
}

func (p *BudgetPlanProjector) handleEntryRemoved(ctx context.Context, e store.Event) error {
	var d budgetplan.EntryRemoved
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.BudgetPlanView) {
		v.Entries = slices.DeleteFunc(v.Entries, func(entry readmodel.BudgetPlanEntryView) bool {
			return entry.ID == d.EntryID
		})
	})
}

func (p *BudgetPlanProjector) handleCurrencyChanged(ctx context.Context, e store.Event) error {
	var d budgetplan.CurrencyChanged
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.BudgetPlanView) {
		v.Currency = d.Currency
	})
}

func (p *BudgetPlanProjector) handleRemoved(ctx context.Context, e store.Event) error {
	var d budgetplan.Removed
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.BudgetPlanView) {
		v.IsDeleted = d.IsDeleted
	})
}

func (p *BudgetPlanProjector) handleRewound(ctx context.Context, e store.Event) error {
	var d budgetplan.Rewound
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.BudgetPlanView) {
		v.Date = d.Date
		v.Currency = d.Currency
		v.Entries = entryViews(d.Entries)
		v.IsDeleted = d.IsDeleted
		v.UpdatedAt = d.UpdatedAt
	})
}

func (p *BudgetPlanProjector) handleReplayed(ctx context.Context, e store.Event) error {
	var d budgetplan.Replayed
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.BudgetPlanView) {
		v.Date = d.Date
		v.Currency = d.Currency
		v.Entries = entryViews(d.Entries)
		v.IsDeleted = d.IsDeleted
		v.UpdatedAt = d.UpdatedAt
	})
}

func (p *BudgetPlanProjector) update(ctx context.Context, e store.Event, fn func(*readmodel.BudgetPlanView)) error {
	v, err := p.repo.GetBudgetPlan(ctx, e.AggregateID)
	if errors.Is(err, readmodel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if v.Version >= e.Version {
		return nil
	}

	v.UpdatedAt = e.OccurredOn
	fn(v)
	v.Version = e.Version
	return p.repo.SaveBudgetPlan(ctx, v)
}

func entryViews(states []budgetplan.EntryState) []readmodel.BudgetPlanEntryView {
	views := make([]readmodel.BudgetPlanEntryView, 0, len(states))
	for _, s := range states {
		views = append(views, readmodel.BudgetPlanEntryView{
			ID:       s.ID,
			Kind:     string(s.Kind),
			Name:     s.Name,
			Amount:   s.Amount,
			Category: s.Category,
		})
	}
	return views
}
