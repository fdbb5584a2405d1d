package projection

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/example/budget-event-sourced/internal/domain/envelope"
	"github.com/example/budget-event-sourced/internal/domain/money"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
	"github.com/example/budget-event-sourced/internal/readmodel"
)

// EnvelopeProjector maintains EnvelopeView rows.
type EnvelopeProjector struct {
	repo readmodel.EnvelopeRepository
}

func NewEnvelopeProjector(repo readmodel.EnvelopeRepository) *EnvelopeProjector {
	return &EnvelopeProjector{repo: repo}
}

func (p *EnvelopeProjector) Register(d *Dispatcher) {
	d.Claim(envelope.AggregateType)
	d.Subscribe(envelope.EventAdded, p.handleAdded)
	d.Subscribe(envelope.EventCredited, p.handleCredited)
	d.Subscribe(envelope.EventDebited, p.handleDebited)
	d.Subscribe(envelope.EventRenamed, p.handleRenamed)
	d.Subscribe(envelope.EventTargetedAmountChanged, p.handleTargetedAmountChanged)
	d.Subscribe(envelope.EventDeleted, p.handleDeleted)
	d.Subscribe(envelope.EventRewound, p.handleRewound)
	d.Subscribe(envelope.EventReplayed, p.handleReplayed)
}

func (p *EnvelopeProjector) handleAdded(ctx context.Context, e store.Event) error {
	var d envelope.Added
	if err := e.Decode(&d); err != nil {
		return err
	}

	existing, err := p.repo.GetEnvelope(ctx, e.AggregateID)
	if err != nil && !errors.Is(err, readmodel.ErrNotFound) {
		return err
	}
	if existing != nil {
		return nil
	}

	return p.repo.SaveEnvelope(ctx, &readmodel.EnvelopeView{
		ID:             e.AggregateID,
		UserID:         e.UserID,
		Name:           d.Name,
		TargetedAmount: d.TargetedAmount,
		CurrentAmount:  money.Format(decimal.Zero),
		Currency:       d.Currency,
		Version:        e.Version,
		CreatedAt:      e.OccurredOn,
		UpdatedAt:      e.OccurredOn,
	})
}

func (p *EnvelopeProjector) handleCredited(ctx context.Context, e store.Event) error {
	var d envelope.Credited
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.EnvelopeView) error {
		current, err := money.Parse(v.CurrentAmount)
		if err != nil {
			return err
		}
		amount, err := money.Parse(d.CreditMoney)
		if err != nil {
			return err
		}
		v.CurrentAmount = money.Format(current.Add(amount))
		return nil
	})
}

func (p *EnvelopeProjector) handleDebited(ctx context.Context, e store.Event) error {
	var d envelope.Debited
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.EnvelopeView) error {
		current, err := money.Parse(v.CurrentAmount)
		if err != nil {
			return err
		}
		amount, err := money.Parse(d.DebitMoney)
		if err != nil {
			return err
		}
		v.CurrentAmount = money.Format(current.Sub(amount))
		return nil
	})
}

func (p *EnvelopeProjector) handleRenamed(ctx context.Context, e store.Event) error {
	var d envelope.Renamed
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.EnvelopeView) error {
		v.Name = d.Name
		return nil
	})
}

func (p *EnvelopeProjector) handleTargetedAmountChanged(ctx context.Context, e store.Event) error {
	var d envelope.TargetedAmountChanged
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.EnvelopeView) error {
		v.TargetedAmount = d.TargetedAmount
		return nil
	})
}

func (p *EnvelopeProjector) handleDeleted(ctx context.Context, e store.Event) error {
	var d envelope.Deleted
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.EnvelopeView) error {
		v.IsDeleted = d.IsDeleted
		return nil
	})
}

func (p *EnvelopeProjector) handleRewound(ctx context.Context, e store.Event) error {
	var d envelope.Rewound
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.EnvelopeView) error {
		v.Name = d.Name
		v.TargetedAmount = d.TargetedAmount
		v.CurrentAmount = d.CurrentAmount
		v.Currency = d.Currency
		v.IsDeleted = d.IsDeleted
		v.UpdatedAt = d.UpdatedAt
		return nil
	})
}

func (p *EnvelopeProjector) handleReplayed(ctx context.Context, e store.Event) error {
	var d envelope.Replayed
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.EnvelopeView) error {
		v.Name = d.Name
		v.TargetedAmount = d.TargetedAmount
		v.CurrentAmount = d.CurrentAmount
		v.Currency = d.Currency
		v.IsDeleted = d.IsDeleted
		v.UpdatedAt = d.UpdatedAt
		return nil
	})
}

// update applies fn to the view of e's envelope. Missing views and events
// already reflected in the view are skipped.
func (p *EnvelopeProjector) update(ctx context.Context, e store.Event, fn func(*readmodel.EnvelopeView) error) error {
	v, err := p.repo.GetEnvelope(ctx, e.AggregateID)
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
	if err := fn(v); err != nil {
		return err
	}
	v.Version = e.Version
	return p.repo.SaveEnvelope(ctx, v)
}
