package projection

import (
	"context"
	"errors"

	"github.com/example/budget-event-sourced/internal/domain/user"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
	"github.com/example/budget-event-sourced/internal/readmodel"
)

// UserProjector maintains UserView rows.
type UserProjector struct {
	repo readmodel.UserRepository
}

func NewUserProjector(repo readmodel.UserRepository) *UserProjector {
	return &UserProjector{repo: repo}
}

func (p *UserProjector) Register(d *Dispatcher) {
	d.Claim(user.AggregateType)
	d.Subscribe(user.EventSignedUp, p.handleSignedUp)
	d.Subscribe(user.EventNameChanged, p.handleNameChanged)
	d.Subscribe(user.EventLanguagePreferenceChanged, p.handleLanguagePreferenceChanged)
	d.Subscribe(user.EventErased, p.handleErased)
}

func (p *UserProjector) handleSignedUp(ctx context.Context, e store.Event) error {
	var d user.SignedUp
	if err := e.Decode(&d); err != nil {
		return err
	}

	existing, err := p.repo.GetUser(ctx, e.AggregateID)
	if err != nil && !errors.Is(err, readmodel.ErrNotFound) {
		return err
	}
	if existing != nil {
		return nil
	}

	return p.repo.SaveUser(ctx, &readmodel.UserView{
		ID:                 e.AggregateID,
		Email:              d.Email,
		Firstname:          d.Firstname,
		Lastname:           d.Lastname,
		LanguagePreference: d.LanguagePreference,
		Version:            e.Version,
		CreatedAt:          e.OccurredOn,
		UpdatedAt:          e.OccurredOn,
	})
}

func (p *UserProjector) handleNameChanged(ctx context.Context, e store.Event) error {
	var d user.NameChanged
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.UserView) {
		v.Firstname = d.Firstname
		v.Lastname = d.Lastname
	})
}

func (p *UserProjector) handleLanguagePreferenceChanged(ctx context.Context, e store.Event) error {
	var d user.LanguagePreferenceChanged
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.UserView) {
		v.LanguagePreference = d.LanguagePreference
	})
}

func (p *UserProjector) handleErased(ctx context.Context, e store.Event) error {
	var d user.Erased
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.update(ctx, e, func(v *readmodel.UserView) {
		v.Email = ""
		v.Firstname = ""
		v.Lastname = ""
		v.IsErased = d.IsErased
	})
}

func (p *UserProjector) update(ctx context.Context, e store.Event, fn func(*readmodel.UserView)) error {
	v, err := p.repo.GetUser(ctx, e.AggregateID)
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
	return p.repo.SaveUser(ctx, v)
}
