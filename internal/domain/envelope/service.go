package envelope

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/budget-event-sourced/internal/domain/aggregate"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

// Service runs envelope commands against the event store. Concurrency
// conflicts are returned to the caller, which reloads and retries.
type Service struct {
	repo     *aggregate.Repository[*Envelope]
	recovery *aggregate.Recovery[*Envelope]
}

func NewService(es store.EventStore, opts ...aggregate.Option) *Service {
	repo := aggregate.NewRepository(es, Type, opts...)
	return &Service{
		repo:     repo,
		recovery: aggregate.NewRecovery(repo, Corrections),
	}
}

func (s *Service) Get(ctx context.Context, envelopeID, userID string) (*Envelope, error) {
	e, err := s.repo.Load(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	if !e.OwnedBy(userID) {
		return nil, aggregate.ErrNotOwnedByUser
	}
	return e, nil
}

func (s *Service) Add(ctx context.Context, envelopeID, userID, requestID, name string, target decimal.Decimal, currency string) (*Envelope, error) {
	e, err := New(envelopeID, userID, requestID, name, target, currency)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) Credit(ctx context.Context, envelopeID, userID, requestID string, amount decimal.Decimal, description string) (*Envelope, error) {
	return s.mutate(ctx, envelopeID, func(e *Envelope) error {
		return e.Credit(userID, requestID, amount, description)
	})
}

func (s *Service) Debit(ctx context.Context, envelopeID, userID, requestID string, amount decimal.Decimal, description string) (*Envelope, error) {
	return s.mutate(ctx, envelopeID, func(e *Envelope) error {
		return e.Debit(userID, requestID, amount, description)
	})
}

func (s *Service) Rename(ctx context.Context, envelopeID, userID, requestID, name string) (*Envelope, error) {
	return s.mutate(ctx, envelopeID, func(e *Envelope) error {
		return e.Rename(userID, requestID, name)
	})
}

func (s *Service) ChangeTargetedAmount(ctx context.Context, envelopeID, userID, requestID string, target decimal.Decimal) (*Envelope, error) {
	return s.mutate(ctx, envelopeID, func(e *Envelope) error {
		return e.ChangeTargetedAmount(userID, requestID, target)
	})
}

func (s *Service) Delete(ctx context.Context, envelopeID, userID, requestID string) (*Envelope, error) {
	return s.mutate(ctx, envelopeID, func(e *Envelope) error {
		return e.Delete(userID, requestID)
	})
}

// Rewind records the state the envelope had at t.
func (s *Service) Rewind(ctx context.Context, envelopeID, userID, requestID string, t time.Time) (*Envelope, error) {
	return s.recovery.Rewind(ctx, envelopeID, userID, requestID, t)
}

// Replay recomputes the envelope from its whole history.
func (s *Service) Replay(ctx context.Context, envelopeID, userID, requestID string) (*Envelope, error) {
	return s.recovery.Replay(ctx, envelopeID, userID, requestID)
}

func (s *Service) mutate(ctx context.Context, envelopeID string, fn func(*Envelope) error) (*Envelope, error) {
	e, err := s.repo.Load(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	if err := fn(e); err != nil {
		return nil, err
	}
	if _, err := s.repo.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}
