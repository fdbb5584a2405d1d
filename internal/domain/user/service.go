package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/budget-event-sourced/internal/domain/aggregate"
	"github.com/example/budget-event-sourced/internal/infrastructure/keystore"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

// Service handles user domain operations. The event store it is given is
// expected to seal personal data with the keys held by keys.
type Service struct {
	repo *aggregate.Repository[*User]
	keys keystore.KeyStore
}

func NewService(es store.EventStore, keys keystore.KeyStore, opts ...aggregate.Option) *Service {
	return &Service{
		repo: aggregate.NewRepository(es, Type, opts...),
		keys: keys,
	}
}

func (s *Service) Get(ctx context.Context, userID string) (*User, error) {
	return s.repo.Load(ctx, userID)
}

// SignUp creates the user's key before the first event is appended. The key is
// removed again when the append fails.
func (s *Service) SignUp(ctx context.Context, userID, requestID, email, firstname, lastname, language string) (*User, error) {
	u, err := SignUp(userID, requestID, email, firstname, lastname, language)
	if err != nil {
		return nil, err
	}

	if _, err := s.keys.Create(ctx, userID); err != nil {
		if errors.Is(err, keystore.ErrKeyExists) {
			return nil, fmt.Errorf("%w: %s", ErrUserAlreadyExists, userID)
		}
		return nil, err
	}

	if _, err := s.repo.Save(ctx, u); err != nil {
		if delErr := s.keys.Delete(ctx, userID); delErr != nil {
			err = errors.Join(err, delErr)
		}
		if errors.Is(err, store.ErrConcurrencyConflict) {
			return nil, fmt.Errorf("%w: %s", ErrUserAlreadyExists, userID)
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) ChangeName(ctx context.Context, userID, requestID, firstname, lastname string) (*User, error) {
	return s.mutate(ctx, userID, func(u *User) error {
		return u.ChangeName(userID, requestID, firstname, lastname)
	})
}

func (s *Service) ChangeLanguagePreference(ctx context.Context, userID, requestID, language string) (*User, error) {
	return s.mutate(ctx, userID, func(u *User) error {
		return u.ChangeLanguagePreference(userID, requestID, language)
	})
}

// Erase deletes the user's key, which makes every personal data field of the
// user unreadable, and then records the erasure.
func (s *Service) Erase(ctx context.Context, userID, requestID string) error {
	u, err := s.repo.Load(ctx, userID)
	if err != nil {
		return err
	}
	if err := aggregate.Guard(u, userID); err != nil {
		return err
	}

	if err := s.keys.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete key of user %s: %w", userID, err)
	}
	if err := u.Erase(userID, requestID); err != nil {
		return err
	}
	_, err = s.repo.Save(ctx, u)
	return err
}

func (s *Service) mutate(ctx context.Context, userID string, fn func(*User) error) (*User, error) {
	u, err := s.repo.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	if _, err := s.repo.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
