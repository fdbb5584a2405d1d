package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

// Corrections builds the payloads of the corrective events of one aggregate type.
type Corrections[T Root] struct {
	ReplayedType string
	RewoundType  string
	// Replayed returns the payload carrying the state rebuilt from version 0.
	Replayed func(rebuilt T) any
	// Rewound returns the payload carrying the state at the rewind point and
	// the UpdatedAt of current.
	Rewound func(past, current T) any
}

// Recovery rewinds and replays aggregates of one type. Both operations append a
// single corrective event and never touch existing history.
type Recovery[T Root] struct {
	repo        *Repository[T]
	corrections Corrections[T]
}

func NewRecovery[T Root](repo *Repository[T], corrections Corrections[T]) *Recovery[T] {
	return &Recovery[T]{repo: repo, corrections: corrections}
}

// Replay rebuilds the aggregate from its full stream and records the result.
func (rc *Recovery[T]) Replay(ctx context.Context, id, userID, requestID string) (T, error) {
	var zero T

	agg, err := rc.repo.LoadFromScratch(ctx, id)
	if err != nil {
		return zero, err
	}
	if err := Guard(agg, userID); err != nil {
		return zero, err
	}

	if err := rc.repo.Type().Raise(agg, store.Record{
		EventType: rc.corrections.ReplayedType,
		UserID:    userID,
		RequestID: requestID,
		Data:      rc.corrections.Replayed(agg),
	}); err != nil {
		return zero, err
	}
	if _, err := rc.repo.Save(ctx, agg); err != nil {
		return zero, err
	}
	return agg, nil
}

// Rewind records the state the aggregate had at t. Rewinding to an instant
// before the aggregate existed is rejected.
func (rc *Recovery[T]) Rewind(ctx context.Context, id, userID, requestID string, t time.Time) (T, error) {
	var zero T

	current, err := rc.repo.Load(ctx, id)
	if err != nil {
		return zero, err
	}
	if err := Guard(current, userID); err != nil {
		return zero, err
	}
	if store.Timestamp(t).Before(current.Recorder().CreatedAt) {
		return zero, fmt.Errorf("%w: %s did not exist at %s", ErrInvalidOperation, id, t.Format(time.RFC3339))
	}

	past, err := rc.repo.LoadAsOf(ctx, id, t)
	if err != nil {
		return zero, err
	}

	if err := rc.repo.Type().Raise(current, store.Record{
		EventType: rc.corrections.RewoundType,
		UserID:    userID,
		RequestID: requestID,
		Data:      rc.corrections.Rewound(past, current),
	}); err != nil {
		return zero, err
	}
	if _, err := rc.repo.Save(ctx, current); err != nil {
		return zero, err
	}
	return current, nil
}
