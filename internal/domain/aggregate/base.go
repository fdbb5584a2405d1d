package aggregate

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

var (
	ErrAggregateNotFound = errors.New("aggregate not found")
	ErrNotOwnedByUser    = errors.New("aggregate is not owned by user")
	ErrInvalidOperation  = errors.New("invalid operation")
	ErrUnknownEventType  = errors.New("unknown event type")
)

// Root is implemented by every aggregate through an embedded Base.
type Root interface {
	Recorder() *Base
}

// Deletable aggregates reject mutations once deleted.
type Deletable interface {
	IsDeleted() bool
}

// Base records raised events and tracks the identity, owner and version of an
// aggregate. Its exported fields are part of the aggregate's snapshot state.
type Base struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Version   int       `json:"version"` // version of the last applied event, pending ones included
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	pending         []store.Record
	snapshotVersion int
}

func (b *Base) Recorder() *Base { return b }

// PendingEvents returns the events raised since the last save.
func (b *Base) PendingEvents() []store.Record {
	return slices.Clone(b.pending)
}

func (b *Base) ClearPendingEvents() {
	b.pending = nil
}

// PersistedVersion is the stream version the aggregate was loaded at.
func (b *Base) PersistedVersion() int {
	return b.Version - len(b.pending)
}

func (b *Base) OwnedBy(userID string) bool {
	return b.UserID != "" && b.UserID == userID
}

// Guard checks that userID owns agg and that agg has not been deleted.
func Guard(agg Root, userID string) error {
	b := agg.Recorder()
	if !b.OwnedBy(userID) {
		return fmt.Errorf("%w: %s", ErrNotOwnedByUser, b.ID)
	}
	if d, ok := agg.(Deletable); ok && d.IsDeleted() {
		return fmt.Errorf("%w: %s is deleted", ErrInvalidOperation, b.ID)
	}
	return nil
}
