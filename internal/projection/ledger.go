package projection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/example/budget-event-sourced/internal/domain/envelope"
	"github.com/example/budget-event-sourced/internal/encryption"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
	"github.com/example/budget-event-sourced/internal/readmodel"
)

// EventReader is the part of the event store the ledger reconciles from.
type EventReader interface {
	ReadByEventTypes(ctx context.Context, aggregateID string, eventTypes []string, before time.Time) ([]store.Event, error)
}

// LedgerProjector records one ledger entry per credit and debit. On rewind and
// replay it rebuilds the ledger from the raw credit and debit history instead
// of trusting the amounts carried by the corrective event.
type LedgerProjector struct {
	repo   readmodel.LedgerRepository
	events EventReader
	opener Opener
}

func NewLedgerProjector(repo readmodel.LedgerRepository, events EventReader, opener Opener) *LedgerProjector {
	return &LedgerProjector{repo: repo, events: events, opener: opener}
}

func (p *LedgerProjector) Register(d *Dispatcher) {
	d.Claim(envelope.AggregateType)
	d.Subscribe(envelope.EventCredited, p.handleMovement)
	d.Subscribe(envelope.EventDebited, p.handleMovement)
	d.Subscribe(envelope.EventRewound, p.handleRewound)
	d.Subscribe(envelope.EventReplayed, p.handleReplayed)
}

func (p *LedgerProjector) handleMovement(ctx context.Context, e store.Event) error {
	entry, err := ledgerEntry(e)
	if err != nil {
		return err
	}
	return p.repo.SaveLedgerEntry(ctx, entry)
}

func (p *LedgerProjector) handleRewound(ctx context.Context, e store.Event) error {
	var d envelope.Rewound
	if err := e.Decode(&d); err != nil {
		return err
	}
	return p.reconcile(ctx, e, d.UpdatedAt)
}

func (p *LedgerProjector) handleReplayed(ctx context.Context, e store.Event) error {
	return p.reconcile(ctx, e, time.Time{})
}

// reconcile deletes the entries created after cut and writes back the entries
// the history before e still holds. A zero cut rebuilds the whole ledger.
func (p *LedgerProjector) reconcile(ctx context.Context, e store.Event, cut time.Time) error {
	history, err := p.events.ReadByEventTypes(ctx, e.AggregateID, []string{
		envelope.EventCredited,
		envelope.EventDebited,
		envelope.EventRewound,
	}, e.OccurredOn)
	if err != nil {
		return fmt.Errorf("read ledger history of %s: %w", e.AggregateID, err)
	}

	var entries []*readmodel.LedgerEntry
	for _, h := range history {
		if h.EventType == envelope.EventRewound {
			var earlier envelope.Rewound
			if err := h.Decode(&earlier); err != nil {
				return err
			}
			entries = createdUntil(entries, earlier.UpdatedAt)
			continue
		}

		opened, err := p.open(ctx, h)
		if err != nil {
			return err
		}
		entry, err := ledgerEntry(opened)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	if !cut.IsZero() {
		entries = createdUntil(entries, cut)
	}

	if err := p.repo.DeleteLedgerEntriesAfter(ctx, e.AggregateID, cut); err != nil {
		return err
	}
	for _, entry := range entries {
		if err := p.repo.SaveLedgerEntry(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (p *LedgerProjector) open(ctx context.Context, e store.Event) (store.Event, error) {
	if p.opener == nil {
		return e, nil
	}
	opened, err := p.opener.Open(ctx, e)
	if errors.Is(err, encryption.ErrUndecryptable) {
		return encryption.Redact(e)
	}
	return opened, err
}

func createdUntil(entries []*readmodel.LedgerEntry, t time.Time) []*readmodel.LedgerEntry {
	return slices.DeleteFunc(entries, func(entry *readmodel.LedgerEntry) bool {
		return entry.CreatedAt.After(t)
	})
}

func ledgerEntry(e store.Event) (*readmodel.LedgerEntry, error) {
	entry := &readmodel.LedgerEntry{
		ID:         e.ID,
		EnvelopeID: e.AggregateID,
		UserID:     e.UserID,
		CreatedAt:  e.OccurredOn,
	}

	switch e.EventType {
	case envelope.EventCredited:
		var d envelope.Credited
		if err := e.Decode(&d); err != nil {
			return nil, err
		}
		entry.EntryType = readmodel.EntryTypeCredit
		entry.Amount = d.CreditMoney
		entry.Description = d.Description
	case envelope.EventDebited:
		var d envelope.Debited
		if err := e.Decode(&d); err != nil {
			return nil, err
		}
		entry.EntryType = readmodel.EntryTypeDebit
		entry.Amount = d.DebitMoney
		entry.Description = d.Description
	default:
		return nil, fmt.Errorf("%w: %s is not a ledger movement", ErrUnknownEventType, e.EventType)
	}
	return entry, nil
}
