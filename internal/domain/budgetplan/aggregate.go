package budgetplan

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/budget-event-sourced/internal/domain/aggregate"
	"github.com/example/budget-event-sourced/internal/domain/money"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

const AggregateType = "BudgetPlan"

// Kind classifies an entry of the plan.
type Kind string

const (
	KindIncome Kind = "income"
	KindNeed   Kind = "need"
	KindWant   Kind = "want"
	KindSaving Kind = "saving"
)

var Kinds = []Kind{KindIncome, KindNeed, KindWant, KindSaving}

var (
	ErrUnknownKind   = errors.New("unknown entry kind")
	ErrEntryNotFound = errors.New("budget plan entry not found")
	ErrEntryExists   = errors.New("budget plan entry already exists")
)

type Entry struct {
	ID       string          `json:"id"`
	Kind     Kind            `json:"kind"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
}

// BudgetPlan is the income and spending plan of one user for one month.
type BudgetPlan struct {
	aggregate.Base
	Date     time.Time `json:"date"`
	Currency string    `json:"currency"`
	Entries  []Entry   `json:"entries"`
	Deleted  bool      `json:"deleted"`
}

func (p *BudgetPlan) IsDeleted() bool { return p.Deleted }

// WithoutPersonalData returns a copy with the entry names blanked.
func (p *BudgetPlan) WithoutPersonalData() any {
	c := *p
	c.Entries = make([]Entry, len(p.Entries))
	for i, e := range p.Entries {
		e.Name = ""
		c.Entries[i] = e
	}
	return &c
}

// Totals sums the entry amounts per kind.
func (p *BudgetPlan) Totals() map[Kind]decimal.Decimal {
	totals := make(map[Kind]decimal.Decimal, len(Kinds))
	for _, k := range Kinds {
		totals[k] = decimal.Zero
	}
	for _, e := range p.Entries {
		totals[e.Kind] = totals[e.Kind].Add(e.Amount)
	}
	return totals
}

func (p *BudgetPlan) entry(id string) (int, bool) {
	i := slices.IndexFunc(p.Entries, func(e Entry) bool { return e.ID == id })
	return i, i >= 0
}

var Type = aggregate.NewType(AggregateType, func() *BudgetPlan { return &BudgetPlan{} }, map[string]aggregate.ApplyFunc[*BudgetPlan]{
	EventGenerated:       (*BudgetPlan).applyGenerated,
	EventEntryAdded:      (*BudgetPlan).applyEntryAdded,
	EventEntryAdjusted:   (*BudgetPlan).applyEntryAdjusted,
	EventEntryRemoved:    (*BudgetPlan).applyEntryRemoved,
	EventCurrencyChanged: (*BudgetPlan).applyCurrencyChanged,
	EventRemoved:         (*BudgetPlan).applyRemoved,
	EventRewound:         (*BudgetPlan).applyRewound,
	EventReplayed:        (*BudgetPlan).applyReplayed,
})

var Corrections = aggregate.Corrections[*BudgetPlan]{
	ReplayedType: EventReplayed,
	RewoundType:  EventRewound,
	Replayed: func(p *BudgetPlan) any {
		return Replayed{
			Date:      p.Date,
			Currency:  p.Currency,
			Entries:   entryStates(p.Entries),
			IsDeleted: p.Deleted,
			UpdatedAt: p.UpdatedAt,
		}
	},
	Rewound: func(past, current *BudgetPlan) any {
		return Rewound{
			Date:              past.Date,
			Currency:          past.Currency,
			Entries:           entryStates(past.Entries),
			IsDeleted:         past.Deleted,
			UpdatedAt:         past.UpdatedAt,
			PreviousUpdatedAt: current.UpdatedAt,
		}
	},
}

func entryStates(entries []Entry) []EntryState {
	states := make([]EntryState, 0, len(entries))
	for _, e := range entries {
		states = append(states, EntryState{
			ID:       e.ID,
			Kind:     e.Kind,
			Name:     e.Name,
			Amount:   money.Format(e.Amount),
			Category: e.Category,
		})
	}
	return states
}

func validKind(k Kind) error {
	if !slices.Contains(Kinds, k) {
		return fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return nil
}

// NewEntry is an entry to add to a plan.
type NewEntry struct {
	ID       string
	Kind     Kind
	Name     string
	Amount   decimal.Decimal
	Category string
}

// Generate raises the creation event of a plan followed by its initial entries.
// The date is normalised to the first day of its month.
func Generate(id, userID, requestID string, date time.Time, currency string, entries []NewEntry) (*BudgetPlan, error) {
	p := &BudgetPlan{}
	p.ID = id
	month := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)

	if err := Type.Raise(p, store.Record{
		EventType: EventGenerated,
		UserID:    userID,
		RequestID: requestID,
		Data:      Generated{Date: month, Currency: currency},
	}); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := p.AddEntry(userID, requestID, e); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *BudgetPlan) AddEntry(userID, requestID string, e NewEntry) error {
	if err := aggregate.Guard(p, userID); err != nil {
		return err
	}
	if err := validKind(e.Kind); err != nil {
		return err
	}
	if !e.Amount.IsPositive() {
		return fmt.Errorf("%w: entry amount must be greater than zero", money.ErrInvalidAmount)
	}
	if _, ok := p.entry(e.ID); ok {
		return fmt.Errorf("%w: %s", ErrEntryExists, e.ID)
	}

	return Type.Raise(p, store.Record{
		EventType: EventEntryAdded,
		UserID:    userID,
		RequestID: requestID,
		Data: EntryAdded{
			EntryID:  e.ID,
			Kind:     e.Kind,
			Name:     e.Name,
			Amount:   money.Format(e.Amount),
			Category: e.Category,
		},
	})
}

func (p *BudgetPlan) AdjustEntry(userID, requestID, entryID, name string, amount decimal.Decimal, category string) error {
	if err := aggregate.Guard(p, userID); err != nil {
		return err
	}
	if _, ok := p.entry(entryID); !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: entry amount must be greater than zero", money.ErrInvalidAmount)
	}

	return Type.Raise(p, store.Record{
		EventType: EventEntryAdjusted,
		UserID:    userID,
		RequestID: requestID,
		Data: EntryAdjusted{
			EntryID:  entryID,
			Name:     name,
			Amount:   money.Format(amount),
			Category: category,
		},
	})
}

func (p *BudgetPlan) RemoveEntry(userID, requestID, entryID string) error {
	if err := aggregate.Guard(p, userID); err != nil {
		return err
	}
	if _, ok := p.entry(entryID); !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}

	return Type.Raise(p, store.Record{
		EventType: EventEntryRemoved,
		UserID:    userID,
		RequestID: requestID,
		Data:      EntryRemoved{EntryID: entryID},
	})
}

func (p *BudgetPlan) ChangeCurrency(userID, requestID, currency string) error {
	if err := aggregate.Guard(p, userID); err != nil {
		return err
	}
	return Type.Raise(p, store.Record{
		EventType: EventCurrencyChanged,
		UserID:    userID,
		RequestID: requestID,
		Data:      CurrencyChanged{Currency: currency},
	})
}

func (p *BudgetPlan) Remove(userID, requestID string) error {
	if err := aggregate.Guard(p, userID); err != nil {
		return err
	}
	return Type.Raise(p, store.Record{
		EventType: EventRemoved,
		UserID:    userID,
		RequestID: requestID,
		Data:      Removed{IsDeleted: true},
	})
}

func (p *BudgetPlan) applyGenerated(ev store.Event) error {
	var d Generated
	if err := ev.Decode(&d); err != nil {
		return err
	}
	p.Date = d.Date
	p.Currency = d.Currency
	p.Entries = nil
	return nil
}

func (p *BudgetPlan) applyEntryAdded(ev store.Event) error {
	var d EntryAdded
	if err := ev.Decode(&d); err != nil {
		return err
	}
	amount, err := money.Parse(d.Amount)
	if err != nil {
		return err
	}
	p.Entries = append(p.Entries, Entry{ID: d.EntryID, Kind: d.Kind, Name: d.Name, Amount: amount, Category: d.Category})
	return nil
}

func (p *BudgetPlan) applyEntryAdjusted(ev store.Event) error {
	var d EntryAdjusted
	if err := ev.Decode(&d); err != nil {
		return err
	}
	i, ok := p.entry(d.EntryID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, d.EntryID)
	}
	amount, err := money.Parse(d.Amount)
	if err != nil {
		return err
	}
	p.Entries[i].Name = d.Name
	p.Entries[i].Amount = amount
	p.Entries[i].Category = d.Category
	return nil
}

func (p *BudgetPlan) applyEntryRemoved(ev store.Event) error {
	var d EntryRemoved
	if err := ev.Decode(&d); err != nil {
		return err
	}
	p.Entries = slices.DeleteFunc(p.Entries, func(e Entry) bool { return e.ID == d.EntryID })
	return nil
}

func (p *BudgetPlan) applyCurrencyChanged(ev store.Event) error {
	var d CurrencyChanged
	if err := ev.Decode(&d); err != nil {
		return err
	}
	p.Currency = d.Currency
	return nil
}

func (p *BudgetPlan) applyRemoved(ev store.Event) error {
	var d Removed
	if err := ev.Decode(&d); err != nil {
		return err
	}
	p.Deleted = d.IsDeleted
	return nil
}

func (p *BudgetPlan) applyRewound(ev store.Event) error {
	var d Rewound
	if err := ev.Decode(&d); err != nil {
		return err
	}
	if err := p.restore(d.Date, d.Currency, d.Entries, d.IsDeleted); err != nil {
		return err
	}
	p.UpdatedAt = d.UpdatedAt
	return nil
}

func (p *BudgetPlan) applyReplayed(ev store.Event) error {
	var d Replayed
	if err := ev.Decode(&d); err != nil {
		return err
	}
	if err := p.restore(d.Date, d.Currency, d.Entries, d.IsDeleted); err != nil {
		return err
	}
	p.UpdatedAt = d.UpdatedAt
	return nil
}

func (p *BudgetPlan) restore(date time.Time, currency string, states []EntryState, deleted bool) error {
	entries := make([]Entry, 0, len(states))
	for _, s := range states {
		amount, err := money.Parse(s.Amount)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{ID: s.ID, Kind: s.Kind, Name: s.Name, Amount: amount, Category: s.Category})
	}
	p.Date = date
	p.Currency = currency
	p.Entries = entries
	p.Deleted = deleted
	return nil
}
