package envelope

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/example/budget-event-sourced/internal/domain/aggregate"
	"github.com/example/budget-event-sourced/internal/domain/money"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

const AggregateType = "BudgetEnvelope"

var (
	ErrTargetExceeded     = errors.New("credit would exceed the targeted amount")
	ErrInsufficientFunds  = errors.New("debit exceeds the current amount")
	ErrTargetBelowCurrent = errors.New("targeted amount is below the current amount")
)

// Envelope is money put aside for one purpose, filled up to a target.
type Envelope struct {
	aggregate.Base
	Name           string          `json:"name"`
	TargetedAmount decimal.Decimal `json:"targetedAmount"`
	CurrentAmount  decimal.Decimal `json:"currentAmount"`
	Currency       string          `json:"currency"`
	Deleted        bool            `json:"deleted"`
}

func (e *Envelope) IsDeleted() bool { return e.Deleted }

// WithoutPersonalData returns a copy with the name blanked.
func (e *Envelope) WithoutPersonalData() any {
	c := *e
	c.Name = ""
	return &c
}

// Type is the handler table of the envelope stream.
var Type = aggregate.NewType(AggregateType, func() *Envelope { return &Envelope{} }, map[string]aggregate.ApplyFunc[*Envelope]{
	EventAdded:                 (*Envelope).applyAdded,
	EventCredited:              (*Envelope).applyCredited,
	EventDebited:               (*Envelope).applyDebited,
	EventRenamed:               (*Envelope).applyRenamed,
	EventTargetedAmountChanged: (*Envelope).applyTargetedAmountChanged,
	EventDeleted:               (*Envelope).applyDeleted,
	EventRewound:               (*Envelope).applyRewound,
	EventReplayed:              (*Envelope).applyReplayed,
})

// Corrections builds the envelope's rewind and replay events.
var Corrections = aggregate.Corrections[*Envelope]{
	ReplayedType: EventReplayed,
	RewoundType:  EventRewound,
	Replayed: func(e *Envelope) any {
		return Replayed{
			Name:           e.Name,
			TargetedAmount: money.Format(e.TargetedAmount),
			CurrentAmount:  money.Format(e.CurrentAmount),
			Currency:       e.Currency,
			IsDeleted:      e.Deleted,
			UpdatedAt:      e.UpdatedAt,
		}
	},
	Rewound: func(past, current *Envelope) any {
		return Rewound{
			Name:              past.Name,
			TargetedAmount:    money.Format(past.TargetedAmount),
			CurrentAmount:     money.Format(past.CurrentAmount),
			Currency:          past.Currency,
			IsDeleted:         past.Deleted,
			UpdatedAt:         past.UpdatedAt,
			PreviousUpdatedAt: current.UpdatedAt,
		}
	},
}

// New raises the creation event of an envelope.
func New(id, userID, requestID, name string, target decimal.Decimal, currency string) (*Envelope, error) {
	if !target.IsPositive() {
		return nil, fmt.Errorf("%w: targeted amount must be greater than zero", money.ErrInvalidAmount)
	}

	e := &Envelope{}
	e.ID = id
	err := Type.Raise(e, store.Record{
		EventType: EventAdded,
		UserID:    userID,
		RequestID: requestID,
		Data: Added{
			Name:           name,
			TargetedAmount: money.Format(target),
			Currency:       currency,
		},
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Envelope) Credit(userID, requestID string, amount decimal.Decimal, description string) error {
	if err := aggregate.Guard(e, userID); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: credit must be greater than zero", money.ErrInvalidAmount)
	}
	if e.CurrentAmount.Add(amount).GreaterThan(e.TargetedAmount) {
		return fmt.Errorf("%w: %s + %s > %s", ErrTargetExceeded,
			money.Format(e.CurrentAmount), money.Format(amount), money.Format(e.TargetedAmount))
	}

	return Type.Raise(e, store.Record{
		EventType: EventCredited,
		UserID:    userID,
		RequestID: requestID,
		Data:      Credited{CreditMoney: money.Format(amount), Description: description},
	})
}

func (e *Envelope) Debit(userID, requestID string, amount decimal.Decimal, description string) error {
	if err := aggregate.Guard(e, userID); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: debit must be greater than zero", money.ErrInvalidAmount)
	}
	if amount.GreaterThan(e.CurrentAmount) {
		return fmt.Errorf("%w: %s > %s", ErrInsufficientFunds, money.Format(amount), money.Format(e.CurrentAmount))
	}

	return Type.Raise(e, store.Record{
		EventType: EventDebited,
		UserID:    userID,
		RequestID: requestID,
		Data:      Debited{DebitMoney: money.Format(amount), Description: description},
	})
}

func (e *Envelope) Rename(userID, requestID, name string) error {
	if err := aggregate.Guard(e, userID); err != nil {
		return err
	}
	return Type.Raise(e, store.Record{
		EventType: EventRenamed,
		UserID:    userID,
		RequestID: requestID,
		Data:      Renamed{Name: name},
	})
}

func (e *Envelope) ChangeTargetedAmount(userID, requestID string, target decimal.Decimal) error {
	if err := aggregate.Guard(e, userID); err != nil {
		return err
	}
	if !target.IsPositive() {
		return fmt.Errorf("%w: targeted amount must be greater than zero", money.ErrInvalidAmount)
	}
	if target.LessThan(e.CurrentAmount) {
		return fmt.Errorf("%w: %s < %s", ErrTargetBelowCurrent, money.Format(target), money.Format(e.CurrentAmount))
	}

	return Type.Raise(e, store.Record{
		EventType: EventTargetedAmountChanged,
		UserID:    userID,
		RequestID: requestID,
		Data:      TargetedAmountChanged{TargetedAmount: money.Format(target)},
	})
}

func (e *Envelope) Delete(userID, requestID string) error {
	if err := aggregate.Guard(e, userID); err != nil {
		return err
	}
	return Type.Raise(e, store.Record{
		EventType: EventDeleted,
		UserID:    userID,
		RequestID: requestID,
		Data:      Deleted{IsDeleted: true},
	})
}

func (e *Envelope) applyAdded(ev store.Event) error {
	var p Added
	if err := ev.Decode(&p); err != nil {
		return err
	}
	target, err := money.Parse(p.TargetedAmount)
	if err != nil {
		return err
	}
	e.Name = p.Name
	e.TargetedAmount = target
	e.CurrentAmount = decimal.Zero
	e.Currency = p.Currency
	return nil
}

func (e *Envelope) applyCredited(ev store.Event) error {
	var p Credited
	if err := ev.Decode(&p); err != nil {
		return err
	}
	amount, err := money.Parse(p.CreditMoney)
	if err != nil {
		return err
	}
	e.CurrentAmount = e.CurrentAmount.Add(amount)
	return nil
}

func (e *Envelope) applyDebited(ev store.Event) error {
	var p Debited
	if err := ev.Decode(&p); err != nil {
		return err
	}
	amount, err := money.Parse(p.DebitMoney)
	if err != nil {
		return err
	}
	e.CurrentAmount = e.CurrentAmount.Sub(amount)
	return nil
}

func (e *Envelope) applyRenamed(ev store.Event) error {
	var p Renamed
	if err := ev.Decode(&p); err != nil {
		return err
	}
	e.Name = p.Name
	return nil
}

func (e *Envelope) applyTargetedAmountChanged(ev store.Event) error {
	var p TargetedAmountChanged
	if err := ev.Decode(&p); err != nil {
		return err
	}
	target, err := money.Parse(p.TargetedAmount)
	if err != nil {
		return err
	}
	e.TargetedAmount = target
	return nil
}

func (e *Envelope) applyDeleted(ev store.Event) error {
	var p Deleted
	if err := ev.Decode(&p); err != nil {
		return err
	}
	e.Deleted = p.IsDeleted
	return nil
}

func (e *Envelope) applyRewound(ev store.Event) error {
	var p Rewound
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if err := e.restore(p.Name, p.TargetedAmount, p.CurrentAmount, p.Currency, p.IsDeleted); err != nil {
		return err
	}
	e.UpdatedAt = p.UpdatedAt
	return nil
}

func (e *Envelope) applyReplayed(ev store.Event) error {
	var p Replayed
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if err := e.restore(p.Name, p.TargetedAmount, p.CurrentAmount, p.Currency, p.IsDeleted); err != nil {
		return err
	}
	e.UpdatedAt = p.UpdatedAt
	return nil
}

func (e *Envelope) restore(name, target, current, currency string, deleted bool) error {
	t, err := money.Parse(target)
	if err != nil {
		return err
	}
	c, err := money.Parse(current)
	if err != nil {
		return err
	}
	e.Name = name
	e.TargetedAmount = t
	e.CurrentAmount = c
	e.Currency = currency
	e.Deleted = deleted
	return nil
}
