package envelope

import "time"

const (
	EventAdded                 = "BudgetEnvelopeAdded"
	EventCredited              = "BudgetEnvelopeCredited"
	EventDebited               = "BudgetEnvelopeDebited"
	EventRenamed               = "BudgetEnvelopeRenamed"
	EventTargetedAmountChanged = "BudgetEnvelopeTargetedAmountChanged"
	EventDeleted               = "BudgetEnvelopeDeleted"
	EventRewound               = "BudgetEnvelopeRewound"
	EventReplayed              = "BudgetEnvelopeReplayed"
)

// Amounts are decimal strings with two fraction digits.

type Added struct {
	Name           string `json:"name"`
	TargetedAmount string `json:"targetedAmount"`
	Currency       string `json:"currency"`
}

func (Added) PersonalDataFields() []string { return []string{"name"} }

type Credited struct {
	CreditMoney string `json:"creditMoney"`
	Description string `json:"description"`
}

func (Credited) PersonalDataFields() []string { return []string{"description"} }

type Debited struct {
	DebitMoney  string `json:"debitMoney"`
	Description string `json:"description"`
}

func (Debited) PersonalDataFields() []string { return []string{"description"} }

type Renamed struct {
	Name string `json:"name"`
}

func (Renamed) PersonalDataFields() []string { return []string{"name"} }

type TargetedAmountChanged struct {
	TargetedAmount string `json:"targetedAmount"`
}

type Deleted struct {
	IsDeleted bool `json:"isDeleted"`
}

// Rewound carries the state as of the rewind point. UpdatedAt is the instant
// of the last event at or before that point; PreviousUpdatedAt is the
// envelope's UpdatedAt when the rewind was requested.
type Rewound struct {
	Name              string    `json:"name"`
	TargetedAmount    string    `json:"targetedAmount"`
	CurrentAmount     string    `json:"currentAmount"`
	Currency          string    `json:"currency"`
	IsDeleted         bool      `json:"isDeleted"`
	UpdatedAt         time.Time `json:"updatedAt"`
	PreviousUpdatedAt time.Time `json:"previousUpdatedAt"`
}

func (Rewound) PersonalDataFields() []string { return []string{"name"} }

type Replayed struct {
	Name           string    `json:"name"`
	TargetedAmount string    `json:"targetedAmount"`
	CurrentAmount  string    `json:"currentAmount"`
	Currency       string    `json:"currency"`
	IsDeleted      bool      `json:"isDeleted"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (Replayed) PersonalDataFields() []string { return []string{"name"} }
