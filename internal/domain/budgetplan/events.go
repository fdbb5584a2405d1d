package budgetplan

import "time"

const (
	EventGenerated       = "BudgetPlanGenerated"
	EventEntryAdded      = "BudgetPlanEntryAdded"
	EventEntryAdjusted   = "BudgetPlanEntryAdjusted"
	EventEntryRemoved    = "BudgetPlanEntryRemoved"
	EventCurrencyChanged = "BudgetPlanCurrencyChanged"
	EventRemoved         = "BudgetPlanRemoved"
	EventRewound         = "BudgetPlanRewound"
	EventReplayed        = "BudgetPlanReplayed"
)

type Generated struct {
	Date     time.Time `json:"date"`
	Currency string    `json:"currency"`
}

type EntryAdded struct {
	EntryID  string `json:"entryId"`
	Kind     Kind   `json:"kind"`
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Category string `json:"category"`
}

func (EntryAdded) PersonalDataFields() []string { return []string{"name"} }

type EntryAdjusted struct {
	EntryID  string `json:"entryId"`
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Category string `json:"category"`
}

func (EntryAdjusted) PersonalDataFields() []string { return []string{"name"} }

type EntryRemoved struct {
	EntryID string `json:"entryId"`
}

type CurrencyChanged struct {
	Currency string `json:"currency"`
}

type Removed struct {
	IsDeleted bool `json:"isDeleted"`
}

// EntryState is an entry as carried by the corrective events.
type EntryState struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Category string `json:"category"`
}

type Rewound struct {
	Date              time.Time    `json:"date"`
	Currency          string       `json:"currency"`
	Entries           []EntryState `json:"entries"`
	IsDeleted         bool         `json:"isDeleted"`
	UpdatedAt         time.Time    `json:"updatedAt"`
	PreviousUpdatedAt time.Time    `json:"previousUpdatedAt"`
}

func (Rewound) PersonalDataFields() []string { return []string{"entries[].name"} }

type Replayed struct {
	Date      time.Time    `json:"date"`
	Currency  string       `json:"currency"`
	Entries   []EntryState `json:"entries"`
	IsDeleted bool         `json:"isDeleted"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func (Replayed) PersonalDataFields() []string { return []string{"entries[].name"} }
