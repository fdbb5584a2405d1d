package readmodel

import "time"

// Ledger entry types
const (
	EntryTypeCredit = "credit"
	EntryTypeDebit  = "debit"
)

// EnvelopeView is the read model for budget envelopes. Version is the last
// projected event version of the envelope.
type EnvelopeView struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Name           string    `json:"name"`
	TargetedAmount string    `json:"targetedAmount"`
	CurrentAmount  string    `json:"currentAmount"`
	Currency       string    `json:"currency"`
	IsDeleted      bool      `json:"isDeleted"`
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// LedgerEntry is one credit or debit of an envelope. Its id is the id of the
// event that produced it.
type LedgerEntry struct {
	ID          string    `json:"id"`
	EnvelopeID  string    `json:"envelopeId"`
	UserID      string    `json:"userId"`
	EntryType   string    `json:"entryType"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BudgetPlanEntryView represents an entry of a budget plan
type BudgetPlanEntryView struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Category string `json:"category"`
}

// BudgetPlanView is the read model for budget plans
type BudgetPlanView struct {
	ID        string                `json:"id"`
	UserID    string                `json:"userId"`
	Date      time.Time             `json:"date"`
	Currency  string                `json:"currency"`
	Entries   []BudgetPlanEntryView `json:"entries"`
	IsDeleted bool                  `json:"isDeleted"`
	Version   int                   `json:"version"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// UserView is the read model for users. Personal fields are empty once the
// user is erased.
type UserView struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Firstname          string    `json:"firstname"`
	Lastname           string    `json:"lastname"`
	LanguagePreference string    `json:"languagePreference"`
	IsErased           bool      `json:"isErased"`
	Version            int       `json:"version"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}
