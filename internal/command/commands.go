package command

import "time"

// Envelope Commands
type AddEnvelope struct {
	EnvelopeID     string `json:"envelopeId" validate:"required,uuid"`
	UserID         string `json:"userId" validate:"required,uuid"`
	RequestID      string `json:"requestId" validate:"omitempty,uuid"`
	Name           string `json:"name" validate:"required,max=50"`
	TargetedAmount string `json:"targetedAmount" validate:"required,numeric"`
	Currency       string `json:"currency" validate:"required,iso4217"`
}

type CreditEnvelope struct {
	EnvelopeID  string `json:"envelopeId" validate:"required,uuid"`
	UserID      string `json:"userId" validate:"required,uuid"`
	RequestID   string `json:"requestId" validate:"omitempty,uuid"`
	Amount      string `json:"creditMoney" validate:"required,numeric"`
	Description string `json:"description" validate:"max=255"`
}

type DebitEnvelope struct {
	EnvelopeID  string `json:"envelopeId" validate:"required,uuid"`
	UserID      string `json:"userId" validate:"required,uuid"`
	RequestID   string `json:"requestId" validate:"omitempty,uuid"`
	Amount      string `json:"debitMoney" validate:"required,numeric"`
	Description string `json:"description" validate:"max=255"`
}

type RenameEnvelope struct {
	EnvelopeID string `json:"envelopeId" validate:"required,uuid"`
	UserID     string `json:"userId" validate:"required,uuid"`
	RequestID  string `json:"requestId" validate:"omitempty,uuid"`
	Name       string `json:"name" validate:"required,max=50"`
}

type ChangeEnvelopeTargetedAmount struct {
	EnvelopeID     string `json:"envelopeId" validate:"required,uuid"`
	UserID         string `json:"userId" validate:"required,uuid"`
	RequestID      string `json:"requestId" validate:"omitempty,uuid"`
	TargetedAmount string `json:"targetedAmount" validate:"required,numeric"`
}

type DeleteEnvelope struct {
	EnvelopeID string `json:"envelopeId" validate:"required,uuid"`
	UserID     string `json:"userId" validate:"required,uuid"`
	RequestID  string `json:"requestId" validate:"omitempty,uuid"`
}

type RewindEnvelope struct {
	EnvelopeID      string    `json:"envelopeId" validate:"required,uuid"`
	UserID          string    `json:"userId" validate:"required,uuid"`
	RequestID       string    `json:"requestId" validate:"omitempty,uuid"`
	DesiredDateTime time.Time `json:"desiredDateTime" validate:"required"`
}

type ReplayEnvelope struct {
	EnvelopeID string `json:"envelopeId" validate:"required,uuid"`
	UserID     string `json:"userId" validate:"required,uuid"`
	RequestID  string `json:"requestId" validate:"omitempty,uuid"`
}

// Budget Plan Commands
type BudgetPlanEntry struct {
	EntryID  string `json:"entryId" validate:"required,uuid"`
	Kind     string `json:"kind" validate:"required,oneof=income need want saving"`
	Name     string `json:"name" validate:"required,max=35"`
	Amount   string `json:"amount" validate:"required,numeric"`
	Category string `json:"category" validate:"max=35"`
}

type GenerateBudgetPlan struct {
	BudgetPlanID string            `json:"budgetPlanId" validate:"required,uuid"`
	UserID       string            `json:"userId" validate:"required,uuid"`
	RequestID    string            `json:"requestId" validate:"omitempty,uuid"`
	Date         time.Time         `json:"date" validate:"required"`
	Currency     string            `json:"currency" validate:"required,iso4217"`
	Entries      []BudgetPlanEntry `json:"entries" validate:"dive"`
}

type AddBudgetPlanEntry struct {
	BudgetPlanID string          `json:"budgetPlanId" validate:"required,uuid"`
	UserID       string          `json:"userId" validate:"required,uuid"`
	RequestID    string          `json:"requestId" validate:"omitempty,uuid"`
	Entry        BudgetPlanEntry `json:"entry"`
}

type AdjustBudgetPlanEntry struct {
	BudgetPlanID string `json:"budgetPlanId" validate:"required,uuid"`
	UserID       string `json:"userId" validate:"required,uuid"`
	RequestID    string `json:"requestId" validate:"omitempty,uuid"`
	EntryID      string `json:"entryId" validate:"required,uuid"`
	Name         string `json:"name" validate:"required,max=35"`
	Amount       string `json:"amount" validate:"required,numeric"`
	Category     string `json:"category" validate:"max=35"`
}

type RemoveBudgetPlanEntry struct {
	BudgetPlanID string `json:"budgetPlanId" validate:"required,uuid"`
	UserID       string `json:"userId" validate:"required,uuid"`
	RequestID    string `json:"requestId" validate:"omitempty,uuid"`
	EntryID      string `json:"entryId" validate:"required,uuid"`
}

type ChangeBudgetPlanCurrency struct {
	BudgetPlanID string `json:"budgetPlanId" validate:"required,uuid"`
	UserID       string `json:"userId" validate:"required,uuid"`
	RequestID    string `json:"requestId" validate:"omitempty,uuid"`
	Currency     string `json:"currency" validate:"required,iso4217"`
}

type RemoveBudgetPlan struct {
	BudgetPlanID string `json:"budgetPlanId" validate:"required,uuid"`
	UserID       string `json:"userId" validate:"required,uuid"`
	RequestID    string `json:"requestId" validate:"omitempty,uuid"`
}

type RewindBudgetPlan struct {
	BudgetPlanID    string    `json:"budgetPlanId" validate:"required,uuid"`
	UserID          string    `json:"userId" validate:"required,uuid"`
	RequestID       string    `json:"requestId" validate:"omitempty,uuid"`
	DesiredDateTime time.Time `json:"desiredDateTime" validate:"required"`
}

type ReplayBudgetPlan struct {
	BudgetPlanID string `json:"budgetPlanId" validate:"required,uuid"`
	UserID       string `json:"userId" validate:"required,uuid"`
	RequestID    string `json:"requestId" validate:"omitempty,uuid"`
}

// User Commands
type SignUp struct {
	UserID             string `json:"userId" validate:"required,uuid"`
	RequestID          string `json:"requestId" validate:"omitempty,uuid"`
	Email              string `json:"email" validate:"required,email"`
	Firstname          string `json:"firstname" validate:"required,max=50"`
	Lastname           string `json:"lastname" validate:"required,max=50"`
	LanguagePreference string `json:"languagePreference" validate:"required,bcp47_language_tag"`
}

type ChangeUserName struct {
	UserID    string `json:"userId" validate:"required,uuid"`
	RequestID string `json:"requestId" validate:"omitempty,uuid"`
	Firstname string `json:"firstname" validate:"required,max=50"`
	Lastname  string `json:"lastname" validate:"required,max=50"`
}

type ChangeUserLanguagePreference struct {
	UserID             string `json:"userId" validate:"required,uuid"`
	RequestID          string `json:"requestId" validate:"omitempty,uuid"`
	LanguagePreference string `json:"languagePreference" validate:"required,bcp47_language_tag"`
}

type EraseUser struct {
	UserID    string `json:"userId" validate:"required,uuid"`
	RequestID string `json:"requestId" validate:"omitempty,uuid"`
}
