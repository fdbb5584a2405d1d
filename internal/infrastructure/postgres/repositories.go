package postgres

import "github.com/example/budget-event-sourced/internal/readmodel"

// Repositories returns the Postgres implementation of every read model repository.
func Repositories(pg *Postgres) readmodel.Repositories {
	return readmodel.Repositories{
		Envelopes:   NewEnvelopeRepo(pg),
		Ledger:      NewLedgerRepo(pg),
		BudgetPlans: NewBudgetPlanRepo(pg),
		Users:       NewUserRepo(pg),
	}
}
