package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS envelope_views (
	id              UUID PRIMARY KEY,
	user_id         UUID NOT NULL,
	name            TEXT NOT NULL,
	targeted_amount NUMERIC(14,2) NOT NULL,
	current_amount  NUMERIC(14,2) NOT NULL,
	currency        VARCHAR(3) NOT NULL,
	is_deleted      BOOLEAN NOT NULL DEFAULT FALSE,
	version         INTEGER NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_envelope_views_user ON envelope_views(user_id);

CREATE TABLE IF NOT EXISTS envelope_ledger_entries (
	id          UUID PRIMARY KEY,
	envelope_id UUID NOT NULL,
	user_id     UUID NOT NULL,
	entry_type  VARCHAR(10) NOT NULL,
	amount      NUMERIC(14,2) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_envelope ON envelope_ledger_entries(envelope_id, created_at);

CREATE TABLE IF NOT EXISTS budget_plan_views (
	id         UUID PRIMARY KEY,
	user_id    UUID NOT NULL,
	date       DATE NOT NULL,
	currency   VARCHAR(3) NOT NULL,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	version    INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_budget_plan_views_user ON budget_plan_views(user_id);

CREATE TABLE IF NOT EXISTS budget_plan_entry_views (
	id             TEXT NOT NULL,
	budget_plan_id UUID NOT NULL REFERENCES budget_plan_views(id) ON DELETE CASCADE,
	position       INTEGER NOT NULL,
	kind           VARCHAR(10) NOT NULL,
	name           TEXT NOT NULL,
	amount         NUMERIC(14,2) NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (budget_plan_id, id)
);

CREATE TABLE IF NOT EXISTS user_views (
	id                  UUID PRIMARY KEY,
	email               TEXT NOT NULL,
	firstname           TEXT NOT NULL,
	lastname            TEXT NOT NULL,
	language_preference VARCHAR(35) NOT NULL,
	is_erased           BOOLEAN NOT NULL DEFAULT FALSE,
	version             INTEGER NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the read model tables.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("Postgres - Migrate: %w", err)
	}
	return nil
}
