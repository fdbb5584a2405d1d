package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/example/budget-event-sourced/internal/readmodel"
)

const (
	// Table
	ledgerTable = "envelope_ledger_entries"

	// Columns
	envelopeIDColumn  = "envelope_id"
	entryTypeColumn   = "entry_type"
	amountColumn      = "amount"
	descriptionColumn = "description"
)

type LedgerRepo struct {
	*Postgres
}

func NewLedgerRepo(pg *Postgres) *LedgerRepo {
	return &LedgerRepo{pg}
}

func (r *LedgerRepo) SaveLedgerEntry(ctx context.Context, e *readmodel.LedgerEntry) error {
	sql, args, err := r.Builder.
		Insert(ledgerTable).
		Columns(
			idColumn,
			envelopeIDColumn,
			userIDColumn,
			entryTypeColumn,
			amountColumn,
			descriptionColumn,
			createdAtColumn,
		).
		Values(
			e.ID,
			e.EnvelopeID,
			e.UserID,
			e.EntryType,
			e.Amount,
			e.Description,
			e.CreatedAt,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			entry_type = EXCLUDED.entry_type,
			amount = EXCLUDED.amount,
			description = EXCLUDED.description,
			created_at = EXCLUDED.created_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("LedgerRepo - SaveLedgerEntry - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("LedgerRepo - SaveLedgerEntry - executor.Exec: %w", err)
	}
	return nil
}

func (r *LedgerRepo) DeleteLedgerEntriesAfter(ctx context.Context, envelopeID string, after time.Time) error {
	sql, args, err := r.Builder.
		Delete(ledgerTable).
		Where(squirrel.And{
			squirrel.Eq{envelopeIDColumn: envelopeID},
			squirrel.Gt{createdAtColumn: after},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("LedgerRepo - DeleteLedgerEntriesAfter - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("LedgerRepo - DeleteLedgerEntriesAfter - executor.Exec: %w", err)
	}
	return nil
}

func (r *LedgerRepo) ListLedgerEntries(ctx context.Context, envelopeID string) ([]*readmodel.LedgerEntry, error) {
	sql, args, err := r.Builder.
		Select(
			idColumn,
			envelopeIDColumn,
			userIDColumn,
			entryTypeColumn,
			amountColumn+"::text",
			descriptionColumn,
			createdAtColumn,
		).
		From(ledgerTable).
		Where(squirrel.Eq{envelopeIDColumn: envelopeID}).
		OrderBy(createdAtColumn, idColumn).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("LedgerRepo - ListLedgerEntries - r.Builder.ToSql: %w", err)
	}

	rows, err := r.GetExecutor(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("LedgerRepo - ListLedgerEntries - executor.Query: %w", err)
	}
	defer rows.Close()

	var entries []*readmodel.LedgerEntry
	for rows.Next() {
		var e readmodel.LedgerEntry
		if err := rows.Scan(&e.ID, &e.EnvelopeID, &e.UserID, &e.EntryType, &e.Amount, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("LedgerRepo - ListLedgerEntries - rows.Scan: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LedgerRepo - ListLedgerEntries - rows.Err: %w", err)
	}
	return entries, nil
}
