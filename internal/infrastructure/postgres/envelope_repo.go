package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/example/budget-event-sourced/internal/readmodel"
)

const (
	// Table
	envelopeViewsTable = "envelope_views"

	// Columns
	idColumn             = "id"
	userIDColumn         = "user_id"
	nameColumn           = "name"
	targetedAmountColumn = "targeted_amount"
	currentAmountColumn  = "current_amount"
	currencyColumn       = "currency"
	isDeletedColumn      = "is_deleted"
	versionColumn        = "version"
	createdAtColumn      = "created_at"
	updatedAtColumn      = "updated_at"
)

var envelopeColumns = []string{
	idColumn,
	userIDColumn,
	nameColumn,
	targetedAmountColumn + "::text",
	currentAmountColumn + "::text",
	currencyColumn,
	isDeletedColumn,
	versionColumn,
	createdAtColumn,
	updatedAtColumn,
}

type EnvelopeRepo struct {
	*Postgres
}

func NewEnvelopeRepo(pg *Postgres) *EnvelopeRepo {
	return &EnvelopeRepo{pg}
}

func (r *EnvelopeRepo) GetEnvelope(ctx context.Context, id string) (*readmodel.EnvelopeView, error) {
	sql, args, err := r.Builder.
		Select(envelopeColumns...).
		From(envelopeViewsTable).
		Where(squirrel.Eq{idColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("EnvelopeRepo - GetEnvelope - r.Builder.ToSql: %w", err)
	}

	v, err := scanEnvelope(r.GetExecutor(ctx).QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("EnvelopeRepo - GetEnvelope: %w", readmodel.ErrNotFound)
		}
		return nil, fmt.Errorf("EnvelopeRepo - GetEnvelope - executor.QueryRow: %w", err)
	}
	return v, nil
}

func (r *EnvelopeRepo) ListEnvelopes(ctx context.Context, userID string) ([]*readmodel.EnvelopeView, error) {
	sql, args, err := r.Builder.
		Select(envelopeColumns...).
		From(envelopeViewsTable).
		Where(squirrel.Eq{userIDColumn: userID, isDeletedColumn: false}).
		OrderBy(createdAtColumn, idColumn).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("EnvelopeRepo - ListEnvelopes - r.Builder.ToSql: %w", err)
	}

	rows, err := r.GetExecutor(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("EnvelopeRepo - ListEnvelopes - executor.Query: %w", err)
	}
	defer rows.Close()

	var views []*readmodel.EnvelopeView
	for rows.Next() {
		v, err := scanEnvelope(rows)
		if err != nil {
			return nil, fmt.Errorf("EnvelopeRepo - ListEnvelopes - rows.Scan: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EnvelopeRepo - ListEnvelopes - rows.Err: %w", err)
	}
	return views, nil
}

func (r *EnvelopeRepo) SaveEnvelope(ctx context.Context, v *readmodel.EnvelopeView) error {
	sql, args, err := r.Builder.
		Insert(envelopeViewsTable).
		Columns(
			idColumn,
			userIDColumn,
			nameColumn,
			targetedAmountColumn,
			currentAmountColumn,
			currencyColumn,
			isDeletedColumn,
			versionColumn,
			createdAtColumn,
			updatedAtColumn,
		).
		Values(
			v.ID,
			v.UserID,
			v.Name,
			v.TargetedAmount,
			v.CurrentAmount,
			v.Currency,
			v.IsDeleted,
			v.Version,
			v.CreatedAt,
			v.UpdatedAt,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			targeted_amount = EXCLUDED.targeted_amount,
			current_amount = EXCLUDED.current_amount,
			currency = EXCLUDED.currency,
			is_deleted = EXCLUDED.is_deleted,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("EnvelopeRepo - SaveEnvelope - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("EnvelopeRepo - SaveEnvelope - executor.Exec: %w", err)
	}
	return nil
}

func scanEnvelope(row pgx.Row) (*readmodel.EnvelopeView, error) {
	var v readmodel.EnvelopeView
	err := row.Scan(
		&v.ID,
		&v.UserID,
		&v.Name,
		&v.TargetedAmount,
		&v.CurrentAmount,
		&v.Currency,
		&v.IsDeleted,
		&v.Version,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
