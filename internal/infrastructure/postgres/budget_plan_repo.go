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
	// Tables
	budgetPlanViewsTable = "budget_plan_views"
	budgetPlanEntryTable = "budget_plan_entry_views"

	// Columns
	dateColumn         = "date"
	budgetPlanIDColumn = "budget_plan_id"
	positionColumn     = "position"
	kindColumn         = "kind"
	categoryColumn     = "category"
)

var budgetPlanColumns = []string{
	idColumn,
	userIDColumn,
	dateColumn,
	currencyColumn,
	isDeletedColumn,
	versionColumn,
	createdAtColumn,
	updatedAtColumn,
}

type BudgetPlanRepo struct {
	*Postgres
}

func NewBudgetPlanRepo(pg *Postgres) *BudgetPlanRepo {
	return &BudgetPlanRepo{pg}
}

func (r *BudgetPlanRepo) GetBudgetPlan(ctx context.Context, id string) (*readmodel.BudgetPlanView, error) {
	sql, args, err := r.Builder.
		Select(budgetPlanColumns...).
		From(budgetPlanViewsTable).
		Where(squirrel.Eq{idColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("BudgetPlanRepo - GetBudgetPlan - r.Builder.ToSql: %w", err)
	}

	v, err := scanBudgetPlan(r.GetExecutor(ctx).QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("BudgetPlanRepo - GetBudgetPlan: %w", readmodel.ErrNotFound)
		}
		return nil, fmt.Errorf("BudgetPlanRepo - GetBudgetPlan - executor.QueryRow: %w", err)
	}

	if v.Entries, err = r.entries(ctx, id); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *BudgetPlanRepo) ListBudgetPlans(ctx context.Context, userID string) ([]*readmodel.BudgetPlanView, error) {
	sql, args, err := r.Builder.
		Select(budgetPlanColumns...).
		From(budgetPlanViewsTable).
		Where(squirrel.Eq{userIDColumn: userID, isDeletedColumn: false}).
		OrderBy(dateColumn, idColumn).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("BudgetPlanRepo - ListBudgetPlans - r.Builder.ToSql: %w", err)
	}

	rows, err := r.GetExecutor(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("BudgetPlanRepo - ListBudgetPlans - executor.Query: %w", err)
	}

	var views []*readmodel.BudgetPlanView
	for rows.Next() {
		v, err := scanBudgetPlan(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("BudgetPlanRepo - ListBudgetPlans - rows.Scan: %w", err)
		}
		views = append(views, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("BudgetPlanRepo - ListBudgetPlans - rows.Err: %w", err)
	}

	for _, v := range views {
		if v.Entries, err = r.entries(ctx, v.ID); err != nil {
			return nil, err
		}
	}
	return views, nil
}

// SaveBudgetPlan upserts the plan row and rewrites its entries in one transaction.
func (r *BudgetPlanRepo) SaveBudgetPlan(ctx context.Context, v *readmodel.BudgetPlanView) error {
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		executor := r.GetExecutor(ctx)

		sql, args, err := r.Builder.
			Insert(budgetPlanViewsTable).
			Columns(budgetPlanColumns...).
			Values(v.ID, v.UserID, v.Date, v.Currency, v.IsDeleted, v.Version, v.CreatedAt, v.UpdatedAt).
			Suffix(`ON CONFLICT (id) DO UPDATE SET
				date = EXCLUDED.date,
				currency = EXCLUDED.currency,
				is_deleted = EXCLUDED.is_deleted,
				version = EXCLUDED.version,
				updated_at = EXCLUDED.updated_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("BudgetPlanRepo - SaveBudgetPlan - r.Builder.ToSql: %w", err)
		}
		if _, err := executor.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("BudgetPlanRepo - SaveBudgetPlan - executor.Exec: %w", err)
		}

		sql, args, err = r.Builder.
			Delete(budgetPlanEntryTable).
			Where(squirrel.Eq{budgetPlanIDColumn: v.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("BudgetPlanRepo - SaveBudgetPlan - delete entries - r.Builder.ToSql: %w", err)
		}
		if _, err := executor.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("BudgetPlanRepo - SaveBudgetPlan - delete entries - executor.Exec: %w", err)
		}

		if len(v.Entries) == 0 {
			return nil
		}

		insert := r.Builder.
			Insert(budgetPlanEntryTable).
			Columns(idColumn, budgetPlanIDColumn, positionColumn, kindColumn, nameColumn, amountColumn, categoryColumn)
		for i, e := range v.Entries {
			insert = insert.Values(e.ID, v.ID, i, e.Kind, e.Name, e.Amount, e.Category)
		}
		sql, args, err = insert.ToSql()
		if err != nil {
			return fmt.Errorf("BudgetPlanRepo - SaveBudgetPlan - insert entries - r.Builder.ToSql: %w", err)
		}
		if _, err := executor.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("BudgetPlanRepo - SaveBudgetPlan - insert entries - executor.Exec: %w", err)
		}
		return nil
	})
}

func (r *BudgetPlanRepo) entries(ctx context.Context, planID string) ([]readmodel.BudgetPlanEntryView, error) {
	sql, args, err := r.Builder.
		Select(idColumn, kindColumn, nameColumn, amountColumn+"::text", categoryColumn).
		From(budgetPlanEntryTable).
		Where(squirrel.Eq{budgetPlanIDColumn: planID}).
		OrderBy(positionColumn).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("BudgetPlanRepo - entries - r.Builder.ToSql: %w", err)
	}

	rows, err := r.GetExecutor(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("BudgetPlanRepo - entries - executor.Query: %w", err)
	}
	defer rows.Close()

	entries := []readmodel.BudgetPlanEntryView{}
	for rows.Next() {
		var e readmodel.BudgetPlanEntryView
		if err := rows.Scan(&e.ID, &e.Kind, &e.Name, &e.Amount, &e.Category); err != nil {
			return nil, fmt.Errorf("BudgetPlanRepo - entries - rows.Scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("BudgetPlanRepo - entries - rows.Err: %w", err)
	}
	return entries, nil
}

func scanBudgetPlan(row pgx.Row) (*readmodel.BudgetPlanView, error) {
	var v readmodel.BudgetPlanView
	if err := row.Scan(&v.ID, &v.UserID, &v.Date, &v.Currency, &v.IsDeleted, &v.Version, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}
