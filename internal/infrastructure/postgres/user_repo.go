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
	userViewsTable = "user_views"

	// Columns
	emailColumn              = "email"
	firstnameColumn          = "firstname"
	lastnameColumn           = "lastname"
	languagePreferenceColumn = "language_preference"
	isErasedColumn           = "is_erased"
)

var userColumns = []string{
	idColumn,
	emailColumn,
	firstnameColumn,
	lastnameColumn,
	languagePreferenceColumn,
	isErasedColumn,
	versionColumn,
	createdAtColumn,
	updatedAtColumn,
}

type UserRepo struct {
	*Postgres
}

func NewUserRepo(pg *Postgres) *UserRepo {
	return &UserRepo{pg}
}

func (r *UserRepo) GetUser(ctx context.Context, id string) (*readmodel.UserView, error) {
	sql, args, err := r.Builder.
		Select(userColumns...).
		From(userViewsTable).
		Where(squirrel.Eq{idColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("UserRepo - GetUser - r.Builder.ToSql: %w", err)
	}

	var v readmodel.UserView
	err = r.GetExecutor(ctx).QueryRow(ctx, sql, args...).Scan(
		&v.ID,
		&v.Email,
		&v.Firstname,
		&v.Lastname,
		&v.LanguagePreference,
		&v.IsErased,
		&v.Version,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("UserRepo - GetUser: %w", readmodel.ErrNotFound)
		}
		return nil, fmt.Errorf("UserRepo - GetUser - executor.QueryRow: %w", err)
	}
	return &v, nil
}

func (r *UserRepo) SaveUser(ctx context.Context, v *readmodel.UserView) error {
	sql, args, err := r.Builder.
		Insert(userViewsTable).
		Columns(userColumns...).
		Values(
			v.ID,
			v.Email,
			v.Firstname,
			v.Lastname,
			v.LanguagePreference,
			v.IsErased,
			v.Version,
			v.CreatedAt,
			v.UpdatedAt,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			firstname = EXCLUDED.firstname,
			lastname = EXCLUDED.lastname,
			language_preference = EXCLUDED.language_preference,
			is_erased = EXCLUDED.is_erased,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("UserRepo - SaveUser - r.Builder.ToSql: %w", err)
	}

	if _, err := r.GetExecutor(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("UserRepo - SaveUser - executor.Exec: %w", err)
	}
	return nil
}
