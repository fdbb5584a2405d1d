package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

const keysTable = "user_encryption_keys"

var schemas = map[string]string{
	store.PostgresDialect.Name: `CREATE TABLE IF NOT EXISTS user_encryption_keys (
		user_id      VARCHAR(36) PRIMARY KEY,
		key_material BYTEA       NOT NULL,
		created_at   BIGINT      NOT NULL
	)`,
	store.SQLiteDialect.Name: `CREATE TABLE IF NOT EXISTS user_encryption_keys (
		user_id      TEXT    PRIMARY KEY,
		key_material BLOB    NOT NULL,
		created_at   INTEGER NOT NULL
	)`,
}

// SQLKeyStore keeps keys in the event store database, in a table that,
// unlike the event log, allows rows to be deleted.
type SQLKeyStore struct {
	db      *sql.DB
	dialect store.Dialect
	builder sq.StatementBuilderType
}

func NewSQLKeyStore(db *sql.DB, dialect store.Dialect) *SQLKeyStore {
	return &SQLKeyStore{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
	}
}

func (ks *SQLKeyStore) Migrate(ctx context.Context) error {
	schema, ok := schemas[ks.dialect.Name]
	if !ok {
		return fmt.Errorf("keystore: no schema for dialect %q", ks.dialect.Name)
	}
	if _, err := ks.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("keystore - Migrate: %w", err)
	}
	return nil
}

func (ks *SQLKeyStore) Create(ctx context.Context, userID string) ([]byte, error) {
	key, err := newKey()
	if err != nil {
		return nil, err
	}

	query, args, err := ks.builder.
		Insert(keysTable).
		Columns("user_id", "key_material", "created_at").
		Values(userID, key, time.Now().UnixMicro()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build key insert: %w", err)
	}

	if _, err := ks.db.ExecContext(ctx, query, args...); err != nil {
		if ks.dialect.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: user %s", ErrKeyExists, userID)
		}
		return nil, fmt.Errorf("insert key: %w", err)
	}
	return key, nil
}

func (ks *SQLKeyStore) Get(ctx context.Context, userID string) ([]byte, error) {
	query, args, err := ks.builder.
		Select("key_material").
		From(keysTable).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build key query: %w", err)
	}

	var key []byte
	err = ks.db.QueryRowContext(ctx, query, args...).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrKeyNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}
	return key, nil
}

func (ks *SQLKeyStore) Delete(ctx context.Context, userID string) error {
	query, args, err := ks.builder.
		Delete(keysTable).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build key delete: %w", err)
	}

	if _, err := ks.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}
