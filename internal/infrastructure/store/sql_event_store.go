package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	eventsTable    = "events"
	snapshotsTable = "snapshots"
	outboxTable    = "event_outbox"
)

var eventColumns = []string{
	"id", "aggregate_id", "aggregate_type", "event_type", "version",
	"user_id", "request_id", "payload", "occurred_on",
}

// SQLEventStore stores events in PostgreSQL or SQLite through database/sql.
// Timestamps are kept as Unix microseconds so both backends compare them the same way.
type SQLEventStore struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
}

func NewSQLEventStore(db *sql.DB, dialect Dialect) *SQLEventStore {
	return &SQLEventStore{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
	}
}

// Migrate creates the event, snapshot and outbox tables when missing.
func (es *SQLEventStore) Migrate(ctx context.Context) error {
	for _, stmt := range es.dialect.Schema {
		if _, err := es.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("SQLEventStore - Migrate - %s: %w", es.dialect.Name, err)
		}
	}
	return nil
}

// Append inserts the batch and its outbox rows in one transaction.
func (es *SQLEventStore) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, records []Record) ([]Event, error) {
	events, err := buildEvents(aggregateID, aggregateType, expectedVersion, records)
	if err != nil {
		return nil, err
	}

	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query, args, err := es.builder.
		Select("COALESCE(MAX(version), 0)").
		From(eventsTable).
		Where(sq.Eq{"aggregate_id": aggregateID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build version query: %w", err)
	}

	var current int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&current); err != nil {
		return nil, fmt.Errorf("get current version: %w", err)
	}
	if current != expectedVersion {
		return nil, conflictError(aggregateID, current, expectedVersion)
	}

	insert := es.builder.Insert(eventsTable).Columns(eventColumns...)
	outbox := es.builder.Insert(outboxTable).Columns("event_id")
	for _, e := range events {
		insert = insert.Values(
			e.ID,
			e.AggregateID,
			e.AggregateType,
			e.EventType,
			e.Version,
			e.UserID,
			e.RequestID,
			string(e.Payload),
			e.OccurredOn.UnixMicro(),
		)
		outbox = outbox.Values(e.ID)
	}

	if err := es.exec(ctx, tx, insert); err != nil {
		if es.dialect.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: aggregate %s was appended concurrently at version %d", ErrConcurrencyConflict, aggregateID, expectedVersion)
		}
		return nil, fmt.Errorf("insert events: %w", err)
	}
	if err := es.exec(ctx, tx, outbox); err != nil {
		return nil, fmt.Errorf("insert outbox: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if es.dialect.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: aggregate %s was appended concurrently at version %d", ErrConcurrencyConflict, aggregateID, expectedVersion)
		}
		return nil, fmt.Errorf("commit: %w", err)
	}

	return events, nil
}

func (es *SQLEventStore) exec(ctx context.Context, tx *sql.Tx, b sq.InsertBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

// ReadStream queries lazily: rows are fetched when the sequence is ranged over.
// Callers must finish iterating before appending on a single-connection database.
func (es *SQLEventStore) ReadStream(ctx context.Context, aggregateID string, fromVersion int) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		query, args, err := es.builder.
			Select(eventColumns...).
			From(eventsTable).
			Where(sq.Eq{"aggregate_id": aggregateID}).
			Where(sq.Gt{"version": fromVersion}).
			OrderBy("version ASC").
			ToSql()
		if err != nil {
			yield(Event{}, fmt.Errorf("build stream query: %w", err))
			return
		}

		rows, err := es.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(Event{}, fmt.Errorf("read stream %s: %w", aggregateID, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Event{}, fmt.Errorf("read stream %s: %w", aggregateID, err))
		}
	}
}

func (es *SQLEventStore) ReadByEventTypes(ctx context.Context, aggregateID string, eventTypes []string, before time.Time) ([]Event, error) {
	if len(eventTypes) == 0 {
		return nil, nil
	}

	query, args, err := es.builder.
		Select(eventColumns...).
		From(eventsTable).
		Where(sq.Eq{"aggregate_id": aggregateID, "event_type": eventTypes}).
		Where(sq.Lt{"occurred_on": Timestamp(before).UnixMicro()}).
		OrderBy("version ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build event type query: %w", err)
	}

	return es.queryEvents(ctx, query, args)
}

func (es *SQLEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	query, args, err := es.builder.
		Insert(snapshotsTable).
		Columns("aggregate_id", "aggregate_type", "version", "state", "created_at").
		Values(
			snapshot.AggregateID,
			snapshot.AggregateType,
			snapshot.Version,
			string(snapshot.State),
			snapshot.CreatedAt.UnixMicro(),
		).
		Suffix(`ON CONFLICT (aggregate_id) DO UPDATE SET
			aggregate_type = EXCLUDED.aggregate_type,
			version = EXCLUDED.version,
			state = EXCLUDED.state,
			created_at = EXCLUDED.created_at
			WHERE snapshots.version < EXCLUDED.version`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build snapshot insert: %w", err)
	}

	if _, err := es.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snapshot.AggregateID, err)
	}
	return nil
}

func (es *SQLEventStore) LoadSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	query, args, err := es.builder.
		Select("aggregate_id", "aggregate_type", "version", "state", "created_at").
		From(snapshotsTable).
		Where(sq.Eq{"aggregate_id": aggregateID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build snapshot query: %w", err)
	}

	var (
		s         Snapshot
		state     []byte
		createdAt int64
	)
	err = es.db.QueryRowContext(ctx, query, args...).Scan(&s.AggregateID, &s.AggregateType, &s.Version, &state, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", aggregateID, err)
	}
	s.State = state
	s.CreatedAt = time.UnixMicro(createdAt).UTC()
	return &s, nil
}

func (es *SQLEventStore) PendingOutbox(ctx context.Context, limit int) ([]Event, error) {
	columns := make([]string, len(eventColumns))
	for i, c := range eventColumns {
		columns[i] = "e." + c
	}

	query, args, err := es.builder.
		Select(columns...).
		From(outboxTable + " o").
		Join(eventsTable + " e ON e.id = o.event_id").
		Where(sq.Eq{"o.published_at": nil}).
		OrderBy("o.seq ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build outbox query: %w", err)
	}

	return es.queryEvents(ctx, query, args)
}

func (es *SQLEventStore) MarkPublished(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}

	query, args, err := es.builder.
		Update(outboxTable).
		Set("published_at", time.Now().UnixMicro()).
		Where(sq.Eq{"event_id": eventIDs}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build outbox update: %w", err)
	}

	if _, err := es.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

func (es *SQLEventStore) queryEvents(ctx context.Context, query string, args []any) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		e          Event
		payload    []byte
		occurredOn int64
	)
	if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Version,
		&e.UserID, &e.RequestID, &payload, &occurredOn); err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	e.Payload = payload
	e.OccurredOn = time.UnixMicro(occurredOn).UTC()
	return e, nil
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// OpenSQLite opens a SQLite database. A single connection serialises writers,
// which is what keeps version checks and inserts atomic.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}
