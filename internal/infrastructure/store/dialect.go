package store

import (
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures what differs between the SQL backends of the event store.
type Dialect struct {
	Name              string
	Placeholder       sq.PlaceholderFormat
	Schema            []string
	IsUniqueViolation func(error) bool
}

var PostgresDialect = Dialect{
	Name:        "postgres",
	Placeholder: sq.Dollar,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS events (
			id             VARCHAR(36)  PRIMARY KEY,
			aggregate_id   VARCHAR(36)  NOT NULL,
			aggregate_type VARCHAR(64)  NOT NULL,
			event_type     VARCHAR(128) NOT NULL,
			version        INTEGER      NOT NULL,
			user_id        VARCHAR(36)  NOT NULL DEFAULT '',
			request_id     VARCHAR(36)  NOT NULL,
			payload        TEXT         NOT NULL,
			occurred_on    BIGINT       NOT NULL,
			UNIQUE (aggregate_id, version)
		)`,
		`CREATE INDEX IF NOT EXISTS events_aggregate_type_idx ON events (aggregate_id, event_type, occurred_on)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			aggregate_id   VARCHAR(36) PRIMARY KEY,
			aggregate_type VARCHAR(64) NOT NULL,
			version        INTEGER     NOT NULL,
			state          TEXT        NOT NULL,
			created_at     BIGINT      NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS event_outbox (
			seq          BIGSERIAL   PRIMARY KEY,
			event_id     VARCHAR(36) NOT NULL UNIQUE REFERENCES events (id),
			published_at BIGINT
		)`,
	},
	IsUniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

var SQLiteDialect = Dialect{
	Name:        "sqlite",
	Placeholder: sq.Question,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS events (
			id             TEXT    PRIMARY KEY,
			aggregate_id   TEXT    NOT NULL,
			aggregate_type TEXT    NOT NULL,
			event_type     TEXT    NOT NULL,
			version        INTEGER NOT NULL,
			user_id        TEXT    NOT NULL DEFAULT '',
			request_id     TEXT    NOT NULL,
			payload        TEXT    NOT NULL,
			occurred_on    INTEGER NOT NULL,
			UNIQUE (aggregate_id, version)
		)`,
		`CREATE INDEX IF NOT EXISTS events_aggregate_type_idx ON events (aggregate_id, event_type, occurred_on)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			aggregate_id   TEXT    PRIMARY KEY,
			aggregate_type TEXT    NOT NULL,
			version        INTEGER NOT NULL,
			state          TEXT    NOT NULL,
			created_at     INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS event_outbox (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id     TEXT    NOT NULL UNIQUE REFERENCES events (id),
			published_at INTEGER
		)`,
	},
	IsUniqueViolation: func(err error) bool {
		var sqliteErr *sqlite.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	},
}
