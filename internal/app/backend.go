// Package app wires the binaries from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"

	"github.com/example/budget-event-sourced/config"
	"github.com/example/budget-event-sourced/internal/command"
	"github.com/example/budget-event-sourced/internal/domain/aggregate"
	"github.com/example/budget-event-sourced/internal/domain/budgetplan"
	"github.com/example/budget-event-sourced/internal/domain/envelope"
	"github.com/example/budget-event-sourced/internal/domain/user"
	"github.com/example/budget-event-sourced/internal/encryption"
	"github.com/example/budget-event-sourced/internal/infrastructure/keystore"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
	"github.com/example/budget-event-sourced/internal/metrics"
)

// Backend is the write side selected by EVENT_STORE_DRIVER. Outbox is nil for
// DynamoDB, whose table stream replaces it.
type Backend struct {
	EventStore store.EventStore
	Outbox     store.Outbox
	Keys       keystore.KeyStore
	Gate       *encryption.Gate

	closers []func() error
}

// OpenBackend connects the event store and the key store and creates their
// tables when missing.
func OpenBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Backend, error) {
	b := &Backend{}

	switch cfg.EventStore.Driver {
	case "postgres":
		db, err := store.ConnectPostgres(cfg.PG.EventStoreURL)
		if err != nil {
			return nil, fmt.Errorf("app - OpenBackend - store.ConnectPostgres: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		if err := b.useSQL(ctx, db, store.PostgresDialect); err != nil {
			return nil, errors.Join(err, b.Close())
		}

	case "sqlite":
		db, err := store.OpenSQLite(cfg.EventStore.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("app - OpenBackend - store.OpenSQLite: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		if err := b.useSQL(ctx, db, store.SQLiteDialect); err != nil {
			return nil, errors.Join(err, b.Close())
		}

	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("app - OpenBackend - LoadDefaultConfig: %w", err)
		}
		b.EventStore = store.NewDynamoEventStore(dynamodb.NewFromConfig(awsCfg), cfg.Dynamo.EventsTable, cfg.Dynamo.SnapshotsTable)

		// Keys stay in Postgres so that erasure is a single row delete.
		db, err := store.ConnectPostgres(cfg.PG.EventStoreURL)
		if err != nil {
			return nil, fmt.Errorf("app - OpenBackend - store.ConnectPostgres: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		keys := keystore.NewSQLKeyStore(db, store.PostgresDialect)
		if err := keys.Migrate(ctx); err != nil {
			return nil, errors.Join(fmt.Errorf("app - OpenBackend - keys.Migrate: %w", err), b.Close())
		}
		b.Keys = keys

	default:
		return nil, fmt.Errorf("app - OpenBackend - unknown event store driver %q", cfg.EventStore.Driver)
	}

	b.Gate = encryption.NewGate(b.EventStore, b.Keys)
	logger.Info().Str("driver", cfg.EventStore.Driver).Msg("event store ready")
	return b, nil
}

func (b *Backend) useSQL(ctx context.Context, db *sql.DB, dialect store.Dialect) error {
	es := store.NewSQLEventStore(db, dialect)
	if err := es.Migrate(ctx); err != nil {
		return fmt.Errorf("app - OpenBackend - es.Migrate: %w", err)
	}
	keys := keystore.NewSQLKeyStore(db, dialect)
	if err := keys.Migrate(ctx); err != nil {
		return fmt.Errorf("app - OpenBackend - keys.Migrate: %w", err)
	}
	b.EventStore = es
	b.Outbox = es
	b.Keys = keys
	return nil
}

// CommandHandler builds the domain services on top of the encryption gate.
func (b *Backend) CommandHandler(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) *command.Handler {
	opts := []aggregate.Option{
		aggregate.WithSnapshotInterval(cfg.Snapshot.Interval),
		aggregate.WithLogger(logger),
		aggregate.WithMetrics(m),
	}
	return command.NewHandler(
		envelope.NewService(b.Gate, opts...),
		budgetplan.NewService(b.Gate, opts...),
		user.NewService(b.Gate, b.Keys, opts...),
	)
}

func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}
