package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/budget-event-sourced/config"
	"github.com/example/budget-event-sourced/internal/infrastructure/kafka"
	"github.com/example/budget-event-sourced/internal/infrastructure/postgres"
	"github.com/example/budget-event-sourced/internal/infrastructure/redis"
	"github.com/example/budget-event-sourced/internal/logging"
	"github.com/example/budget-event-sourced/internal/metrics"
	"github.com/example/budget-event-sourced/internal/projection"
	"github.com/example/budget-event-sourced/internal/readmodel"
)

// ReadSide holds the read model connections of a projector.
type ReadSide struct {
	Repositories readmodel.Repositories
	close        func()
}

// OpenReadSide connects the Postgres read models and puts the Redis view cache
// in front of the envelope views.
func OpenReadSide(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*ReadSide, error) {
	pg, err := postgres.New(ctx, cfg.PG.ReadModelURL,
		postgres.MaxPoolSize(cfg.PG.PoolMax),
		postgres.Logger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app - OpenReadSide - postgres.New: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("app - OpenReadSide - pg.Migrate: %w", err)
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("app - OpenReadSide - redis.NewClient: %w", err)
	}

	repos := postgres.Repositories(pg)
	cache := redis.NewViewCache[readmodel.EnvelopeView](rdb, cfg.Redis.ViewTTL, logger)
	repos.Envelopes = redis.NewCachedEnvelopeRepository(repos.Envelopes, cache)

	return &ReadSide{
		Repositories: repos,
		close: func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("closing redis client")
			}
			pg.Close()
		},
	}, nil
}

func (r *ReadSide) Close() { r.close() }

// NewDispatcher registers every projector on the read models. The ledger
// projector reads raw history from the event store behind the gate.
func NewDispatcher(b *Backend, repos readmodel.Repositories, logger zerolog.Logger, m *metrics.Metrics) *projection.Dispatcher {
	d := projection.NewDispatcher(b.Gate,
		projection.WithLogger(logger),
		projection.WithMetrics(m),
	)
	d.Register(
		projection.NewEnvelopeProjector(repos.Envelopes),
		projection.NewLedgerProjector(repos.Ledger, b.EventStore, b.Gate),
		projection.NewBudgetPlanProjector(repos.BudgetPlans),
		projection.NewUserProjector(repos.Users),
	)
	return d
}

// RunProjector consumes the event topic into the read models until ctx is done.
func RunProjector(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	reg, m := newMetrics()

	backend, err := OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	readSide, err := OpenReadSide(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer readSide.Close()

	dispatcher := NewDispatcher(backend, readSide.Repositories, logger, m)

	consumer, err := kafka.NewConsumer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID,
		kafka.ConsumerLogger(logging.Component(logger, "kafka-consumer")),
		kafka.SkipOn(func(err error) bool { return errors.Is(err, projection.ErrMalformedMessage) }),
	)
	if err != nil {
		return fmt.Errorf("app - RunProjector - kafka.NewConsumer: %w", err)
	}
	defer consumer.Close()

	logger.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.Topic).
		Str("group", cfg.Kafka.GroupID).
		Msg("projector started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Consume(gctx, dispatcher.HandleMessage)
	})
	g.Go(func() error {
		return serveMetrics(gctx, cfg.Metrics.Addr, reg, logger)
	})

	if err := g.Wait(); err != nil && !kafka.IsContextDone(err) {
		return fmt.Errorf("app - RunProjector: %w", err)
	}
	logger.Info().Msg("projector stopped")
	return nil
}
