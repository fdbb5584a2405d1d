package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/budget-event-sourced/config"
	"github.com/example/budget-event-sourced/internal/infrastructure/kafka"
	"github.com/example/budget-event-sourced/internal/logging"
	"github.com/example/budget-event-sourced/internal/relay"
)

// ErrNoOutbox is returned when the relay runs on a store without an outbox.
var ErrNoOutbox = errors.New("event store driver has no outbox")

// RunRelay publishes the outbox to the event topic until ctx is done.
func RunRelay(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	reg, m := newMetrics()

	backend, err := OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	if backend.Outbox == nil {
		return fmt.Errorf("app - RunRelay - %s: %w", cfg.EventStore.Driver, ErrNoOutbox)
	}

	producer, err := kafka.NewProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic,
		kafka.ProducerLogger(logging.Component(logger, "kafka-producer")),
	)
	if err != nil {
		return fmt.Errorf("app - RunRelay - kafka.NewProducer: %w", err)
	}
	defer producer.Close()

	relayCfg := relay.DefaultConfig()
	relayCfg.PollInterval = cfg.Relay.PollInterval
	relayCfg.BatchSize = cfg.Relay.BatchSize
	relayCfg.BatchTimeout = cfg.Relay.BatchTimeout
	worker := relay.New(backend.Outbox, producer, relayCfg,
		relay.WithLogger(logger),
		relay.WithMetrics(m),
	)

	logger.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.Topic).
		Dur("poll_interval", cfg.Relay.PollInterval).
		Msg("relay started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return serveMetrics(gctx, cfg.Metrics.Addr, reg, logger)
	})

	if err := g.Wait(); err != nil && !kafka.IsContextDone(err) {
		return fmt.Errorf("app - RunRelay: %w", err)
	}
	logger.Info().Msg("relay stopped")
	return nil
}
