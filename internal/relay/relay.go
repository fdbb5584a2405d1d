// Package relay moves committed events from the store outbox to the message
// bus. Events are marked published only after the bus acknowledged them, so a
// crash between the two steps publishes them again.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/example/budget-event-sourced/internal/infrastructure/store"
	"github.com/example/budget-event-sourced/internal/metrics"
)

// Publisher writes a batch of events to the bus.
type Publisher interface {
	PublishEvents(ctx context.Context, events []store.Event) error
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	BatchTimeout time.Duration
	// FailureThreshold consecutive publish failures open the breaker for
	// OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:     time.Second,
		BatchSize:        100,
		BatchTimeout:     15 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

type Relay struct {
	outbox    store.Outbox
	publisher Publisher
	breaker   *gobreaker.CircuitBreaker[struct{}]
	cfg       Config
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Relay)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func New(outbox store.Outbox, publisher Publisher, cfg Config, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		publisher: publisher,
		cfg:       cfg,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "relay").Logger()

	r.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "outbox-publisher",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return r
}

// Run publishes the outbox every poll interval until ctx is done. A full batch
// is followed by the next one without waiting.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for {
			n, err := r.RunOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, gobreaker.ErrOpenState) {
					r.logger.Debug().Msg("publisher breaker open, waiting")
				} else {
					r.logger.Error().Err(err).Msg("outbox relay failed")
				}
				break
			}
			if n < r.cfg.BatchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce publishes one batch of pending events and returns its size.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.outbox.PendingOutbox(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("read outbox: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	_, err = r.breaker.Execute(func() (struct{}, error) {
		publishCtx, cancel := context.WithTimeout(ctx, r.cfg.BatchTimeout)
		defer cancel()
		return struct{}{}, r.publisher.PublishEvents(publishCtx, events)
	})
	if err != nil {
		return 0, fmt.Errorf("publish %d events: %w", len(events), err)
	}

	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	if err := r.outbox.MarkPublished(ctx, ids); err != nil {
		return 0, fmt.Errorf("mark %d events published: %w", len(events), err)
	}

	r.metrics.OutboxPublished(len(events))
	r.logger.Debug().Int("events", len(events)).Msg("outbox batch published")
	return len(events), nil
}

// State reports the publisher breaker state.
func (r *Relay) State() string {
	return r.breaker.State().String()
}
