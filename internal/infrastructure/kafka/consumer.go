package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	_defaultRetryBackoff  = time.Second
	_defaultCommitTimeout = 5 * time.Second
)

type MessageHandler func(ctx context.Context, key, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic as a member of a consumer group. A message offset is
// committed only once its handler succeeds, so every message is handled at
// least once and in partition order.
type Consumer struct {
	connAttempts  int
	connTimeout   time.Duration
	retryBackoff  time.Duration
	commitTimeout time.Duration
	skip          func(error) bool
	logger        zerolog.Logger

	reader messageReader
}

type ConsumerOption func(*Consumer)

func ConsumerConnAttempts(attempts int) ConsumerOption {
	return func(c *Consumer) { c.connAttempts = attempts }
}

func ConsumerConnTimeout(timeout time.Duration) ConsumerOption {
	return func(c *Consumer) { c.connTimeout = timeout }
}

// RetryBackoff sets the pause before a failed message is handled again.
func RetryBackoff(backoff time.Duration) ConsumerOption {
	return func(c *Consumer) { c.retryBackoff = backoff }
}

// SkipOn marks handler errors that will never succeed. Such messages are
// logged and committed instead of retried.
func SkipOn(permanent func(error) bool) ConsumerOption {
	return func(c *Consumer) { c.skip = permanent }
}

func ConsumerLogger(logger zerolog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = logger }
}

// NewConsumer returns a consumer once a broker answers.
func NewConsumer(ctx context.Context, brokers []string, topic, groupID string, opts ...ConsumerOption) (*Consumer, error) {
	c := newConsumer(nil, opts...)

	if err := retryPing(ctx, brokers, c.connAttempts, c.connTimeout, c.logger, "consumer"); err != nil {
		return nil, fmt.Errorf("Kafka Consumer - NewConsumer - %w", err)
	}

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return c, nil
}

func newConsumer(reader messageReader, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		connAttempts:  _defaultConnAttempts,
		connTimeout:   _defaultConnTimeout,
		retryBackoff:  _defaultRetryBackoff,
		commitTimeout: _defaultCommitTimeout,
		skip:          func(error) bool { return false },
		logger:        zerolog.Nop(),
		reader:        reader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consume handles messages until ctx is done.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("error fetching message")
			if err := c.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		if err := c.handle(ctx, msg, handler); err != nil {
			return err
		}

		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.commitTimeout)
		err = c.reader.CommitMessages(commitCtx, msg)
		cancel()
		if err != nil {
			c.logger.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("error committing message")
		}
	}
}

// handle retries the handler until it succeeds, fails permanently or ctx is done.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler MessageHandler) error {
	for {
		err := handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger := c.logger.With().
			Err(err).
			Str("key", string(msg.Key)).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Logger()

		if c.skip(err) {
			logger.Error().Msg("skipping message that cannot be handled")
			return nil
		}
		logger.Warn().Msg("error handling message, retrying")

		if err := c.sleep(ctx); err != nil {
			return err
		}
	}
}

func (c *Consumer) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.retryBackoff):
		return nil
	}
}

func (c *Consumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

// IsContextDone reports whether err only means the consumer was stopped.
func IsContextDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
