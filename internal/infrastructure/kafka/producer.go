package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

const (
	_defaultConnAttempts = 10
	_defaultConnTimeout  = time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes events keyed by aggregate id, so that all events of an
// aggregate land on one partition in version order.
type Producer struct {
	connAttempts int
	connTimeout  time.Duration
	logger       zerolog.Logger

	brokers []string
	writer  messageWriter
}

type ProducerOption func(*Producer)

func ProducerConnAttempts(attempts int) ProducerOption {
	return func(p *Producer) { p.connAttempts = attempts }
}

func ProducerConnTimeout(timeout time.Duration) ProducerOption {
	return func(p *Producer) { p.connTimeout = timeout }
}

func ProducerLogger(logger zerolog.Logger) ProducerOption {
	return func(p *Producer) { p.logger = logger }
}

// NewProducer returns a producer once a broker answers.
func NewProducer(ctx context.Context, brokers []string, topic string, opts ...ProducerOption) (*Producer, error) {
	p := &Producer{
		connAttempts: _defaultConnAttempts,
		connTimeout:  _defaultConnTimeout,
		logger:       zerolog.Nop(),
		brokers:      brokers,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}

	if err := retryPing(ctx, brokers, p.connAttempts, p.connTimeout, p.logger, "producer"); err != nil {
		return nil, fmt.Errorf("Kafka Producer - NewProducer - %w", err)
	}
	return p, nil
}

// PublishEvents writes the events as one batch. The write either fails or
// every event is acknowledged by all in-sync replicas.
func (p *Producer) PublishEvents(ctx context.Context, events []store.Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("Kafka Producer - PublishEvents - marshal %s: %w", e.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.AggregateID),
			Value: data,
			Time:  e.OccurredOn,
			Headers: []kafka.Header{
				{Key: "eventType", Value: []byte(e.EventType)},
				{Key: "aggregateType", Value: []byte(e.AggregateType)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("Kafka Producer - PublishEvents - WriteMessages: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func retryPing(ctx context.Context, brokers []string, attempts int, timeout time.Duration, logger zerolog.Logger, role string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}

	var err error
	for attempts > 0 {
		if err = ping(ctx, brokers[0]); err == nil {
			return nil
		}

		logger.Warn().Err(err).Int("attempts_left", attempts).Msgf("kafka %s is trying to connect", role)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(timeout):
		}
		attempts--
	}
	return fmt.Errorf("connAttempts == 0: %w", err)
}

func ping(ctx context.Context, broker string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("kafka.DialContext: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("conn.Brokers: %w", err)
	}
	return nil
}
