// Package postgres stores the read models in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	_defaultMaxPoolSize  = 10
	_defaultConnAttempts = 10
	_defaultConnTimeout  = time.Second
)

type Postgres struct {
	maxPoolSize  int
	connAttempts int
	connTimeout  time.Duration
	logger       zerolog.Logger

	Builder squirrel.StatementBuilderType
	Pool    *pgxpool.Pool
}

type Option func(*Postgres)

func MaxPoolSize(size int) Option {
	return func(p *Postgres) { p.maxPoolSize = size }
}

func ConnAttempts(attempts int) Option {
	return func(p *Postgres) { p.connAttempts = attempts }
}

func ConnTimeout(timeout time.Duration) Option {
	return func(p *Postgres) { p.connTimeout = timeout }
}

func Logger(logger zerolog.Logger) Option {
	return func(p *Postgres) { p.logger = logger }
}

// New opens the pool and waits until the database answers a ping.
func New(ctx context.Context, url string, opts ...Option) (*Postgres, error) {
	pg := &Postgres{
		maxPoolSize:  _defaultMaxPoolSize,
		connAttempts: _defaultConnAttempts,
		connTimeout:  _defaultConnTimeout,
		logger:       zerolog.Nop(),
		Builder:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	for _, opt := range opts {
		opt(pg)
	}

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("Postgres - New - pgxpool.ParseConfig: %w", err)
	}
	poolConfig.MaxConns = int32(pg.maxPoolSize)

	pg.Pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("Postgres - New - pgxpool.NewWithConfig: %w", err)
	}

	for attempts := pg.connAttempts; attempts > 0; attempts-- {
		if err = pg.Pool.Ping(ctx); err == nil {
			return pg, nil
		}
		pg.logger.Warn().Int("attempts_left", attempts-1).Err(err).Msg("postgres is trying to connect")
		time.Sleep(pg.connTimeout)
	}

	pg.Pool.Close()
	return nil, fmt.Errorf("Postgres - New - connAttempts == 0: %w", err)
}

func (p *Postgres) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}
