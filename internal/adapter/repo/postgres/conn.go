// Package postgres stores user and match documents as JSONB rows.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vettly/match-explainer/internal/config"
)

// PgxPool is the subset of *pgxpool.Pool used by the repositories.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ PgxPool = (*pgxpool.Pool)(nil)

// NewPool creates a pgx connection pool from the provided DSN. Queries are
// traced with otelpgx.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.NewPool: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.NewPool: %w", err)
	}
	return pool, nil
}

// Connect creates a pool and pings it, retrying with exponential backoff
// until cfg.DBConnectMaxElapsed has passed.
func Connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		// A malformed DSN never heals.
		return nil, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 250 * time.Millisecond
	expo.MaxInterval = 5 * time.Second
	expo.MaxElapsedTime = cfg.DBConnectMaxElapsed

	attempt := 0
	op := func() error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			slog.Warn("db ping failed", slog.Int("attempt", attempt), slog.Any("error", err))
			return err
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("op=postgres.Connect: %w", err)
	}
	slog.Info("db connected", slog.Int("attempts", attempt))
	return pool, nil
}

var (
	sharedMu   sync.Mutex
	sharedPool *pgxpool.Pool
)

// Shared returns the process-wide pool, connecting on first use. A failed
// connect is not cached; the next call tries again.
func Shared(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedPool != nil {
		return sharedPool, nil
	}
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sharedPool = pool
	return sharedPool, nil
}
