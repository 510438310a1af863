// Package database provides the PostgreSQL connection pool used by all stores.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool tuning. Store queries are short; a small pool serves many concurrent
// chats. Turn locks pin a connection for the whole streamed turn and must
// NOT draw from this pool, or long streams starve the transcript writes that
// finish them. They get their own pool via ConnectLockPool.
const (
	maxConns          = 10
	minConns          = 2
	maxConnLifetime   = 30 * time.Minute
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = 1 * time.Minute
	pingTimeout       = 5 * time.Second

	// lockMaxConns caps concurrent streaming turns. Lock connections are
	// idle while held, so the cap can sit well above maxConns.
	lockMaxConns = 50
)

// Connect creates the pgx connection pool for store queries and verifies
// connectivity with a ping. The caller owns the pool and must Close() it on
// shutdown.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return connect(ctx, dsn, maxConns, minConns)
}

// ConnectLockPool creates a pool reserved for per-conversation turn locks.
// Each held lock pins one connection until release, so the pool size is the
// hard cap on concurrent turns; keeping locks off the store pool prevents
// the two from starving each other.
func ConnectLockPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return connect(ctx, dsn, lockMaxConns, 0)
}

func connect(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = minConns
	poolCfg.MaxConnLifetime = maxConnLifetime
	poolCfg.MaxConnIdleTime = maxConnIdleTime
	poolCfg.HealthCheckPeriod = healthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
