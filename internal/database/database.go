// Package database opens the Postgres pool and applies the embedded schema.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/promptforge/internal/config"
)

const (
	connectAttempts = 5
	pingTimeout     = 3 * time.Second
)

// NewPool connects to Postgres. The first ping is retried so the server can
// start alongside a database that is still booting.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "promptforge"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	var pingErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 500 * time.Millisecond
			slog.Warn("database not ready", "attempt", attempt, "backoff", backoff, "error", pingErr)
			select {
			case <-ctx.Done():
				pool.Close()
				return nil, fmt.Errorf("ping database: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}
		if pingErr = Ping(ctx, pool); pingErr == nil {
			slog.Info("database connected", "max_conns", poolCfg.MaxConns)
			return pool, nil
		}
	}

	pool.Close()
	return nil, fmt.Errorf("ping database: %w", pingErr)
}

// Ping checks the pool with a bounded wait. It backs the readiness probe.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return pool.Ping(ctx)
}
