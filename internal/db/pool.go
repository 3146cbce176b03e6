package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/syncpulse-dev/notify-worker/internal/config"
)

// NewPool creates the shared connection pool used by every component except
// the listener, which holds its own dedicated session outside the pool
// (spec.md §4.1). Two connections is the floor spec.md names; pgxpool's
// own default (the greater of 4 and NumCPU) already clears it, so MaxConns
// is only raised to 2 when the connection string sets it lower.
func NewPool(cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("db: parse pool config: %w", err)
	}
	if poolCfg.MaxConns < 2 {
		poolCfg.MaxConns = 2
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("db: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: pool unreachable: %w", err)
	}

	return pool, nil
}
