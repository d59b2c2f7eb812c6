// Package postgres opens the two PostgreSQL handles a node needs.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"idledger/internal/platform/config"
)

// Handles bundles the database/sql handle used by the identity graph with the pgx pool
// used by the transaction log.
type Handles struct {
	DB   *sql.DB
	Pool *pgxpool.Pool
}

// Open connects both drivers to cfg.DSN and pings them.
func Open(ctx context.Context, cfg config.Postgres) (*Handles, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = db.Close()
		return nil, fmt.Errorf("ping pgx pool: %w", err)
	}
	return &Handles{DB: db, Pool: pool}, nil
}

func (h *Handles) Close() {
	h.Pool.Close()
	_ = h.DB.Close()
}
