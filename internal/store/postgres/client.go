// Package postgres implements domain.LedgerStore using PostgreSQL via pgx.
// It is the embedded-store swap path for deployments that outgrow the JSON
// file; the single-writer assumption still applies.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientConfig holds connection parameters for the PostgreSQL client.
type ClientConfig struct {
	DSN      string
	MaxConns int
}

// Client wraps a pgxpool.Pool and owns schema setup.
type Client struct {
	pool *pgxpool.Pool
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS virtual_positions (
	token_id      TEXT PRIMARY KEY,
	size          DOUBLE PRECISION NOT NULL CHECK (size > 0),
	average_price DOUBLE PRECISION NOT NULL,
	entry_time    TIMESTAMPTZ NOT NULL,
	last_update   TIMESTAMPTZ NOT NULL
)`

// New creates a new Client with a connection pool configured from cfg and
// ensures the ledger schema exists.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ledgerSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ensure schema: %w", err)
	}

	return &Client{pool: pool}, nil
}

// Pool exposes the underlying connection pool.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}
