// Package database builds the pgx connection pool and bootstraps the
// schema. The (user_id, identity_key) uniqueness constraint lives in the
// DDL on purpose: reconciliation correctness is enforced by the store
// itself, not just by application logic.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig carries the connection settings the server loads from env.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens and verifies a connection pool.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS books (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	identity_key TEXT NOT NULL,
	external_id TEXT,
	isbn TEXT,
	title TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	average_rating DOUBLE PRECISION,
	number_of_pages INTEGER CHECK (number_of_pages >= 0),
	exclusive_shelf TEXT NOT NULL DEFAULT '',
	my_rating INTEGER CHECK (my_rating BETWEEN 0 AND 5),
	date_added DATE,
	date_read DATE,
	my_review TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT books_user_identity_key UNIQUE (user_id, identity_key)
);

CREATE INDEX IF NOT EXISTS books_user_shelf_idx ON books (user_id, exclusive_shelf);
CREATE INDEX IF NOT EXISTS books_user_rating_idx ON books (user_id, my_rating DESC) WHERE my_rating IS NOT NULL;
`

// Bootstrap applies the schema. Statements are idempotent, so running it on
// every start is safe.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
