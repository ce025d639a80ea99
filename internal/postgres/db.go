package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	sku         TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	price_cents INT  NOT NULL CHECK (price_cents >= 0),
	stock       INT  NOT NULL CHECK (stock >= 0),
	rating      DOUBLE PRECISION NOT NULL DEFAULT 0,
	reviews     JSONB NOT NULL DEFAULT '[]',
	colors      JSONB NOT NULL DEFAULT '[]',
	features    JSONB NOT NULL DEFAULT '[]',
	warranty    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id             TEXT PRIMARY KEY,
	external_id    TEXT UNIQUE,
	user_id        TEXT NOT NULL,
	items          JSONB NOT NULL,
	shipping_info  JSONB NOT NULL,
	payment_info   JSONB NOT NULL,
	subtotal_cents INT  NOT NULL,
	shipping_cents INT  NOT NULL,
	tax_cents      INT  NOT NULL,
	total_cents    INT  NOT NULL,
	status         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders (user_id);

CREATE TABLE IF NOT EXISTS reservations (
	id         TEXT PRIMARY KEY,
	ref        TEXT NOT NULL,
	lines      JSONB NOT NULL,
	state      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reservations_state ON reservations (state);
`

// EnsureSchema applies the schema on startup; every statement is idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
