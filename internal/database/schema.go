package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS ticks (
	symbol      TEXT             NOT NULL,
	token       TEXT             NOT NULL,
	ltp         DOUBLE PRECISION NOT NULL,
	bid         DOUBLE PRECISION NOT NULL DEFAULT 0,
	ask         DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_qty    BIGINT           NOT NULL DEFAULT 0,
	volume      BIGINT           NOT NULL DEFAULT 0,
	exchange_ts TIMESTAMPTZ      NOT NULL,
	received_at TIMESTAMPTZ      NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts ON ticks (symbol, exchange_ts);

CREATE TABLE IF NOT EXISTS bars (
	symbol       TEXT             NOT NULL,
	interval_sec BIGINT           NOT NULL,
	start_ts     TIMESTAMPTZ      NOT NULL,
	open         DOUBLE PRECISION NOT NULL,
	high         DOUBLE PRECISION NOT NULL,
	low          DOUBLE PRECISION NOT NULL,
	close        DOUBLE PRECISION NOT NULL,
	volume       BIGINT           NOT NULL,
	tick_count   BIGINT           NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, interval_sec, start_ts)
);

CREATE TABLE IF NOT EXISTS fills (
	order_id   TEXT             NOT NULL,
	symbol     TEXT             NOT NULL,
	side       TEXT             NOT NULL,
	quantity   BIGINT           NOT NULL,
	price      DOUBLE PRECISION NOT NULL,
	commission DOUBLE PRECISION NOT NULL,
	pnl        DOUBLE PRECISION NOT NULL,
	filled_at  TIMESTAMPTZ      NOT NULL,
	PRIMARY KEY (order_id, filled_at)
);
`

// EnsureSchema creates the archive tables when they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
