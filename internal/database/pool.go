package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/quotestream/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Execer runs a statement. *pgxpool.Pool and pgx.Tx implement it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SchemaStatements create the quotes table. Timestamps are microseconds
// since the Unix epoch.
var SchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS quotes (
		symbol          TEXT             NOT NULL,
		received_at     BIGINT           NOT NULL,
		last_trade_at   BIGINT,
		price           DOUBLE PRECISION NOT NULL,
		change          DOUBLE PRECISION,
		change_percent  DOUBLE PRECISION NOT NULL,
		volume          BIGINT           NOT NULL,
		day_high        DOUBLE PRECISION,
		day_low         DOUBLE PRECISION,
		market_state    TEXT             NOT NULL,
		quote_type      TEXT,
		currency        TEXT,
		exchange        TEXT,
		error_text      TEXT,
		PRIMARY KEY (symbol, received_at)
	)`,
	`DO $$
	BEGIN
		IF EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'timescaledb') THEN
			PERFORM create_hypertable('quotes', 'received_at',
				chunk_time_interval => 86400000000, if_not_exists => TRUE);
		END IF;
	END
	$$`,
	`CREATE INDEX IF NOT EXISTS quotes_received_at_idx ON quotes (received_at DESC)`,
}

// EnsureSchema creates the quotes table if it does not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range SchemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
