// Package database provides the TimescaleDB connection pool and schema for
// the quote sink.
//
// Quotes are append-only rows keyed by (symbol, received_at). When the
// timescaledb extension is installed the table becomes a hypertable on
// received_at; plain PostgreSQL works too.
package database
