// Package writer batches quote updates into TimescaleDB.
//
// Writes are append-only: rows are never updated, and a row that collides
// on (symbol, received_at) is counted as a conflict and skipped. Timestamps
// are stored as int64 microseconds since the Unix epoch.
package writer
