// Package model defines the data types shared by the decoder, the connection
// manager and the quote sinks.
//
// Conventions:
//   - Prices: float64, widened from the feed's float32 through the shortest decimal form
//   - Timestamps: time.Time in UTC; sinks store int64 microseconds since Unix epoch
//   - Symbols: upper-case tickers as sent by the feed (e.g. "AAPL", "BTC-USD", "^GSPC")
package model
