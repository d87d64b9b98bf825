// Package metrics exposes streaming health to Prometheus.
//
// Key metrics:
//   - Connection state and health score
//   - Connection attempts, successes and errors
//   - Messages received, updates published and dropped, decode failures
//   - Reconnection attempts and subscription count
//   - Per-sink write and failure counts
package metrics
