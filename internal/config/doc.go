// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Only the stream section is required; every sink (TimescaleDB, NATS, metrics)
// is opt-in through its enabled flag.
package config
