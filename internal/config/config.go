package config

import (
	"time"

	"github.com/rickgao/quotestream/internal/connection"
)

// StreamerConfig is the root configuration for a streamer instance.
type StreamerConfig struct {
	Stream    StreamConfig    `yaml:"stream"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Writer    WriterConfig    `yaml:"writer"`
	NATS      NATSConfig      `yaml:"nats"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StreamConfig holds the feed connection settings.
type StreamConfig struct {
	URL                string        `yaml:"url"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	BufferSize         int           `yaml:"buffer_size"`    // Per-consumer update buffer
	AutoReconnect      *bool         `yaml:"auto_reconnect"` // nil = true
	SubscriptionPolicy string        `yaml:"subscription_policy"`
	Symbols            []string      `yaml:"symbols"`
}

// ReconnectConfig holds the reconnection policy.
type ReconnectConfig struct {
	MaxAttempts          int           `yaml:"max_attempts"`
	InitialDelay         time.Duration `yaml:"initial_delay"`
	MaxDelay             time.Duration `yaml:"max_delay"`
	Multiplier           float64       `yaml:"multiplier"`
	JitterMax            time.Duration `yaml:"jitter_max"`
	FastFailureThreshold int           `yaml:"fast_failure_threshold"`
	FastFailureWindow    time.Duration `yaml:"fast_failure_window"`
	FastFailureStep      time.Duration `yaml:"fast_failure_step"`
	FastFailureMax       time.Duration `yaml:"fast_failure_max"`
}

// SessionConfig holds the handshake identity.
type SessionConfig struct {
	UserAgent string `yaml:"user_agent"`
	Origin    string `yaml:"origin"`
	Cookie    string `yaml:"cookie"` // Raw Cookie header, e.g. "A1=...; A3=..."
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DatabaseConfig holds the TimescaleDB connection for the quote sink.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// NATSConfig holds the quote relay settings.
type NATSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	ClientName     string        `yaml:"client_name"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	MaxReconnects  int           `yaml:"max_reconnects"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// AutoReconnectEnabled resolves the auto_reconnect flag.
func (s StreamConfig) AutoReconnectEnabled() bool {
	return s.AutoReconnect == nil || *s.AutoReconnect
}

// ManagerConfig converts the stream and reconnect sections. Handshake
// headers and cookies come from the auth session's client factory.
func (c *StreamerConfig) ManagerConfig() connection.ManagerConfig {
	return connection.ManagerConfig{
		URL:                c.Stream.URL,
		ConnectTimeout:     c.Stream.ConnectTimeout,
		WriteTimeout:       c.Stream.WriteTimeout,
		PingInterval:       c.Stream.PingInterval,
		PingTimeout:        c.Stream.PingTimeout,
		UpdateBufferSize:   c.Stream.BufferSize,
		AutoReconnect:      c.Stream.AutoReconnectEnabled(),
		SubscriptionPolicy: connection.SubscriptionPolicy(c.Stream.SubscriptionPolicy),
		Reconnect: connection.ReconnectConfig{
			MaxAttempts:          c.Reconnect.MaxAttempts,
			InitialDelay:         c.Reconnect.InitialDelay,
			MaxDelay:             c.Reconnect.MaxDelay,
			Multiplier:           c.Reconnect.Multiplier,
			JitterMax:            c.Reconnect.JitterMax,
			FastFailureThreshold: c.Reconnect.FastFailureThreshold,
			FastFailureWindow:    c.Reconnect.FastFailureWindow,
			FastFailureStep:      c.Reconnect.FastFailureStep,
			FastFailureMax:       c.Reconnect.FastFailureMax,
		},
	}
}
