package config

import (
	"time"

	"github.com/rickgao/quotestream/internal/version"
)

// Default values for optional configuration fields.
const (
	DefaultStreamURL            = "wss://streamer.finance.yahoo.com/?version=2"
	DefaultConnectTimeout       = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultPingInterval         = 15 * time.Second
	DefaultPingTimeout          = 45 * time.Second
	DefaultBufferSize           = 256
	DefaultSubscriptionPolicy   = "full"
	DefaultMaxAttempts          = 5
	DefaultInitialDelay         = 1 * time.Second
	DefaultMaxDelay             = 30 * time.Second
	DefaultMultiplier           = 2.0
	DefaultJitterMax            = 1 * time.Second
	DefaultFastFailureThreshold = 3
	DefaultFastFailureWindow    = 5 * time.Second
	DefaultFastFailureStep      = 5 * time.Second
	DefaultFastFailureMax       = 30 * time.Second
	DefaultOrigin               = "https://finance.yahoo.com"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 1000
	DefaultFlushInterval        = 1 * time.Second
	DefaultNATSURL              = "nats://127.0.0.1:4222"
	DefaultSubjectPrefix        = "quotes"
	DefaultNATSClientName       = "quotestream"
	DefaultNATSConnectTimeout   = 5 * time.Second
	DefaultNATSReconnectWait    = 2 * time.Second
	DefaultNATSMaxReconnects    = 60
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
)

func (c *StreamerConfig) applyDefaults() {
	// Stream defaults
	if c.Stream.URL == "" {
		c.Stream.URL = DefaultStreamURL
	}
	if c.Stream.ConnectTimeout == 0 {
		c.Stream.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultBufferSize
	}
	if c.Stream.SubscriptionPolicy == "" {
		c.Stream.SubscriptionPolicy = DefaultSubscriptionPolicy
	}

	// Reconnect defaults
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}
	if c.Reconnect.InitialDelay == 0 {
		c.Reconnect.InitialDelay = DefaultInitialDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}
	if c.Reconnect.Multiplier == 0 {
		c.Reconnect.Multiplier = DefaultMultiplier
	}
	if c.Reconnect.JitterMax == 0 {
		c.Reconnect.JitterMax = DefaultJitterMax
	}
	if c.Reconnect.FastFailureThreshold == 0 {
		c.Reconnect.FastFailureThreshold = DefaultFastFailureThreshold
	}
	if c.Reconnect.FastFailureWindow == 0 {
		c.Reconnect.FastFailureWindow = DefaultFastFailureWindow
	}
	if c.Reconnect.FastFailureStep == 0 {
		c.Reconnect.FastFailureStep = DefaultFastFailureStep
	}
	if c.Reconnect.FastFailureMax == 0 {
		c.Reconnect.FastFailureMax = DefaultFastFailureMax
	}

	// Session defaults
	if c.Session.UserAgent == "" {
		c.Session.UserAgent = version.UserAgent()
	}
	if c.Session.Origin == "" {
		c.Session.Origin = DefaultOrigin
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}

	// NATS defaults
	if c.NATS.URL == "" {
		c.NATS.URL = DefaultNATSURL
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.NATS.ClientName == "" {
		c.NATS.ClientName = DefaultNATSClientName
	}
	if c.NATS.ConnectTimeout == 0 {
		c.NATS.ConnectTimeout = DefaultNATSConnectTimeout
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = DefaultNATSReconnectWait
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = DefaultNATSMaxReconnects
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
