package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *StreamerConfig) Validate() error {
	if c.Stream.URL == "" {
		return errors.New("stream.url is required")
	}
	u, err := url.Parse(c.Stream.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("stream.url must be a ws:// or wss:// url, got %q", c.Stream.URL)
	}
	if c.Stream.ConnectTimeout <= 0 {
		return errors.New("stream.connect_timeout must be > 0")
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}
	switch c.Stream.SubscriptionPolicy {
	case "full", "delta":
	default:
		return fmt.Errorf("stream.subscription_policy must be full or delta, got %q", c.Stream.SubscriptionPolicy)
	}
	for i, s := range c.Stream.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("stream.symbols[%d] is blank", i)
		}
	}

	if err := c.Reconnect.validate(); err != nil {
		return err
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Database.Timescale.Enabled {
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
		if c.Writer.BatchSize < 1 {
			return errors.New("writer.batch_size must be >= 1")
		}
		if c.Writer.FlushInterval <= 0 {
			return errors.New("writer.flush_interval must be > 0")
		}
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return errors.New("nats.url is required")
		}
		if c.NATS.SubjectPrefix == "" {
			return errors.New("nats.subject_prefix is required")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
		}
	}

	return nil
}

func (r *ReconnectConfig) validate() error {
	if r.MaxAttempts < 1 {
		return errors.New("reconnect.max_attempts must be >= 1")
	}
	if r.InitialDelay <= 0 {
		return errors.New("reconnect.initial_delay must be > 0")
	}
	if r.MaxDelay < r.InitialDelay {
		return fmt.Errorf("reconnect.max_delay (%s) cannot be less than initial_delay (%s)", r.MaxDelay, r.InitialDelay)
	}
	if r.Multiplier < 1 {
		return fmt.Errorf("reconnect.multiplier must be >= 1, got %g", r.Multiplier)
	}
	if r.JitterMax < 0 {
		return errors.New("reconnect.jitter_max must be >= 0")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
