package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/quotestream/internal/connection"
)

func TestLoad(t *testing.T) {
	yaml := `
stream:
  url: wss://streamer.example.com/?version=2
  connect_timeout: 2s
  auto_reconnect: false
  symbols: [AAPL, BTC-USD]
reconnect:
  max_attempts: 8
  multiplier: 1.5
session:
  cookie: "A1=abc"
database:
  timescale:
    enabled: true
    host: localhost
    port: 5432
    name: test_ts
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Stream.URL != "wss://streamer.example.com/?version=2" {
		t.Errorf("Stream.URL = %q", cfg.Stream.URL)
	}
	if cfg.Stream.ConnectTimeout != 2*time.Second {
		t.Errorf("Stream.ConnectTimeout = %v, want 2s", cfg.Stream.ConnectTimeout)
	}
	if cfg.Stream.AutoReconnectEnabled() {
		t.Error("Stream.AutoReconnectEnabled() = true, want false")
	}
	if len(cfg.Stream.Symbols) != 2 || cfg.Stream.Symbols[1] != "BTC-USD" {
		t.Errorf("Stream.Symbols = %v", cfg.Stream.Symbols)
	}
	if cfg.Reconnect.MaxAttempts != 8 || cfg.Reconnect.Multiplier != 1.5 {
		t.Errorf("Reconnect = %+v", cfg.Reconnect)
	}
	if !cfg.Database.Timescale.Enabled || cfg.Database.Timescale.Host != "localhost" {
		t.Errorf("Database.Timescale = %+v", cfg.Database.Timescale)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("TEST_STREAM_COOKIE", "A3=xyz")

	yaml := `
session:
  cookie: ${TEST_STREAM_COOKIE}
database:
  timescale:
    host: localhost
    name: test_ts
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Timescale.Password != "secret123" {
		t.Errorf("Database.Timescale.Password = %q, want %q", cfg.Database.Timescale.Password, "secret123")
	}
	if cfg.Session.Cookie != "A3=xyz" {
		t.Errorf("Session.Cookie = %q, want %q", cfg.Session.Cookie, "A3=xyz")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load error = %v", err)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("stream: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("Parse error = %v", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "stream:\n  symbols: [AAPL]\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Stream.URL != DefaultStreamURL {
		t.Errorf("Stream.URL = %q, want default %q", cfg.Stream.URL, DefaultStreamURL)
	}
	if cfg.Stream.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("Stream.ConnectTimeout = %v, want default %v", cfg.Stream.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.Stream.BufferSize != DefaultBufferSize {
		t.Errorf("Stream.BufferSize = %d, want default %d", cfg.Stream.BufferSize, DefaultBufferSize)
	}
	if !cfg.Stream.AutoReconnectEnabled() {
		t.Error("auto_reconnect should default to true")
	}
	if cfg.Reconnect.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Reconnect.MaxAttempts = %d, want default %d", cfg.Reconnect.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Database.Timescale.Port != DefaultDBPort {
		t.Errorf("Database.Timescale.Port = %d, want default %d", cfg.Database.Timescale.Port, DefaultDBPort)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if !strings.HasPrefix(cfg.Session.UserAgent, "quotestream/") {
		t.Errorf("Session.UserAgent = %q", cfg.Session.UserAgent)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*StreamerConfig)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *StreamerConfig) {},
			wantErr: "",
		},
		{
			name:    "non websocket url",
			mutate:  func(c *StreamerConfig) { c.Stream.URL = "https://example.com" },
			wantErr: `stream.url must be a ws:// or wss:// url, got "https://example.com"`,
		},
		{
			name:    "bad policy",
			mutate:  func(c *StreamerConfig) { c.Stream.SubscriptionPolicy = "sometimes" },
			wantErr: `stream.subscription_policy must be full or delta, got "sometimes"`,
		},
		{
			name:    "blank symbol",
			mutate:  func(c *StreamerConfig) { c.Stream.Symbols = []string{"AAPL", " "} },
			wantErr: "stream.symbols[1] is blank",
		},
		{
			name:    "max delay below initial",
			mutate:  func(c *StreamerConfig) { c.Reconnect.MaxDelay = 500 * time.Millisecond },
			wantErr: "reconnect.max_delay (500ms) cannot be less than initial_delay (1s)",
		},
		{
			name:    "multiplier below one",
			mutate:  func(c *StreamerConfig) { c.Reconnect.Multiplier = 0.5 },
			wantErr: "reconnect.multiplier must be >= 1, got 0.5",
		},
		{
			name:    "bad log level",
			mutate:  func(c *StreamerConfig) { c.Log.Level = "loud" },
			wantErr: `log.level must be debug, info, warn or error, got "loud"`,
		},
		{
			name:    "timescale enabled without host",
			mutate:  func(c *StreamerConfig) { c.Database.Timescale.Enabled = true },
			wantErr: "database.timescale.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *StreamerConfig) {
				c.Database.Timescale = DBConfig{Enabled: true, Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "database.timescale.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *StreamerConfig) { c.Metrics.Enabled = true; c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "metrics disabled ignores port",
			mutate:  func(c *StreamerConfig) { c.Metrics.Port = 70000 },
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestManagerConfig(t *testing.T) {
	cfg := Default()
	cfg.Stream.SubscriptionPolicy = "delta"
	cfg.Reconnect.MaxAttempts = 9

	mc := cfg.ManagerConfig()
	if mc.URL != DefaultStreamURL {
		t.Errorf("URL = %q", mc.URL)
	}
	if mc.SubscriptionPolicy != connection.PolicyDelta {
		t.Errorf("SubscriptionPolicy = %q", mc.SubscriptionPolicy)
	}
	if mc.Reconnect.MaxAttempts != 9 || mc.Reconnect.FastFailureWindow != DefaultFastFailureWindow {
		t.Errorf("Reconnect = %+v", mc.Reconnect)
	}
	if !mc.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if mc.UpdateBufferSize != DefaultBufferSize {
		t.Errorf("UpdateBufferSize = %d", mc.UpdateBufferSize)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
