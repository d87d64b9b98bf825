package connection

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ControlFrame is a client→server text frame.
type ControlFrame struct {
	Subscribe   []string `json:"subscribe,omitempty"`
	Unsubscribe []string `json:"unsubscribe,omitempty"`
}

func subscribeFrame(symbols []string) []byte {
	data, _ := json.Marshal(ControlFrame{Subscribe: symbols})
	return data
}

func unsubscribeFrame(symbols []string) []byte {
	data, _ := json.Marshal(ControlFrame{Unsubscribe: symbols})
	return data
}

// SubscriptionPolicy selects what a subscribe frame carries.
type SubscriptionPolicy string

const (
	// PolicyFull sends the whole accumulated set on every subscribe.
	PolicyFull SubscriptionPolicy = "full"
	// PolicyDelta sends only the newly requested symbols.
	PolicyDelta SubscriptionPolicy = "delta"
)

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL            string         // WebSocket URL (e.g., wss://streamer.finance.yahoo.com/?version=2)
	Header         http.Header    // Extra handshake headers (User-Agent, Origin, ...)
	Jar            http.CookieJar // Session cookies (nil = none)
	ConnectTimeout time.Duration  // Dial + handshake deadline
	PingInterval   time.Duration  // How often to send keepalive pings
	PingTimeout    time.Duration  // Max time without pong before considering connection stale
	WriteTimeout   time.Duration  // Write deadline for sends
	BufferSize     int            // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout: 10 * time.Second,
		PingInterval:   15 * time.Second,
		PingTimeout:    45 * time.Second,
		WriteTimeout:   5 * time.Second,
		BufferSize:     1024,
	}
}

// ClientFactory builds a transport for one connection attempt.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// ManagerConfig configures the Manager.
type ManagerConfig struct {
	URL                string
	Header             http.Header
	Jar                http.CookieJar
	ConnectTimeout     time.Duration
	WriteTimeout       time.Duration
	PingInterval       time.Duration
	PingTimeout        time.Duration
	MessageBufferSize  int // Transport read buffer
	UpdateBufferSize   int // Per-consumer update buffer
	AutoReconnect      bool
	SubscriptionPolicy SubscriptionPolicy
	Reconnect          ReconnectConfig
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	cc := DefaultClientConfig()
	return ManagerConfig{
		ConnectTimeout:     cc.ConnectTimeout,
		WriteTimeout:       cc.WriteTimeout,
		PingInterval:       cc.PingInterval,
		PingTimeout:        cc.PingTimeout,
		MessageBufferSize:  cc.BufferSize,
		UpdateBufferSize:   256,
		AutoReconnect:      true,
		SubscriptionPolicy: PolicyFull,
		Reconnect:          DefaultReconnectConfig(),
	}
}

func (c ManagerConfig) clientConfig() ClientConfig {
	d := DefaultClientConfig()
	cc := ClientConfig{
		URL:            c.URL,
		Header:         c.Header,
		Jar:            c.Jar,
		ConnectTimeout: c.ConnectTimeout,
		PingInterval:   c.PingInterval,
		PingTimeout:    c.PingTimeout,
		WriteTimeout:   c.WriteTimeout,
		BufferSize:     c.MessageBufferSize,
	}
	if cc.ConnectTimeout <= 0 {
		cc.ConnectTimeout = d.ConnectTimeout
	}
	if cc.PingInterval <= 0 {
		cc.PingInterval = d.PingInterval
	}
	if cc.PingTimeout <= 0 {
		cc.PingTimeout = d.PingTimeout
	}
	if cc.WriteTimeout <= 0 {
		cc.WriteTimeout = d.WriteTimeout
	}
	if cc.BufferSize <= 0 {
		cc.BufferSize = d.BufferSize
	}
	return cc
}

// Stats is a point-in-time view of a Manager.
type Stats struct {
	SessionID        string
	State            State
	AutoReconnect    bool
	Subscriptions    int
	Quality          QualityMetrics
	Reconnection     ReconnectionContext
	HealthScore      float64
	UpdatesPublished int64
	UpdatesDropped   int64
	DecodeFailures   int64
	Consumers        int
}
