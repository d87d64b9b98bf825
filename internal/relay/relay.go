// Package relay republishes quote updates to NATS, one subject per symbol.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/rickgao/quotestream/internal/config"
	"github.com/rickgao/quotestream/internal/feed"
	"github.com/rickgao/quotestream/internal/model"
)

// Publisher sends a message to a subject. *nats.Conn implements it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Dial connects to NATS with the configured client name and reconnect
// settings.
func Dial(cfg config.NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return nc, nil
}

// Subject builds "<prefix>.<SYMBOL>". Characters that are not valid in a
// subject token become underscores.
func Subject(prefix, symbol string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, strings.ToUpper(symbol))
	if prefix == "" {
		return token
	}
	return prefix + "." + token
}

// ErrorToken is the subject token for feed error reports.
const ErrorToken = "_error"

// ErrorSubject builds "<prefix>._error".
func ErrorSubject(prefix string) string {
	if prefix == "" {
		return ErrorToken
	}
	return prefix + "." + ErrorToken
}

// Relay publishes every update from a subscription as JSON.
type Relay struct {
	pub    Publisher
	prefix string
	input  *feed.Subscription[model.Update]
	logger *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

// New creates a relay.
func New(pub Publisher, prefix string, input *feed.Subscription[model.Update], logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		pub:    pub,
		prefix: prefix,
		input:  input,
		logger: logger.With("component", "relay"),
	}
}

// Run publishes until ctx is cancelled or the update stream ends.
func (r *Relay) Run(ctx context.Context) error {
	for u := range r.input.All(ctx) {
		r.publish(u)
	}
	r.logger.Info("relay stopped", "published", r.published.Load(), "failed", r.failed.Load())
	return nil
}

func (r *Relay) publish(u model.Update) {
	data, err := json.Marshal(u)
	if err != nil {
		r.failed.Add(1)
		r.logger.Error("marshal update", "symbol", u.Symbol, "error", err)
		return
	}
	subject := Subject(r.prefix, u.Symbol)
	if u.IsError() || u.Symbol == "" {
		subject = ErrorSubject(r.prefix)
	}
	if err := r.pub.Publish(subject, data); err != nil {
		r.failed.Add(1)
		r.logger.Warn("publish update", "subject", subject, "error", err)
		return
	}
	r.published.Add(1)
}

// SinkStats reports published and failed counts.
func (r *Relay) SinkStats() (written, failed int64) {
	return r.published.Load(), r.failed.Load()
}
