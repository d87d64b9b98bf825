package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/rickgao/quotestream/internal/decoder"
	"github.com/rickgao/quotestream/internal/feed"
	"github.com/rickgao/quotestream/internal/model"
)

// Option configures a Manager.
type Option func(*Manager)

// WithClientFactory replaces the WebSocket transport.
func WithClientFactory(f ClientFactory) Option {
	return func(m *Manager) {
		if f != nil {
			m.newClient = f
		}
	}
}

// WithJitter replaces the reconnection jitter source. f receives JitterMax
// and returns a value in [0, JitterMax].
func WithJitter(f func(time.Duration) time.Duration) Option {
	return func(m *Manager) {
		m.jitter = f
	}
}

// Manager owns one streaming connection: its lifecycle, subscriptions,
// reconnection and quality telemetry.
type Manager struct {
	cfg       ManagerConfig
	logger    *slog.Logger
	sessionID string
	newClient ClientFactory
	jitter    func(time.Duration) time.Duration
	now       func() time.Time

	// opMu serializes public lifecycle operations. Socket writes and closes
	// happen under opMu or in background goroutines, never under mu.
	opMu sync.Mutex

	// pub is swapped under mu and read without it by the receive loop.
	pub atomic.Pointer[feed.Publisher[model.Update]]

	// mu guards everything below. Background goroutines take only mu.
	mu            sync.Mutex
	sm            *StateMachine
	registry      *Registry
	policy        *ReconnectPolicy
	client        Client
	autoReconnect bool
	sessionCancel context.CancelFunc

	quality *QualityMonitor
	wg      sync.WaitGroup

	decodeLog      rate.Sometimes
	decodeFailures atomic.Int64
	dropsRetired   int64 // drops of finished publishers, guarded by mu
	pubRetired     int64 // publishes of finished publishers, guarded by mu
}

// NewManager creates a Manager in StateDisconnected.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SubscriptionPolicy == "" {
		cfg.SubscriptionPolicy = PolicyFull
	}

	id := uuid.NewString()
	m := &Manager{
		cfg:       cfg,
		sessionID: id,
		logger:    logger.With("session", id),
		newClient: NewClient,
		now:       time.Now,
		decodeLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}

	m.sm = NewStateMachine(m.logger)
	m.registry = NewRegistry()
	m.policy = NewReconnectPolicy(cfg.Reconnect, m.jitter)
	m.quality = NewQualityMonitor()
	m.pub.Store(feed.NewPublisher[model.Update](cfg.UpdateBufferSize))
	m.autoReconnect = cfg.AutoReconnect
	return m
}

// SessionID identifies this Manager in logs and metrics.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// Connect opens the connection and replays any registered subscriptions.
// It is a no-op while connected or reconnecting. A failed initial connect
// is returned to the caller and not retried.
func (m *Manager) Connect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	switch m.sm.Current() {
	case StateConnected, StateReconnecting, StateConnecting:
		m.mu.Unlock()
		return nil
	}

	if m.pub.Load().Finished() {
		m.retirePublisherLocked()
		m.pub.Store(feed.NewPublisher[model.Update](m.cfg.UpdateBufferSize))
	}
	m.autoReconnect = m.cfg.AutoReconnect
	m.transitionLocked(StateConnecting, "connect requested")

	sessCtx, sessCancel := context.WithCancel(context.Background())
	m.sessionCancel = sessCancel
	m.mu.Unlock()

	// Either the caller or Disconnect can abort the dial.
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sessCtx, cancel)
	defer stop()

	client := m.newClient(m.cfg.clientConfig(), m.logger)
	m.quality.RecordAttempt()
	err := client.Connect(dialCtx)
	if err == nil && sessCtx.Err() != nil {
		err = &Error{Kind: KindConnectionFailed, Op: "connect", URL: m.cfg.URL, Err: context.Canceled}
	}

	if err != nil {
		client.Close()

		m.mu.Lock()
		m.quality.RecordError(m.now(), err, "connect", StateConnecting, m.policy.Context().ConsecutiveFailures)
		m.transitionLocked(StateDisconnected, "connect failed")
		sessCancel()
		m.sessionCancel = nil
		m.mu.Unlock()

		m.logger.Warn("connect failed", "url", m.cfg.URL, "kind", KindOf(err).String(), "error", err)
		return err
	}

	m.mu.Lock()
	replay := m.startSessionLocked(sessCtx, client, "connected")
	m.mu.Unlock()

	m.replay(client, replay)
	m.logger.Info("connected", "url", m.cfg.URL, "subscriptions", m.registry.Len())
	return nil
}

// Resume reconnects a suspended Manager.
func (m *Manager) Resume(ctx context.Context) error {
	return m.Connect(ctx)
}

// startSessionLocked installs a live client and starts the receive loop. It
// returns the registry snapshot to replay once mu is released.
func (m *Manager) startSessionLocked(ctx context.Context, client Client, reason string) []string {
	m.client = client
	m.transitionLocked(StateConnected, reason)

	m.wg.Add(1)
	go m.receiveLoop(ctx, client)

	return m.registry.Symbols()
}

// replay sends the subscription set to a fresh client. Must not be called
// with mu held.
func (m *Manager) replay(client Client, symbols []string) {
	if len(symbols) == 0 {
		return
	}
	if err := client.Send(subscribeFrame(symbols)); err != nil {
		// The receive loop will see the broken socket and retry.
		m.logger.Warn("subscription replay failed", "symbols", len(symbols), "error", err)
		return
	}
	m.logger.Debug("subscriptions replayed", "symbols", len(symbols))
}

// Disconnect stops the session: it cancels any dial or scheduled
// reconnection, closes the socket, clears subscriptions and ends the
// update stream.
func (m *Manager) Disconnect(ctx context.Context) error {
	// Cancel first so an in-flight Connect holding opMu gives up.
	m.mu.Lock()
	if m.sessionCancel != nil {
		m.sessionCancel()
	}
	m.mu.Unlock()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.sessionCancel != nil {
		m.sessionCancel()
		m.sessionCancel = nil
	}
	m.autoReconnect = false
	client := m.client
	m.client = nil
	m.mu.Unlock()

	m.waitBackground(ctx)

	if client != nil {
		client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.registry.Clear()
	if m.sm.Current() != StateDisconnected {
		m.transitionLocked(StateDisconnected, "disconnect requested")
	}
	m.pub.Load().Finish()

	m.logger.Info("disconnected")
	return nil
}

// Suspend tears down the socket but keeps subscriptions and the update
// stream. Connect or Resume brings it back.
func (m *Manager) Suspend(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.sm.Current() != StateConnected {
		st := m.sm.Current()
		m.mu.Unlock()
		return &Error{Kind: KindNotConnected, Op: "suspend", Err: fmt.Errorf("state %s", st)}
	}
	cancel := m.sessionCancel
	m.sessionCancel = nil
	client := m.client
	m.client = nil
	m.transitionLocked(StateSuspended, "suspend requested")
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.waitBackground(ctx)
	if client != nil {
		client.Close()
	}

	m.logger.Info("suspended", "subscriptions", m.registry.Len())
	return nil
}

func (m *Manager) waitBackground(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, background tasks still running")
	}
}

// Subscribe adds symbols to the subscription set. Symbols are trimmed and
// upper-cased.
func (m *Manager) Subscribe(ctx context.Context, symbols []string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	client := m.client
	if m.sm.Current() != StateConnected || client == nil {
		m.mu.Unlock()
		return &Error{Kind: KindNotConnected, Op: "subscribe", Symbols: symbols}
	}

	norm, err := NormalizeSymbols(symbols)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	added := m.registry.Add(norm...)

	frame := norm
	if m.cfg.SubscriptionPolicy == PolicyFull {
		frame = m.registry.Symbols()
	}
	m.mu.Unlock()

	if err := client.Send(subscribeFrame(frame)); err != nil {
		return &Error{Kind: KindSubscriptionFailed, Op: "subscribe", URL: m.cfg.URL, Symbols: norm, Err: err}
	}

	m.logger.Info("subscribed", "requested", len(norm), "added", added, "total", m.registry.Len())
	return nil
}

// Unsubscribe removes symbols. The unsubscribe frame carries exactly the
// requested symbols, subscribed or not.
func (m *Manager) Unsubscribe(ctx context.Context, symbols []string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	client := m.client
	if m.sm.Current() != StateConnected || client == nil {
		m.mu.Unlock()
		return &Error{Kind: KindNotConnected, Op: "unsubscribe", Symbols: symbols}
	}

	norm, err := NormalizeSymbols(symbols)
	if err != nil {
		m.mu.Unlock()
		var e *Error
		if errors.As(err, &e) {
			e.Op = "unsubscribe"
		}
		return err
	}

	removed := m.registry.Remove(norm...)
	m.mu.Unlock()

	if err := client.Send(unsubscribeFrame(norm)); err != nil {
		return &Error{Kind: KindSubscriptionFailed, Op: "unsubscribe", URL: m.cfg.URL, Symbols: norm, Err: err}
	}

	m.logger.Info("unsubscribed", "requested", len(norm), "removed", removed, "total", m.registry.Len())
	return nil
}

// Updates attaches a consumer to the update stream. Closing the returned
// subscription does not affect the connection.
func (m *Manager) Updates() *feed.Subscription[model.Update] {
	return m.pub.Load().Subscribe()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.sm.Current()
}

// AutoReconnectEnabled reports whether the Manager will still recover from
// transport failures. A finished stream with this false is permanent.
func (m *Manager) AutoReconnectEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autoReconnect
}

// Subscriptions returns the subscribed symbols, sorted.
func (m *Manager) Subscriptions() []string {
	return m.registry.Symbols()
}

// History returns recent state transitions, oldest first.
func (m *Manager) History() []StateTransition {
	return m.sm.History()
}

// ErrorLog returns recent errors, oldest first.
func (m *Manager) ErrorLog() []ErrorLogEntry {
	return m.quality.ErrorLog()
}

// ResetQuality clears quality counters and the error log.
func (m *Manager) ResetQuality() {
	m.quality.Reset()
}

// Stats returns a snapshot of the Manager.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	state := m.sm.Current()
	rc := m.policy.Context()
	ps := m.pub.Load().Stats()
	auto := m.autoReconnect
	published := m.pubRetired + ps.Published
	dropped := m.dropsRetired + ps.Dropped
	m.mu.Unlock()

	q := m.quality.Metrics()
	return Stats{
		SessionID:        m.sessionID,
		State:            state,
		AutoReconnect:    auto,
		Subscriptions:    m.registry.Len(),
		Quality:          q,
		Reconnection:     rc,
		HealthScore:      HealthScore(state, q, rc.ConsecutiveFailures),
		UpdatesPublished: published,
		UpdatesDropped:   dropped,
		DecodeFailures:   m.decodeFailures.Load(),
		Consumers:        ps.Subscribers,
	}
}

// Diagnostics returns the health score, counters and remediation hints.
func (m *Manager) Diagnostics() Diagnostics {
	m.mu.Lock()
	state := m.sm.Current()
	rc := m.policy.Context()
	m.mu.Unlock()
	return m.quality.Diagnose(state, rc)
}

func (m *Manager) retirePublisherLocked() {
	ps := m.pub.Load().Stats()
	m.pubRetired += ps.Published
	m.dropsRetired += ps.Dropped
}

// transitionLocked applies a transition and its entry effects.
func (m *Manager) transitionLocked(to State, reason string) bool {
	if !m.sm.Transition(to, reason) {
		return false
	}

	switch to {
	case StateConnected:
		m.policy.Reset()
		m.quality.RecordSuccess(m.now())
	case StateDisconnected:
		if !m.autoReconnect {
			m.pub.Load().Finish()
		}
	case StateFailed:
		m.autoReconnect = false
		m.pub.Load().Finish()
	}
	return true
}

// receiveLoop forwards frames from one client until it fails or the
// session ends.
func (m *Manager) receiveLoop(ctx context.Context, c Client) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-c.Errors():
			m.handleTransportError(ctx, c, err)
			return

		case msg := <-c.Messages():
			m.handleMessage(msg)
		}
	}
}

func (m *Manager) handleMessage(msg TimestampedMessage) {
	m.quality.RecordMessage()

	u, err := decoder.DecodeFrame(msg.Data, msg.ReceivedAt)
	if err != nil {
		m.decodeFailures.Add(1)
		err = &Error{Kind: KindOf(err), Op: "decode", URL: m.cfg.URL, Err: err}
		// Reconnection counters are reset on entering connected, so a live
		// receive loop always reports zero consecutive failures.
		m.quality.RecordError(m.now(), err, "decode", m.sm.Current(), 0)

		m.decodeLog.Do(func() {
			m.logger.Warn("dropping undecodable frame",
				"kind", KindOf(err).String(),
				"bytes", len(msg.Data),
				"error", err,
			)
		})
		return
	}

	m.pub.Load().Publish(u)
}

// handleTransportError runs the reconnection policy for a failed client.
func (m *Manager) handleTransportError(ctx context.Context, c Client, err error) {
	m.mu.Lock()
	if m.client != c || ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.client = nil
	m.handleLostLocked(ctx, err)
	m.mu.Unlock()

	c.Close()
}

// handleLostLocked records a lost connection and either ends the session or
// schedules reconnection.
func (m *Manager) handleLostLocked(ctx context.Context, err error) {
	rc := m.policy.Context()
	m.quality.RecordError(m.now(), err, "receive", StateConnected, rc.ConsecutiveFailures)

	strategy := Classify(err)
	m.logger.Warn("connection lost",
		"kind", KindOf(err).String(),
		"strategy", strategy.String(),
		"error", err,
	)

	if !strategy.Retry() {
		m.autoReconnect = false
	}
	if !m.autoReconnect {
		m.transitionLocked(StateDisconnected, "connection lost: "+KindOf(err).String())
		m.endSessionLocked()
		return
	}

	m.transitionLocked(StateReconnecting, "connection lost: "+KindOf(err).String())
	m.wg.Add(1)
	go m.reconnectLoop(ctx, err)
}

func (m *Manager) endSessionLocked() {
	if m.sessionCancel != nil {
		m.sessionCancel()
		m.sessionCancel = nil
	}
}

// reconnectLoop retries until a connection succeeds, the policy gives up, or
// the session is cancelled.
func (m *Manager) reconnectLoop(ctx context.Context, cause error) {
	defer m.wg.Done()

	lastErr := cause
	for {
		m.mu.Lock()
		if ctx.Err() != nil {
			m.mu.Unlock()
			return
		}
		delay, ok := m.policy.Next(m.now())
		rc := m.policy.Context()
		if !ok {
			m.failLocked(rc, lastErr)
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		m.logger.Info("scheduling reconnection",
			"attempt", rc.Attempt,
			"max_attempts", rc.MaxAttempts,
			"delay", delay,
			"strategy", Classify(lastErr).String(),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		client := m.newClient(m.cfg.clientConfig(), m.logger)
		m.quality.RecordAttempt()
		err := client.Connect(ctx)

		if ctx.Err() != nil || err != nil {
			client.Close()
		}

		m.mu.Lock()
		if ctx.Err() != nil {
			m.mu.Unlock()
			return
		}

		if err != nil {
			m.quality.RecordError(m.now(), err, "reconnect", StateReconnecting, m.policy.Context().ConsecutiveFailures)
			m.logger.Warn("reconnection attempt failed",
				"attempt", rc.Attempt,
				"kind", KindOf(err).String(),
				"error", err,
			)

			if s := Classify(err); !s.Retry() {
				m.failLocked(m.policy.Context(), err)
				m.mu.Unlock()
				return
			}
			lastErr = err
			m.mu.Unlock()
			continue
		}

		replay := m.startSessionLocked(ctx, client, "reconnected")
		m.mu.Unlock()

		m.replay(client, replay)
		m.logger.Info("reconnected",
			"attempt", rc.Attempt,
			"total_attempts", rc.TotalAttempts,
			"subscriptions", len(replay),
		)
		return
	}
}

// failLocked gives up on the session.
func (m *Manager) failLocked(rc ReconnectionContext, cause error) {
	err := &Error{Kind: KindReconnectionFailed, Op: "reconnect", URL: m.cfg.URL, Attempt: rc.Attempt, Err: cause}
	m.quality.RecordError(m.now(), err, "reconnect", StateReconnecting, rc.ConsecutiveFailures)
	m.transitionLocked(StateFailed, "reconnection gave up")
	m.endSessionLocked()

	m.logger.Error("reconnection failed",
		"attempts", rc.Attempt,
		"total_attempts", rc.TotalAttempts,
		"error", cause,
	)
}
