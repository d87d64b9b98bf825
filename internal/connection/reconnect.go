package connection

import (
	"math"
	"math/rand/v2"
	"time"
)

// ReconnectConfig configures the reconnection policy.
type ReconnectConfig struct {
	MaxAttempts  int           // Attempts before giving up
	InitialDelay time.Duration // Backoff for the first attempt
	MaxDelay     time.Duration // Backoff cap (before jitter)
	Multiplier   float64       // Backoff growth factor
	JitterMax    time.Duration // Upper bound of the uniform jitter

	// Fast-failure guard: when FastFailureThreshold consecutive failures
	// occur with the previous one less than FastFailureWindow ago, wait
	// min(FastFailureMax, FastFailureStep × failures) instead.
	FastFailureThreshold int
	FastFailureWindow    time.Duration
	FastFailureStep      time.Duration
	FastFailureMax       time.Duration
}

// DefaultReconnectConfig returns sensible defaults.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxAttempts:          5,
		InitialDelay:         1 * time.Second,
		MaxDelay:             30 * time.Second,
		Multiplier:           2.0,
		JitterMax:            1 * time.Second,
		FastFailureThreshold: 3,
		FastFailureWindow:    5 * time.Second,
		FastFailureStep:      5 * time.Second,
		FastFailureMax:       30 * time.Second,
	}
}

func (c ReconnectConfig) withDefaults() ReconnectConfig {
	d := DefaultReconnectConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.JitterMax < 0 {
		c.JitterMax = 0
	}
	if c.FastFailureThreshold <= 0 {
		c.FastFailureThreshold = d.FastFailureThreshold
	}
	if c.FastFailureWindow <= 0 {
		c.FastFailureWindow = d.FastFailureWindow
	}
	if c.FastFailureStep <= 0 {
		c.FastFailureStep = d.FastFailureStep
	}
	if c.FastFailureMax <= 0 {
		c.FastFailureMax = d.FastFailureMax
	}
	return c
}

// Strategy is the recovery action chosen for a failure.
type Strategy int

const (
	StrategyImmediateReconnect Strategy = iota
	StrategyExponentialBackoffReconnect
	StrategyNetworkCheckReconnect
	StrategyUserIntervention
	StrategyAbort
)

func (s Strategy) String() string {
	switch s {
	case StrategyImmediateReconnect:
		return "immediate_reconnect"
	case StrategyExponentialBackoffReconnect:
		return "exponential_backoff_reconnect"
	case StrategyNetworkCheckReconnect:
		return "network_check_reconnect"
	case StrategyUserIntervention:
		return "user_intervention"
	case StrategyAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Retry reports whether the strategy permits another attempt.
func (s Strategy) Retry() bool {
	switch s {
	case StrategyImmediateReconnect, StrategyExponentialBackoffReconnect, StrategyNetworkCheckReconnect:
		return true
	}
	return false
}

// Classify maps an error to its recovery strategy.
func Classify(err error) Strategy {
	switch KindOf(err) {
	case KindUnexpectedDisconnection, KindMessageDecodingFailed:
		return StrategyImmediateReconnect
	case KindConnectionFailed, KindSubscriptionFailed, KindProtocolError:
		return StrategyExponentialBackoffReconnect
	case KindConnectionTimeout:
		return StrategyNetworkCheckReconnect
	case KindAuthenticationFailed:
		return StrategyUserIntervention
	case KindInvalidURL, KindNotConnected, KindInvalidSubscription, KindReconnectionFailed:
		return StrategyAbort
	default:
		return StrategyExponentialBackoffReconnect
	}
}

// ReconnectionContext is a snapshot of the policy counters.
type ReconnectionContext struct {
	Attempt             int
	TotalAttempts       int // Lifetime counter, never reset
	ConsecutiveFailures int
	LastFailureTime     time.Time
	MaxAttempts         int
	InitialDelay        time.Duration
	MaxDelay            time.Duration
	Multiplier          float64
	JitterMax           time.Duration
}

// ReconnectPolicy computes reconnection delays. It is not safe for
// concurrent use; the Manager guards it with its own lock.
type ReconnectPolicy struct {
	cfg    ReconnectConfig
	jitter func(max time.Duration) time.Duration

	attempt         int
	totalAttempts   int
	consecutive     int
	lastFailureTime time.Time
}

// NewReconnectPolicy creates a policy. A nil jitter draws uniformly from
// [0, JitterMax].
func NewReconnectPolicy(cfg ReconnectConfig, jitter func(time.Duration) time.Duration) *ReconnectPolicy {
	if jitter == nil {
		jitter = uniformJitter
	}
	return &ReconnectPolicy{
		cfg:    cfg.withDefaults(),
		jitter: jitter,
	}
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max) + 1))
}

// BaseDelay is the un-jittered backoff for a 1-based attempt:
// min(InitialDelay × Multiplier^(attempt-1), MaxDelay).
func (p *ReconnectPolicy) BaseDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.cfg.InitialDelay) * math.Pow(p.cfg.Multiplier, float64(attempt-1))
	if d >= float64(p.cfg.MaxDelay) || math.IsInf(d, 0) || math.IsNaN(d) {
		return p.cfg.MaxDelay
	}
	return time.Duration(d)
}

// Delay is BaseDelay plus jitter in [0, JitterMax].
func (p *ReconnectPolicy) Delay(attempt int) time.Duration {
	j := p.jitter(p.cfg.JitterMax)
	if j < 0 {
		j = 0
	}
	if j > p.cfg.JitterMax {
		j = p.cfg.JitterMax
	}
	return p.BaseDelay(attempt) + j
}

// Next records a failure at now and returns the wait before the next
// attempt. ok is false once MaxAttempts attempts have been made.
func (p *ReconnectPolicy) Next(now time.Time) (delay time.Duration, ok bool) {
	if p.attempt >= p.cfg.MaxAttempts {
		return 0, false
	}

	prev := p.lastFailureTime
	p.attempt++
	p.totalAttempts++
	p.consecutive++
	p.lastFailureTime = now

	if p.consecutive >= p.cfg.FastFailureThreshold && !prev.IsZero() && now.Sub(prev) < p.cfg.FastFailureWindow {
		return min(p.cfg.FastFailureMax, p.cfg.FastFailureStep*time.Duration(p.consecutive)), true
	}
	return p.Delay(p.attempt), true
}

// Exhausted reports whether no attempts remain.
func (p *ReconnectPolicy) Exhausted() bool {
	return p.attempt >= p.cfg.MaxAttempts
}

// Reset clears the attempt and consecutive-failure counters after a
// successful connection. TotalAttempts is kept.
func (p *ReconnectPolicy) Reset() {
	p.attempt = 0
	p.consecutive = 0
}

// Context returns a snapshot of the counters and configuration.
func (p *ReconnectPolicy) Context() ReconnectionContext {
	return ReconnectionContext{
		Attempt:             p.attempt,
		TotalAttempts:       p.totalAttempts,
		ConsecutiveFailures: p.consecutive,
		LastFailureTime:     p.lastFailureTime,
		MaxAttempts:         p.cfg.MaxAttempts,
		InitialDelay:        p.cfg.InitialDelay,
		MaxDelay:            p.cfg.MaxDelay,
		Multiplier:          p.cfg.Multiplier,
		JitterMax:           p.cfg.JitterMax,
	}
}
