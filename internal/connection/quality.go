package connection

import (
	"sync"
	"time"

	"github.com/rickgao/quotestream/internal/ringbuf"
)

// ErrorLogSize is how many errors QualityMonitor keeps.
const ErrorLogSize = 50

// Remediation hints.
const (
	HintRestart     = "restart the connection"
	HintNetwork     = "check network connectivity"
	HintThrottled   = "server may be throttling; wait before reconnecting"
	HintCookies     = "refresh session cookies"
	HintFrequentErr = "frequent errors; check feed URL and headers"
)

// QualityMetrics are lifetime connection counters.
type QualityMetrics struct {
	TotalConnections      int64
	SuccessfulConnections int64
	TotalErrors           int64
	MessagesReceived      int64
	LastSuccessTime       time.Time
	LastErrorTime         time.Time
}

// SuccessRate is SuccessfulConnections / TotalConnections, 0 with no
// connections.
func (q QualityMetrics) SuccessRate() float64 {
	if q.TotalConnections == 0 {
		return 0
	}
	return float64(q.SuccessfulConnections) / float64(q.TotalConnections)
}

// ErrorRate is the share of recorded events (messages and errors) that were
// errors, 0 with none.
func (q QualityMetrics) ErrorRate() float64 {
	events := q.MessagesReceived + q.TotalErrors
	if events == 0 {
		return 0
	}
	return float64(q.TotalErrors) / float64(events)
}

// ErrorLogEntry is one recorded error.
type ErrorLogEntry struct {
	At                  time.Time
	Err                 error
	Kind                Kind
	Context             string
	State               State
	ConsecutiveFailures int
}

// Diagnostics summarizes connection health.
type Diagnostics struct {
	HealthScore  float64
	State        State
	Metrics      QualityMetrics
	Reconnection ReconnectionContext
	Hints        []string
	RecentErrors []ErrorLogEntry
}

// QualityMonitor passively records connection outcomes.
type QualityMonitor struct {
	log *ringbuf.Buffer[ErrorLogEntry]

	mu      sync.Mutex
	metrics QualityMetrics
	lastErr Kind
}

// NewQualityMonitor returns an empty monitor.
func NewQualityMonitor() *QualityMonitor {
	return &QualityMonitor{log: ringbuf.New[ErrorLogEntry](ErrorLogSize)}
}

// RecordAttempt counts a connection attempt.
func (q *QualityMonitor) RecordAttempt() {
	q.mu.Lock()
	q.metrics.TotalConnections++
	q.mu.Unlock()
}

// RecordSuccess counts a successful connection.
func (q *QualityMonitor) RecordSuccess(at time.Time) {
	q.mu.Lock()
	q.metrics.SuccessfulConnections++
	q.metrics.LastSuccessTime = at
	q.mu.Unlock()
}

// RecordMessage counts a received frame.
func (q *QualityMonitor) RecordMessage() {
	q.mu.Lock()
	q.metrics.MessagesReceived++
	q.mu.Unlock()
}

// RecordError counts an error and appends it to the log.
func (q *QualityMonitor) RecordError(at time.Time, err error, context string, state State, consecutive int) {
	kind := KindOf(err)

	q.mu.Lock()
	q.metrics.TotalErrors++
	q.metrics.LastErrorTime = at
	if kind != KindReconnectionFailed {
		q.lastErr = kind
	}
	q.mu.Unlock()

	q.log.Push(ErrorLogEntry{
		At:                  at,
		Err:                 err,
		Kind:                kind,
		Context:             context,
		State:               state,
		ConsecutiveFailures: consecutive,
	})
}

// Metrics returns a copy of the counters.
func (q *QualityMonitor) Metrics() QualityMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.metrics
}

// ErrorLog returns recorded errors, oldest first.
func (q *QualityMonitor) ErrorLog() []ErrorLogEntry {
	return q.log.Snapshot()
}

// Reset clears counters and the error log.
func (q *QualityMonitor) Reset() {
	q.mu.Lock()
	q.metrics = QualityMetrics{}
	q.lastErr = KindUnknown
	q.mu.Unlock()
	q.log.Reset()
}

func stateScore(s State) float64 {
	switch s {
	case StateConnected:
		return 1.0
	case StateConnecting, StateReconnecting:
		return 0.5
	case StateDisconnected:
		return 0.25
	default:
		return 0
	}
}

// HealthScore computes the 0..1 health score:
// 0.4·state + 0.3·successRate + 0.2·max(0, 1−failures/10) + 0.1·(1−errorRate).
func HealthScore(state State, m QualityMetrics, consecutive int) float64 {
	decay := max(0, 1-float64(consecutive)/10)
	score := 0.4*stateScore(state) +
		0.3*m.SuccessRate() +
		0.2*decay +
		0.1*(1-m.ErrorRate())
	return min(1, max(0, score))
}

// Diagnose builds a Diagnostics for the given state and reconnection
// context.
func (q *QualityMonitor) Diagnose(state State, rc ReconnectionContext) Diagnostics {
	q.mu.Lock()
	m := q.metrics
	lastErr := q.lastErr
	q.mu.Unlock()

	score := HealthScore(state, m, rc.ConsecutiveFailures)

	var hints []string
	if score < 0.3 {
		hints = append(hints, HintRestart)
	}
	if m.TotalConnections >= 3 && m.SuccessRate() < 0.5 {
		hints = append(hints, HintNetwork)
	}
	if rc.ConsecutiveFailures >= 3 {
		hints = append(hints, HintThrottled)
	}
	if lastErr == KindAuthenticationFailed {
		hints = append(hints, HintCookies)
	}
	if m.ErrorRate() > 0.5 {
		hints = append(hints, HintFrequentErr)
	}

	return Diagnostics{
		HealthScore:  score,
		State:        state,
		Metrics:      m,
		Reconnection: rc,
		Hints:        hints,
		RecentErrors: q.ErrorLog(),
	}
}
