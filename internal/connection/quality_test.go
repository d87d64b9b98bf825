package connection

import (
	"errors"
	"math"
	"slices"
	"testing"
	"time"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestQualityMetrics_Rates(t *testing.T) {
	var m QualityMetrics
	if m.SuccessRate() != 0 || m.ErrorRate() != 0 {
		t.Errorf("zero metrics: success=%v error=%v, want 0, 0", m.SuccessRate(), m.ErrorRate())
	}

	m = QualityMetrics{TotalConnections: 4, SuccessfulConnections: 3, MessagesReceived: 9, TotalErrors: 1}
	if !approx(m.SuccessRate(), 0.75) {
		t.Errorf("SuccessRate = %v, want 0.75", m.SuccessRate())
	}
	if !approx(m.ErrorRate(), 0.1) {
		t.Errorf("ErrorRate = %v, want 0.1", m.ErrorRate())
	}
}

func TestHealthScore(t *testing.T) {
	healthy := QualityMetrics{TotalConnections: 1, SuccessfulConnections: 1, MessagesReceived: 100}

	tests := []struct {
		name        string
		state       State
		metrics     QualityMetrics
		consecutive int
		want        float64
	}{
		{"fresh disconnected", StateDisconnected, QualityMetrics{}, 0, 0.4*0.25 + 0 + 0.2 + 0.1},
		{"healthy connected", StateConnected, healthy, 0, 1.0},
		{"reconnecting", StateReconnecting, healthy, 2, 0.4*0.5 + 0.3 + 0.2*0.8 + 0.1},
		{"connecting", StateConnecting, QualityMetrics{}, 0, 0.4*0.5 + 0.2 + 0.1},
		{"failed", StateFailed, QualityMetrics{TotalConnections: 5, TotalErrors: 5}, 12, 0},
		{"suspended", StateSuspended, healthy, 0, 0.3 + 0.2 + 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HealthScore(tt.state, tt.metrics, tt.consecutive); !approx(got, tt.want) {
				t.Errorf("HealthScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQualityMonitor_Record(t *testing.T) {
	q := NewQualityMonitor()
	now := time.Now()

	q.RecordAttempt()
	q.RecordSuccess(now)
	q.RecordMessage()
	q.RecordMessage()
	q.RecordError(now.Add(time.Second), &Error{Kind: KindUnexpectedDisconnection}, "receive", StateConnected, 0)

	m := q.Metrics()
	if m.TotalConnections != 1 || m.SuccessfulConnections != 1 || m.MessagesReceived != 2 || m.TotalErrors != 1 {
		t.Errorf("metrics = %+v", m)
	}
	if !m.LastSuccessTime.Equal(now) || !m.LastErrorTime.Equal(now.Add(time.Second)) {
		t.Errorf("timestamps = %v, %v", m.LastSuccessTime, m.LastErrorTime)
	}

	log := q.ErrorLog()
	if len(log) != 1 {
		t.Fatalf("error log length = %d, want 1", len(log))
	}
	if log[0].Kind != KindUnexpectedDisconnection || log[0].Context != "receive" || log[0].State != StateConnected {
		t.Errorf("entry = %+v", log[0])
	}

	q.Reset()
	if q.Metrics() != (QualityMetrics{}) || len(q.ErrorLog()) != 0 {
		t.Error("Reset did not clear monitor")
	}
}

func TestQualityMonitor_ErrorLogBounded(t *testing.T) {
	q := NewQualityMonitor()
	for i := 0; i < ErrorLogSize+10; i++ {
		q.RecordError(time.Now(), errors.New("boom"), "test", StateConnected, i)
	}

	log := q.ErrorLog()
	if len(log) != ErrorLogSize {
		t.Fatalf("error log length = %d, want %d", len(log), ErrorLogSize)
	}
	if log[0].ConsecutiveFailures != 10 {
		t.Errorf("oldest entry = %d, want 10", log[0].ConsecutiveFailures)
	}
	if q.Metrics().TotalErrors != int64(ErrorLogSize+10) {
		t.Errorf("TotalErrors = %d", q.Metrics().TotalErrors)
	}
}

func TestQualityMonitor_Hints(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		q := NewQualityMonitor()
		q.RecordAttempt()
		q.RecordSuccess(time.Now())
		q.RecordMessage()

		d := q.Diagnose(StateConnected, ReconnectionContext{})
		if len(d.Hints) != 0 {
			t.Errorf("hints = %v, want none", d.Hints)
		}
		if !approx(d.HealthScore, 1.0) {
			t.Errorf("HealthScore = %v, want 1.0", d.HealthScore)
		}
	})

	t.Run("failing", func(t *testing.T) {
		q := NewQualityMonitor()
		for i := 0; i < 4; i++ {
			q.RecordAttempt()
			q.RecordError(time.Now(), &Error{Kind: KindAuthenticationFailed}, "connect", StateConnecting, i)
		}
		q.RecordError(time.Now(), &Error{Kind: KindReconnectionFailed}, "reconnect", StateReconnecting, 4)

		d := q.Diagnose(StateFailed, ReconnectionContext{ConsecutiveFailures: 4})
		for _, want := range []string{HintRestart, HintNetwork, HintThrottled, HintCookies, HintFrequentErr} {
			if !slices.Contains(d.Hints, want) {
				t.Errorf("missing hint %q in %v", want, d.Hints)
			}
		}
		if d.State != StateFailed || d.Reconnection.ConsecutiveFailures != 4 {
			t.Errorf("diagnostics = %+v", d)
		}
		if len(d.RecentErrors) != 5 {
			t.Errorf("RecentErrors = %d, want 5", len(d.RecentErrors))
		}
	})
}
