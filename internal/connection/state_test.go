package connection

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

var allStates = []State{
	StateDisconnected,
	StateConnecting,
	StateConnected,
	StateReconnecting,
	StateFailed,
	StateSuspended,
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]State]bool{
		{StateDisconnected, StateConnecting}:   true,
		{StateDisconnected, StateSuspended}:    true,
		{StateConnecting, StateConnected}:      true,
		{StateConnecting, StateDisconnected}:   true,
		{StateConnecting, StateFailed}:         true,
		{StateConnected, StateDisconnected}:    true,
		{StateConnected, StateReconnecting}:    true,
		{StateConnected, StateSuspended}:       true,
		{StateReconnecting, StateConnected}:    true,
		{StateReconnecting, StateDisconnected}: true,
		{StateReconnecting, StateFailed}:       true,
		{StateFailed, StateDisconnected}:       true,
		{StateFailed, StateConnecting}:         true,
		{StateSuspended, StateDisconnected}:    true,
		{StateSuspended, StateConnecting}:      true,
	}

	for _, from := range allStates {
		for _, to := range allStates {
			want := from == to || allowed[[2]State{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStateMachine_Transition(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sm := NewStateMachine(logger)

	if sm.Current() != StateDisconnected {
		t.Fatalf("initial state = %s, want disconnected", sm.Current())
	}

	if !sm.Transition(StateConnecting, "connect") {
		t.Fatal("disconnected→connecting rejected")
	}
	if !sm.Transition(StateConnected, "open") {
		t.Fatal("connecting→connected rejected")
	}

	// Not in the table
	if sm.Transition(StateConnecting, "bogus") {
		t.Error("connected→connecting accepted")
	}
	if sm.Current() != StateConnected {
		t.Errorf("state after rejected transition = %s, want connected", sm.Current())
	}
	if !strings.Contains(buf.String(), "invalid state transition") {
		t.Error("rejected transition was not logged")
	}

	// Self transitions always succeed
	if !sm.Transition(StateConnected, "audit") {
		t.Error("self transition rejected")
	}

	h := sm.History()
	if len(h) != 3 {
		t.Fatalf("history length = %d, want 3", len(h))
	}
	if h[0].From != StateDisconnected || h[0].To != StateConnecting || h[0].Reason != "connect" {
		t.Errorf("history[0] = %+v", h[0])
	}
	if h[2].From != StateConnected || h[2].To != StateConnected {
		t.Errorf("history[2] = %+v, want self transition", h[2])
	}
	if h[0].At.IsZero() {
		t.Error("transition timestamp not set")
	}
}

func TestStateMachine_HistoryBounded(t *testing.T) {
	sm := NewStateMachine(nil)

	for i := 0; i < 15; i++ {
		sm.Transition(StateConnecting, "up")
		sm.Transition(StateDisconnected, "down")
	}

	h := sm.History()
	if len(h) != HistorySize {
		t.Fatalf("history length = %d, want %d", len(h), HistorySize)
	}
	// 30 transitions, oldest 10 evicted: history starts with a connect
	if h[0].To != StateConnecting || h[len(h)-1].To != StateDisconnected {
		t.Errorf("unexpected history bounds: first=%+v last=%+v", h[0], h[len(h)-1])
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateReconnecting, "reconnecting"},
		{StateFailed, "failed"},
		{StateSuspended, "suspended"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
