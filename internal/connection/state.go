package connection

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quotestream/internal/ringbuf"
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// HistorySize is how many transitions StateMachine keeps.
const HistorySize = 20

var allowedTransitions = map[State][]State{
	StateDisconnected: {StateConnecting, StateSuspended},
	StateConnecting:   {StateConnected, StateDisconnected, StateFailed},
	StateConnected:    {StateDisconnected, StateReconnecting, StateSuspended},
	StateReconnecting: {StateConnected, StateDisconnected, StateFailed},
	StateFailed:       {StateDisconnected, StateConnecting},
	StateSuspended:    {StateDisconnected, StateConnecting},
}

// CanTransition reports whether from→to is in the transition table.
// Self transitions are always allowed.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateTransition records one accepted transition.
type StateTransition struct {
	From   State
	To     State
	At     time.Time
	Reason string
}

// StateMachine holds the current state and its recent history.
type StateMachine struct {
	logger  *slog.Logger
	now     func() time.Time
	history *ringbuf.Buffer[StateTransition]

	mu      sync.RWMutex
	current State
}

// NewStateMachine returns a machine in StateDisconnected.
func NewStateMachine(logger *slog.Logger) *StateMachine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateMachine{
		logger:  logger,
		now:     time.Now,
		history: ringbuf.New[StateTransition](HistorySize),
		current: StateDisconnected,
	}
}

// Current returns the current state.
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition moves to the given state if the table allows it. A rejected
// transition leaves the state untouched and returns false.
func (sm *StateMachine) Transition(to State, reason string) bool {
	sm.mu.Lock()
	from := sm.current
	if !CanTransition(from, to) {
		sm.mu.Unlock()
		sm.logger.Warn("invalid state transition",
			"from", from.String(),
			"to", to.String(),
			"reason", reason,
		)
		return false
	}
	sm.current = to
	sm.mu.Unlock()

	sm.history.Push(StateTransition{
		From:   from,
		To:     to,
		At:     sm.now(),
		Reason: reason,
	})

	if from != to {
		sm.logger.Debug("state transition",
			"from", from.String(),
			"to", to.String(),
			"reason", reason,
		)
	}
	return true
}

// History returns recorded transitions, oldest first.
func (sm *StateMachine) History() []StateTransition {
	return sm.history.Snapshot()
}
