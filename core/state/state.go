// Package state defines the connection state machine of a session.
package state

import "fmt"

// SessionState represents the liveness of a session's connection.
type SessionState int

const (
	// StateOpen is the initial state: the connection was accepted and is live.
	StateOpen SessionState = iota
	// StateClosing indicates the session is tearing down its background work.
	StateClosing
	// StateClosed indicates the session has been destroyed.
	StateClosed
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// validTransitions defines the allowed state transitions.
var validTransitions = map[SessionState][]SessionState{
	StateOpen:    {StateClosing, StateClosed},
	StateClosing: {StateClosed},
	StateClosed:  {}, // Terminal state, no transitions allowed
}

// CanTransitionTo checks if transitioning from the current state to the target state is valid.
func (s SessionState) CanTransitionTo(target SessionState) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the state is a terminal state (no further transitions).
func (s SessionState) IsTerminal() bool {
	return s == StateClosed
}

// IsLive returns true if commands may still be issued and awaited.
func (s SessionState) IsLive() bool {
	return s == StateOpen
}

// TransitionError represents an invalid state transition attempt.
type TransitionError struct {
	From   SessionState
	To     SessionState
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid state transition from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(from, to SessionState, reason string) *TransitionError {
	return &TransitionError{From: from, To: to, Reason: reason}
}
