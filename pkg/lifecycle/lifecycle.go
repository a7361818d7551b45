// Package lifecycle enforces the irreversible six-state Theatre lifecycle.
//
// A Theatre never un-commits and never re-opens once evaluation has started;
// the entire trust model of calibration certificates depends on it. The
// machine is intentionally rigid: each state has exactly one legal successor
// and ARCHIVED has none.
package lifecycle

import "fmt"

// State is a Theatre lifecycle state.
type State string

const (
	StateDraft     State = "DRAFT"
	StateCommitted State = "COMMITTED"
	StateActive    State = "ACTIVE"
	StateSettling  State = "SETTLING"
	StateResolved  State = "RESOLVED"
	StateArchived  State = "ARCHIVED"
)

// successors is the full transition table. No skips, no reversals.
var successors = map[State]State{
	StateDraft:     StateCommitted,
	StateCommitted: StateActive,
	StateActive:    StateSettling,
	StateSettling:  StateResolved,
	StateResolved:  StateArchived,
}

// InvalidTransitionError identifies a rejected lifecycle transition.
type InvalidTransitionError struct {
	TheatreID string
	From      State
	To        State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("theatre %q: invalid transition %s -> %s", e.TheatreID, e.From, e.To)
}

// IsKnown reports whether s is one of the six defined states.
func IsKnown(s State) bool {
	switch s {
	case StateDraft, StateCommitted, StateActive, StateSettling, StateResolved, StateArchived:
		return true
	}
	return false
}

// IsTerminal reports whether s admits no further work.
// RESOLVED is terminal for the run outcome; ARCHIVED is terminal absolutely.
func IsTerminal(s State) bool {
	return s == StateResolved || s == StateArchived
}

// CanTransition is a pure predicate: it reports whether current -> target is
// a legal transition, with no side effects.
func CanTransition(current, target State) bool {
	next, ok := successors[current]
	return ok && next == target
}

// Transition returns the new state, or an InvalidTransitionError naming the
// theatre and both states. It never mutates anything.
func Transition(theatreID string, current, target State) (State, error) {
	if !CanTransition(current, target) {
		return current, &InvalidTransitionError{TheatreID: theatreID, From: current, To: target}
	}
	return target, nil
}

// Next returns the sole legal successor of s, or false if s is ARCHIVED or unknown.
func Next(s State) (State, bool) {
	next, ok := successors[s]
	return next, ok
}
