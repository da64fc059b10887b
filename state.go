package displayloop

import (
	"sync/atomic"
)

// State is the shutdown state of an [Application].
//
// State machine:
//
//	StateRunning → StateQuitting      [Quit() with live windows]
//	StateRunning → StateFinalizing    [Quit() with no windows, helper destroyed, fatal error]
//	StateQuitting → StateFinalizing   [last window destroyed, helper destroyed, fatal error]
//	StateFinalizing → StateFinalized  [resources released]
//	StateFinalized → (terminal)
type State uint32

const (
	// StateRunning is the initial state.
	StateRunning State = iota
	// StateQuitting means every window has been asked to close and the
	// loop is waiting for the server to confirm.
	StateQuitting
	// StateFinalizing means the loop will release resources and return at
	// the end of the current iteration.
	StateFinalizing
	// StateFinalized is terminal: the transport and wake descriptors have
	// been released.
	StateFinalized
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateQuitting:
		return "Quitting"
	case StateFinalizing:
		return "Finalizing"
	case StateFinalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// stateCell holds a State, transitioned only via CAS except for the
// terminal store.
type stateCell struct {
	v atomic.Uint32
}

func (s *stateCell) Load() State {
	return State(s.v.Load())
}

func (s *stateCell) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// TransitionAny attempts each source state in turn.
func (s *stateCell) TransitionAny(validFrom []State, to State) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint32(from), uint32(to)) {
			return true
		}
	}
	return false
}

// shuttingDown reports whether the loop will exit at the end of the
// current iteration, or already has.
func (s *stateCell) shuttingDown() bool {
	return s.Load() >= StateFinalizing
}
