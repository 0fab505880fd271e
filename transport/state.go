package transport

import "sync/atomic"

// State is where a transport is in its life. Transitions only ever move
// forward; there is no way back to Idle or Connecting.
type State int32

const (
	Idle State = iota
	Connecting
	Connected
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Lifecycle holds a transport's state in a single atomic word so that one
// compare-and-swap can both check "not closed" and move the state, instead of
// juggling separate connected/closed booleans that can drift apart.
type Lifecycle struct {
	state atomic.Int32
}

func (l *Lifecycle) Current() State {
	return State(l.state.Load())
}

// Transition moves from exactly `from` to `to`, reporting whether it won. A
// failed transition means some other goroutine got there first; the caller
// must not act as if the transition happened.
func (l *Lifecycle) Transition(from State, to State) bool {
	return l.state.CompareAndSwap(int32(from), int32(to))
}

// ClaimClose moves to Closed unconditionally and returns the state it left
// behind. Exactly one caller observes a non-Closed previous state; that
// caller owns the resource release.
func (l *Lifecycle) ClaimClose() State {
	return State(l.state.Swap(int32(Closed)))
}
