// Package bridge carries terminal traffic between one client connection
// and one tmux-hosted session. A bridge is built for exactly one mode,
// monitor (snapshot polling plus atomic text submission) or terminal
// (bidirectional byte stream over a real attach), and is never switched
// or resumed: reconnecting clients get a fresh bridge.
package bridge

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBackendGone marks an Errored transition caused by the backend pane
// dying or the attach process exiting underneath the bridge.
var ErrBackendGone = errors.New("backend session gone")

// State is the bridge lifecycle position.
type State int

const (
	StateConnecting State = iota
	StateAttached
	StateDetaching
	StateErrored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAttached:
		return "attached"
	case StateDetaching:
		return "detaching"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Event is one state transition, with the cause when the transition is
// Errored.
type Event struct {
	State State
	Err   error
}

// legalTransitions encodes the lifecycle. Detaching only closes; Errored
// is terminal except for the final bookkeeping move to Closed.
var legalTransitions = map[State][]State{
	StateConnecting: {StateAttached, StateDetaching, StateErrored},
	StateAttached:   {StateDetaching, StateErrored},
	StateDetaching:  {StateClosed},
	StateErrored:    {StateClosed},
}

// lifecycle is the state machine shared by both bridge modes.
type lifecycle struct {
	mu     sync.Mutex
	state  State
	err    error
	events chan Event
	done   chan struct{}
}

func newLifecycle() lifecycle {
	return lifecycle{
		state:  StateConnecting,
		events: make(chan Event, 8),
		done:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Events delivers state transitions to the owning connection handler.
// The channel is buffered; a handler that stops draining loses events
// but never blocks the bridge.
func (l *lifecycle) Events() <-chan Event { return l.events }

// Done is closed once the bridge reaches Errored or Closed.
func (l *lifecycle) Done() <-chan struct{} { return l.done }

// Err returns the cause of the Errored transition. It stays readable
// after the final bookkeeping move to Closed, so a consumer that drains
// buffered output before noticing the failure still sees why the bridge
// died. Nil for a graceful detach.
func (l *lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// transition moves to the target state if the lifecycle allows it and
// reports whether the move happened. Illegal moves are ignored so late
// goroutines (a reader noticing EOF after Close already ran) cannot
// corrupt the machine.
func (l *lifecycle) transition(to State, cause error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	legal := false
	for _, next := range legalTransitions[l.state] {
		if next == to {
			legal = true
			break
		}
	}
	if !legal {
		return false
	}

	l.state = to
	if to == StateErrored {
		l.err = cause
	}
	select {
	case l.events <- Event{State: to, Err: cause}:
	default:
	}
	if to == StateErrored || to == StateClosed {
		select {
		case <-l.done:
		default:
			close(l.done)
		}
	}
	return true
}

// fail moves to Errored carrying the cause, then to Closed is left to
// the owner's teardown. Returns false if already terminal.
func (l *lifecycle) fail(cause error) bool {
	return l.transition(StateErrored, cause)
}
