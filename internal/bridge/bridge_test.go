package bridge

import (
	"errors"
	"testing"
)

func TestLifecycle_HappyPath(t *testing.T) {
	l := newLifecycle()
	if l.State() != StateConnecting {
		t.Fatalf("initial state = %v, want connecting", l.State())
	}

	for _, to := range []State{StateAttached, StateDetaching, StateClosed} {
		if !l.transition(to, nil) {
			t.Fatalf("transition to %v refused", to)
		}
	}
	select {
	case <-l.Done():
	default:
		t.Error("Done not closed after Closed")
	}
}

func TestLifecycle_ErroredIsTerminal(t *testing.T) {
	l := newLifecycle()
	l.transition(StateAttached, nil)
	cause := errors.New("pane died")
	if !l.fail(cause) {
		t.Fatal("fail refused")
	}

	// Only the bookkeeping move to Closed remains legal.
	if l.transition(StateAttached, nil) {
		t.Error("errored bridge must not re-attach")
	}
	if l.transition(StateDetaching, nil) {
		t.Error("errored bridge must not detach")
	}
	if !l.transition(StateClosed, nil) {
		t.Error("errored bridge must close")
	}
}

func TestLifecycle_IllegalMovesIgnored(t *testing.T) {
	l := newLifecycle()
	if l.transition(StateClosed, nil) {
		t.Error("connecting must not jump straight to closed")
	}
	l.transition(StateAttached, nil)
	l.transition(StateDetaching, nil)
	if l.transition(StateErrored, errors.New("late")) {
		t.Error("detaching bridge must not error")
	}
}

func TestLifecycle_EventsCarryCause(t *testing.T) {
	l := newLifecycle()
	l.transition(StateAttached, nil)
	cause := errors.New("pane died")
	l.fail(cause)

	var last Event
	for {
		select {
		case ev := <-l.Events():
			last = ev
			continue
		default:
		}
		break
	}
	if last.State != StateErrored || !errors.Is(last.Err, cause) {
		t.Errorf("last event = %+v, want errored with cause", last)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateConnecting, "connecting"},
		{StateAttached, "attached"},
		{StateDetaching, "detaching"},
		{StateErrored, "errored"},
		{StateClosed, "closed"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
