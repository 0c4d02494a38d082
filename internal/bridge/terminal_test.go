package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dotdevdotdev/agentwire-sub003/internal/locator"
	"github.com/dotdevdotdev/agentwire-sub003/internal/tmux"
)

// fakeStream stands in for the attach PTY: reads come from an io.Pipe the
// test writes to, writes accumulate in a buffer.
type fakeStream struct {
	r *io.PipeReader

	mu      sync.Mutex
	written bytes.Buffer
}

func newFakeStream() (*fakeStream, *io.PipeWriter) {
	r, w := io.Pipe()
	return &fakeStream{r: r}, w
}

func (s *fakeStream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *fakeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written.Write(p)
}

func (s *fakeStream) Close() error { return s.r.Close() }

func (s *fakeStream) writtenBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written.Bytes()...)
}

func terminalTarget(run *fakeRunner) *locator.Target {
	return locator.LocalTarget("api", tmux.New(run))
}

func TestTerminal_OutputOrderPreserved(t *testing.T) {
	stream, backend := newFakeStream()
	term := NewTerminal(terminalTarget(newFakeRunner()))
	term.startIO(stream)
	defer term.Close()

	go func() {
		backend.Write([]byte("first "))
		backend.Write([]byte("second "))
		backend.Write([]byte("third"))
	}()

	var got []byte
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for len(got) < len("first second third") {
		chunk, err := term.Output(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, chunk...)
	}
	if string(got) != "first second third" {
		t.Errorf("got %q", got)
	}
}

func TestTerminal_NoDropsWhenConsumerStalls(t *testing.T) {
	stream, backend := newFakeStream()
	term := NewTerminal(terminalTarget(newFakeRunner()))
	term.startIO(stream)
	defer term.Close()

	// Burst 256KB with nobody reading; every byte must survive.
	payload := bytes.Repeat([]byte("0123456789abcdef"), 16*1024)
	go func() {
		backend.Write(payload)
		backend.Close()
	}()

	var got []byte
	for {
		chunk, err := term.Output(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %d bytes, want %d intact", len(got), len(payload))
	}
}

func TestTerminal_WriteForwardsToBackend(t *testing.T) {
	stream, _ := newFakeStream()
	term := NewTerminal(terminalTarget(newFakeRunner()))
	term.startIO(stream)
	defer term.Close()

	if _, err := term.Write([]byte("ls -la\r")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := stream.writtenBytes(); string(got) != "ls -la\r" {
		t.Errorf("backend received %q", got)
	}
}

func TestTerminal_WriteBeforeStartRejected(t *testing.T) {
	term := NewTerminal(terminalTarget(newFakeRunner()))
	if _, err := term.Write([]byte("x")); err == nil {
		t.Fatal("expected error before attach")
	}
}

func TestTerminal_BackendExitErrors(t *testing.T) {
	stream, backend := newFakeStream()
	term := NewTerminal(terminalTarget(newFakeRunner()))
	term.startIO(stream)

	// Backend dies without a client-initiated close.
	backend.CloseWithError(io.EOF)

	waitState(t, term, StateClosed)

	var cause error
	for done := false; !done; {
		select {
		case ev := <-term.Events():
			if ev.State == StateErrored {
				cause = ev.Err
			}
		default:
			done = true
		}
	}
	if !errors.Is(cause, ErrBackendGone) {
		t.Errorf("cause = %v, want ErrBackendGone", cause)
	}
	if _, err := term.Output(context.Background()); err != io.EOF {
		t.Errorf("Output error = %v, want io.EOF after backend exit", err)
	}
}

func TestTerminal_FailureCauseOutlivesShutdown(t *testing.T) {
	stream, backend := newFakeStream()
	term := NewTerminal(terminalTarget(newFakeRunner()))
	term.startIO(stream)

	go func() {
		for i := 0; i < 5; i++ {
			backend.Write([]byte("chunk"))
		}
		backend.CloseWithError(io.EOF)
	}()

	// A consumer that spends time per chunk (a websocket write) drains
	// the queue long after the bridge finished moving through Errored
	// to Closed. The cause must still be readable at that point.
	for {
		_, err := term.Output(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	waitState(t, term, StateClosed)
	if !errors.Is(term.Err(), ErrBackendGone) {
		t.Errorf("Err() = %v after shutdown, want ErrBackendGone", term.Err())
	}
}

func TestTerminal_CloseDetachesCleanly(t *testing.T) {
	stream, _ := newFakeStream()
	term := NewTerminal(terminalTarget(newFakeRunner()))
	term.startIO(stream)

	term.Close()
	waitState(t, term, StateClosed)
	term.Close() // idempotent

	// A graceful detach must never surface as a backend failure.
	if err := term.Err(); err != nil {
		t.Errorf("Err() = %v after graceful close, want nil", err)
	}
	for done := false; !done; {
		select {
		case ev := <-term.Events():
			if ev.State == StateErrored {
				t.Errorf("unexpected errored event: %v", ev.Err)
			}
		default:
			done = true
		}
	}
}

func TestTerminal_ResizePropagatesToWindow(t *testing.T) {
	run := newFakeRunner()
	stream, _ := newFakeStream()
	term := NewTerminal(terminalTarget(run))
	term.startIO(stream)
	defer term.Close()

	if err := term.Resize(context.Background(), 120, 40); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.calls["resize-window"] != 1 {
		t.Fatalf("resize-window calls = %d, want 1", run.calls["resize-window"])
	}
	// The backend must be told the same dimensions the client sent.
	args := strings.Join(run.argv[0], " ")
	if !strings.Contains(args, "-x 120") || !strings.Contains(args, "-y 40") {
		t.Errorf("resize-window args = %q, want -x 120 -y 40", args)
	}
}
