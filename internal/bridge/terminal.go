package bridge

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/dotdevdotdev/agentwire-sub003/internal/locator"
)

// Terminal is the interactive bridge mode: a real tmux attach running
// under a PTY, with raw bytes flowing both ways. Output bytes are staged
// through an unbounded queue so a stalled socket never causes backend
// output to be dropped, and never blocks the PTY reader.
type Terminal struct {
	lifecycle

	target *locator.Target
	out    *byteQueue

	mu     sync.Mutex
	stream io.ReadWriteCloser
	ptmx   *os.File
	cmd    *exec.Cmd
}

// NewTerminal builds a terminal bridge for a resolved target. Call Start
// to spawn the attach.
func NewTerminal(target *locator.Target) *Terminal {
	return &Terminal{
		lifecycle: newLifecycle(),
		target:    target,
		out:       newByteQueue(),
	}
}

// Start spawns the attach subprocess under a PTY sized cols x rows and
// begins pumping output. The backend window is resized to match before
// any bytes flow, so a mismatched initial size never persists.
func (t *Terminal) Start(ctx context.Context, cols, rows int) error {
	args := t.target.Tmux().Runner().AttachArgs(t.target.Name)
	cmd := exec.Command(args[0], args[1:]...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		err = fmt.Errorf("spawning attach for %s: %w", t.target.Key(), err)
		t.fail(err)
		t.transition(StateClosed, nil)
		return err
	}

	t.mu.Lock()
	t.cmd = cmd
	t.ptmx = ptmx
	t.mu.Unlock()

	if err := t.target.Tmux().ResizeWindow(ctx, t.target.Name, cols, rows); err != nil {
		ptmx.Close()
		cmd.Wait()
		err = fmt.Errorf("initial resize for %s: %w", t.target.Key(), err)
		t.fail(err)
		t.transition(StateClosed, nil)
		return err
	}

	t.startIO(ptmx)
	return nil
}

// startIO begins the backend-to-queue pump over stream and moves the
// bridge to Attached. Split from Start so the pump logic is testable
// without a PTY.
func (t *Terminal) startIO(stream io.ReadWriteCloser) {
	t.mu.Lock()
	t.stream = stream
	t.mu.Unlock()

	t.transition(StateAttached, nil)
	go t.readLoop(stream)
}

// readLoop forwards backend output into the queue until the stream dies.
// A read error while Detaching is the expected end of a graceful close;
// any other read error means the backend went away.
func (t *Terminal) readLoop(stream io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.out.Push(chunk)
		}
		if err != nil {
			t.out.Close()
			if t.State() == StateDetaching {
				t.transition(StateClosed, nil)
				return
			}
			t.fail(fmt.Errorf("%w: %s", ErrBackendGone, t.target.Key()))
			t.reap()
			t.transition(StateClosed, nil)
			return
		}
	}
}

// Output blocks for the next run of backend bytes, in emission order.
// io.EOF means the stream ended.
func (t *Terminal) Output(ctx context.Context) ([]byte, error) {
	return t.out.Next(ctx)
}

// Write forwards client bytes to the backend's input.
func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	stream := t.stream
	t.mu.Unlock()
	if stream == nil {
		return 0, fmt.Errorf("cannot write while %s", t.State())
	}
	return stream.Write(p)
}

// Resize propagates a client size change to both the PTY and the backend
// window. Issued on every client resize; Start covers the initial size.
func (t *Terminal) Resize(ctx context.Context, cols, rows int) error {
	t.mu.Lock()
	ptmx := t.ptmx
	t.mu.Unlock()

	if ptmx != nil {
		if err := pty.Setsize(ptmx, &pty.Winsize{
			Cols: uint16(cols),
			Rows: uint16(rows),
		}); err != nil {
			return fmt.Errorf("resizing pty for %s: %w", t.target.Key(), err)
		}
	}
	if err := t.target.Tmux().ResizeWindow(ctx, t.target.Name, cols, rows); err != nil {
		return fmt.Errorf("resizing window for %s: %w", t.target.Key(), err)
	}
	return nil
}

// Close detaches from the backend without killing it: the attach process
// is torn down, the tmux session keeps running for other attachments.
// Idempotent; safe from any state.
func (t *Terminal) Close() {
	if !t.transition(StateDetaching, nil) {
		return
	}
	t.mu.Lock()
	stream := t.stream
	t.mu.Unlock()
	if stream != nil {
		// Closing the PTY ends the attach process and unblocks the
		// read loop, which finishes the move to Closed.
		stream.Close()
	} else {
		t.transition(StateClosed, nil)
	}
	t.reap()
}

func (t *Terminal) reap() {
	t.mu.Lock()
	cmd := t.cmd
	t.cmd = nil
	t.mu.Unlock()
	if cmd != nil {
		cmd.Wait()
	}
}
