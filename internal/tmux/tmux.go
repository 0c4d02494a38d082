// Package tmux wraps the tmux subprocess interface used by the session
// transport layer: existence checks, pane capture, resize, atomic text
// submission, and interactive attach.
//
// All operations go through a Runner, so the same wrapper drives both the
// local tmux server and remote servers reached over SSH. Session targets
// use the "=" prefix for exact-match so "api" never resolves to "api-2".
package tmux

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnreachable indicates the host running tmux could not be reached
// (SSH connection failure or timeout), as opposed to a reachable host
// with no such session.
var ErrUnreachable = errors.New("host unreachable")

// submitBuffer is the named tmux paste buffer used by SubmitText. A fixed
// name keeps repeated submissions from leaking anonymous buffers.
const submitBuffer = "agentwire-submit"

// noSessionPatterns are the stderr fragments tmux emits when a session
// target does not exist or no server is running. They vary across tmux
// versions.
var noSessionPatterns = []string{
	"session not found",
	"can't find session",
	"no server running",
	"no current session",
}

// Tmux issues tmux commands through a Runner.
type Tmux struct {
	run Runner
}

// New creates a Tmux wrapper over the given runner.
func New(run Runner) *Tmux {
	return &Tmux{run: run}
}

// Runner returns the underlying runner (used by the bridge to build
// attach commands).
func (t *Tmux) Runner() Runner {
	return t.run
}

// IsNoSession reports whether err is tmux telling us the session target
// does not exist (rather than a transport or usage failure).
func IsNoSession(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, p := range noSessionPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// HasSession reports whether the named session exists.
func (t *Tmux) HasSession(ctx context.Context, name string) (bool, error) {
	_, err := t.run.Run(ctx, "has-session", "-t", "="+name)
	if err != nil {
		if IsNoSession(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListSessions returns the names of all sessions on the server. A missing
// server yields an empty list.
func (t *Tmux) ListSessions(ctx context.Context) ([]string, error) {
	out, err := t.run.Run(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		if IsNoSession(err) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CapturePane captures the visible buffer of the session's active pane
// plus up to scrollback lines of history, with escape sequences preserved.
func (t *Tmux) CapturePane(ctx context.Context, name string, scrollback int) (string, error) {
	args := []string{"capture-pane", "-p", "-e", "-t", "=" + name}
	if scrollback > 0 {
		args = append(args, "-S", fmt.Sprintf("-%d", scrollback))
	}
	return t.run.Run(ctx, args...)
}

// PaneWorkDir returns the current working directory of the session's
// active pane.
func (t *Tmux) PaneWorkDir(ctx context.Context, name string) (string, error) {
	return t.run.Run(ctx, "display-message", "-p", "-t", "="+name, "#{pane_current_path}")
}

// PaneDimensions returns the active pane's size in columns and rows.
func (t *Tmux) PaneDimensions(ctx context.Context, name string) (cols, rows int, err error) {
	out, err := t.run.Run(ctx, "display-message", "-p", "-t", "="+name, "#{pane_width}\t#{pane_height}")
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Split(out, "\t")
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected pane dimensions output: %q", out)
	}
	cols, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse pane width %q: %w", fields[0], err)
	}
	rows, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse pane height %q: %w", fields[1], err)
	}
	return cols, rows, nil
}

// ResizeWindow resizes the session's window to the given dimensions.
func (t *Tmux) ResizeWindow(ctx context.Context, name string, cols, rows int) error {
	_, err := t.run.Run(ctx, "resize-window", "-t", "="+name,
		"-x", strconv.Itoa(cols), "-y", strconv.Itoa(rows))
	return err
}

// SubmitText delivers text to the session as one atomic unit: the whole
// string is loaded into a paste buffer, pasted into the pane, and
// submitted with Enter. The pane never observes a partial write the way
// it could with per-character send-keys.
func (t *Tmux) SubmitText(ctx context.Context, name, text string) error {
	if _, err := t.run.RunInput(ctx, []byte(text), "load-buffer", "-b", submitBuffer, "-"); err != nil {
		return fmt.Errorf("loading submit buffer: %w", err)
	}
	if _, err := t.run.Run(ctx, "paste-buffer", "-d", "-b", submitBuffer, "-t", "="+name); err != nil {
		return fmt.Errorf("pasting submit buffer: %w", err)
	}
	if _, err := t.run.Run(ctx, "send-keys", "-t", "="+name, "Enter"); err != nil {
		return fmt.Errorf("submitting pasted text: %w", err)
	}
	return nil
}
