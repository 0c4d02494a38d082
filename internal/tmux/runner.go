package tmux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// commandTimeout bounds every tmux subprocess call so a wedged tmux server
// cannot hang the caller.
const commandTimeout = 10 * time.Second

// Runner executes a tmux command line against some host and returns its
// trimmed stdout. Implementations exist for the local machine and for
// remote machines reachable over SSH.
type Runner interface {
	// Run executes "tmux args..." and returns trimmed stdout.
	Run(ctx context.Context, args ...string) (string, error)

	// RunInput is Run with the given bytes supplied on stdin
	// (used by load-buffer).
	RunInput(ctx context.Context, stdin []byte, args ...string) (string, error)

	// AttachArgs returns the argv that attaches an interactive terminal
	// to the named session, suitable for running under a PTY.
	AttachArgs(session string) []string
}

// LocalRunner shells out to the local tmux binary.
type LocalRunner struct{}

// NewLocalRunner creates a Runner for the local tmux server.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

func (r *LocalRunner) Run(ctx context.Context, args ...string) (string, error) {
	return r.RunInput(ctx, nil, args...)
}

func (r *LocalRunner) RunInput(ctx context.Context, stdin []byte, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("tmux command timed out: %v", args)
		}
		return "", runError(args, stderr.String(), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (r *LocalRunner) AttachArgs(session string) []string {
	return []string{"tmux", "attach-session", "-t", "=" + session}
}

// SSHRunner executes tmux on a remote host through ssh. Connection
// establishment is bounded by ConnectTimeout; BatchMode disables password
// prompts so an unreachable or misconfigured host fails instead of hanging
// on interactive input.
type SSHRunner struct {
	// Target is the ssh destination (user@host or bare host).
	Target string

	// Port is the ssh port. Zero means ssh's default.
	Port int

	// ConnectTimeout bounds connection establishment. Zero means 3s.
	ConnectTimeout time.Duration
}

func (r *SSHRunner) sshArgs() []string {
	timeout := r.ConnectTimeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	seconds := int(timeout.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	args := []string{
		"-o", "BatchMode=yes",
		"-o", fmt.Sprintf("ConnectTimeout=%d", seconds),
	}
	if r.Port != 0 {
		args = append(args, "-p", strconv.Itoa(r.Port))
	}
	return args
}

func (r *SSHRunner) Run(ctx context.Context, args ...string) (string, error) {
	return r.RunInput(ctx, nil, args...)
}

func (r *SSHRunner) RunInput(ctx context.Context, stdin []byte, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	remote := "tmux"
	for _, a := range args {
		remote += " " + shellQuote(a)
	}
	sshArgv := append(r.sshArgs(), r.Target, remote)

	cmd := exec.CommandContext(ctx, "ssh", sshArgv...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: ssh to %s timed out", ErrUnreachable, r.Target)
		}
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 255 {
			// ssh reserves 255 for its own failures (refused, unknown
			// host, auth); remote command failures use the command's code.
			return "", fmt.Errorf("%w: %s", ErrUnreachable, strings.TrimSpace(stderr.String()))
		}
		return "", runError(args, stderr.String(), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (r *SSHRunner) AttachArgs(session string) []string {
	argv := append([]string{"ssh", "-tt"}, r.sshArgs()...)
	return append(argv, r.Target, "tmux attach-session -t "+shellQuote("="+session))
}

// runError builds the standard error for a failed tmux invocation,
// preferring stderr text when tmux produced any.
func runError(args []string, stderr string, err error) error {
	msg := strings.TrimSpace(stderr)
	if msg != "" {
		return fmt.Errorf("tmux %s: %s", args[0], msg)
	}
	return fmt.Errorf("tmux %s: %w", args[0], err)
}

// shellQuote single-quotes a string for safe embedding in a remote shell
// command line.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
