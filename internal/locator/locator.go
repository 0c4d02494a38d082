// Package locator resolves session identifiers to reachable tmux targets.
//
// An identifier is "name" for a session on the local tmux server or
// "name@machine" for a session on a registered remote machine. Resolution
// is a single best-effort check: it verifies the session exists (and, for
// remote targets, that the machine answers within a bounded probe) and
// returns a Target the bridge layer can attach to. The locator never
// retries; retry policy belongs to callers.
package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dotdevdotdev/agentwire-sub003/internal/machine"
	"github.com/dotdevdotdev/agentwire-sub003/internal/tmux"
)

// Resolution failure taxonomy. Callers branch on these with errors.Is to
// render different guidance: a missing session, an unregistered machine,
// and a machine that does not answer are distinct situations.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrUnknownMachine     = errors.New("unknown machine")
	ErrMachineUnreachable = errors.New("machine unreachable")
)

// DefaultProbeTimeout bounds the remote liveness probe.
const DefaultProbeTimeout = 3 * time.Second

// Target is one resolved session location. It is constructed per Resolve
// call and not persisted; the working directory is looked up lazily and
// cached only for this Target's lifetime, since the pane may change
// directory between resolutions.
type Target struct {
	// Name is the tmux session name.
	Name string

	// Machine is the registry name of the hosting machine, empty for
	// the local host.
	Machine string

	tm *tmux.Tmux

	mu         sync.Mutex
	workDir    string
	workDirSet bool
}

// Key returns the canonical identifier for this target ("name" or
// "name@machine"). Presence tracking and audio routing key on this.
func (t *Target) Key() string {
	if t.Machine == "" {
		return t.Name
	}
	return t.Name + "@" + t.Machine
}

func (t *Target) String() string { return t.Key() }

// Tmux returns the wrapper bound to this target's backend server.
func (t *Target) Tmux() *tmux.Tmux { return t.tm }

// WorkingDir returns the pane's current working directory, querying the
// backend at most once per Target.
func (t *Target) WorkingDir(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.workDirSet {
		return t.workDir, nil
	}
	dir, err := t.tm.PaneWorkDir(ctx, t.Name)
	if err != nil {
		return "", fmt.Errorf("resolving working directory for %s: %w", t.Key(), err)
	}
	t.workDir = dir
	t.workDirSet = true
	return dir, nil
}

// Resolver locates sessions on the local tmux server and on machines from
// the registry.
type Resolver struct {
	// Local is the wrapper for the local tmux server.
	Local *tmux.Tmux

	// Machines is the machine registry for remote identifiers.
	Machines *machine.Registry

	// ProbeTimeout bounds the remote liveness probe. Zero means
	// DefaultProbeTimeout.
	ProbeTimeout time.Duration

	// NewRemote builds the tmux wrapper for a registered machine.
	// Nil means SSH; tests substitute a fake.
	NewRemote func(m *machine.Machine, connectTimeout time.Duration) *tmux.Tmux
}

// ParseIdentifier splits "name" or "name@machine". The name must be
// non-empty; a trailing "@" with no machine is malformed.
func ParseIdentifier(identifier string) (name, machineName string, err error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", "", errors.New("empty session identifier")
	}
	name, machineName, found := strings.Cut(identifier, "@")
	if name == "" {
		return "", "", fmt.Errorf("malformed session identifier %q", identifier)
	}
	if found && machineName == "" {
		return "", "", fmt.Errorf("malformed session identifier %q: missing machine after @", identifier)
	}
	return name, machineName, nil
}

// Resolve locates the session named by identifier. On success the
// returned Target is ready for bridge attachment. Failures carry
// ErrSessionNotFound, ErrUnknownMachine, or ErrMachineUnreachable.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*Target, error) {
	name, machineName, err := ParseIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	if machineName == "" {
		return r.resolveLocal(ctx, name)
	}
	return r.resolveRemote(ctx, name, machineName)
}

func (r *Resolver) resolveLocal(ctx context.Context, name string) (*Target, error) {
	ok, err := r.Local.HasSession(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking local session %q: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q on local host", ErrSessionNotFound, name)
	}
	return &Target{Name: name, tm: r.Local}, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, name, machineName string) (*Target, error) {
	m, err := r.Machines.Lookup(machineName)
	if err != nil {
		if errors.Is(err, machine.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMachine, machineName)
		}
		return nil, err
	}

	timeout := r.ProbeTimeout
	if timeout == 0 {
		timeout = DefaultProbeTimeout
	}

	remote := r.newRemote(m, timeout)

	// One bounded round trip: the same command both proves the host
	// answers and confirms the session exists.
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := remote.HasSession(probeCtx, name)
	if err != nil {
		if errors.Is(err, tmux.ErrUnreachable) || probeCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %q (%v)", ErrMachineUnreachable, machineName, err)
		}
		return nil, fmt.Errorf("probing %q on %q: %w", name, machineName, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q on machine %q", ErrSessionNotFound, name, machineName)
	}
	return &Target{Name: name, Machine: machineName, tm: remote}, nil
}

func (r *Resolver) newRemote(m *machine.Machine, timeout time.Duration) *tmux.Tmux {
	if r.NewRemote != nil {
		return r.NewRemote(m, timeout)
	}
	return tmux.New(&tmux.SSHRunner{
		Target:         m.SSHTarget(),
		Port:           m.Port,
		ConnectTimeout: timeout,
	})
}

// LocalTarget builds a Target for a known-local session without a
// liveness check. Used by listing paths that already hold the session
// name from list-sessions output.
func LocalTarget(name string, tm *tmux.Tmux) *Target {
	return &Target{Name: name, tm: tm}
}
