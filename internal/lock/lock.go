// Package lock guards against two server instances sharing one state
// directory. The lock is an OS-level flock on <state_dir>/server.lock
// plus a JSON sidecar describing the holder, so `agentwire serve` can
// tell the operator who already owns the address.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked means another live server instance holds the lock.
var ErrLocked = errors.New("server already running")

// Info describes the process holding the lock.
type Info struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
	Hostname   string    `json:"hostname,omitempty"`
	Listen     string    `json:"listen,omitempty"`
}

// Lock is a single-instance guard over a state directory.
type Lock struct {
	fl       *flock.Flock
	infoPath string
}

// New builds a lock rooted at stateDir. Nothing is held until Acquire.
func New(stateDir string) *Lock {
	return &Lock{
		fl:       flock.New(filepath.Join(stateDir, "server.lock")),
		infoPath: filepath.Join(stateDir, "server.json"),
	}
}

// Acquire takes the lock or fails immediately with ErrLocked, decorated
// with the current holder when it can be read. The flock dies with the
// process, so a crashed server never leaves a stale lock behind.
func (l *Lock) Acquire(listen string) error {
	if err := os.MkdirAll(filepath.Dir(l.fl.Path()), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("locking %s: %w", l.fl.Path(), err)
	}
	if !ok {
		if info, readErr := l.Read(); readErr == nil {
			return fmt.Errorf("%w: PID %d on %s (listening on %s since %s)",
				ErrLocked, info.PID, info.Hostname, info.Listen,
				info.AcquiredAt.Format(time.RFC3339))
		}
		return ErrLocked
	}

	hostname, _ := os.Hostname()
	info := Info{
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UTC(),
		Hostname:   hostname,
		Listen:     listen,
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding lock info: %w", err)
	}
	if err := os.WriteFile(l.infoPath, data, 0o644); err != nil {
		l.fl.Unlock()
		return fmt.Errorf("writing lock info: %w", err)
	}
	return nil
}

// Read returns the recorded holder info without touching the lock.
func (l *Lock) Read() (*Info, error) {
	data, err := os.ReadFile(l.infoPath)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing lock info: %w", err)
	}
	return &info, nil
}

// Release drops the lock and removes the holder record. Safe to call
// without holding the lock.
func (l *Lock) Release() error {
	if err := os.Remove(l.infoPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock info: %w", err)
	}
	return l.fl.Unlock()
}
