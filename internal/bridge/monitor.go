package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dotdevdotdev/agentwire-sub003/internal/locator"
	"github.com/dotdevdotdev/agentwire-sub003/internal/tmux"
)

// Monitor polling defaults. One full-buffer capture per second is cheap
// for tmux and fresh enough for a read-only dashboard.
const (
	DefaultPollInterval    = time.Second
	DefaultScrollbackLines = 200
)

// Snapshot is one complete capture of a session's visible buffer plus a
// bounded scrollback window. Clients re-render the whole thing; there is
// no diffing contract.
type Snapshot struct {
	Session    string    `json:"session"`
	CapturedAt time.Time `json:"captured_at"`
	Columns    int       `json:"columns"`
	Rows       int       `json:"rows"`
	Content    string    `json:"content"`
}

// Monitor is the read-only bridge mode: interval-driven snapshots out,
// atomic text submissions in. It holds no attach process.
type Monitor struct {
	lifecycle

	target     *locator.Target
	interval   time.Duration
	scrollback int

	snapshots chan Snapshot
	poke      chan struct{}
	closing   chan struct{}
}

// NewMonitor builds a monitor bridge for a resolved target. Zero interval
// or scrollback select the defaults.
func NewMonitor(target *locator.Target, interval time.Duration, scrollback int) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if scrollback <= 0 {
		scrollback = DefaultScrollbackLines
	}
	return &Monitor{
		lifecycle:  newLifecycle(),
		target:     target,
		interval:   interval,
		scrollback: scrollback,
		// Capacity one plus latest-wins replacement: a stalled consumer
		// sees the newest snapshot, never a stale backlog. Snapshots are
		// full re-renders so skipping intermediates loses nothing.
		snapshots: make(chan Snapshot, 1),
		poke:      make(chan struct{}, 1),
		closing:   make(chan struct{}),
	}
}

// Snapshots delivers captures to the connection handler.
func (m *Monitor) Snapshots() <-chan Snapshot { return m.snapshots }

// Run drives the poll loop until Close, context cancellation, or backend
// loss. It performs the first capture immediately so a new viewer is not
// blank for a full interval.
func (m *Monitor) Run(ctx context.Context) {
	if err := m.capture(ctx); err != nil {
		if m.stopping(ctx) {
			m.shutdown()
			return
		}
		m.failCapture(err)
		return
	}
	m.transition(StateAttached, nil)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case <-m.closing:
			m.shutdown()
			return
		case <-ticker.C:
		case <-m.poke:
		}
		if err := m.capture(ctx); err != nil {
			// A capture aborted by our own close is not a backend
			// failure.
			if m.stopping(ctx) {
				m.shutdown()
				return
			}
			m.failCapture(err)
			return
		}
	}
}

func (m *Monitor) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-m.closing:
		return true
	default:
		return false
	}
}

// Poke requests an immediate capture outside the interval. Coalesces.
func (m *Monitor) Poke() {
	select {
	case m.poke <- struct{}{}:
	default:
	}
}

// Submit delivers text to the session as one atomic paste-then-submit,
// never keystroke by keystroke, so the text cannot interleave with agent
// output.
func (m *Monitor) Submit(ctx context.Context, text string) error {
	if s := m.State(); s != StateAttached {
		return fmt.Errorf("cannot submit while %s", s)
	}
	return m.target.Tmux().SubmitText(ctx, m.target.Name, text)
}

// Close detaches the monitor. Idempotent.
func (m *Monitor) Close() {
	select {
	case <-m.closing:
	default:
		close(m.closing)
	}
}

func (m *Monitor) shutdown() {
	m.transition(StateDetaching, nil)
	m.transition(StateClosed, nil)
}

func (m *Monitor) capture(ctx context.Context) error {
	tm := m.target.Tmux()
	content, err := tm.CapturePane(ctx, m.target.Name, m.scrollback)
	if err != nil {
		return err
	}
	cols, rows, err := tm.PaneDimensions(ctx, m.target.Name)
	if err != nil {
		return err
	}

	snap := Snapshot{
		Session:    m.target.Key(),
		CapturedAt: time.Now(),
		Columns:    cols,
		Rows:       rows,
		Content:    content,
	}
	select {
	case m.snapshots <- snap:
	default:
		// Consumer stalled: replace the stale snapshot with this one.
		select {
		case <-m.snapshots:
		default:
		}
		m.snapshots <- snap
	}
	return nil
}

func (m *Monitor) failCapture(err error) {
	if tmux.IsNoSession(err) {
		m.fail(fmt.Errorf("%w: %s", ErrBackendGone, m.target.Key()))
		return
	}
	slog.Warn("monitor capture failed", "session", m.target.Key(), "error", err)
	m.fail(fmt.Errorf("capturing %s: %w", m.target.Key(), err))
}
