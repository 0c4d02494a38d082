// Package audio routes agent-produced audio notifications to the devices
// currently viewing a session, or to local playback when nobody is
// watching. Delivery is best effort and at most once per device: a device
// with three windows open on the same session hears a clip once, and a
// clip re-announced within the suppression window is dropped silently.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultSuppressionWindow is how long a {device, fingerprint} pair stays
// suppressed after a delivery.
const DefaultSuppressionWindow = 2 * time.Second

// Presence is the viewer lookup the router needs. Implemented by
// presence.Tracker.
type Presence interface {
	HasActiveViewers(session string) bool
	DevicesFor(session string) []string
	ConnectionsFor(session, device string) []string
}

// Broadcaster pushes one audio payload down one connection. Implemented
// by the server layer. A failed send is that connection's problem, not
// the agent pipeline's.
type Broadcaster interface {
	SendAudio(ctx context.Context, connID string, payload []byte) error
}

// Outcome reports where a Deliver call landed the payload.
type Outcome struct {
	// Local is true when the payload was played on the server host
	// because no device was viewing the session.
	Local bool `json:"local"`

	// Devices is how many devices received the payload.
	Devices int `json:"devices"`

	// Suppressed is how many devices were skipped as duplicates.
	Suppressed int `json:"suppressed"`
}

type dedupKey struct {
	device      string
	fingerprint string
}

// Router fans audio payloads out to viewing devices.
type Router struct {
	Presence    Presence
	Broadcaster Broadcaster
	Player      LocalPlayer

	// SuppressionWindow bounds duplicate delivery. Zero means
	// DefaultSuppressionWindow.
	SuppressionWindow time.Duration

	// now is swapped in tests to step the clock.
	now func() time.Time

	mu     sync.Mutex
	recent map[dedupKey]time.Time
}

// NewRouter wires a router over the given collaborators.
func NewRouter(p Presence, b Broadcaster, player LocalPlayer) *Router {
	return &Router{
		Presence:    p,
		Broadcaster: b,
		Player:      player,
		now:         time.Now,
		recent:      make(map[dedupKey]time.Time),
	}
}

func (r *Router) window() time.Duration {
	if r.SuppressionWindow > 0 {
		return r.SuppressionWindow
	}
	return DefaultSuppressionWindow
}

// Deliver routes one payload for session. With no viewers it falls back
// to local playback; otherwise each viewing device gets the payload at
// most once, through one of its connections. Send failures are logged and
// absorbed: the agent that produced the audio never sees them.
func (r *Router) Deliver(ctx context.Context, session string, payload []byte) (Outcome, error) {
	if len(payload) == 0 {
		return Outcome{}, fmt.Errorf("empty audio payload for session %q", session)
	}

	if !r.Presence.HasActiveViewers(session) {
		if r.Player == nil {
			slog.Warn("no viewers and no local player, dropping audio", "session", session)
			return Outcome{}, nil
		}
		if err := r.Player.Play(ctx, payload); err != nil {
			slog.Warn("local audio playback failed", "session", session, "error", err)
			return Outcome{}, nil
		}
		return Outcome{Local: true}, nil
	}

	fp := Fingerprint(payload)
	now := r.now()
	var out Outcome

	for _, device := range r.Presence.DevicesFor(session) {
		if !r.reserve(device, fp, now) {
			out.Suppressed++
			continue
		}
		if r.sendToDevice(ctx, session, device, payload) {
			out.Devices++
		} else {
			// Nothing reached the device, so a retry within the window
			// must not be suppressed.
			r.release(device, fp)
		}
	}
	return out, nil
}

// sendToDevice tries the device's connections in turn and stops at the
// first successful send.
func (r *Router) sendToDevice(ctx context.Context, session, device string, payload []byte) bool {
	for _, connID := range r.Presence.ConnectionsFor(session, device) {
		if err := r.Broadcaster.SendAudio(ctx, connID, payload); err != nil {
			slog.Warn("audio send failed",
				"session", session, "device", device, "conn", connID, "error", err)
			continue
		}
		return true
	}
	return false
}

// reserve claims the {device, fingerprint} slot under one lock
// acquisition, so two concurrent deliveries of the same payload cannot
// both pass the suppression check and double-dispatch to one device.
func (r *Router) reserve(device, fingerprint string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dedupKey{device, fingerprint}
	if sent, ok := r.recent[key]; ok && now.Sub(sent) < r.window() {
		return false
	}
	// Prune expired slots while we hold the lock; the table only grows
	// by one entry per delivered device so this stays cheap.
	for k, sent := range r.recent {
		if now.Sub(sent) >= r.window() {
			delete(r.recent, k)
		}
	}
	r.recent[key] = now
	return true
}

func (r *Router) release(device, fingerprint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recent, dedupKey{device, fingerprint})
}
