// Package presence tracks which client connections are watching which
// sessions, and which physical device each connection belongs to.
//
// The tracker is pure in-memory state behind one mutex; no operation
// performs I/O or blocks, so it is safe to call from connect/disconnect
// handlers and the audio dispatch path. A device (one browser instance)
// may hold several connections to the same session, one per open window;
// the audio router uses DevicesFor/ConnectionsFor to collapse those into
// at-most-once playback per device.
package presence

import "sync"

type entry struct {
	session string
	device  string
}

// Tracker is the process-wide registry of session viewers.
type Tracker struct {
	mu sync.RWMutex
	// conns maps connectionID → its single subscription.
	conns map[string]entry
	// sessions maps session key → connectionID → deviceID.
	sessions map[string]map[string]string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		conns:    make(map[string]entry),
		sessions: make(map[string]map[string]string),
	}
}

// Subscribe records that connID (owned by deviceID) is viewing session.
// A connection views at most one session: re-subscribing moves it, so the
// prior session's viewer set no longer contains connID. Idempotent.
func (t *Tracker) Subscribe(connID, deviceID, session string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.conns[connID]; ok {
		t.removeLocked(connID, prev)
	}
	t.conns[connID] = entry{session: session, device: deviceID}
	viewers := t.sessions[session]
	if viewers == nil {
		viewers = make(map[string]string)
		t.sessions[session] = viewers
	}
	viewers[connID] = deviceID
}

// Unsubscribe removes connID's subscription. No-op if absent.
func (t *Tracker) Unsubscribe(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.conns[connID]
	if !ok {
		return
	}
	t.removeLocked(connID, prev)
	delete(t.conns, connID)
}

func (t *Tracker) removeLocked(connID string, prev entry) {
	if viewers, ok := t.sessions[prev.session]; ok {
		delete(viewers, connID)
		if len(viewers) == 0 {
			delete(t.sessions, prev.session)
		}
	}
}

// HasActiveViewers reports whether any connection is viewing session.
func (t *Tracker) HasActiveViewers(session string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions[session]) > 0
}

// DevicesFor returns the distinct devices viewing session, collapsing
// multiple windows per device.
func (t *Tracker) DevicesFor(session string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]bool)
	var devices []string
	for _, device := range t.sessions[session] {
		if !seen[device] {
			seen[device] = true
			devices = append(devices, device)
		}
	}
	return devices
}

// ConnectionsFor returns every connection through which the given device
// is viewing session.
func (t *Tracker) ConnectionsFor(session, device string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var conns []string
	for connID, d := range t.sessions[session] {
		if d == device {
			conns = append(conns, connID)
		}
	}
	return conns
}

// ViewerCount returns the number of connections viewing session.
func (t *Tracker) ViewerCount(session string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions[session])
}

// DeviceCount returns the number of distinct devices viewing session.
func (t *Tracker) DeviceCount(session string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]bool)
	for _, device := range t.sessions[session] {
		seen[device] = true
	}
	return len(seen)
}
