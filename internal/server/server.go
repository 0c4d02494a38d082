// Package server is the HTTP and WebSocket surface. It wires the session
// locator, the terminal bridges, the presence tracker, and the audio
// router behind four endpoints: monitor and terminal WebSockets, a speak
// ingest route for agent audio, and a session listing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dotdevdotdev/agentwire-sub003/internal/audio"
	"github.com/dotdevdotdev/agentwire-sub003/internal/locator"
	"github.com/dotdevdotdev/agentwire-sub003/internal/presence"
	"github.com/dotdevdotdev/agentwire-sub003/internal/tmux"
)

// maxAudioBytes bounds a speak request body.
const maxAudioBytes = 16 << 20

// Error codes carried in error frames and API responses. Clients branch
// on these, not on message text.
const (
	codeSessionNotFound    = "session_not_found"
	codeUnknownMachine     = "unknown_machine"
	codeMachineUnreachable = "machine_unreachable"
	codeBackendGone        = "backend_gone"
	codeBadRequest         = "bad_request"
	codeInternal           = "internal"
)

// Server wires the transport layer together.
type Server struct {
	Resolver *locator.Resolver
	Presence *presence.Tracker
	Audio    *audio.Router
	Local    *tmux.Tmux

	// Monitor snapshot tuning, zero values fall back to bridge defaults.
	PollInterval    time.Duration
	ScrollbackLines int

	mu    sync.Mutex
	conns map[string]*wsConn
}

// New builds a server over the given collaborators. The audio router's
// broadcaster must be set to the returned server by the caller (the two
// reference each other).
func New(resolver *locator.Resolver, tracker *presence.Tracker, router *audio.Router, local *tmux.Tmux) *Server {
	return &Server{
		Resolver: resolver,
		Presence: tracker,
		Audio:    router,
		Local:    local,
		conns:    make(map[string]*wsConn),
	}
}

// Handler returns the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/monitor", s.handleMonitor)
	mux.HandleFunc("GET /ws/terminal", s.handleTerminal)
	mux.HandleFunc("POST /api/sessions/{session}/speak", s.handleSpeak)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	return mux
}

// SendAudio implements audio.Broadcaster: one audio frame to one
// connection, as a JSON text frame on both monitor and terminal sockets.
func (s *Server) SendAudio(_ context.Context, connID string, payload []byte) error {
	s.mu.Lock()
	c := s.conns[connID]
	s.mu.Unlock()
	if c == nil {
		return fmt.Errorf("connection %s gone", connID)
	}
	return c.writeFrame(audioFrame(payload))
}

func (s *Server) register(c *wsConn) {
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
}

func (s *Server) unregister(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

// handleSpeak ingests one audio payload from an agent pipeline and routes
// it. Delivery is best effort: the agent always gets 202 plus an outcome
// it can log, never a delivery failure.
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBytes))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, codeBadRequest, "reading body")
		return
	}

	outcome, err := s.Audio.Deliver(r.Context(), session, payload)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	slog.Info("audio delivered",
		"session", session,
		"local", outcome.Local,
		"devices", outcome.Devices,
		"suppressed", outcome.Suppressed)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(outcome)
}

type sessionInfo struct {
	Name    string `json:"name"`
	Viewers int    `json:"viewers"`
	Devices int    `json:"devices"`
}

// handleSessions lists local tmux sessions with their viewer counts.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	names, err := s.Local.ListSessions(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}

	infos := make([]sessionInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, sessionInfo{
			Name:    name,
			Viewers: s.Presence.ViewerCount(name),
			Devices: s.Presence.DeviceCount(name),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(infos)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    code,
		"message": message,
	})
}

// resolveCode maps locator failures to wire error codes.
func resolveCode(err error) string {
	switch {
	case errors.Is(err, locator.ErrSessionNotFound):
		return codeSessionNotFound
	case errors.Is(err, locator.ErrUnknownMachine):
		return codeUnknownMachine
	case errors.Is(err, locator.ErrMachineUnreachable):
		return codeMachineUnreachable
	default:
		return codeInternal
	}
}
