package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dotdevdotdev/agentwire-sub003/internal/bridge"
)

const writeTimeout = 10 * time.Second

// maxDimension bounds terminal sizes from clients. Well past any real
// display, well short of the uint16 wrap in the PTY ioctl.
const maxDimension = 9999

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	// The browser client is served from anywhere the operator hosts it;
	// the server binds loopback by default so origin checks add nothing.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn is one upgraded client connection. Gorilla allows a single
// writer at a time, so every outbound path funnels through the mutex.
type wsConn struct {
	id      string
	device  string
	session string
	ws      *websocket.Conn

	mu sync.Mutex
}

func (c *wsConn) writeFrame(f serverFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(f)
}

func (c *wsConn) writeBinary(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, p)
}

// accept upgrades the request and builds the connection identity. The
// device ID comes from the handshake; a client that sends none gets an
// ephemeral device per connection, which disables cross-window dedup but
// keeps delivery correct.
func (s *Server) accept(w http.ResponseWriter, r *http.Request) (*wsConn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	device := r.URL.Query().Get("device")
	if device == "" {
		device = "ephemeral-" + uuid.NewString()
	}
	return &wsConn{
		id:     uuid.NewString(),
		device: device,
		ws:     ws,
	}, nil
}

// rejectResolve reports a resolution failure over the fresh socket. The
// upgrade happened first so the client gets a typed frame instead of a
// bare HTTP status.
func (c *wsConn) rejectResolve(err error) {
	c.writeFrame(errorFrame(resolveCode(err), err.Error()))
	c.writeFrame(endedFrame(resolveCode(err)))
	c.ws.Close()
}

// handleMonitor serves the read-mostly mode: snapshot frames out, poke
// and submit frames in.
func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	c, err := s.accept(w, r)
	if err != nil {
		return
	}

	target, err := s.Resolver.Resolve(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		slog.Info("monitor resolve failed", "error", err)
		c.rejectResolve(err)
		return
	}
	c.session = target.Key()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	m := bridge.NewMonitor(target, s.PollInterval, s.ScrollbackLines)
	go m.Run(ctx)

	s.register(c)
	s.Presence.Subscribe(c.id, c.device, c.session)
	slog.Info("monitor connected", "session", c.session, "conn", c.id, "device", c.device)

	// Teardown is synchronous with handler exit: by the time the socket
	// handler returns, presence is gone and the bridge is closed.
	defer func() {
		cancel()
		m.Close()
		s.Presence.Unsubscribe(c.id)
		s.unregister(c)
		c.ws.Close()
		slog.Info("monitor disconnected", "session", c.session, "conn", c.id)
	}()

	go s.pumpMonitor(ctx, c, m)
	s.readMonitor(ctx, c, m)
}

// pumpMonitor forwards snapshots and lifecycle transitions to the client.
func (s *Server) pumpMonitor(ctx context.Context, c *wsConn, m *bridge.Monitor) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-m.Snapshots():
			err := c.writeFrame(serverFrame{
				Type:       frameSnapshot,
				Session:    snap.Session,
				CapturedAt: snap.CapturedAt,
				Columns:    snap.Columns,
				Rows:       snap.Rows,
				Content:    snap.Content,
			})
			if err != nil {
				c.ws.Close()
				return
			}
		case ev := <-m.Events():
			switch ev.State {
			case bridge.StateErrored:
				code := codeInternal
				if errors.Is(ev.Err, bridge.ErrBackendGone) {
					code = codeBackendGone
				}
				c.writeFrame(errorFrame(code, ev.Err.Error()))
				c.writeFrame(endedFrame(code))
				c.ws.Close()
				return
			case bridge.StateClosed:
				return
			}
		}
	}
}

// readMonitor consumes client control frames until the socket dies.
func (s *Server) readMonitor(ctx context.Context, c *wsConn, m *bridge.Monitor) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var f clientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.writeFrame(errorFrame(codeBadRequest, "malformed control frame"))
			continue
		}
		switch f.Type {
		case framePoke:
			m.Poke()
		case frameSubmit:
			if err := m.Submit(ctx, f.Text); err != nil {
				slog.Warn("submit failed", "session", c.session, "error", err)
				c.writeFrame(errorFrame(codeInternal, err.Error()))
			} else {
				// Reflect the submission promptly in the next snapshot.
				m.Poke()
			}
		default:
			c.writeFrame(errorFrame(codeBadRequest, "unknown frame type "+f.Type))
		}
	}
}

// handleTerminal serves the interactive mode: a full attach with raw
// bytes in both directions.
func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	c, err := s.accept(w, r)
	if err != nil {
		return
	}

	target, err := s.Resolver.Resolve(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		slog.Info("terminal resolve failed", "error", err)
		c.rejectResolve(err)
		return
	}
	c.session = target.Key()

	cols := queryInt(r, "cols", 80)
	rows := queryInt(r, "rows", 24)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	term := bridge.NewTerminal(target)
	if err := term.Start(ctx, cols, rows); err != nil {
		slog.Warn("terminal attach failed", "session", c.session, "error", err)
		c.writeFrame(errorFrame(codeInternal, err.Error()))
		c.writeFrame(endedFrame(codeInternal))
		c.ws.Close()
		return
	}

	s.register(c)
	s.Presence.Subscribe(c.id, c.device, c.session)
	slog.Info("terminal connected",
		"session", c.session, "conn", c.id, "device", c.device,
		"cols", cols, "rows", rows)

	defer func() {
		cancel()
		term.Close()
		s.Presence.Unsubscribe(c.id)
		s.unregister(c)
		c.ws.Close()
		slog.Info("terminal disconnected", "session", c.session, "conn", c.id)
	}()

	go s.pumpTerminal(ctx, c, term)
	s.readTerminal(ctx, c, term)
}

// pumpTerminal forwards backend bytes to the socket until the stream
// ends, then reports how it ended. The cause comes from Err rather than
// the instantaneous state: by the time the queue drains, the bridge has
// usually finished its Errored to Closed bookkeeping.
func (s *Server) pumpTerminal(ctx context.Context, c *wsConn, term *bridge.Terminal) {
	for {
		chunk, err := term.Output(ctx)
		if err != nil {
			if cause := term.Err(); err == io.EOF && cause != nil {
				code := codeInternal
				if errors.Is(cause, bridge.ErrBackendGone) {
					code = codeBackendGone
				}
				c.writeFrame(errorFrame(code, cause.Error()))
				c.writeFrame(endedFrame(code))
			}
			c.ws.Close()
			return
		}
		if err := c.writeBinary(chunk); err != nil {
			c.ws.Close()
			return
		}
	}
}

// readTerminal consumes client frames: binary is raw input for the
// backend, text is control.
func (s *Server) readTerminal(ctx context.Context, c *wsConn, term *bridge.Terminal) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			if _, err := term.Write(data); err != nil {
				slog.Warn("backend write failed", "session", c.session, "error", err)
				return
			}
		case websocket.TextMessage:
			var f clientFrame
			if err := json.Unmarshal(data, &f); err != nil {
				c.writeFrame(errorFrame(codeBadRequest, "malformed control frame"))
				continue
			}
			if f.Type != frameResize {
				c.writeFrame(errorFrame(codeBadRequest, "unknown frame type "+f.Type))
				continue
			}
			if !validDimensions(f.Columns, f.Rows) {
				c.writeFrame(errorFrame(codeBadRequest,
					fmt.Sprintf("invalid terminal size %dx%d", f.Columns, f.Rows)))
				continue
			}
			if err := term.Resize(ctx, f.Columns, f.Rows); err != nil {
				slog.Warn("resize failed", "session", c.session, "error", err)
			}
		}
	}
}

// validDimensions rejects sizes that would wrap through the uint16
// conversions on the PTY path.
func validDimensions(cols, rows int) bool {
	return cols > 0 && cols <= maxDimension && rows > 0 && rows <= maxDimension
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > maxDimension {
		return fallback
	}
	return n
}
