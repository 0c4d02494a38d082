package server

import (
	"encoding/base64"
	"time"
)

// Server-to-client frame types. Monitor connections carry everything as
// JSON text frames; terminal connections use text frames for control
// only, raw bytes travel as binary WebSocket messages.
const (
	frameSnapshot = "snapshot"
	frameAudio    = "audio"
	frameError    = "error"
	frameEnded    = "ended"
)

// Client-to-server frame types.
const (
	framePoke   = "poke"
	frameSubmit = "submit"
	frameResize = "resize"
)

// serverFrame is every message the server sends as text. Unused fields
// are omitted per frame type.
type serverFrame struct {
	Type string `json:"type"`

	// snapshot
	Session    string    `json:"session,omitempty"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
	Columns    int       `json:"columns,omitempty"`
	Rows       int       `json:"rows,omitempty"`
	Content    string    `json:"content,omitempty"`

	// audio, base64 payload
	Payload string `json:"payload,omitempty"`

	// error / ended
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// clientFrame is every control message a client sends as text.
type clientFrame struct {
	Type string `json:"type"`

	// submit
	Text string `json:"text,omitempty"`

	// resize
	Columns int `json:"columns,omitempty"`
	Rows    int `json:"rows,omitempty"`
}

func audioFrame(payload []byte) serverFrame {
	return serverFrame{
		Type:    frameAudio,
		Payload: base64.StdEncoding.EncodeToString(payload),
	}
}

func errorFrame(code, message string) serverFrame {
	return serverFrame{Type: frameError, Code: code, Message: message}
}

func endedFrame(reason string) serverFrame {
	return serverFrame{Type: frameEnded, Code: reason}
}
