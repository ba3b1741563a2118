// Package client provides WebSocket and HTTP clients for the proctor server.
package client

import (
	"encoding/json"

	"github.com/proctorai/proctor/internal/proctor"
)

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgDelta    MessageType = "delta"
	MsgError    MessageType = "error"
	MsgResync   MessageType = "resync"
)

// WSMessage is the envelope for all WebSocket messages.
type WSMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ClientMessage is a request sent up the feed.
type ClientMessage struct {
	Type MessageType `json:"type"`
}

// SnapshotPayload carries every session the server exposes.
type SnapshotPayload struct {
	Sessions []*proctor.State `json:"sessions"`
}

// DeltaPayload carries changed and removed sessions.
type DeltaPayload struct {
	Updates []*proctor.State `json:"updates"`
	Removed []string         `json:"removed,omitempty"`
}

// ErrorPayload is a server-side error notice.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Health mirrors the /api/health response.
type Health struct {
	Status         string  `json:"status"`
	UptimeSeconds  int64   `json:"uptimeSeconds"`
	Sessions       int     `json:"sessions"`
	ActiveSessions int     `json:"activeSessions"`
	Clients        int     `json:"clients"`
	Goroutines     int     `json:"goroutines"`
	RSSBytes       uint64  `json:"rssBytes,omitempty"`
	CPUPercent     float64 `json:"cpuPercent,omitempty"`
}
