package ws

import (
	"github.com/proctorai/proctor/internal/proctor"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgDelta    MessageType = "delta"
	MsgError    MessageType = "error"

	// MsgResync is sent by clients to request a fresh snapshot.
	MsgResync MessageType = "resync"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type SnapshotPayload struct {
	Sessions []*proctor.State `json:"sessions"`
}

type DeltaPayload struct {
	Updates []*proctor.State `json:"updates"`
	Removed []string         `json:"removed,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// ClientMessage is the only inbound frame shape.
type ClientMessage struct {
	Type MessageType `json:"type"`
}

// SignalRequest is the body of POST /api/sessions/{id}/signals. Absent
// fields leave the corresponding signal untouched.
type SignalRequest struct {
	FaceDetected  *bool             `json:"faceDetected,omitempty"`
	FaceCount     *int              `json:"faceCount,omitempty"`
	HeadPose      *proctor.HeadPose `json:"headPose,omitempty"`
	EyeGaze       *proctor.EyeGaze  `json:"eyeGaze,omitempty"`
	AudioLevel    *float64          `json:"audioLevel,omitempty"`
	AudioDetected *bool             `json:"audioDetected,omitempty"`
}

// CreateSessionRequest is the optional body of POST /api/sessions.
type CreateSessionRequest struct {
	ID string `json:"id,omitempty"`
}

// HealthResponse is served by GET /api/health.
type HealthResponse struct {
	Status         string  `json:"status"`
	UptimeSeconds  int64   `json:"uptimeSeconds"`
	Sessions       int     `json:"sessions"`
	ActiveSessions int     `json:"activeSessions"`
	Clients        int     `json:"clients"`
	Goroutines     int     `json:"goroutines"`
	RSSBytes       uint64  `json:"rssBytes,omitempty"`
	CPUPercent     float64 `json:"cpuPercent,omitempty"`
}
