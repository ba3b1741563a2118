package session

import "github.com/proctorai/proctor/internal/proctor"

// EventType classifies store notifications.
type EventType int

const (
	EventNew     EventType = iota // session created
	EventUpdate                   // session state changed
	EventRemoved                  // session torn down and removed
)

// Event carries a session snapshot to observers.
type Event struct {
	Type  EventType
	ID    string
	State *proctor.State // nil for EventRemoved
}
