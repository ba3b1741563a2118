package proctor

import (
	"time"

	"github.com/google/uuid"

	"github.com/proctorai/proctor/internal/clock"
)

// DefaultLogCapacity is the number of events retained per session.
const DefaultLogCapacity = 50

// Event is an immutable entry in a session's log.
type Event struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Type        EventType `json:"type"`
	Description string    `json:"description"`
	Severity    Status    `json:"severity"`
}

// EventLog is a bounded ring of events. When full, the oldest entry is
// overwritten. It is not safe for concurrent use; Session serializes access.
type EventLog struct {
	clock clock.Clock
	buf   []Event
	next  int // index the next append writes to
	size  int
}

// NewEventLog returns an empty log holding at most capacity events.
// A non-positive capacity falls back to DefaultLogCapacity.
func NewEventLog(capacity int, clk clock.Clock) *EventLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &EventLog{clock: clk, buf: make([]Event, capacity)}
}

// Append records a new event stamped with a fresh id and the current time.
func (l *EventLog) Append(typ EventType, description string, severity Status) Event {
	ev := Event{
		ID:          uuid.NewString(),
		Timestamp:   l.clock.Now(),
		Type:        typ,
		Description: description,
		Severity:    severity,
	}
	l.buf[l.next] = ev
	l.next = (l.next + 1) % len(l.buf)
	if l.size < len(l.buf) {
		l.size++
	}
	return ev
}

// Len returns the number of retained events.
func (l *EventLog) Len() int { return l.size }

// Cap returns the maximum number of retained events.
func (l *EventLog) Cap() int { return len(l.buf) }

// Events returns the retained events, newest first. The slice is a copy.
func (l *EventLog) Events() []Event {
	out := make([]Event, 0, l.size)
	for i := 1; i <= l.size; i++ {
		idx := (l.next - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

// clear drops every entry. Only Session.Reset uses it; callers outside the
// package never remove entries.
func (l *EventLog) clear() {
	for i := range l.buf {
		l.buf[i] = Event{}
	}
	l.next = 0
	l.size = 0
}
