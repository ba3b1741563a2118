package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/proctorai/proctor/internal/proctor"
)

var (
	ErrExists    = errors.New("session already exists")
	ErrNotFound  = errors.New("session not found")
	ErrInvalidID = errors.New("invalid session id")
)

const maxIDLen = 128

type entry struct {
	session *proctor.Session
	seq     int
}

// Store owns every live monitoring session. Sessions are created from a
// shared options template; their change notifications are forwarded to the
// listener as Events.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	nextSeq  int
	template proctor.Options
	listener func(Event)
}

// NewStore returns an empty store. opts.OnChange is ignored; the store
// installs its own hook on each session.
func NewStore(opts proctor.Options) *Store {
	opts.OnChange = nil
	return &Store{
		sessions: make(map[string]*entry),
		template: opts,
	}
}

// SetListener installs fn to receive store events. Pass nil to detach.
func (s *Store) SetListener(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

// Create starts tracking a new session. An empty id gets a generated one.
func (s *Store) Create(id string) (*proctor.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	if len(id) > maxIDLen || strings.ContainsAny(id, "/?#") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	opts := s.template
	opts.OnChange = func(st proctor.State) {
		s.emit(Event{Type: EventUpdate, ID: st.ID, State: &st})
	}
	sess := proctor.NewSession(id, opts)

	s.mu.Lock()
	if _, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}
	s.sessions[id] = &entry{session: sess, seq: s.nextSeq}
	s.nextSeq++
	s.mu.Unlock()

	st := sess.Snapshot()
	s.emit(Event{Type: EventNew, ID: id, State: &st})
	return sess, nil
}

// Get returns the session with the given id.
func (s *Store) Get(id string) (*proctor.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Resolve finds a session by its real id or, when f masks ids, by the
// masked form viewers see. It returns the real id.
func (s *Store) Resolve(id string, f *ViewFilter) (*proctor.Session, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.sessions[id]; ok {
		return e.session, id, true
	}
	if f == nil || !f.MaskSessionIDs {
		return nil, "", false
	}
	for realID, e := range s.sessions {
		if f.ApplyID(realID) == id {
			return e.session, realID, true
		}
	}
	return nil, "", false
}

// Snapshot returns the current state of one session.
func (s *Store) Snapshot(id string) (proctor.State, error) {
	sess, ok := s.Get(id)
	if !ok {
		return proctor.State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess.Snapshot(), nil
}

// GetAll returns snapshots of every session in creation order.
func (s *Store) GetAll() []*proctor.State {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	result := make([]*proctor.State, 0, len(entries))
	for _, e := range entries {
		st := e.session.Snapshot()
		result = append(result, &st)
	}
	return result
}

// Remove tears the session down and forgets it.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	e.session.Close()
	s.emit(Event{Type: EventRemoved, ID: id})
	return true
}

// Count returns the number of tracked sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ActiveCount returns the number of sessions with monitoring started.
func (s *Store) ActiveCount() int {
	count := 0
	for _, st := range s.GetAll() {
		if st.Active {
			count++
		}
	}
	return count
}

// Close tears down every session. Used on shutdown.
func (s *Store) Close() {
	s.mu.Lock()
	sessions := make([]*proctor.Session, 0, len(s.sessions))
	for _, e := range s.sessions {
		sessions = append(sessions, e.session)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

func (s *Store) emit(ev Event) {
	s.mu.RLock()
	fn := s.listener
	s.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}
