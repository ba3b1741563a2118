package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/proctorai/proctor/internal/proctor"
	"github.com/proctorai/proctor/internal/session"
)

// ErrTooManyConnections is returned by AddClient when the connection limit
// is reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans session state out to WebSocket viewers: a snapshot on
// connect and on a fixed interval, throttled deltas in between.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	store    *session.Store
	privacy  *session.ViewFilter
	maxConns int

	throttle       time.Duration
	snapshotTicker *time.Ticker
	done           chan struct{}
	stopOnce       sync.Once

	flushMu        sync.Mutex
	pendingOrder   []string
	pendingUpdates map[string]*proctor.State
	pendingRemoved []string
	flushTimer     *time.Timer
}

// NewBroadcaster starts the periodic snapshot loop. maxConns of zero means
// unlimited.
func NewBroadcaster(store *session.Store, throttle, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	b := &Broadcaster{
		clients:        make(map[*client]bool),
		store:          store,
		privacy:        &session.ViewFilter{},
		maxConns:       maxConns,
		throttle:       throttle,
		done:           make(chan struct{}),
		pendingUpdates: make(map[string]*proctor.State),
	}

	b.snapshotTicker = time.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

// SetPrivacyFilter installs the filter applied to every outgoing state.
func (b *Broadcaster) SetPrivacyFilter(f *session.ViewFilter) {
	if f == nil {
		f = &session.ViewFilter{}
	}
	b.mu.Lock()
	b.privacy = f
	b.mu.Unlock()
}

// Observe is the session.Store listener: it turns store events into queued
// deltas.
func (b *Broadcaster) Observe(ev session.Event) {
	switch ev.Type {
	case session.EventNew, session.EventUpdate:
		if ev.State != nil {
			b.QueueUpdate([]*proctor.State{ev.State})
		}
	case session.EventRemoved:
		b.QueueRemoval([]string{ev.ID})
	}
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, 64),
	}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()
	b.SendSnapshot(c)
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// SendSnapshot queues a full snapshot for a single client.
func (b *Broadcaster) SendSnapshot(c *client) {
	data, err := json.Marshal(b.snapshotMessage())
	if err != nil {
		log.Printf("snapshot marshal error: %v", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		// Client too slow, drop the snapshot
	}
}

// QueueUpdate schedules states for the next delta. Repeated updates of one
// session within a throttle window collapse to the latest.
func (b *Broadcaster) QueueUpdate(states []*proctor.State) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	for _, st := range states {
		if _, ok := b.pendingUpdates[st.ID]; !ok {
			b.pendingOrder = append(b.pendingOrder, st.ID)
		}
		b.pendingUpdates[st.ID] = st
		b.pendingRemoved = without(b.pendingRemoved, st.ID)
	}
	b.scheduleFlushLocked()
}

// QueueRemoval schedules session ids for the next delta's removed list.
func (b *Broadcaster) QueueRemoval(ids []string) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	for _, id := range ids {
		if _, ok := b.pendingUpdates[id]; ok {
			delete(b.pendingUpdates, id)
			b.pendingOrder = without(b.pendingOrder, id)
		}
		b.pendingRemoved = append(without(b.pendingRemoved, id), id)
	}
	b.scheduleFlushLocked()
}

func (b *Broadcaster) scheduleFlushLocked() {
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	updates := make([]*proctor.State, 0, len(b.pendingOrder))
	for _, id := range b.pendingOrder {
		updates = append(updates, b.pendingUpdates[id])
	}
	removed := b.pendingRemoved
	b.pendingOrder = nil
	b.pendingUpdates = make(map[string]*proctor.State)
	b.pendingRemoved = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if len(updates) == 0 && len(removed) == 0 {
		return
	}

	filter := b.filter()
	masked := make([]string, len(removed))
	for i, id := range removed {
		masked[i] = filter.ApplyID(id)
	}

	b.broadcast(WSMessage{
		Type: MsgDelta,
		Payload: DeltaPayload{
			Updates: filter.FilterSlice(updates),
			Removed: masked,
		},
	})
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.snapshotTicker.C:
			b.broadcast(b.snapshotMessage())
		case <-b.done:
			return
		}
	}
}

func (b *Broadcaster) snapshotMessage() WSMessage {
	return WSMessage{
		Type: MsgSnapshot,
		Payload: SnapshotPayload{
			Sessions: b.FilterSessions(b.store.GetAll()),
		},
	}
}

// FilterSessions applies the privacy filter to a list of states.
func (b *Broadcaster) FilterSessions(states []*proctor.State) []*proctor.State {
	return b.filter().FilterSlice(states)
}

// FilterState applies the privacy filter to one state.
func (b *Broadcaster) FilterState(st proctor.State) *proctor.State {
	return b.filter().Apply(&st)
}

// Filter returns the installed privacy filter.
func (b *Broadcaster) Filter() *session.ViewFilter {
	return b.filter()
}

func (b *Broadcaster) filter() *session.ViewFilter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.privacy
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if !b.trySend(c, data) {
			log.Printf("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

// trySend queues data unless the client has gone or its buffer is full.
func (b *Broadcaster) trySend(c *client, data []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Stop halts the snapshot loop and any pending flush, and disconnects every
// client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.snapshotTicker.Stop()
		close(b.done)

		b.flushMu.Lock()
		if b.flushTimer != nil {
			b.flushTimer.Stop()
			b.flushTimer = nil
		}
		b.flushMu.Unlock()

		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
	})
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
