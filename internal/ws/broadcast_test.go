package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/proctorai/proctor/internal/clock"
	"github.com/proctorai/proctor/internal/proctor"
	"github.com/proctorai/proctor/internal/session"
)

var epoch = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func newTestStore() (*session.Store, *clock.Fake) {
	clk := clock.NewFake(epoch)
	return session.NewStore(proctor.Options{Clock: clk}), clk
}

// dialPair creates a test HTTP server that upgrades to WebSocket and returns
// both ends of the connection. The caller must close the server.
func dialPair(t *testing.T) (*httptest.Server, *websocket.Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	select {
	case serverConn := <-connCh:
		return srv, serverConn, clientConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil, nil
	}
}

// readMessage reads one frame from conn and decodes its envelope.
func readMessage(t *testing.T, conn *websocket.Conn) (MessageType, json.RawMessage) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env struct {
		Type    MessageType     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return env.Type, env.Payload
}

func readDelta(t *testing.T, conn *websocket.Conn) DeltaPayload {
	t.Helper()
	typ, raw := readMessage(t, conn)
	if typ != MsgDelta {
		t.Fatalf("message type = %s, want delta", typ)
	}
	var d DeltaPayload
	if err := json.Unmarshal(raw, &d); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	return d
}

func TestAddClient_SendsSnapshot(t *testing.T) {
	store, _ := newTestStore()
	store.Create("exam-1")
	b := NewBroadcaster(store, time.Hour, time.Hour, 0)
	defer b.Stop()

	srv, serverConn, clientConn := dialPair(t)
	defer srv.Close()
	defer clientConn.Close()

	if _, err := b.AddClient(serverConn); err != nil {
		t.Fatalf("AddClient: %v", err)
	}

	typ, raw := readMessage(t, clientConn)
	if typ != MsgSnapshot {
		t.Fatalf("first message = %s, want snapshot", typ)
	}
	var snap SnapshotPayload
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Sessions) != 1 || snap.Sessions[0].ID != "exam-1" {
		t.Errorf("snapshot sessions = %+v", snap.Sessions)
	}
}

func TestQueueUpdate_CoalescesPerSession(t *testing.T) {
	store, _ := newTestStore()
	b := NewBroadcaster(store, time.Hour, time.Hour, 0)
	defer b.Stop()

	srv, serverConn, clientConn := dialPair(t)
	defer srv.Close()
	defer clientConn.Close()
	b.AddClient(serverConn)
	readMessage(t, clientConn) // initial snapshot

	b.QueueUpdate([]*proctor.State{{ID: "a", WarningCount: 1}})
	b.QueueUpdate([]*proctor.State{{ID: "b"}})
	b.QueueUpdate([]*proctor.State{{ID: "a", WarningCount: 2}})
	b.flush()

	d := readDelta(t, clientConn)
	if len(d.Updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(d.Updates))
	}
	if d.Updates[0].ID != "a" || d.Updates[0].WarningCount != 2 {
		t.Errorf("first update = %+v, want latest state of a", d.Updates[0])
	}
	if d.Updates[1].ID != "b" {
		t.Errorf("second update = %s, want b", d.Updates[1].ID)
	}
}

func TestQueueRemoval_DropsPendingUpdate(t *testing.T) {
	store, _ := newTestStore()
	b := NewBroadcaster(store, time.Hour, time.Hour, 0)
	defer b.Stop()

	srv, serverConn, clientConn := dialPair(t)
	defer srv.Close()
	defer clientConn.Close()
	b.AddClient(serverConn)
	readMessage(t, clientConn)

	b.QueueUpdate([]*proctor.State{{ID: "gone"}, {ID: "kept"}})
	b.QueueRemoval([]string{"gone"})
	b.flush()

	d := readDelta(t, clientConn)
	if len(d.Updates) != 1 || d.Updates[0].ID != "kept" {
		t.Errorf("updates = %+v, want only kept", d.Updates)
	}
	if len(d.Removed) != 1 || d.Removed[0] != "gone" {
		t.Errorf("removed = %v, want [gone]", d.Removed)
	}
}

func TestObserve_ForwardsStoreEvents(t *testing.T) {
	store, _ := newTestStore()
	b := NewBroadcaster(store, 10*time.Millisecond, time.Hour, 0)
	defer b.Stop()
	store.SetListener(b.Observe)

	srv, serverConn, clientConn := dialPair(t)
	defer srv.Close()
	defer clientConn.Close()
	b.AddClient(serverConn)
	readMessage(t, clientConn)

	sess, _ := store.Create("exam")
	sess.SetFaceCount(2)

	// Create and the signal may land in one delta or two.
	for i := 0; ; i++ {
		d := readDelta(t, clientConn)
		if len(d.Updates) == 1 && d.Updates[0].Status == proctor.Suspicious {
			break
		}
		if i == 1 {
			t.Fatalf("no suspicious update in deltas, last = %+v", d)
		}
	}

	store.Remove("exam")
	d := readDelta(t, clientConn)
	if len(d.Removed) != 1 || d.Removed[0] != "exam" {
		t.Errorf("removed = %v, want [exam]", d.Removed)
	}
}

func TestFlush_AppliesPrivacyFilter(t *testing.T) {
	store, _ := newTestStore()
	b := NewBroadcaster(store, time.Hour, time.Hour, 0)
	defer b.Stop()
	b.SetPrivacyFilter(&session.ViewFilter{MaskSessionIDs: true, HideDiagnostics: true})

	srv, serverConn, clientConn := dialPair(t)
	defer srv.Close()
	defer clientConn.Close()
	b.AddClient(serverConn)
	readMessage(t, clientConn)

	b.QueueUpdate([]*proctor.State{{ID: "jane", EyeGaze: proctor.GazeLeft, AudioLevel: 40}})
	b.QueueRemoval([]string{"john"})
	b.flush()

	d := readDelta(t, clientConn)
	if d.Updates[0].ID == "jane" || d.Updates[0].EyeGaze != proctor.GazeCenter || d.Updates[0].AudioLevel != 0 {
		t.Errorf("update not filtered: %+v", d.Updates[0])
	}
	if d.Removed[0] == "john" {
		t.Error("removed id not masked")
	}
}

func TestFilterSessions_NoFilter(t *testing.T) {
	store, _ := newTestStore()
	b := NewBroadcaster(store, time.Hour, time.Hour, 0)
	defer b.Stop()

	in := []*proctor.State{{ID: "s1"}, {ID: "s2"}}
	out := b.FilterSessions(in)
	if len(out) != 2 || out[0].ID != "s1" || out[1].ID != "s2" {
		t.Errorf("FilterSessions() = %+v", out)
	}
}

func TestSnapshotLoop_Broadcasts(t *testing.T) {
	store, _ := newTestStore()
	b := NewBroadcaster(store, time.Hour, 20*time.Millisecond, 0)
	defer b.Stop()

	srv, serverConn, clientConn := dialPair(t)
	defer srv.Close()
	defer clientConn.Close()
	b.AddClient(serverConn)
	readMessage(t, clientConn)

	if typ, _ := readMessage(t, clientConn); typ != MsgSnapshot {
		t.Errorf("periodic message = %s, want snapshot", typ)
	}
}

func TestAddClient_MaxConnections(t *testing.T) {
	const maxConns = 2
	store, _ := newTestStore()
	b := NewBroadcaster(store, 100*time.Millisecond, time.Hour, maxConns)
	defer b.Stop()

	var clients []*client
	for i := 0; i < maxConns; i++ {
		srv, conn, peer := dialPair(t)
		defer srv.Close()
		defer peer.Close()

		c, err := b.AddClient(conn)
		if err != nil {
			t.Fatalf("AddClient[%d]: unexpected error: %v", i, err)
		}
		clients = append(clients, c)
	}

	srv, conn, peer := dialPair(t)
	defer srv.Close()
	defer peer.Close()
	if _, err := b.AddClient(conn); !errors.Is(err, ErrTooManyConnections) {
		t.Fatalf("expected ErrTooManyConnections, got %v", err)
	}

	b.RemoveClient(clients[0])
	if _, err := b.AddClient(conn); err != nil {
		t.Fatalf("AddClient after removal: unexpected error: %v", err)
	}
	if got := b.ClientCount(); got != maxConns {
		t.Fatalf("expected %d clients after re-add, got %d", maxConns, got)
	}
}

func TestWritePump_RemovesClientOnWriteError(t *testing.T) {
	srv, serverConn, clientConn := dialPair(t)
	defer srv.Close()
	clientConn.Close()

	store, _ := newTestStore()
	b := NewBroadcaster(store, time.Hour, time.Hour, 0)
	defer b.Stop()

	c := &client{
		conn: serverConn,
		b:    b,
		send: make(chan []byte, 64),
	}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	serverConn.Close()
	c.send <- []byte(`{"type":"test"}`)
	go c.writePump()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client not removed after write error; ClientCount = %d", b.ClientCount())
}

func TestStop_DisconnectsClients(t *testing.T) {
	store, _ := newTestStore()
	b := NewBroadcaster(store, time.Hour, time.Hour, 0)

	srv, serverConn, clientConn := dialPair(t)
	defer srv.Close()
	defer clientConn.Close()
	b.AddClient(serverConn)

	b.Stop()
	b.Stop()
	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount() after Stop = %d, want 0", got)
	}
}
