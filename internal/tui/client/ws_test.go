package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"snapshot", `{"type":"snapshot","payload":{"sessions":[{"id":"a"}]}}`, "snapshot"},
		{"delta", `{"type":"delta","payload":{"updates":[],"removed":["a"]}}`, "delta"},
		{"error", `{"type":"error","payload":{"message":"too many connections"}}`, "error"},
		{"unknown type", `{"type":"hello","payload":{}}`, ""},
		{"bad payload", `{"type":"delta","payload":"oops"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var frame WSMessage
			if err := json.Unmarshal([]byte(tt.frame), &frame); err != nil {
				t.Fatal(err)
			}
			var got string
			switch msg := decodeFrame(frame).(type) {
			case WSSnapshotMsg:
				got = "snapshot"
				if len(msg.Payload.Sessions) != 1 || msg.Payload.Sessions[0].ID != "a" {
					t.Errorf("sessions = %+v", msg.Payload.Sessions)
				}
			case WSDeltaMsg:
				got = "delta"
			case WSErrorMsg:
				got = "error"
			}
			if got != tt.want {
				t.Errorf("decodeFrame = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFeedSessionAndResync(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAuth := make(chan string, 1)
	gotResync := make(chan ClientMessage, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]interface{}{
			"type":    "snapshot",
			"payload": map[string]interface{}{"sessions": []map[string]string{{"id": "a"}}},
		})
		var req ClientMessage
		if conn.ReadJSON(&req) == nil {
			gotResync <- req
		}
	}))
	defer srv.Close()

	c := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), "s3cret")
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, ok := c.Listen(ctx)().(WSConnectedMsg); !ok {
		t.Fatal("Listen did not connect")
	}
	if auth := <-gotAuth; auth != "Bearer s3cret" {
		t.Errorf("Authorization = %q", auth)
	}
	if _, ok := c.ReadLoop(ctx)().(WSSnapshotMsg); !ok {
		t.Fatal("expected a snapshot first")
	}

	if err := c.Resync(); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	select {
	case req := <-gotResync:
		if req.Type != MsgResync {
			t.Errorf("request type = %q", req.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the resync request")
	}

	if _, ok := c.ReadLoop(ctx)().(WSDisconnectedMsg); !ok {
		t.Fatal("expected a disconnect after the server closed")
	}
	if err := c.Resync(); err == nil {
		t.Error("Resync succeeded without a connection")
	}
}

func TestListenStopsWithContext(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:1/ws", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if msg := c.Listen(ctx)(); msg != nil {
		t.Fatalf("Listen after cancel = %#v, want nil", msg)
	}
}
