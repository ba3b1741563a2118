package client

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	minBackoff     = time.Second
	maxBackoff     = 30 * time.Second
	writeWait      = 10 * time.Second
	readIdle       = 60 * time.Second
	keepaliveEvery = 30 * time.Second
)

var errNotConnected = errors.New("not connected")

// WSClient follows proctord's /ws feed: one snapshot of every session on
// connect, then deltas, with a resync request available at any time.
type WSClient struct {
	url   string
	token string

	mu       sync.Mutex
	conn     *websocket.Conn
	stopPing context.CancelFunc

	sendMu sync.Mutex // one writer at a time on conn
}

// NewWSClient targets the given feed URL. token, if set, is sent as a
// bearer header on every dial.
func NewWSClient(url, token string) *WSClient {
	return &WSClient{url: url, token: token}
}

// WSConnectedMsg reports a live feed. The server's snapshot follows.
type WSConnectedMsg struct{}

// WSDisconnectedMsg reports a dropped feed.
type WSDisconnectedMsg struct{ Err error }

// WSSnapshotMsg carries the full session list.
type WSSnapshotMsg struct{ Payload SnapshotPayload }

// WSDeltaMsg carries changed and removed sessions.
type WSDeltaMsg struct{ Payload DeltaPayload }

// WSErrorMsg carries a message the server sent before closing, such as a
// rejected connection.
type WSErrorMsg struct{ Payload ErrorPayload }

// Listen dials the feed, doubling the wait between failed attempts up to
// maxBackoff. The command yields WSConnectedMsg, or nil once ctx ends.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		wait := minBackoff
		for ctx.Err() == nil {
			conn, err := c.dial(ctx)
			if err == nil {
				c.attach(ctx, conn)
				return WSConnectedMsg{}
			}
			log.Printf("proctor feed unavailable: %v (next attempt in %v)", err, wait)
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			wait = min(wait*2, maxBackoff)
		}
		return nil
	}
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	return conn, err
}

// attach makes conn current and starts its keepalive, retiring any
// previous one.
func (c *WSClient) attach(ctx context.Context, conn *websocket.Conn) {
	pingCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.stopPing != nil {
		c.stopPing()
	}
	c.conn = conn
	c.stopPing = cancel
	c.mu.Unlock()

	go c.keepalive(pingCtx, conn)
}

func (c *WSClient) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// detach forgets conn if it is still current and closes it.
func (c *WSClient) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

// ReadLoop blocks until the next snapshot, delta or error frame and returns
// it as a tea.Msg. The model re-issues it after each message; a read failure
// yields WSDisconnectedMsg.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		conn := c.current()
		if conn == nil {
			return WSDisconnectedMsg{Err: errNotConnected}
		}

		extend := func() { conn.SetReadDeadline(time.Now().Add(readIdle)) }
		conn.SetPongHandler(func(string) error {
			extend()
			return nil
		})
		extend()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.detach(conn)
				return WSDisconnectedMsg{Err: err}
			}
			var frame WSMessage
			if json.Unmarshal(data, &frame) != nil {
				continue
			}
			if msg := decodeFrame(frame); msg != nil {
				return msg
			}
		}
	}
}

// keepalive pings conn until ctx ends, conn is replaced or a write fails.
func (c *WSClient) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(keepaliveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if c.current() != conn {
			return
		}
		if err := c.write(conn, func() error {
			return conn.WriteMessage(websocket.PingMessage, nil)
		}); err != nil {
			return
		}
	}
}

func (c *WSClient) write(conn *websocket.Conn, fn func() error) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return fn()
}

// Resync asks the server to resend the full session snapshot.
func (c *WSClient) Resync() error {
	conn := c.current()
	if conn == nil {
		return errNotConnected
	}
	return c.write(conn, func() error {
		return conn.WriteJSON(ClientMessage{Type: MsgResync})
	})
}

// Close drops the feed, if connected.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopPing != nil {
		c.stopPing()
		c.stopPing = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// decodeFrame maps a server frame to its tea.Msg, or nil for frames the
// console ignores.
func decodeFrame(frame WSMessage) tea.Msg {
	switch frame.Type {
	case MsgSnapshot:
		var p SnapshotPayload
		if json.Unmarshal(frame.Payload, &p) == nil {
			return WSSnapshotMsg{Payload: p}
		}
	case MsgDelta:
		var p DeltaPayload
		if json.Unmarshal(frame.Payload, &p) == nil {
			return WSDeltaMsg{Payload: p}
		}
	case MsgError:
		var p ErrorPayload
		if json.Unmarshal(frame.Payload, &p) == nil {
			return WSErrorMsg{Payload: p}
		}
	}
	return nil
}
