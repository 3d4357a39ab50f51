// Package push maintains the one persistent push connection a dashboard
// session holds against the backend. Inbound messages are decoded into typed
// status events and handed to the consumer over a channel; transport
// decoding never mutates job state itself.
package push

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"crawldash/internal/model"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Channel wraps one websocket connection. There is no automatic reconnect:
// after a drop the channel stays Disconnected and the dashboard keeps
// working from REST data until the caller dials a fresh channel.
type Channel struct {
	conn   *websocket.Conn
	events chan model.StatusEvent
	done   chan struct{}

	mu      sync.Mutex
	state   State
	lastErr error

	closeOnce  sync.Once
	finishOnce sync.Once
}

// Dial opens the push connection. The bearer token rides the handshake
// request the same way it rides REST calls.
func Dial(ctx context.Context, wsURL, token string) (*Channel, error) {
	c := &Channel{
		events: make(chan model.StatusEvent, 16),
		done:   make(chan struct{}),
		state:  StateConnecting,
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.state = StateDisconnected
		c.lastErr = err
		return nil, err
	}

	c.conn = conn
	c.state = StateConnected
	go c.readLoop()
	return c, nil
}

// Events is the typed inbound queue. It is closed exactly once, when the
// connection ends for any reason.
func (c *Channel) Events() <-chan model.StatusEvent {
	return c.events
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err reports why the channel left Connected, nil for a clean local close.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Send writes one outbound message while connected. Sends on a channel that
// is not connected are silently dropped: every mutating intent also travels
// the REST path, so the push channel is never the only carrier.
func (c *Channel) Send(v any) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()
	_ = conn.WriteJSON(v)
}

// Close tears the connection down and releases the read loop. Idempotent;
// safe to call from any goroutine.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	})
}

func (c *Channel) readLoop() {
	for {
		var ev model.StatusEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			select {
			case <-c.done:
				// local close, not a channel fault
				c.finish(nil)
			default:
				c.finish(err)
			}
			return
		}
		if ev.ID == "" {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			c.finish(nil)
			return
		}
	}
}

func (c *Channel) finish(err error) {
	c.finishOnce.Do(func() {
		c.mu.Lock()
		c.state = StateDisconnected
		c.lastErr = err
		c.mu.Unlock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		close(c.events)
	})
}
