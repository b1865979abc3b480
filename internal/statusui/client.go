// Package statusui serves a small local dashboard over WebSocket and REST,
// broadcasting FSM state transitions so an operator can watch an
// acquisition run without tailing logs. Adapted from
// ndrandal-feed-simulator's internal/session client/manager/handler shape,
// trimmed from per-symbol subscription fan-out down to a single broadcast
// topic since there is exactly one FSM run per process.
package statusui

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Client represents one connected dashboard browser tab.
type Client struct {
	ID   uint64
	Conn *websocket.Conn

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	Dropped uint64
}

var clientIDCounter uint64

// NewClient wraps a WebSocket connection as a dashboard client.
func NewClient(conn *websocket.Conn, bufferSize int) *Client {
	return &Client{
		ID:     atomic.AddUint64(&clientIDCounter, 1),
		Conn:   conn,
		sendCh: make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

// Send enqueues data for delivery; returns false if the client's buffer is
// full and the message was dropped rather than block the FSM.
func (c *Client) Send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		atomic.AddUint64(&c.Dropped, 1)
		return false
	}
}

// SendCh returns the outbound channel for the write pump.
func (c *Client) SendCh() <-chan []byte {
	return c.sendCh
}

// Done is closed once the client disconnects.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close terminates the connection, safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}
