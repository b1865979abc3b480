package statusui

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one FSM transition broadcast to every connected dashboard client.
type Event struct {
	At        time.Time `json:"at"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Code      int       `json:"code"`
	ProjectID int64     `json:"projectId"`
}

// Manager fans transition events out to connected WebSocket clients and
// keeps the most recent snapshot so late-joining clients can catch up.
type Manager struct {
	mu         sync.RWMutex
	clients    map[uint64]*Client
	last       *Event
	bufferSize int
	startAt    time.Time
}

// NewManager creates an empty dashboard manager.
func NewManager(bufferSize int) *Manager {
	return &Manager{
		clients:    make(map[uint64]*Client),
		bufferSize: bufferSize,
		startAt:    time.Now(),
	}
}

// Register adds a client and replays the last known event, if any, so the
// dashboard isn't blank until the next transition occurs.
func (m *Manager) Register(conn *websocket.Conn) *Client {
	c := NewClient(conn, m.bufferSize)

	m.mu.Lock()
	m.clients[c.ID] = c
	last := m.last
	m.mu.Unlock()

	log.Printf("statusui: client %d connected", c.ID)

	if last != nil {
		if data, err := json.Marshal(last); err == nil {
			c.Send(data)
		}
	}
	return c
}

// Unregister removes and closes a client.
func (m *Manager) Unregister(c *Client) {
	m.mu.Lock()
	delete(m.clients, c.ID)
	m.mu.Unlock()

	c.Close()
	log.Printf("statusui: client %d disconnected", c.ID)
}

// Broadcast encodes ev once and fans it out to every connected client.
func (m *Manager) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("statusui: encode event: %v", err)
		return
	}

	m.mu.Lock()
	m.last = &ev
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		c.Send(data)
	}
}

// ClientCount returns the number of connected dashboard clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Uptime returns how long the manager (and thus the run) has been alive.
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.startAt)
}

// Snapshot returns the last broadcast event, or nil if none yet.
func (m *Manager) Snapshot() *Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
