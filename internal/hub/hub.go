// Package hub tracks the set of live sessions for a room and fans
// broadcast frames out to them.
package hub

import (
	"sync"

	"github.com/roomcast-io/roomcast/internal/domain"
	"github.com/roomcast-io/roomcast/internal/log"
)

// Hub is the session registry. Register, Unregister, and Broadcast are
// synchronous and safe for concurrent use; delivery to each session is a
// non-blocking enqueue onto its buffered send channel, so one stalled
// client never blocks the rest.
type Hub struct {
	clients map[string]*Client // session ID -> client
	mu      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds a client to the live set. Registering the same client
// twice is a no-op.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.Session.ID] = client
	count := len(h.clients)
	h.mu.Unlock()

	client.Session.Advance(domain.SessionActive)
	l := log.L()
	l.Debug().
		Str(log.FieldSessionID, client.Session.ID).
		Int(log.FieldSessions, count).
		Msg("session registered")
}

// Unregister removes a client from the live set and closes its send
// channel. Safe to call for a client that was never registered or was
// already removed.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.Session.ID]
	if ok {
		delete(h.clients, client.Session.ID)
		client.closeSend()
	}
	count := len(h.clients)
	h.mu.Unlock()

	client.Session.Advance(domain.SessionClosed)
	if ok {
		l := log.L()
		l.Debug().
			Str(log.FieldSessionID, client.Session.ID).
			Int(log.FieldSessions, count).
			Msg("session unregistered")
	}
}

// Broadcast delivers frame to every live session. A session whose buffer
// is full is treated as dead and scheduled for removal; delivery to the
// rest continues.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.RLock()
	for _, client := range h.clients {
		if !client.Enqueue(frame) {
			go h.Unregister(client)
		}
	}
	h.mu.RUnlock()
}

// Len reports the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll unregisters every session. Used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.Unregister(client)
	}
}
