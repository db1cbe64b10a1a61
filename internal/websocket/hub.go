// Package websocket pushes change events to connected dashboards. A client
// that receives an event re-fetches the affected document's views.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Documents that emit change events.
const (
	DocVault  = "vault"
	DocPortal = "portal"
)

// Message is one change event broadcast to all clients.
type Message struct {
	Type     string    `json:"type"`
	Document string    `json:"document"`
	Entity   string    `json:"entity"`
	Action   string    `json:"action"`
	ID       string    `json:"id,omitempty"`
	At       time.Time `json:"at"`
}

// NewMessage creates a Message with Type derived from document, entity and action.
func NewMessage(document, entity, action, id string) Message {
	return Message{
		Type:     fmt.Sprintf("%s.%s_%s", document, entity, action),
		Document: document,
		Entity:   entity,
		Action:   action,
		ID:       id,
		At:       time.Now().UTC(),
	}
}

// Hub maintains the set of active clients and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every client. Slow clients miss messages rather
// than block the sender.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("broadcast dropped", "type", msg.Type, "clients", dropped)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
