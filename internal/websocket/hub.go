package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/choreflow/internal/model"
)

// Message is a chore transition pushed to live clients.
type Message struct {
	Type        string      `json:"type"`
	Entity      string      `json:"entity"`
	Action      string      `json:"action"`
	Chore       string      `json:"chore"`
	Participant string      `json:"participant_id,omitempty"`
	State       model.State `json:"state,omitempty"`
	Amount      float64     `json:"amount,omitempty"`
	DueDate     *time.Time  `json:"due_date,omitempty"`
	EventID     string      `json:"event_id,omitempty"`
}

// NewMessage builds a Message from an engine event. The action is the
// event type without its "chore_" prefix.
func NewMessage(evt model.Event) Message {
	action := strings.TrimPrefix(string(evt.Type), "chore_")
	return Message{
		Type:        fmt.Sprintf("%s_%s", "chore", action),
		Entity:      "chore",
		Action:      action,
		Chore:       evt.Chore,
		Participant: evt.Participant,
		State:       evt.State,
		Amount:      evt.Amount,
		DueDate:     evt.DueDate,
		EventID:     evt.ID,
	}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Publish broadcasts an engine event. It never fails; slow clients miss
// messages instead of blocking the engine.
func (h *Hub) Publish(_ context.Context, evt model.Event) error {
	h.Broadcast(NewMessage(evt))
	return nil
}

// Broadcast sends a message to every connected client interested in it.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Debug("client buffer full, dropping message", "type", msg.Type)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
