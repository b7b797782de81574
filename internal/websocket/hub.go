package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/eventsync/internal/model"
)

const (
	ActionStarted  = "started"
	ActionFinished = "finished"
)

// Message is a pipeline notification broadcast to all clients.
type Message struct {
	Type   string    `json:"type"`
	Kind   string    `json:"kind"`
	Action string    `json:"action"`
	RunID  string    `json:"run_id,omitempty"`
	Data   any       `json:"data,omitempty"`
	At     time.Time `json:"at"`
}

// NewMessage creates a Message with the Type field derived from kind and action.
func NewMessage(kind, action, runID string, data any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", kind, action),
		Kind:   kind,
		Action: action,
		RunID:  runID,
		Data:   data,
		At:     time.Now().UTC(),
	}
}

// RunFinished wraps a completed run record.
func RunFinished(run model.Run) Message {
	m := NewMessage(run.Mode, ActionFinished, run.ID, run)
	m.At = run.FinishedAt
	return m
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
// The last finished message is replayed to clients as they connect and on
// request.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	last     []byte
	lastKind string
	dropped  int
	logger   *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.replayLocked(c)
	h.mu.Unlock()
}

// Replay resends the last finished message to c. It reports false when
// there is nothing c accepts to resend or c is no longer registered.
func (h *Hub) Replay(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	return h.replayLocked(c)
}

func (h *Hub) replayLocked(c *Client) bool {
	if h.last == nil || !c.Accepts(h.lastKind) {
		return false
	}
	select {
	case c.send <- h.last:
		return true
	default:
		h.dropped++
		return false
	}
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

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.Action == ActionFinished {
		h.last = data
		h.lastKind = msg.Kind
	}
	for c := range h.clients {
		if !c.Accepts(msg.Kind) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full; drop rather than block the pipeline.
			h.dropped++
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many deliveries were skipped on full buffers.
func (h *Hub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
