package signaling

import (
	"log/slog"
	"sync"

	"chatcall/pkg/logger"
)

const sendBuffer = 64

// client is one websocket connection of an authenticated user.
type client struct {
	id     string
	userID int64
	send   chan Event
}

func newClient(id string, userID int64) *client {
	return &client{id: id, userID: userID, send: make(chan Event, sendBuffer)}
}

// Hub tracks live connections per user and fans events out to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[int64]map[*client]struct{}
	log   *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		conns: map[int64]map[*client]struct{}{},
		log:   logger.Component(log, "hub"),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.userID]
	if !ok {
		set = map[*client]struct{}{}
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
}

// unregister removes c and reports whether it was the user's last connection.
// No send reaches c after it returns.
func (h *Hub) unregister(c *client) (last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.userID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.userID)
		return true
	}
	return false
}

// SendToUser queues ev on every connection of the user. A connection whose
// buffer is full misses the event rather than blocking signaling.
func (h *Hub) SendToUser(userID int64, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[userID] {
		select {
		case c.send <- ev:
		default:
			h.log.Warn("send buffer full, event dropped", "user_id", userID, "conn_id", c.id, "event", ev.Name)
		}
	}
}

// online returns the number of live connections of a user.
func (h *Hub) online(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}
