package websocket

import (
	"sync"

	"duochat/pkg/logger"
)

// Hub tracks live connections and room-topic subscriptions. Delivery to a
// specific user goes through the session registry to resolve the connection
// descriptor, then SendToConn; room events fan out with BroadcastRoom.
type Hub struct {
	mu sync.RWMutex

	clients map[string]*Client            // connID -> client
	rooms   map[string]map[string]*Client // roomID -> connID -> client
	topics  map[string]map[string]bool    // connID -> roomID set
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		topics:  make(map[string]map[string]bool),
	}
}

func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Remove detaches the connection from every room it joined and forgets it.
// Safe to call for a connection the hub no longer knows.
func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID := range h.topics[connID] {
		delete(h.rooms[roomID], connID)
		if len(h.rooms[roomID]) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.topics, connID)
	delete(h.clients, connID)
}

func (h *Hub) Join(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][c.ID] = c
	if h.topics[c.ID] == nil {
		h.topics[c.ID] = make(map[string]bool)
	}
	h.topics[c.ID][roomID] = true
	logger.Debug("websocket: conn %s joined room %s", c.ID, roomID)
}

func (h *Hub) Leave(roomID string, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.rooms[roomID], connID)
	if len(h.rooms[roomID]) == 0 {
		delete(h.rooms, roomID)
	}
	delete(h.topics[connID], roomID)
}

// BroadcastRoom sends payload to every subscriber of roomID except
// exceptConnID (pass "" to include everyone). Returns the delivery count.
func (h *Hub) BroadcastRoom(roomID string, payload []byte, exceptConnID string) int {
	h.mu.RLock()
	subs := make([]*Client, 0, len(h.rooms[roomID]))
	for connID, c := range h.rooms[roomID] {
		if connID == exceptConnID {
			continue
		}
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range subs {
		if c.Send(payload) {
			delivered++
		}
	}
	return delivered
}

// SendToConn delivers payload to a single connection descriptor. Reports
// false when the connection is gone or too slow to accept it.
func (h *Hub) SendToConn(connID string, payload []byte) bool {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return c.Send(payload)
}

func (h *Hub) Subscribed(roomID string, connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID][connID] != nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
