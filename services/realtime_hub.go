package services

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"nutrilog/metrics"
)

// DiaryEvent is pushed to a user's sockets after every diary write.
type DiaryEvent struct {
	Type     string `json:"type"`
	Action   string `json:"action"` // created | appended | item_removed | deleted
	EntryID  string `json:"entryId"`
	Date     string `json:"date"`
	MealType string `json:"mealType"`
}

const EventDiaryUpdated = "diary.updated"

// Notifier delivers events to a user's live connections.
type Notifier interface {
	Publish(userID string, payload any)
}

// wsConn is the part of *websocket.Conn the hub needs.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type WSClient struct {
	UserID string
	Conn   wsConn
	mu     sync.Mutex // one writer per connection
}

func (c *WSClient) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, msg)
}

// Ping sends a websocket ping under the same write lock as events.
func (c *WSClient) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.PingMessage, nil)
}

type RealtimeHub struct {
	mu      sync.RWMutex
	clients map[string]map[*WSClient]struct{}
}

func NewRealtimeHub() *RealtimeHub {
	return &RealtimeHub{clients: make(map[string]map[*WSClient]struct{})}
}

func (h *RealtimeHub) Register(c *WSClient) {
	h.mu.Lock()
	if h.clients[c.UserID] == nil {
		h.clients[c.UserID] = make(map[*WSClient]struct{})
	}
	h.clients[c.UserID][c] = struct{}{}
	h.mu.Unlock()
	metrics.WSConnectionsActive.Inc()
}

func (h *RealtimeHub) Unregister(c *WSClient) {
	h.mu.Lock()
	set := h.clients[c.UserID]
	_, present := set[c]
	if present {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()
	if present {
		metrics.WSConnectionsActive.Dec()
	}
	_ = c.Conn.Close()
}

// Publish sends payload to every connection of userID. Connections that fail
// to accept the write are dropped.
func (h *RealtimeHub) Publish(userID string, payload any) {
	msg, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(msg); err != nil {
			h.Unregister(c)
		}
	}
}

// Connections reports how many sockets userID has open.
func (h *RealtimeHub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
