// Package sse fans task events out to clients following a task over
// server-sent events.
package sse

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names.
const (
	EventTaskStatus = "task.status"
	EventTaskLog    = "task.log"
	EventStage      = "task.stage"
)

var (
	ErrClientNotFound = errors.New("sse client not found")
	ErrChannelFull    = errors.New("sse message channel full")
)

// Message is one server-sent event.
type Message struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewMessage(event string, data json.RawMessage) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Client is an open event stream. A nil TaskID subscribes to every task of
// the tenant.
type Client struct {
	ClientID    string
	TenantID    string
	TaskID      *uuid.UUID
	ConnectedAt time.Time
	MessageChan chan *Message
}

func NewClient(tenantID string, taskID *uuid.UUID) *Client {
	return &Client{
		ClientID:    uuid.New().String(),
		TenantID:    tenantID,
		TaskID:      taskID,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *Message, 100),
	}
}

func (c *Client) wants(tenantID string, taskID uuid.UUID) bool {
	if c.TenantID != tenantID {
		return false
	}
	return c.TaskID == nil || *c.TaskID == taskID
}

// Hub manages SSE clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		close(c.MessageChan)
		delete(h.clients, clientID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishTask delivers msg to every client following the task. Slow clients
// drop messages rather than block the publisher. It returns the number of
// clients reached.
func (h *Hub) PublishTask(tenantID string, taskID uuid.UUID, msg *Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, c := range h.clients {
		if c.wants(tenantID, taskID) && trySend(c, msg) {
			sent++
		}
	}
	return sent
}

func (h *Hub) SendToClient(clientID string, msg *Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.clients[clientID]
	if c == nil {
		return ErrClientNotFound
	}
	if !trySend(c, msg) {
		return ErrChannelFull
	}
	return nil
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.MessageChan)
		delete(h.clients, id)
	}
}

func trySend(c *Client, msg *Message) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
