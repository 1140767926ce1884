package websocket

import (
	"log"
	"sync"

	"github.com/cakedayhq/cakeday_backend/models"
	"github.com/gorilla/websocket"
)

// Event types pushed to dashboard clients
const (
	EventTypeConnected    = "connected"
	EventTypePaymentEvent = "payment_event"
)

// Event is a message sent over WebSocket to the admin dashboard
type Event struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Client represents a connected dashboard client
type Client struct {
	Conn *websocket.Conn
}

// Hub maintains the set of connected dashboard clients and broadcasts
// payment events to all of them
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Conn.Close()
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastPaymentEvent pushes a canonical payment event to every connected
// dashboard client
func (h *Hub) BroadcastPaymentEvent(event models.PaymentEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if err := client.Conn.WriteJSON(Event{
			Type: EventTypePaymentEvent,
			Data: event,
		}); err != nil {
			log.Printf("Failed to push payment event to dashboard client: %v", err)
		}
	}
}
