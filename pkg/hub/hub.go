// Package hub is a websocket broadcast hub using the channel-based
// fan-out pattern: one goroutine owns the client set, writers never
// block on a slow client.
package hub

import (
	"encoding/json"
	"sync"

	"billy-bassistant/internal/log"
)

// Hub maintains the set of active clients and broadcasts JSON
// messages to them.
type Hub struct {
	name string

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// New creates a hub. Call Run in a goroutine before accepting clients.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run is the hub's main loop. It owns all mutation of the client set.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("hub client connected", "hub", h.name, "total", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Debug("hub client disconnected", "hub", h.name, "remaining", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's buffer is full; drop them rather
					// than stall the broadcast.
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropped slow hub client", "hub", h.name)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends raw bytes to every connected client. Drops the
// message when the broadcast buffer is full.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		log.Warn("hub broadcast buffer full, dropping message", "hub", h.name)
	}
}

// BroadcastJSON encodes and broadcasts a value.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
