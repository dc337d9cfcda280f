// Package hub fans job events out to WebSocket clients.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/face-attendance/internal/session"
	log "github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

// Hub owns the set of connected clients. Connections are written only
// from Run.
type Hub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run forwards events to every client until ctx is done or events is
// closed, then closes all connections.
func (h *Hub) Run(ctx context.Context, events <-chan session.Event) {
	defer close(h.done)
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.WithField("clients", n).Debug("websocket client connected")

		case client := <-h.unregister:
			h.remove(client)

		case event, ok := <-events:
			if !ok {
				return
			}
			msg, err := json.Marshal(event)
			if err != nil {
				log.WithError(err).Warn("encoding event")
				continue
			}
			h.send(msg)
		}
	}
}

func (h *Hub) send(msg []byte) {
	h.mu.RLock()
	var failed []*websocket.Conn
	for client := range h.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.WithError(err).Debug("websocket write failed")
			failed = append(failed, client)
		}
	}
	h.mu.RUnlock()
	for _, client := range failed {
		h.remove(client)
	}
}

func (h *Hub) remove(client *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		_ = client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		client.Close()
		delete(h.clients, client)
	}
}

// Register adds a client. After Run has returned the client is closed.
func (h *Hub) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes and closes a client. Clients still registered when
// Run returns are already closed.
func (h *Hub) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
