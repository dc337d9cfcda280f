package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/face-attendance/internal/web/hub"
	log "github.com/sirupsen/logrus"
)

// LiveHandler upgrades clients to WebSocket and attaches them to the hub.
type LiveHandler struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// NewLiveHandler creates a handler accepting origins permitted by allowed.
func NewLiveHandler(h *hub.Hub, allowed func(origin string) bool) *LiveHandler {
	return &LiveHandler{
		hub: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed(origin)
			},
		},
	}
}

// Serve streams every job event to the client until it disconnects.
func (h *LiveHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	h.hub.Register(conn)

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.hub.Unregister(conn)
			return
		}
	}
}
