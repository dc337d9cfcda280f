package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kozaktomas/face-attendance/internal/session"
	"github.com/kozaktomas/face-attendance/internal/web/hub"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

func waitForClients(t *testing.T, h *hub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", h.ClientCount(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLiveHandler_Serve(t *testing.T) {
	h := hub.NewHub()
	events := make(chan session.Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx, events)

	live := NewLiveHandler(h, middleware.OriginChecker([]string{"https://kiosk.example"}))
	server := httptest.NewServer(http.HandlerFunc(live.Serve))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	tests := []struct {
		name    string
		origin  string
		wantErr bool
	}{
		{"no origin", "", false},
		{"allowed origin", "https://kiosk.example", false},
		{"localhost", "http://localhost:5173", false},
		{"foreign origin", "https://evil.example", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			if tc.origin != "" {
				header.Set("Origin", tc.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tc.wantErr {
				if err == nil {
					conn.Close()
					t.Fatal("Dial() succeeded, want handshake error")
				}
				if resp == nil || resp.StatusCode != http.StatusForbidden {
					t.Errorf("handshake response = %v, want 403", resp)
				}
				return
			}
			if err != nil {
				t.Fatalf("Dial() error = %v", err)
			}
			waitForClients(t, h, 1)

			conn.Close()
			waitForClients(t, h, 0)
		})
	}
}
