package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// getUpgrader creates a WebSocket upgrader with origin checking from config
func (s *AutonomyServer) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin validates the request origin against configured allowed origins
func (s *AutonomyServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Allow requests with no origin header (e.g., direct WebSocket clients, testing)
	if origin == "" {
		return true
	}

	// Prefix matching allows any port number
	for _, allowed := range s.config().AllowedOrigins {
		if allowed != "" && strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}
