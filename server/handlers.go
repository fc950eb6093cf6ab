package server

// This file contains the connection-level HTTP handlers:
// - WebSocket job updates (HandleWebSocket)
// - Health checks (HandleHealth)
// Job and schedule handlers live in jobs.go and schedules.go.

import (
	"fmt"
	"net/http"
	"time"

	"github.com/teranos/autonomy/auth"
	"github.com/teranos/autonomy/logger"
	"github.com/teranos/autonomy/version"
)

// HandleWebSocket upgrades GET /ws/jobs and streams job updates until the
// client disconnects or the server stops
func (s *AutonomyServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.getState() != ServerStateRunning {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	upgrader := s.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Warnw("WebSocket upgrade failed", logger.FieldRemote, r.RemoteAddr, logger.FieldError, err)
		return
	}

	client := &Client{
		server: s,
		conn:   conn,
		send:   make(chan interface{}, clientSendBufferSize),
		id:     fmt.Sprintf("%s_%d", r.RemoteAddr, time.Now().UnixNano()),
	}
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		client.principal = p.ID
	}

	// Send version info BEFORE starting writePump (avoid concurrent writes)
	info := version.Get()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(VersionMessage{
		Type:      "version",
		Version:   info.Version,
		Commit:    info.Short(),
		BuildTime: info.BuildTime,
	}); err != nil {
		s.logger.Debugw("Failed to send version info", "client_id", client.id, logger.FieldError, err)
		conn.Close()
		return
	}

	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

// HandleHealth reports liveness, build info and job counts
func (s *AutonomyServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	state := s.getState()

	resp := HealthResponse{
		Status:  "ok",
		Version: info.Version,
		Commit:  info.Short(),
		State:   stateString(state),
		Clients: s.clientCount(),
		Memory:  s.jobs.GetSystemMetrics(),
	}
	if state != ServerStateRunning {
		resp.Status = "unavailable"
	}

	stats, err := s.jobs.Stats(r.Context())
	if err != nil {
		s.logger.Warnw("Failed to read job stats for health", logger.FieldError, err)
		resp.Status = "degraded"
	} else {
		resp.Jobs = stats
	}
	if s.ticker != nil {
		resp.Ticker = s.ticker.GetStats()
	}

	code := http.StatusOK
	if resp.Status == "unavailable" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
