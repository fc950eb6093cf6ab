// Package server exposes the autonomy job lifecycle over HTTP and streams
// job updates to WebSocket clients.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teranos/autonomy/auth"
	"github.com/teranos/autonomy/logger"
	"github.com/teranos/autonomy/pulse/async"
	"github.com/teranos/autonomy/pulse/schedule"
)

// Config holds the server settings that may change on config reload
type Config struct {
	AllowedOrigins      []string
	HistoryDefaultLimit int
	HistoryMaxLimit     int
}

// Deps are the components the server fronts
type Deps struct {
	Jobs       *async.Manager
	Schedules  *schedule.Service
	Ticker     *schedule.Ticker // optional, reported by /health and stopped with the server
	Authorizer auth.Authorizer  // nil means auth.OpenAuthorizer
	Limiter    *auth.RateLimiter
}

// AutonomyServer serves the autonomy API
type AutonomyServer struct {
	jobs       *async.Manager
	schedules  *schedule.Service
	ticker     *schedule.Ticker
	middleware *auth.Middleware
	limiter    *auth.RateLimiter
	logger     *zap.SugaredLogger

	cfgMu sync.RWMutex
	cfg   Config

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	handler    http.Handler
	httpServer *http.Server

	// Lifecycle management
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	broadcastDrops atomic.Int64
	state          atomic.Int32
	startOnce      sync.Once
}

// New creates a server. Call Start or Serve to accept connections.
func New(deps Deps, cfg Config, log *zap.SugaredLogger) *AutonomyServer {
	if log == nil {
		log = logger.Logger
	}
	authorizer := deps.Authorizer
	if authorizer == nil {
		authorizer = auth.OpenAuthorizer{}
	}
	if cfg.HistoryDefaultLimit <= 0 {
		cfg.HistoryDefaultLimit = 20
	}
	if cfg.HistoryMaxLimit < cfg.HistoryDefaultLimit {
		cfg.HistoryMaxLimit = cfg.HistoryDefaultLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &AutonomyServer{
		jobs:       deps.Jobs,
		schedules:  deps.Schedules,
		ticker:     deps.Ticker,
		limiter:    deps.Limiter,
		logger:     log.Named("server"),
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.middleware = auth.NewMiddleware(authorizer, deps.Limiter, s.writeServiceError, s.logger)
	s.handler = s.setupHTTPRoutes()
	return s
}

// Handler returns the HTTP handler with every route registered
func (s *AutonomyServer) Handler() http.Handler {
	return s.handler
}

// UpdateConfig applies reloadable settings
func (s *AutonomyServer) UpdateConfig(cfg Config) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	if cfg.HistoryDefaultLimit <= 0 {
		cfg.HistoryDefaultLimit = s.cfg.HistoryDefaultLimit
	}
	if cfg.HistoryMaxLimit < cfg.HistoryDefaultLimit {
		cfg.HistoryMaxLimit = cfg.HistoryDefaultLimit
	}
	s.cfg = cfg
}

// SetAuthorizer swaps the authorizer after a config reload
func (s *AutonomyServer) SetAuthorizer(a auth.Authorizer) {
	s.middleware.SetAuthorizer(a)
}

func (s *AutonomyServer) config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// handleClientRegister handles a new client connection
func (s *AutonomyServer) handleClientRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients,
		)
		client.close()
		return
	}
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected",
		"client_id", client.id,
		logger.FieldPrincipal, client.principal,
		"total_clients", total,
	)

	// Snapshot taken after registration so it cannot miss an update
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sendInitialJobsToClient(client)
	}()
}

// handleClientUnregister handles a client disconnection
func (s *AutonomyServer) handleClientUnregister(client *Client) {
	s.mu.Lock()
	_, ok := s.clients[client]
	if ok {
		delete(s.clients, client)
		// Closed under the write lock so no broadcast can be sending
		client.close()
	}
	total := len(s.clients)
	s.mu.Unlock()

	if ok {
		s.logger.Infow("Client disconnected",
			"client_id", client.id,
			"total_clients", total,
		)
	}
}

// Run starts the server hub event loop
func (s *AutonomyServer) Run() {
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugw("Server hub stopping due to context cancellation")
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		}
	}
}

func (s *AutonomyServer) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
