package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/logger"
)

// getState returns the current server state
func (s *AutonomyServer) getState() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state
func (s *AutonomyServer) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", stateString(newState))
}

// stateString returns human-readable state name
func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StartBackground starts the client hub, the job update broadcaster and the
// schedule ticker. Safe to call more than once.
func (s *AutonomyServer) StartBackground() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Run()
		}()

		s.startJobUpdateBroadcaster()

		if s.ticker != nil {
			s.ticker.Start()
			logger.AddPulseSymbol(s.logger).Infow("Pulse ticker started")
		}
	})
}

// Serve accepts connections on l until Stop is called
func (s *AutonomyServer) Serve(l net.Listener) error {
	s.StartBackground()

	s.cfgMu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.httpServer
	s.cfgMu.Unlock()

	s.logger.Infow("HTTP server listening", "addr", l.Addr().String())
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Start listens on addr and serves until Stop is called
func (s *AutonomyServer) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(l)
}

// Stop drains the server: the ticker stops first so no new runs are
// submitted, then in-flight requests finish, then clients are closed.
func (s *AutonomyServer) Stop(ctx context.Context) error {
	if s.getState() == ServerStateStopped {
		return nil
	}
	s.setState(ServerStateDraining)

	if s.ticker != nil {
		s.ticker.Stop()
	}

	var shutdownErr error
	s.cfgMu.RLock()
	srv := s.httpServer
	s.cfgMu.RUnlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = errors.Wrap(err, "http server shutdown")
		}
	}

	s.cancel()

	s.mu.Lock()
	for client := range s.clients {
		delete(s.clients, client)
		client.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warnw("Timed out waiting for server goroutines")
		if shutdownErr == nil {
			shutdownErr = errors.Wrap(ctx.Err(), "server shutdown")
		}
	}

	if drops := s.broadcastDrops.Load(); drops > 0 {
		s.logger.Infow("Broadcast messages dropped during lifetime", logger.FieldCount, drops)
	}
	s.setState(ServerStateStopped)
	return shutdownErr
}
