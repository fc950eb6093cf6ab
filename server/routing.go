package server

import (
	"net/http"

	"github.com/teranos/autonomy/auth"
	"github.com/teranos/autonomy/logger"
)

// setupHTTPRoutes configures all HTTP handlers
func (s *AutonomyServer) setupHTTPRoutes() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern string, perm auth.Permission, h http.HandlerFunc) {
		mux.HandleFunc(pattern, s.corsMiddleware(s.logRequest(s.middleware.Require(perm, h))))
	}

	// Jobs
	route("POST "+APIPrefix+"/submit", auth.PermJobsSubmit, s.HandleSubmit)
	route("GET "+APIPrefix+"/status/{jobId}", auth.PermJobsRead, s.HandleStatus)
	route("GET "+APIPrefix+"/result/{jobId}", auth.PermJobsRead, s.HandleResult)
	route("POST "+APIPrefix+"/cancel/{jobId}", auth.PermJobsCancel, s.HandleCancel)
	route("POST "+APIPrefix+"/fail/{jobId}", auth.PermJobsFail, s.HandleFail)
	route("POST "+APIPrefix+"/progress/{jobId}", auth.PermJobsProgress, s.HandleProgress)
	route("DELETE "+APIPrefix+"/jobs/{jobId}", auth.PermJobsDelete, s.HandleDeleteJob)
	route("GET "+APIPrefix+"/history", auth.PermJobsRead, s.HandleHistory)
	route("GET "+APIPrefix+"/stats", auth.PermJobsRead, s.HandleStats)

	// Schedules
	route("POST "+APIPrefix+"/schedule", auth.PermSchedulesWrite, s.HandleCreateSchedule)
	route("GET "+APIPrefix+"/schedules", auth.PermSchedulesRead, s.HandleListSchedules)
	route("GET "+APIPrefix+"/schedules/{id}", auth.PermSchedulesRead, s.HandleGetSchedule)
	route("PATCH "+APIPrefix+"/schedules/{id}", auth.PermSchedulesWrite, s.HandleUpdateSchedule)
	route("DELETE "+APIPrefix+"/schedules/{id}", auth.PermSchedulesWrite, s.HandleDeleteSchedule)

	// Live updates
	route("GET "+APIPrefix+"/ws/jobs", auth.PermJobsRead, s.HandleWebSocket)

	mux.HandleFunc("GET /health", s.corsMiddleware(s.HandleHealth))
	mux.HandleFunc("OPTIONS /", s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {}))

	return mux
}

// corsMiddleware adds CORS headers using the configured allowed origins
// (the same check as WebSocket upgrades)
func (s *AutonomyServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// logRequest logs each API call at debug level with the Pulse symbol
func (s *AutonomyServer) logRequest(next http.HandlerFunc) http.HandlerFunc {
	pulseLog := logger.AddPulseSymbol(s.logger)
	return func(w http.ResponseWriter, r *http.Request) {
		pulseLog.Debugw("Autonomy request",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldRemote, r.RemoteAddr)
		next(w, r)
	}
}
