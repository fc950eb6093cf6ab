package auth

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/logger"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// PrincipalContextKey is the context key for the authenticated principal
	PrincipalContextKey contextKey = "auth_principal"
)

// ErrorWriter renders an error response
type ErrorWriter func(w http.ResponseWriter, err error)

// Middleware guards handlers with authentication, rate limiting and a
// permission check, in that order
type Middleware struct {
	mu         sync.RWMutex
	authorizer Authorizer
	limiter    *RateLimiter
	writeError ErrorWriter
	logger     *zap.SugaredLogger
}

// NewMiddleware creates auth middleware. A nil limiter disables rate limiting.
func NewMiddleware(authorizer Authorizer, limiter *RateLimiter, writeError ErrorWriter, log *zap.SugaredLogger) *Middleware {
	if log == nil {
		log = logger.Logger
	}
	return &Middleware{
		authorizer: authorizer,
		limiter:    limiter,
		writeError: writeError,
		logger:     log,
	}
}

// SetAuthorizer swaps the authorizer, e.g. after a config reload
func (m *Middleware) SetAuthorizer(a Authorizer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorizer = a
}

func (m *Middleware) currentAuthorizer() Authorizer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authorizer
}

// Require wraps next so it only runs for callers holding perm
func (m *Middleware) Require(perm Permission, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorizer := m.currentAuthorizer()

		principal, err := authorizer.Authenticate(r)
		if err != nil {
			m.logger.Debugw("Authentication failed",
				logger.FieldPath, r.URL.Path,
				logger.FieldRemote, r.RemoteAddr,
				logger.FieldError, err)
			if !errors.Is(err, errors.ErrUnauthorized) {
				err = errors.Mark(err, errors.ErrUnauthorized)
			}
			m.writeError(w, err)
			return
		}

		if m.limiter != nil && !m.limiter.Allow(principal.ID) {
			m.logger.Warnw("Rate limit exceeded",
				logger.FieldPrincipal, principal.ID,
				logger.FieldPath, r.URL.Path)
			m.writeError(w, errors.Mark(errors.Newf("too many requests from %s", principal.ID), errors.ErrRateLimited))
			return
		}

		if !authorizer.Allowed(principal, perm) {
			m.logger.Infow("Permission denied",
				logger.FieldPrincipal, principal.ID,
				"permission", perm)
			m.writeError(w, errors.Mark(errors.Newf("missing permission %s", perm), errors.ErrForbidden))
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
		next(w, r.WithContext(ctx))
	}
}

// PrincipalFromContext returns the authenticated principal, or nil
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(PrincipalContextKey).(*Principal)
	return p
}
