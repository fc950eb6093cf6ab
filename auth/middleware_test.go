package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/autonomy/errors"
)

func statusWriter(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrUnauthorized):
		w.WriteHeader(http.StatusUnauthorized)
	case errors.Is(err, errors.ErrForbidden):
		w.WriteHeader(http.StatusForbidden)
	case errors.Is(err, errors.ErrRateLimited):
		w.WriteHeader(http.StatusTooManyRequests)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func TestMiddleware_Require(t *testing.T) {
	a, err := NewAPIKeyAuthorizer(testKeys())
	require.NoError(t, err)
	m := NewMiddleware(a, NewRateLimiter(0, 0), statusWriter, zaptest.NewLogger(t).Sugar())

	var seen *Principal
	handler := m.Require(PermJobsSubmit, func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	})

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"no key", "", http.StatusUnauthorized},
		{"bad key", "nope", http.StatusUnauthorized},
		{"lacks permission", "viewer-secret", http.StatusForbidden},
		{"allowed", "ops-secret", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			r := httptest.NewRequest(http.MethodPost, "/api/autonomy/submit", nil)
			if tt.key != "" {
				r.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			handler(rec, r)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusAccepted {
				require.NotNil(t, seen)
				assert.Equal(t, "ops", seen.ID)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}

func TestMiddleware_RateLimited(t *testing.T) {
	m := NewMiddleware(OpenAuthorizer{}, NewRateLimiter(1, 1), statusWriter, zaptest.NewLogger(t).Sugar())
	handler := m.Require(PermJobsRead, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/autonomy/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/autonomy/stats", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMiddleware_SetAuthorizer(t *testing.T) {
	m := NewMiddleware(OpenAuthorizer{}, nil, statusWriter, zaptest.NewLogger(t).Sugar())
	handler := m.Require(PermJobsRead, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	a, err := NewAPIKeyAuthorizer(testKeys())
	require.NoError(t, err)
	m.SetAuthorizer(a)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
