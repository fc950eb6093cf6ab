package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/autonomy/am"
	"github.com/teranos/autonomy/errors"
)

func testKeys() []am.APIKeyConfig {
	return []am.APIKeyConfig{
		{ID: "ops", KeySHA256: HashKey("ops-secret"), Permissions: []string{"jobs:submit", "jobs:read", "jobs:cancel"}},
		{ID: "viewer", KeySHA256: HashKey("viewer-secret"), Permissions: []string{"jobs:read"}},
	}
}

func TestHashKey(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashKey("abc"))
}

func TestAPIKeyAuthorizer_Authenticate(t *testing.T) {
	a, err := NewAPIKeyAuthorizer(testKeys())
	require.NoError(t, err)

	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{"x-api-key header", func(r *http.Request) { r.Header.Set("X-API-Key", "ops-secret") }, "ops"},
		{"bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer viewer-secret") }, "viewer"},
		{"raw authorization", func(r *http.Request) { r.Header.Set("Authorization", "ops-secret") }, "ops"},
		{"query token", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", "viewer-secret")
			r.URL.RawQuery = q.Encode()
		}, "viewer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/autonomy/stats", nil)
			tt.setup(r)
			p, err := a.Authenticate(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.ID)
			assert.False(t, p.Anonymous)
		})
	}
}

func TestAPIKeyAuthorizer_Rejects(t *testing.T) {
	a, err := NewAPIKeyAuthorizer(testKeys())
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = a.Authenticate(r)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	r.Header.Set("X-API-Key", "guess")
	_, err = a.Authenticate(r)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestAPIKeyAuthorizer_Permissions(t *testing.T) {
	a, err := NewAPIKeyAuthorizer(testKeys())
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-API-Key", "viewer-secret")
	p, err := a.Authenticate(r)
	require.NoError(t, err)

	assert.True(t, a.Allowed(p, PermJobsRead))
	assert.False(t, a.Allowed(p, PermJobsSubmit))
	assert.False(t, a.Allowed(p, PermSchedulesRead))
	assert.False(t, a.Allowed(nil, PermJobsRead))
}

func TestNewAPIKeyAuthorizer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		keys []am.APIKeyConfig
		want string
	}{
		{"none", nil, "no api keys"},
		{"short digest", []am.APIKeyConfig{{ID: "k", KeySHA256: "abc123", Permissions: []string{"jobs:read"}}}, "64 character"},
		{"not hex", []am.APIKeyConfig{{ID: "k", KeySHA256: HashKey("x")[:63] + "z", Permissions: []string{"jobs:read"}}}, "64 character"},
		{"unknown permission", []am.APIKeyConfig{{ID: "k", KeySHA256: HashKey("x"), Permissions: []string{"jobs:*"}}}, "unknown permission"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAPIKeyAuthorizer(tt.keys)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromConfig(t *testing.T) {
	a, err := FromConfig(am.AuthConfig{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, OpenAuthorizer{}, a)

	a, err = FromConfig(am.AuthConfig{Enabled: true, APIKeys: testKeys()})
	require.NoError(t, err)
	assert.IsType(t, &APIKeyAuthorizer{}, a)
}

func TestOpenAuthorizer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:51234"

	p, err := OpenAuthorizer{}.Authenticate(r)
	require.NoError(t, err)
	assert.True(t, p.Anonymous)
	assert.Equal(t, "anonymous@10.0.0.7", p.ID)
	for _, perm := range AllPermissions {
		assert.True(t, OpenAuthorizer{}.Allowed(p, perm))
	}
}
