// Package auth decides who may call the autonomy API and how often.
//
// Callers present an API key (X-API-Key header, Authorization: Bearer, or a
// token query parameter for WebSocket upgrades). Keys are configured as
// SHA-256 digests, each with an explicit permission list.
package auth

import (
	"net/http"
	"sort"
	"strings"

	"github.com/teranos/autonomy/am"
	"github.com/teranos/autonomy/errors"
)

// Permission names one guarded operation
type Permission string

const (
	PermJobsSubmit     Permission = "jobs:submit"
	PermJobsRead       Permission = "jobs:read"
	PermJobsCancel     Permission = "jobs:cancel"
	PermJobsFail       Permission = "jobs:fail"
	PermJobsProgress   Permission = "jobs:progress"
	PermJobsDelete     Permission = "jobs:delete"
	PermSchedulesWrite Permission = "schedules:write"
	PermSchedulesRead  Permission = "schedules:read"
)

// AllPermissions lists every known permission
var AllPermissions = []Permission{
	PermJobsSubmit,
	PermJobsRead,
	PermJobsCancel,
	PermJobsFail,
	PermJobsProgress,
	PermJobsDelete,
	PermSchedulesWrite,
	PermSchedulesRead,
}

// ParsePermission validates a configured permission name
func ParsePermission(s string) (Permission, error) {
	for _, p := range AllPermissions {
		if string(p) == s {
			return p, nil
		}
	}
	err := errors.NewValidationError("unknown permission %q", s)
	return "", errors.WithHintf(err, "known permissions: %s", permissionList())
}

func permissionList() string {
	names := make([]string, len(AllPermissions))
	for i, p := range AllPermissions {
		names[i] = string(p)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Principal is an authenticated caller
type Principal struct {
	ID          string
	Anonymous   bool
	Permissions map[Permission]bool
}

// Has reports whether the principal holds perm
func (p *Principal) Has(perm Permission) bool {
	return p != nil && p.Permissions[perm]
}

// Authorizer authenticates requests and checks permissions
type Authorizer interface {
	// Authenticate identifies the caller or returns an ErrUnauthorized error
	Authenticate(r *http.Request) (*Principal, error)

	// Allowed reports whether p may perform perm
	Allowed(p *Principal, perm Permission) bool
}

// FromConfig returns the authorizer described by the auth config section
func FromConfig(cfg am.AuthConfig) (Authorizer, error) {
	if !cfg.Enabled {
		return OpenAuthorizer{}, nil
	}
	return NewAPIKeyAuthorizer(cfg.APIKeys)
}

// OpenAuthorizer lets every request through as an anonymous principal with
// all permissions. Used when auth is disabled.
type OpenAuthorizer struct{}

func (OpenAuthorizer) Authenticate(r *http.Request) (*Principal, error) {
	perms := make(map[Permission]bool, len(AllPermissions))
	for _, p := range AllPermissions {
		perms[p] = true
	}
	return &Principal{
		ID:          "anonymous@" + remoteHost(r),
		Anonymous:   true,
		Permissions: perms,
	}, nil
}

func (OpenAuthorizer) Allowed(p *Principal, perm Permission) bool {
	return p != nil
}

func remoteHost(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		addr = addr[:i]
	}
	return strings.Trim(addr, "[]")
}

// extractKey reads the API key from the request.
// Checks X-API-Key, then Authorization, then the token query param (for WebSocket).
func extractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
