package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/teranos/autonomy/am"
	"github.com/teranos/autonomy/errors"
)

type apiKey struct {
	id          string
	digest      []byte
	permissions map[Permission]bool
}

// APIKeyAuthorizer accepts requests carrying one of the configured keys
type APIKeyAuthorizer struct {
	keys []apiKey
}

// HashKey returns the hex SHA-256 digest to store in auth.api_keys
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// NewAPIKeyAuthorizer builds an authorizer from configured keys
func NewAPIKeyAuthorizer(configs []am.APIKeyConfig) (*APIKeyAuthorizer, error) {
	if len(configs) == 0 {
		return nil, errors.NewValidationError("no api keys configured")
	}

	a := &APIKeyAuthorizer{keys: make([]apiKey, 0, len(configs))}
	for _, cfg := range configs {
		digest, err := hex.DecodeString(strings.ToLower(cfg.KeySHA256))
		if err != nil || len(digest) != sha256.Size {
			return nil, errors.NewValidationError("api key %s: key_sha256 must be a 64 character hex digest", cfg.ID)
		}

		perms := make(map[Permission]bool, len(cfg.Permissions))
		for _, name := range cfg.Permissions {
			p, err := ParsePermission(name)
			if err != nil {
				return nil, errors.Wrapf(err, "api key %s", cfg.ID)
			}
			perms[p] = true
		}

		a.keys = append(a.keys, apiKey{id: cfg.ID, digest: digest, permissions: perms})
	}
	return a, nil
}

// Authenticate matches the presented key against every configured digest
func (a *APIKeyAuthorizer) Authenticate(r *http.Request) (*Principal, error) {
	presented := extractKey(r)
	if presented == "" {
		return nil, errors.Mark(errors.New("missing api key"), errors.ErrUnauthorized)
	}

	sum := sha256.Sum256([]byte(presented))
	var match *apiKey
	for i := range a.keys {
		// No early exit: every digest is compared
		if subtle.ConstantTimeCompare(sum[:], a.keys[i].digest) == 1 && match == nil {
			match = &a.keys[i]
		}
	}
	if match == nil {
		return nil, errors.Mark(errors.New("invalid api key"), errors.ErrUnauthorized)
	}

	perms := make(map[Permission]bool, len(match.permissions))
	for p := range match.permissions {
		perms[p] = true
	}
	return &Principal{ID: match.id, Permissions: perms}, nil
}

// Allowed reports whether p was granted perm. There is no wildcard.
func (a *APIKeyAuthorizer) Allowed(p *Principal, perm Permission) bool {
	return p.Has(perm)
}
