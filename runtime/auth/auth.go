// Package auth implements the §4.7 authentication gate and scope
// authorization check that sit ahead of every protected route: Bearer or
// X-API-Key credential extraction, expiry enforcement, and per-route scope
// requirements (functions:read, functions:write, functions:deploy).
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Principal is the authenticated caller attached to a request's context by
// the Gate middleware.
type Principal struct {
	ID     string
	Scopes []string
}

// HasScope reports whether p carries scope.
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// TokenRecord is the server-side record a credential resolves to. ExpiresAt
// is the zero value for tokens that never expire.
type TokenRecord struct {
	PrincipalID string
	Scopes      []string
	ExpiresAt   time.Time
}

// Store resolves a raw credential (bearer token or API key) to its
// TokenRecord. Grounded on marcus-qen-legator's auth.KeyStore, which stores
// one record per issued key rather than encoding expiry into the token
// itself.
type Store interface {
	Lookup(ctx context.Context, credential string) (*TokenRecord, bool, error)
}

// MemoryStore is an in-memory Store, suitable for tests and single-process
// deployments.
type MemoryStore struct {
	records map[string]TokenRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]TokenRecord{}}
}

// Put registers credential as resolving to record.
func (s *MemoryStore) Put(credential string, record TokenRecord) {
	s.records[credential] = record
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(_ context.Context, credential string) (*TokenRecord, bool, error) {
	rec, ok := s.records[credential]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

type contextKey string

const principalContextKey contextKey = "auth.principal"

// PrincipalFromContext returns the authenticated Principal attached to ctx
// by the Gate middleware, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok
}

// Gate is the §4.7 authentication gate: it extracts a credential from
// either the Authorization: Bearer header or X-API-Key (X-API-Key wins
// when both are present), resolves it through a Store, rejects expired or
// unknown credentials, and injects the resulting Principal into the
// request context for downstream scope checks.
//
// Grounded on marcus-qen-legator's AuthMiddleware (credential-extraction
// shape, skip-path list, JSON error body) generalized from its dual
// API-key/session-cookie paths to the spec's single Bearer/X-API-Key
// precedence rule, and on its KeyStore.Validate (time.Time-based expiry
// check against a server-side record rather than a self-describing token).
type Gate struct {
	store  Store
	public map[string]bool
}

// NewGate creates a Gate backed by store. publicPaths lists routes (health,
// root, status) that bypass authentication entirely (§4.7 "Public
// endpoints ... must pass through without auth").
func NewGate(store Store, publicPaths []string) *Gate {
	public := make(map[string]bool, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = true
	}
	return &Gate{store: store, public: public}
}

// Middleware returns the net/http middleware enforcing this gate.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			credential := extractCredential(r)
			if credential == "" {
				g.reject(w, "missing credentials")
				return
			}

			record, ok, err := g.store.Lookup(r.Context(), credential)
			if err != nil || !ok {
				g.reject(w, "invalid credentials")
				return
			}
			if !record.ExpiresAt.IsZero() && time.Now().After(record.ExpiresAt) {
				g.reject(w, "credentials expired")
				return
			}

			principal := &Principal{ID: record.PrincipalID, Scopes: record.Scopes}
			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g *Gate) reject(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tiercade"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// extractCredential reads X-API-Key first, then Authorization: Bearer,
// trimming surrounding whitespace around the scheme (§4.7). Header lookups
// via http.Header.Get are already case-insensitive per net/textproto
// canonicalization.
func extractCredential(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return ""
	}
	const prefix = "bearer"
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// RequireScopes returns middleware that rejects requests whose Principal
// (already attached by Gate) lacks any of the given scopes with Forbidden,
// distinct from the Gate's Unauthorized (§4.7 "Scope check").
func RequireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				forbidden(w, "no authenticated principal")
				return
			}
			for _, scope := range scopes {
				if !principal.HasScope(scope) {
					forbidden(w, "missing required scope "+scope)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
