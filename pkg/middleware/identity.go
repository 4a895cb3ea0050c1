package middleware

import (
	"context"
	"net/http"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/contextkeys"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
)

// Identity is the authenticated caller, as asserted by the upstream gateway
type Identity struct {
	UserID     string
	GlobalRole permissions.GlobalRole
}

// Header names set by the gateway after token validation
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// IdentityMiddleware extracts the gateway-asserted identity
type IdentityMiddleware struct {
	// optional allows unauthenticated requests through without an Identity
	// (they remain subject to IP limiting and will fail authorization)
	optional bool
}

// NewIdentityMiddleware creates the identity extractor
func NewIdentityMiddleware(optional bool) *IdentityMiddleware {
	return &IdentityMiddleware{optional: optional}
}

// Handler wraps an HTTP handler with identity extraction
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUserID)
		if userID == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		identity := &Identity{
			UserID:     userID,
			GlobalRole: permissions.GlobalRole(r.Header.Get(HeaderUserRole)),
		}
		if identity.GlobalRole == "" {
			identity.GlobalRole = permissions.GlobalRoleUser
		}

		ctx := context.WithValue(r.Context(), contextkeys.IdentityKey, identity)
		ctx = context.WithValue(ctx, contextkeys.UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity extracts the caller identity from a request, or nil
func GetIdentity(r *http.Request) *Identity {
	identity, ok := r.Context().Value(contextkeys.IdentityKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
