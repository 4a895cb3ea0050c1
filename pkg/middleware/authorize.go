package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/contextkeys"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
)

// AccessResolver is the decision surface Authorize consults, satisfied by
// *authcache.CachedResolver and *access.Resolver
type AccessResolver interface {
	Resolve(ctx context.Context, userID, subaccountID, operation string) (*access.Decision, error)
}

// AuthorizeMiddleware enforces the authorization response contract per route
type AuthorizeMiddleware struct {
	resolver AccessResolver
	logger   *observability.Logger
}

// NewAuthorizeMiddleware creates the authorization layer
func NewAuthorizeMiddleware(resolver AccessResolver, logger *observability.Logger) *AuthorizeMiddleware {
	return &AuthorizeMiddleware{resolver: resolver, logger: logger}
}

// Require returns middleware gating the route on the given operation. The
// subaccount comes from the {subaccountID} route variable; the caller from the
// request identity. Denials are 403 with the fixed machine-readable reason and
// nothing else; a resolution failure is 500, never an allow.
func (m *AuthorizeMiddleware) Require(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r)
			if identity == nil {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			subaccountID := mux.Vars(r)["subaccountID"]
			if subaccountID == "" {
				writeJSONError(w, http.StatusBadRequest, "subaccount id required")
				return
			}

			decision, err := m.resolver.Resolve(r.Context(), identity.UserID, subaccountID, operation)
			if err != nil {
				m.logger.WithError(err).WithFields(map[string]interface{}{
					"user_id":       identity.UserID,
					"subaccount_id": subaccountID,
					"operation":     operation,
				}).Error("access resolution failed")
				writeJSONError(w, http.StatusInternalServerError, "authorization unavailable")
				return
			}
			if !decision.Allowed {
				m.deniedResponse(w, decision)
				return
			}

			ctx := context.WithValue(r.Context(), contextkeys.DecisionKey, decision)
			ctx = context.WithValue(ctx, contextkeys.SubaccountIDKey, subaccountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *AuthorizeMiddleware) deniedResponse(w http.ResponseWriter, decision *access.Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(map[string]string{
		"error":  "access denied",
		"reason": decision.Reason,
	})
}

// GetDecision extracts the access decision placed on the context by Require
func GetDecision(r *http.Request) *access.Decision {
	decision, ok := r.Context().Value(contextkeys.DecisionKey).(*access.Decision)
	if !ok {
		return nil
	}
	return decision
}
