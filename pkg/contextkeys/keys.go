// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *middleware.Identity
	// Set by: middleware.IdentityMiddleware (pkg/middleware/identity.go)
	// Required by: Authorize and RateLimit middleware
	IdentityKey Key = "identity"

	// SubaccountIDKey contains the subaccount ID string extracted from the route
	// Set by: middleware.SubaccountContext (pkg/middleware/authorize.go)
	SubaccountIDKey Key = "subaccount_id"

	// DecisionKey contains *access.Decision for the current request
	// Set by: middleware.Authorize after a successful authorization
	// Used by: Handlers that need the resolved role/permissions
	DecisionKey Key = "access_decision"

	// RequestIDKey contains request ID string (UUID)
	// Set by: api server middleware
	// Used by: Logger, access decision logging
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: IdentityMiddleware after authentication
	// Used by: Logger, user-scoped operations
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: api server middleware
	// Used by: Handlers that need structured logging with request context
	LoggerKey Key = "logger"
)
