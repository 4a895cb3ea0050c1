package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/httputil"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/middleware"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/ratelimit"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/subaccounts"
)

// maxBodyBytes caps request bodies; lifecycle payloads are small
const maxBodyBytes = 1 << 20

// Resolver is the decision surface the access-check endpoint consults,
// satisfied by *authcache.CachedResolver and *access.Resolver
type Resolver interface {
	Resolve(ctx context.Context, userID, subaccountID, operation string) (*access.Decision, error)
	ResolveCollection(ctx context.Context, userID, subaccountID, collection, operation string) (*access.Decision, error)
}

// Options carries the server's collaborators. Registry may be nil, in which
// case /metrics serves the default prometheus registry; Metrics may be nil to
// skip HTTP metric recording.
type Options struct {
	Service  *subaccounts.Service
	Resolver Resolver
	Limiter  *ratelimit.Limiter
	Health   *observability.HealthChecker
	Logger   *observability.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
}

// Server represents the tenant manager API server
type Server struct {
	service        *subaccounts.Service
	resolver       Resolver
	logger         *observability.Logger
	router         *mux.Router
	identity       *middleware.IdentityMiddleware
	authorize      *middleware.AuthorizeMiddleware
	ratelimit      *middleware.RateLimitMiddleware
	health         *observability.HealthChecker
	metrics        *observability.Metrics
	metricsHandler http.Handler
}

// NewServer creates the API server and configures its routes
func NewServer(opts Options) *Server {
	s := &Server{
		service:        opts.Service,
		resolver:       opts.Resolver,
		logger:         opts.Logger,
		router:         mux.NewRouter(),
		identity:       middleware.NewIdentityMiddleware(false),
		authorize:      middleware.NewAuthorizeMiddleware(opts.Resolver, opts.Logger),
		health:         opts.Health,
		metrics:        opts.Metrics,
		metricsHandler: observability.Handler(opts.Registry),
	}
	if opts.Limiter != nil {
		s.ratelimit = middleware.NewRateLimitMiddleware(opts.Limiter, opts.Logger)
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Operational routes stay outside identity and rate limiting
	if s.health != nil {
		s.router.HandleFunc("/healthz", s.health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", s.health.Readiness).Methods("GET")
	}
	s.router.Handle("/metrics", s.metricsHandler).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(mux.MiddlewareFunc(s.identity.Handler))
	if s.ratelimit != nil {
		api.Use(mux.MiddlewareFunc(s.ratelimit.Handler))
	}

	// Subaccount lifecycle
	api.HandleFunc("/subaccounts", s.createSubaccount).Methods("POST")
	api.HandleFunc("/subaccounts", s.listSubaccounts).Methods("GET")
	api.Handle("/subaccounts/{subaccountID}",
		s.authorize.Require("get")(http.HandlerFunc(s.getSubaccount))).Methods("GET")
	api.Handle("/subaccounts/{subaccountID}",
		s.authorize.Require("manage")(http.HandlerFunc(s.renameSubaccount))).Methods("PATCH")
	api.Handle("/subaccounts/{subaccountID}",
		s.authorize.Require("manage")(http.HandlerFunc(s.deleteSubaccount))).Methods("DELETE")
	api.Handle("/subaccounts/{subaccountID}/maintenance",
		s.authorize.Require("manage")(http.HandlerFunc(s.setMaintenance))).Methods("POST")
	api.Handle("/subaccounts/{subaccountID}/activate",
		s.authorize.Require("manage")(http.HandlerFunc(s.activateSubaccount))).Methods("POST")
	api.Handle("/subaccounts/{subaccountID}/deactivate",
		s.authorize.Require("manage")(http.HandlerFunc(s.deactivateSubaccount))).Methods("POST")

	// Membership management
	api.Handle("/subaccounts/{subaccountID}/members",
		s.authorize.Require("get")(http.HandlerFunc(s.listMembers))).Methods("GET")
	api.Handle("/subaccounts/{subaccountID}/members/{userID}/role",
		s.authorize.Require("manage")(http.HandlerFunc(s.changeMemberRole))).Methods("PUT")
	api.Handle("/subaccounts/{subaccountID}/members/{userID}/permissions",
		s.authorize.Require("manage")(http.HandlerFunc(s.updateMemberPermissions))).Methods("PUT")
	api.Handle("/subaccounts/{subaccountID}/members/{userID}/temporary-access",
		s.authorize.Require("manage")(http.HandlerFunc(s.grantTemporaryAccess))).Methods("POST")
	api.Handle("/subaccounts/{subaccountID}/members/{userID}/temporary-access",
		s.authorize.Require("manage")(http.HandlerFunc(s.revokeTemporaryAccess))).Methods("DELETE")
	api.Handle("/subaccounts/{subaccountID}/members/{userID}",
		s.authorize.Require("manage")(http.HandlerFunc(s.removeMember))).Methods("DELETE")

	// Invitations. Acceptance is keyed by token, not subaccount, so it skips
	// the authorization layer; the token itself is the grant.
	api.Handle("/subaccounts/{subaccountID}/invitations",
		s.authorize.Require("manage")(http.HandlerFunc(s.createInvitation))).Methods("POST")
	api.HandleFunc("/invitations/{token}/accept", s.acceptInvitation).Methods("POST")

	// Access checks for sibling services
	api.HandleFunc("/subaccounts/{subaccountID}/access-check", s.accessCheck).Methods("POST")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler wraps the router with the outer pipeline: panic recovery, request
// IDs, request logging and body limits
func (s *Server) Handler() http.Handler {
	return httputil.Chain(
		httputil.RecoveryMiddleware(s.logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger, s.metrics),
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)(s.router)
}
