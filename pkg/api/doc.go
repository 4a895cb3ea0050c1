// Package api exposes the tenant manager's HTTP surface.
//
// # Overview
//
// The server wires the subaccount lifecycle service, the cached access
// resolver and the rate limiter behind a gorilla/mux router:
//
//	server := api.NewServer(api.Options{
//		Service:  service,
//		Resolver: cachedResolver,
//		Limiter:  limiter,
//		Health:   health,
//		Logger:   logger,
//	})
//	http.ListenAndServe(":8080", server.Handler())
//
// Routes under /api/v1 require a gateway-asserted identity and pass through
// the rate limiter; subaccount-scoped routes additionally pass through the
// authorization middleware. Health probes and /metrics are unauthenticated.
//
// # Related Packages
//
//   - pkg/middleware: identity, authorization and rate-limit layers
//   - pkg/subaccounts: the lifecycle service the handlers drive
//   - pkg/httputil: JSON helpers and the outer pipeline
package api
