// Package httputil provides HTTP handler utilities for consistent JSON
// request/response handling and the outer request pipeline.
//
// # Overview
//
// Response helpers write the service's uniform JSON envelope:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteBadRequest(w, "subaccount name required")
//
// Request helpers decode and validate bodies:
//
//	var req createSubaccountRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//
// Middleware covers the outermost pipeline concerns: panic recovery, request
// IDs, request logging, and body size limits:
//
//	httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger, metrics),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: identity, authorization and rate limiting layers
//   - pkg/api: route handlers built on these helpers
package httputil
