// Package observability provides structured logging, Prometheus metrics, and
// health checks for the tenant manager.
//
// # Overview
//
// Logger is a thin wrapper over stdlib slog emitting JSON. Metrics covers the
// access-control and rate-limiting hot paths: decision outcomes, cache
// hits/misses, invalidation sweeps, limiter rejections and fallback
// activations. HealthChecker exposes liveness and readiness probes that ping
// the database and Redis.
package observability
