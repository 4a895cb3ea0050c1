// Package middleware provides the HTTP request pipeline: identity
// extraction, per-tier rate limiting and per-route authorization.
//
// # Overview
//
// IdentityMiddleware trusts the upstream gateway's identity headers and puts
// an Identity on the context. RateLimitMiddleware applies the general/IP tier
// to everything, the burst tier to mutating methods, the per-user tier to
// authenticated requests (super admins skip it) and a progressive delay past a
// soft threshold. Authorize consults the cached resolver and enforces the
// fixed response contract: 403 with the denial reason, 500 when resolution
// itself failed, never an allow on error.
//
// # Related Packages
//
//   - pkg/authcache: the cache-first resolver behind Authorize
//   - pkg/ratelimit: the tier policy behind RateLimitMiddleware
package middleware
