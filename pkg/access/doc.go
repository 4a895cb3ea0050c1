// Package access resolves whether a user may perform an operation against a
// subaccount.
//
// # Overview
//
// The Resolver walks a fixed short-circuit order: global role bypass first,
// then membership presence, subaccount state, temporary-access expiry, and
// finally fine-grained permission checks. Cheaper, globally-decisive checks
// run before per-subaccount state so the common cases fail (or pass) fast.
//
// Lookup failures are propagated as errors and are never resolved to an allow:
// callers must treat a resolver error as an infrastructure failure (HTTP 500),
// distinct from a policy denial (HTTP 403).
//
// # Related Packages
//
//   - pkg/permissions: the pure permission rules applied in the final step
//   - pkg/authcache: caches Resolver decisions in Redis
//   - pkg/directory: Directory implementations
package access
