// Package authcache caches access grants in Redis and wraps the resolver
// with a cache-first resolution path.
//
// # Overview
//
// The cache is a denormalized, time-bounded copy of authorization state and
// is never the system of record: it can be dropped at any moment with only a
// latency cost. Get never fails a request on backend trouble, it just misses;
// Put is best-effort. Invalidation removes every key whose decision could
// change after a mutation, using cursor-based SCAN sweeps over wildcard key
// prefixes in fixed-size batches.
//
// # Key namespaces
//
//	permissions:<userID>:<subaccountID>[:<extra>]
//	subaccount:<subaccountID>
//	user_subaccounts:<userID>:<querySignature>
//
// Every mutation path in pkg/subaccounts must call the matching invalidation
// before reporting success; a missed invalidation is the worst correctness
// bug this subsystem can have (stale-allow or stale-deny until TTL expiry).
//
// # Related Packages
//
//   - pkg/access: computes the grants stored here
//   - pkg/subaccounts: the mutation paths that trigger invalidation
package authcache
