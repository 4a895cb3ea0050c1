// Package subaccounts implements the subaccount and membership lifecycle:
// creation, invitations, role and permission changes, temporary access,
// removal and maintenance windows.
//
// # Overview
//
// The Service is the only writer of authorization state, and every mutation
// calls the matching cache invalidation before reporting success. That pairing
// is the package's core contract: a mutation that returns nil has already
// removed every cache entry whose decision it could change.
//
// A cron-driven Sweeper deactivates memberships whose temporary access has
// expired and prunes stale invitations. Access resolution does not depend on
// it (expiry is also checked lazily at decision time); the sweep keeps the
// directory tidy.
//
// # Related Packages
//
//   - pkg/directory: the persistence this service drives
//   - pkg/authcache: the invalidation surface
package subaccounts
