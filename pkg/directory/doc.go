// Package directory is the system of record for users, subaccounts,
// memberships and invitations.
//
// # Overview
//
// PostgresStore persists everything in Postgres with plain database/sql;
// MemoryStore is a map-backed equivalent for tests and single-node
// development. Both satisfy the read-side access.Directory interface and the
// mutation surface pkg/subaccounts drives. Lookups return access.ErrNotFound
// (wrapped) for absence, so callers can always tell "no such row" from "the
// query failed".
//
// # Related Packages
//
//   - pkg/access: consumes the read side for resolution
//   - pkg/subaccounts: drives the mutation surface
package directory
