// Package permissions defines the membership data model and the pure
// permission-derivation rules.
//
// # Overview
//
// A Membership links a user to a subaccount and carries a Role plus four
// boolean capabilities (read/write/delete/admin). Roles deterministically seed
// capability defaults; explicit overrides supplied at invite time are merged
// additively on top of the defaults. Per-collection overrides, when present,
// replace the global booleans for that collection.
//
// Everything in this package is a pure function over in-memory values. There
// is no I/O and no global state, so permission checks are safe to call from
// concurrent request handlers.
//
// # Related Packages
//
//   - pkg/access: resolves (user, subaccount, operation) using these rules
//   - pkg/subaccounts: membership lifecycle (invite, role change, removal)
package permissions
