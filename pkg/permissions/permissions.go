package permissions

import (
	"time"
)

// Role represents a membership role within a subaccount.
// Roles are ordered capability tiers: viewer < editor < admin <= owner.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// ValidRole reports whether r is one of the known membership roles
func ValidRole(r Role) bool {
	switch r {
	case RoleViewer, RoleEditor, RoleAdmin, RoleOwner:
		return true
	}
	return false
}

// GlobalRole represents a user's platform-wide role, independent of any
// subaccount membership
type GlobalRole string

const (
	GlobalRoleUser       GlobalRole = "user"
	GlobalRoleAdmin      GlobalRole = "admin"
	GlobalRoleSuperAdmin GlobalRole = "super_admin"
)

// Bypasses reports whether the global role bypasses subaccount-level checks
// entirely. Global admins are not required to hold a membership row.
func (g GlobalRole) Bypasses() bool {
	return g == GlobalRoleAdmin || g == GlobalRoleSuperAdmin
}

// Set holds the four boolean capabilities of a membership
type Set struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Delete bool `json:"delete"`
	Admin  bool `json:"admin"`
}

// AllTrue returns a Set with every capability granted
func AllTrue() Set {
	return Set{Read: true, Write: true, Delete: true, Admin: true}
}

// CollectionSet holds the per-collection capabilities. Collection overrides
// never carry the admin flag; admin is always membership-global.
type CollectionSet struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Delete bool `json:"delete"`
}

// CollectionOverride scopes capabilities to a single named collection. When an
// override exists for a collection, its booleans replace the membership-global
// ones for read/write/delete on that collection.
type CollectionOverride struct {
	Name        string        `json:"name"`
	Permissions CollectionSet `json:"permissions"`
}

// QueryLimits carries advisory per-membership query ceilings. These are not
// security relevant and never influence access decisions.
type QueryLimits struct {
	MaxDocsPerQuery int `json:"max_docs_per_query,omitempty"`
	MaxQueryTimeMS  int `json:"max_query_time_ms,omitempty"`
}

// TemporaryAccess time-boxes a membership. When enabled, the membership is
// valid only while now < ExpiresAt; once expired it denies all access.
type TemporaryAccess struct {
	Enabled   bool      `json:"enabled"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason,omitempty"`
}

// Expired reports whether a temporary grant has lapsed at the given instant.
// A nil or disabled grant never expires.
func (t *TemporaryAccess) Expired(now time.Time) bool {
	if t == nil || !t.Enabled {
		return false
	}
	return now.After(t.ExpiresAt)
}

// Membership is the per-(user, subaccount) authorization record
type Membership struct {
	UserID          string               `json:"user_id"`
	SubaccountID    string               `json:"subaccount_id"`
	Role            Role                 `json:"role"`
	Permissions     Set                  `json:"permissions"`
	Collections     []CollectionOverride `json:"collections,omitempty"`
	QueryLimits     *QueryLimits         `json:"query_limits,omitempty"`
	IsActive        bool                 `json:"is_active"`
	TemporaryAccess *TemporaryAccess     `json:"temporary_access,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// DefaultPermissions returns the capability defaults seeded by a role:
// viewer is read-only, editor adds write, admin and owner grant everything.
// Unknown roles get nothing.
func DefaultPermissions(role Role) Set {
	switch role {
	case RoleViewer:
		return Set{Read: true}
	case RoleEditor:
		return Set{Read: true, Write: true}
	case RoleAdmin, RoleOwner:
		return AllTrue()
	}
	return Set{}
}

// MergeOverrides layers explicit overrides on top of role defaults. The merge
// is additive: an override can grant a capability the role lacks, but can
// never remove a role-implied grant.
func MergeOverrides(role Role, overrides Set) Set {
	base := DefaultPermissions(role)
	return Set{
		Read:   base.Read || overrides.Read,
		Write:  base.Write || overrides.Write,
		Delete: base.Delete || overrides.Delete,
		Admin:  base.Admin || overrides.Admin,
	}
}

// Capability is one of the four boolean capability names operations map onto
type Capability string

const (
	CapabilityRead   Capability = "read"
	CapabilityWrite  Capability = "write"
	CapabilityDelete Capability = "delete"
	CapabilityAdmin  Capability = "admin"
)

// operationCapabilities maps operation names to capabilities. Unknown
// operations deliberately have no entry: deny-by-default.
var operationCapabilities = map[string]Capability{
	"read":      CapabilityRead,
	"find":      CapabilityRead,
	"findone":   CapabilityRead,
	"get":       CapabilityRead,
	"list":      CapabilityRead,
	"count":     CapabilityRead,
	"aggregate": CapabilityRead,

	"write":      CapabilityWrite,
	"insert":     CapabilityWrite,
	"insertone":  CapabilityWrite,
	"insertmany": CapabilityWrite,
	"update":     CapabilityWrite,
	"updateone":  CapabilityWrite,
	"updatemany": CapabilityWrite,
	"create":     CapabilityWrite,

	"delete":     CapabilityDelete,
	"remove":     CapabilityDelete,
	"deleteone":  CapabilityDelete,
	"deletemany": CapabilityDelete,
	"drop":       CapabilityDelete,

	"admin":  CapabilityAdmin,
	"manage": CapabilityAdmin,
}

// CapabilityFor maps an operation name to its capability. The second return
// is false for unknown operations.
func CapabilityFor(operation string) (Capability, bool) {
	c, ok := operationCapabilities[operation]
	return c, ok
}

// HasPermission reports whether a membership allows an operation. Memberships
// with the admin flag, or with the owner or admin role, are allowed
// unconditionally. Unknown operations are denied.
func HasPermission(m *Membership, operation string) bool {
	if m == nil {
		return false
	}
	if m.Permissions.Admin || m.Role == RoleOwner || m.Role == RoleAdmin {
		return true
	}
	c, ok := CapabilityFor(operation)
	if !ok {
		return false
	}
	return m.Permissions.Allows(c)
}

// Allows reports whether the set grants a single capability
func (s Set) Allows(c Capability) bool {
	switch c {
	case CapabilityRead:
		return s.Read
	case CapabilityWrite:
		return s.Write
	case CapabilityDelete:
		return s.Delete
	case CapabilityAdmin:
		return s.Admin
	}
	return false
}

// HasCollectionPermission reports whether a membership allows an operation on
// a named collection. If a per-collection override exists for the collection,
// its booleans are used exclusively for read/write/delete, replacing the
// membership-global fields. Without an override this falls back to
// HasPermission. Admin-capability operations always consult the global fields;
// overrides cannot grant admin.
func HasCollectionPermission(m *Membership, collection, operation string) bool {
	if m == nil {
		return false
	}
	if m.Permissions.Admin || m.Role == RoleOwner || m.Role == RoleAdmin {
		return true
	}
	c, ok := CapabilityFor(operation)
	if !ok {
		return false
	}
	if c == CapabilityAdmin {
		return m.Permissions.Admin
	}
	for i := range m.Collections {
		if m.Collections[i].Name != collection {
			continue
		}
		o := m.Collections[i].Permissions
		switch c {
		case CapabilityRead:
			return o.Read
		case CapabilityWrite:
			return o.Write
		case CapabilityDelete:
			return o.Delete
		}
	}
	return m.Permissions.Allows(c)
}
