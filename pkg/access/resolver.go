package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
)

// Grant is the operation-independent part of an access resolution: the
// outcome of the global-role, membership and subaccount state checks plus a
// snapshot of the effective permissions. Grants are what the authorization
// cache stores; the per-operation permission step is applied at use time via
// Decide, so one cached grant serves every operation.
type Grant struct {
	Allowed            bool                             `json:"allowed"`
	Reason             string                           `json:"reason,omitempty"`
	Role               string                           `json:"role,omitempty"`
	Permissions        permissions.Set                  `json:"permissions"`
	Collections        []permissions.CollectionOverride `json:"collections,omitempty"`
	TemporaryExpiresAt *time.Time                       `json:"temporary_expires_at,omitempty"`
	CheckedAt          time.Time                        `json:"checked_at"`
}

// Resolver computes access decisions from directory state. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	directory Directory
}

// NewResolver creates a resolver backed by the given directory
func NewResolver(directory Directory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve decides whether userID may perform operation against subaccountID.
//
// The checks run in a fixed short-circuit order:
//  1. global role bypass (admin/super_admin need no membership)
//  2. membership presence and isActive
//  3. subaccount isActive and maintenance mode
//  4. temporary-access expiry
//  5. operation permission
//
// A nil error with Allowed=false is a policy denial carrying one of the fixed
// reasons. A non-nil error means a lookup failed and the decision could not
// be computed; it must never be interpreted as an allow.
func (r *Resolver) Resolve(ctx context.Context, userID, subaccountID, operation string) (*Decision, error) {
	grant, err := r.Grant(ctx, userID, subaccountID)
	if err != nil {
		return nil, err
	}
	return grant.Decide(operation), nil
}

// ResolveCollection is Resolve with the per-collection override applied in
// the final permission step. The state checks are identical.
func (r *Resolver) ResolveCollection(ctx context.Context, userID, subaccountID, collection, operation string) (*Decision, error) {
	if collection == "" {
		return nil, errors.New("collection name required")
	}
	grant, err := r.Grant(ctx, userID, subaccountID)
	if err != nil {
		return nil, err
	}
	return grant.DecideCollection(collection, operation), nil
}

// Grant runs steps 1-3 of the resolution order and snapshots the effective
// permissions. Temporary-access expiry (step 4) is deliberately left to
// Decide so a cached grant denies the moment the grant lapses, independent of
// cache TTL.
func (r *Resolver) Grant(ctx context.Context, userID, subaccountID string) (*Grant, error) {
	// Step 1: global role bypass. Admins and super admins are not required
	// to hold a membership row.
	user, err := r.directory.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// An unknown user cannot hold a membership
			return deniedGrant(ReasonNotAssociated), nil
		}
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}
	if user.GlobalRole.Bypasses() {
		return &Grant{
			Allowed:     true,
			Role:        string(user.GlobalRole),
			Permissions: permissions.AllTrue(),
			CheckedAt:   time.Now(),
		}, nil
	}

	// Step 2: active membership must exist
	membership, err := r.directory.GetMembership(ctx, userID, subaccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return deniedGrant(ReasonNotAssociated), nil
		}
		return nil, fmt.Errorf("membership lookup failed: %w", err)
	}
	if membership == nil || !membership.IsActive {
		return deniedGrant(ReasonNotAssociated), nil
	}

	// Step 3: subaccount state
	subaccount, err := r.directory.GetSubaccount(ctx, subaccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return deniedGrant(ReasonSubaccountInactive), nil
		}
		return nil, fmt.Errorf("subaccount lookup failed: %w", err)
	}
	if !subaccount.IsActive {
		return deniedGrant(ReasonSubaccountInactive), nil
	}
	if subaccount.MaintenanceMode && !maintenanceExempt(membership) {
		return deniedGrant(ReasonMaintenanceMode), nil
	}

	grant := &Grant{
		Allowed:     true,
		Role:        string(membership.Role),
		Permissions: membership.Permissions,
		Collections: membership.Collections,
		CheckedAt:   time.Now(),
	}
	if membership.TemporaryAccess != nil && membership.TemporaryAccess.Enabled {
		expiresAt := membership.TemporaryAccess.ExpiresAt
		grant.TemporaryExpiresAt = &expiresAt
	}
	return grant, nil
}

// Decide applies the temporary-access and operation permission steps to a
// grant. It is pure and cheap, so callers can evaluate many operations
// against one grant.
func (g *Grant) Decide(operation string) *Decision {
	if deny := g.stateDenial(); deny != nil {
		return deny
	}
	if !permissions.HasPermission(g.membership(), operation) {
		return denied(ReasonInsufficientPermissions(operation))
	}
	return g.allowedDecision()
}

// DecideCollection is Decide with the per-collection override applied
func (g *Grant) DecideCollection(collection, operation string) *Decision {
	if deny := g.stateDenial(); deny != nil {
		return deny
	}
	if !permissions.HasCollectionPermission(g.membership(), collection, operation) {
		return denied(ReasonInsufficientPermissions(operation))
	}
	return g.allowedDecision()
}

func (g *Grant) stateDenial() *Decision {
	if !g.Allowed {
		return denied(g.Reason)
	}
	// Step 4: lazy temporary-access expiry, evaluated at use time so cached
	// grants lapse on schedule
	if g.TemporaryExpiresAt != nil && time.Now().After(*g.TemporaryExpiresAt) {
		return denied(ReasonTemporaryExpired)
	}
	return nil
}

// membership reconstructs a membership view for the pure permission checks.
// For global-role grants the all-true permission set short-circuits anyway.
func (g *Grant) membership() *permissions.Membership {
	return &permissions.Membership{
		Role:        permissions.Role(g.Role),
		Permissions: g.Permissions,
		Collections: g.Collections,
		IsActive:    true,
	}
}

func (g *Grant) allowedDecision() *Decision {
	return &Decision{
		Allowed:     true,
		Role:        g.Role,
		Permissions: g.Permissions,
		CheckedAt:   time.Now(),
	}
}

// maintenanceExempt reports whether a membership may operate on a subaccount
// in maintenance mode: only holders of the admin flag or an admin/owner role.
func maintenanceExempt(m *permissions.Membership) bool {
	return m.Permissions.Admin || m.Role == permissions.RoleAdmin || m.Role == permissions.RoleOwner
}

func denied(reason string) *Decision {
	return &Decision{
		Allowed:   false,
		Reason:    reason,
		CheckedAt: time.Now(),
	}
}

func deniedGrant(reason string) *Grant {
	return &Grant{
		Allowed:   false,
		Reason:    reason,
		CheckedAt: time.Now(),
	}
}
