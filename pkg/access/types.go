package access

import (
	"context"
	"errors"
	"time"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
)

// ErrNotFound is returned by Directory lookups when the entity does not
// exist. Implementations must return it (possibly wrapped) so callers can
// distinguish absence from lookup failure.
var ErrNotFound = errors.New("not found")

// User is the directory view of a platform user. Only the fields relevant to
// access resolution are carried here.
type User struct {
	ID         string                 `json:"id"`
	GlobalRole permissions.GlobalRole `json:"global_role"`
	IsActive   bool                   `json:"is_active"`
}

// Subaccount carries the per-subaccount state that gates all memberships
type Subaccount struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	IsActive        bool      `json:"is_active"`
	MaintenanceMode bool      `json:"maintenance_mode"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Directory is the read-only lookup collaborator the Resolver depends on.
// All methods return ErrNotFound (possibly wrapped) when the entity is
// absent; any other error means the lookup itself failed.
type Directory interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	GetSubaccount(ctx context.Context, subaccountID string) (*Subaccount, error)
	GetMembership(ctx context.Context, userID, subaccountID string) (*permissions.Membership, error)
}

// Decision is the outcome of an access resolution
type Decision struct {
	Allowed     bool            `json:"allowed"`
	Reason      string          `json:"reason,omitempty"`
	Role        string          `json:"role,omitempty"`
	Permissions permissions.Set `json:"permissions"`
	CheckedAt   time.Time       `json:"checked_at"`
}

// Fixed denial reasons. These are part of the authorization response contract
// and are the only internal state a denial may leak.
const (
	ReasonNotAssociated      = "not associated"
	ReasonSubaccountInactive = "subaccount inactive"
	ReasonMaintenanceMode    = "maintenance mode"
	ReasonTemporaryExpired   = "temporary access expired"
)

// ReasonInsufficientPermissions builds the denial reason for a permission
// mismatch on the given operation
func ReasonInsufficientPermissions(operation string) string {
	return "insufficient permissions for " + operation
}
