package subaccounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/authcache"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/directory"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
)

// invitationTTL bounds how long an invitation stays redeemable
const invitationTTL = 7 * 24 * time.Hour

var (
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvitationExpired = errors.New("invitation expired")
	ErrInvitationUsed    = errors.New("invitation already accepted")
)

// Store is the persistence surface the service drives. *directory.PostgresStore
// and *directory.MemoryStore both satisfy it.
type Store interface {
	GetSubaccount(ctx context.Context, subaccountID string) (*access.Subaccount, error)
	CreateSubaccount(ctx context.Context, sub *access.Subaccount) error
	UpdateSubaccountName(ctx context.Context, subaccountID, name string) error
	SetSubaccountActive(ctx context.Context, subaccountID string, active bool) error
	SetMaintenanceMode(ctx context.Context, subaccountID string, enabled bool) error
	DeleteSubaccount(ctx context.Context, subaccountID string) error
	ListSubaccountsForUser(ctx context.Context, userID string) ([]*access.Subaccount, error)

	GetMembership(ctx context.Context, userID, subaccountID string) (*permissions.Membership, error)
	UpsertMembership(ctx context.Context, m *permissions.Membership) error
	UpdateMembershipRole(ctx context.Context, userID, subaccountID string, role permissions.Role, perms permissions.Set) error
	UpdateMembershipPermissions(ctx context.Context, userID, subaccountID string, perms permissions.Set, collections []permissions.CollectionOverride) error
	SetMembershipActive(ctx context.Context, userID, subaccountID string, active bool) error
	SetTemporaryAccess(ctx context.Context, userID, subaccountID string, ta *permissions.TemporaryAccess) error
	ListMemberships(ctx context.Context, subaccountID string) ([]*permissions.Membership, error)
	ListExpiredTemporary(ctx context.Context, now time.Time) ([]*permissions.Membership, error)

	CreateInvitation(ctx context.Context, inv *directory.Invitation) error
	GetInvitation(ctx context.Context, token string) (*directory.Invitation, error)
	MarkInvitationAccepted(ctx context.Context, token string, when time.Time) error
	DeleteExpiredInvitations(ctx context.Context, now time.Time) (int64, error)
}

// Cache is the invalidation and list-cache surface, satisfied by
// *authcache.Cache
type Cache interface {
	Invalidate(ctx context.Context, userID, subaccountID string) error
	InvalidateAllForUser(ctx context.Context, userID string) error
	InvalidateAllForSubaccount(ctx context.Context, subaccountID string) error
	GetJSON(ctx context.Context, key string, dest interface{}) bool
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

// Service orchestrates lifecycle mutations and their cache invalidations
type Service struct {
	store  Store
	cache  Cache
	logger *observability.Logger
}

// NewService creates the lifecycle service
func NewService(store Store, cache Cache, logger *observability.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

// CreateSubaccount creates a subaccount and makes ownerID its owner. A blank
// id is generated.
func (s *Service) CreateSubaccount(ctx context.Context, id, name, ownerID string) (*access.Subaccount, error) {
	if name == "" {
		return nil, errors.New("subaccount name required")
	}
	if id == "" {
		id = uuid.New().String()
	}

	sub := &access.Subaccount{ID: id, Name: name, IsActive: true}
	if err := s.store.CreateSubaccount(ctx, sub); err != nil {
		return nil, err
	}

	if ownerID != "" {
		owner := &permissions.Membership{
			UserID:       ownerID,
			SubaccountID: id,
			Role:         permissions.RoleOwner,
			Permissions:  permissions.DefaultPermissions(permissions.RoleOwner),
			IsActive:     true,
		}
		if err := s.store.UpsertMembership(ctx, owner); err != nil {
			return nil, fmt.Errorf("failed to create owner membership: %w", err)
		}
		if err := s.cache.Invalidate(ctx, ownerID, id); err != nil {
			return nil, err
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"subaccount_id": id,
		"owner_id":      ownerID,
	}).Info("subaccount created")
	return sub, nil
}

// GetSubaccount returns a subaccount by id
func (s *Service) GetSubaccount(ctx context.Context, subaccountID string) (*access.Subaccount, error) {
	return s.store.GetSubaccount(ctx, subaccountID)
}

// RenameSubaccount changes the display name
func (s *Service) RenameSubaccount(ctx context.Context, subaccountID, name string) error {
	if name == "" {
		return errors.New("subaccount name required")
	}
	if err := s.store.UpdateSubaccountName(ctx, subaccountID, name); err != nil {
		return err
	}
	return s.cache.InvalidateAllForSubaccount(ctx, subaccountID)
}

// SetActive activates or deactivates a subaccount. Deactivation denies all
// access immediately, so the whole subaccount scope is invalidated.
func (s *Service) SetActive(ctx context.Context, subaccountID string, active bool) error {
	if err := s.store.SetSubaccountActive(ctx, subaccountID, active); err != nil {
		return err
	}
	if err := s.cache.InvalidateAllForSubaccount(ctx, subaccountID); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"subaccount_id": subaccountID,
		"active":        active,
	}).Info("subaccount active flag changed")
	return nil
}

// SetMaintenanceMode toggles the maintenance window
func (s *Service) SetMaintenanceMode(ctx context.Context, subaccountID string, enabled bool) error {
	if err := s.store.SetMaintenanceMode(ctx, subaccountID, enabled); err != nil {
		return err
	}
	if err := s.cache.InvalidateAllForSubaccount(ctx, subaccountID); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"subaccount_id": subaccountID,
		"maintenance":   enabled,
	}).Info("maintenance mode changed")
	return nil
}

// DeleteSubaccount removes the subaccount and everything attached to it
func (s *Service) DeleteSubaccount(ctx context.Context, subaccountID string) error {
	if err := s.store.DeleteSubaccount(ctx, subaccountID); err != nil {
		return err
	}
	return s.cache.InvalidateAllForSubaccount(ctx, subaccountID)
}

// Invite creates an invitation for userID to join subaccountID with the given
// role. Overrides, when present, are merged on top of the role defaults at
// acceptance time.
func (s *Service) Invite(ctx context.Context, subaccountID, userID string, role permissions.Role, overrides *permissions.Set, invitedBy string) (*directory.Invitation, error) {
	if !permissions.ValidRole(role) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}
	if _, err := s.store.GetSubaccount(ctx, subaccountID); err != nil {
		return nil, err
	}

	inv := &directory.Invitation{
		Token:        uuid.New().String(),
		SubaccountID: subaccountID,
		UserID:       userID,
		Role:         role,
		Overrides:    overrides,
		InvitedBy:    invitedBy,
		ExpiresAt:    time.Now().UTC().Add(invitationTTL),
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"subaccount_id": subaccountID,
		"user_id":       userID,
		"role":          string(role),
	}).Info("invitation created")
	return inv, nil
}

// AcceptInvitation redeems a token, creating (or reactivating) the membership
// with role-derived permissions merged with the invite's overrides
func (s *Service) AcceptInvitation(ctx context.Context, token string) (*permissions.Membership, error) {
	inv, err := s.store.GetInvitation(ctx, token)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if inv.AcceptedAt != nil {
		return nil, ErrInvitationUsed
	}
	if inv.Expired(now) {
		return nil, ErrInvitationExpired
	}

	perms := permissions.DefaultPermissions(inv.Role)
	if inv.Overrides != nil {
		perms = permissions.MergeOverrides(inv.Role, *inv.Overrides)
	}

	m := &permissions.Membership{
		UserID:       inv.UserID,
		SubaccountID: inv.SubaccountID,
		Role:         inv.Role,
		Permissions:  perms,
		IsActive:     true,
	}
	if err := s.store.UpsertMembership(ctx, m); err != nil {
		return nil, err
	}
	if err := s.store.MarkInvitationAccepted(ctx, token, now); err != nil {
		return nil, err
	}
	if err := s.cache.Invalidate(ctx, inv.UserID, inv.SubaccountID); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"subaccount_id": inv.SubaccountID,
		"user_id":       inv.UserID,
		"role":          string(inv.Role),
	}).Info("invitation accepted")
	return m, nil
}

// ChangeRole re-derives the permission booleans from the new role, merging any
// explicit overrides on top
func (s *Service) ChangeRole(ctx context.Context, userID, subaccountID string, role permissions.Role, overrides *permissions.Set) error {
	if !permissions.ValidRole(role) {
		return fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}

	perms := permissions.DefaultPermissions(role)
	if overrides != nil {
		perms = permissions.MergeOverrides(role, *overrides)
	}
	if err := s.store.UpdateMembershipRole(ctx, userID, subaccountID, role, perms); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, userID, subaccountID)
}

// UpdatePermissions applies explicit permission overrides. Overrides merge
// additively with the role defaults and never remove a role-implied
// capability; collection overrides replace wholesale.
func (s *Service) UpdatePermissions(ctx context.Context, userID, subaccountID string, overrides permissions.Set, collections []permissions.CollectionOverride) error {
	m, err := s.store.GetMembership(ctx, userID, subaccountID)
	if err != nil {
		return err
	}

	perms := permissions.MergeOverrides(m.Role, overrides)
	if err := s.store.UpdateMembershipPermissions(ctx, userID, subaccountID, perms, collections); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, userID, subaccountID)
}

// GrantTemporaryAccess time-boxes a membership until expiresAt
func (s *Service) GrantTemporaryAccess(ctx context.Context, userID, subaccountID string, expiresAt time.Time, reason string) error {
	if !expiresAt.After(time.Now()) {
		return errors.New("temporary access expiry must be in the future")
	}
	ta := &permissions.TemporaryAccess{Enabled: true, ExpiresAt: expiresAt, Reason: reason}
	if err := s.store.SetTemporaryAccess(ctx, userID, subaccountID, ta); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, userID, subaccountID)
}

// RevokeTemporaryAccess clears the time box, making the membership permanent
// again
func (s *Service) RevokeTemporaryAccess(ctx context.Context, userID, subaccountID string) error {
	if err := s.store.SetTemporaryAccess(ctx, userID, subaccountID, nil); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, userID, subaccountID)
}

// RemoveMember soft-deletes the membership. The row stays for audit and
// re-invite lifecycle.
func (s *Service) RemoveMember(ctx context.Context, userID, subaccountID string) error {
	if err := s.store.SetMembershipActive(ctx, userID, subaccountID, false); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, userID, subaccountID); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"subaccount_id": subaccountID,
		"user_id":       userID,
	}).Info("member removed")
	return nil
}

// ListMembers returns every membership on the subaccount
func (s *Service) ListMembers(ctx context.Context, subaccountID string) ([]*permissions.Membership, error) {
	return s.store.ListMemberships(ctx, subaccountID)
}

// ListForUser returns the user's active subaccounts, served from the list
// cache when fresh
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*access.Subaccount, error) {
	key := authcache.UserSubaccountsKey(userID, "all")

	var cached []*access.Subaccount
	if s.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	subs, err := s.store.ListSubaccountsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, key, subs, 0)
	return subs, nil
}
