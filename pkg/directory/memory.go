package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
)

// MemoryStore is a map-backed store for tests and single-node development. It
// mirrors the PostgresStore surface exactly, including ErrNotFound semantics.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*access.User
	subaccounts map[string]*access.Subaccount
	memberships map[string]*permissions.Membership
	invitations map[string]*Invitation
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*access.User),
		subaccounts: make(map[string]*access.Subaccount),
		memberships: make(map[string]*permissions.Membership),
		invitations: make(map[string]*Invitation),
	}
}

func pairKey(userID, subaccountID string) string {
	return userID + "/" + subaccountID
}

// PutUser inserts or replaces a user record
func (s *MemoryStore) PutUser(user *access.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *user
	s.users[user.ID] = &u
}

// GetUser retrieves a user by id
func (s *MemoryStore) GetUser(_ context.Context, userID string) (*access.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, access.ErrNotFound)
	}
	copied := *u
	return &copied, nil
}

// GetSubaccount retrieves a subaccount by id
func (s *MemoryStore) GetSubaccount(_ context.Context, subaccountID string) (*access.Subaccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subaccounts[subaccountID]
	if !ok {
		return nil, fmt.Errorf("subaccount %s: %w", subaccountID, access.ErrNotFound)
	}
	copied := *sub
	return &copied, nil
}

// GetMembership retrieves the (user, subaccount) membership record
func (s *MemoryStore) GetMembership(_ context.Context, userID, subaccountID string) (*permissions.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[pairKey(userID, subaccountID)]
	if !ok {
		return nil, fmt.Errorf("membership %s/%s: %w", userID, subaccountID, access.ErrNotFound)
	}
	copied := *m
	return &copied, nil
}

// CreateSubaccount inserts a new subaccount
func (s *MemoryStore) CreateSubaccount(_ context.Context, sub *access.Subaccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subaccounts[sub.ID]; exists {
		return fmt.Errorf("subaccount %s already exists", sub.ID)
	}
	now := nowUTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	copied := *sub
	s.subaccounts[sub.ID] = &copied
	return nil
}

// UpdateSubaccountName renames a subaccount
func (s *MemoryStore) UpdateSubaccountName(_ context.Context, subaccountID, name string) error {
	return s.updateSubaccount(subaccountID, func(sub *access.Subaccount) {
		sub.Name = name
	})
}

// SetSubaccountActive flips the active flag
func (s *MemoryStore) SetSubaccountActive(_ context.Context, subaccountID string, active bool) error {
	return s.updateSubaccount(subaccountID, func(sub *access.Subaccount) {
		sub.IsActive = active
	})
}

// SetMaintenanceMode flips the maintenance flag
func (s *MemoryStore) SetMaintenanceMode(_ context.Context, subaccountID string, enabled bool) error {
	return s.updateSubaccount(subaccountID, func(sub *access.Subaccount) {
		sub.MaintenanceMode = enabled
	})
}

// DeleteSubaccount removes a subaccount and its dependent rows
func (s *MemoryStore) DeleteSubaccount(_ context.Context, subaccountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subaccounts[subaccountID]; !ok {
		return fmt.Errorf("subaccount %s: %w", subaccountID, access.ErrNotFound)
	}
	delete(s.subaccounts, subaccountID)
	for key, m := range s.memberships {
		if m.SubaccountID == subaccountID {
			delete(s.memberships, key)
		}
	}
	for token, inv := range s.invitations {
		if inv.SubaccountID == subaccountID {
			delete(s.invitations, token)
		}
	}
	return nil
}

// ListSubaccountsForUser returns the subaccounts the user holds an active
// membership on, newest first
func (s *MemoryStore) ListSubaccountsForUser(_ context.Context, userID string) ([]*access.Subaccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var subs []*access.Subaccount
	for _, m := range s.memberships {
		if m.UserID != userID || !m.IsActive {
			continue
		}
		if sub, ok := s.subaccounts[m.SubaccountID]; ok {
			copied := *sub
			subs = append(subs, &copied)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	return subs, nil
}

// UpsertMembership inserts a membership or fully replaces an existing one
func (s *MemoryStore) UpsertMembership(_ context.Context, m *permissions.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowUTC()
	if existing, ok := s.memberships[pairKey(m.UserID, m.SubaccountID)]; ok {
		m.CreatedAt = existing.CreatedAt
	} else {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	copied := *m
	s.memberships[pairKey(m.UserID, m.SubaccountID)] = &copied
	return nil
}

// UpdateMembershipRole changes the role and its derived permission booleans
func (s *MemoryStore) UpdateMembershipRole(_ context.Context, userID, subaccountID string, role permissions.Role, perms permissions.Set) error {
	return s.updateMembership(userID, subaccountID, func(m *permissions.Membership) {
		m.Role = role
		m.Permissions = perms
	})
}

// UpdateMembershipPermissions replaces the permission booleans and collection
// overrides without touching the role
func (s *MemoryStore) UpdateMembershipPermissions(_ context.Context, userID, subaccountID string, perms permissions.Set, collections []permissions.CollectionOverride) error {
	return s.updateMembership(userID, subaccountID, func(m *permissions.Membership) {
		m.Permissions = perms
		m.Collections = collections
	})
}

// SetMembershipActive flips the soft-delete flag
func (s *MemoryStore) SetMembershipActive(_ context.Context, userID, subaccountID string, active bool) error {
	return s.updateMembership(userID, subaccountID, func(m *permissions.Membership) {
		m.IsActive = active
	})
}

// SetTemporaryAccess grants or revokes a time-boxed membership window
func (s *MemoryStore) SetTemporaryAccess(_ context.Context, userID, subaccountID string, ta *permissions.TemporaryAccess) error {
	return s.updateMembership(userID, subaccountID, func(m *permissions.Membership) {
		if ta == nil || !ta.Enabled {
			m.TemporaryAccess = nil
			return
		}
		copied := *ta
		m.TemporaryAccess = &copied
	})
}

// ListMemberships returns every membership on a subaccount, oldest first
func (s *MemoryStore) ListMemberships(_ context.Context, subaccountID string) ([]*permissions.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var members []*permissions.Membership
	for _, m := range s.memberships {
		if m.SubaccountID == subaccountID {
			copied := *m
			members = append(members, &copied)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.Before(members[j].CreatedAt) })
	return members, nil
}

// ListExpiredTemporary returns active memberships whose temporary access has
// lapsed as of now
func (s *MemoryStore) ListExpiredTemporary(_ context.Context, now time.Time) ([]*permissions.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var members []*permissions.Membership
	for _, m := range s.memberships {
		if m.IsActive && m.TemporaryAccess.Expired(now) {
			copied := *m
			members = append(members, &copied)
		}
	}
	return members, nil
}

// CreateInvitation inserts a pending invitation
func (s *MemoryStore) CreateInvitation(_ context.Context, inv *Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv.CreatedAt = nowUTC()
	copied := *inv
	s.invitations[inv.Token] = &copied
	return nil
}

// GetInvitation retrieves an invitation by token
func (s *MemoryStore) GetInvitation(_ context.Context, token string) (*Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invitations[token]
	if !ok {
		return nil, fmt.Errorf("invitation: %w", access.ErrNotFound)
	}
	copied := *inv
	return &copied, nil
}

// MarkInvitationAccepted stamps the acceptance time, once
func (s *MemoryStore) MarkInvitationAccepted(_ context.Context, token string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[token]
	if !ok || inv.AcceptedAt != nil {
		return fmt.Errorf("invitation already accepted or missing: %w", access.ErrNotFound)
	}
	t := when
	inv.AcceptedAt = &t
	return nil
}

// DeleteExpiredInvitations removes invitations that can no longer be redeemed
func (s *MemoryStore) DeleteExpiredInvitations(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, inv := range s.invitations {
		if inv.AcceptedAt == nil && inv.Expired(now) {
			delete(s.invitations, token)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) updateSubaccount(subaccountID string, apply func(*access.Subaccount)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subaccounts[subaccountID]
	if !ok {
		return fmt.Errorf("subaccount %s: %w", subaccountID, access.ErrNotFound)
	}
	apply(sub)
	sub.UpdatedAt = nowUTC()
	return nil
}

func (s *MemoryStore) updateMembership(userID, subaccountID string, apply func(*permissions.Membership)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[pairKey(userID, subaccountID)]
	if !ok {
		return fmt.Errorf("membership %s/%s: %w", userID, subaccountID, access.ErrNotFound)
	}
	apply(m)
	m.UpdatedAt = nowUTC()
	return nil
}
