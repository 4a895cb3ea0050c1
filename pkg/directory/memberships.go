package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
)

// UpsertMembership inserts a membership or fully replaces an existing one for
// the same (user, subaccount) pair. Re-inviting a removed member goes through
// here, starting a new effective lifecycle on the old row.
func (s *PostgresStore) UpsertMembership(ctx context.Context, m *permissions.Membership) error {
	collections, queryLimits, err := membershipJSONFields(m)
	if err != nil {
		return err
	}
	tempEnabled, tempExpires, tempReason := tempAccessFields(m)

	query := `
		INSERT INTO memberships (
			user_id, subaccount_id, role,
			can_read, can_write, can_delete, can_admin,
			collections, query_limits, is_active,
			temp_enabled, temp_expires_at, temp_reason,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		ON CONFLICT (user_id, subaccount_id) DO UPDATE SET
			role = EXCLUDED.role,
			can_read = EXCLUDED.can_read,
			can_write = EXCLUDED.can_write,
			can_delete = EXCLUDED.can_delete,
			can_admin = EXCLUDED.can_admin,
			collections = EXCLUDED.collections,
			query_limits = EXCLUDED.query_limits,
			is_active = EXCLUDED.is_active,
			temp_enabled = EXCLUDED.temp_enabled,
			temp_expires_at = EXCLUDED.temp_expires_at,
			temp_reason = EXCLUDED.temp_reason,
			updated_at = EXCLUDED.updated_at
	`
	now := nowUTC()
	_, err = s.db.ExecContext(ctx, query,
		m.UserID, m.SubaccountID, m.Role,
		m.Permissions.Read, m.Permissions.Write, m.Permissions.Delete, m.Permissions.Admin,
		collections, queryLimits, m.IsActive,
		tempEnabled, tempExpires, tempReason,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}
	m.UpdatedAt = now
	return nil
}

// UpdateMembershipRole changes the role and its derived permission booleans in
// one statement
func (s *PostgresStore) UpdateMembershipRole(ctx context.Context, userID, subaccountID string, role permissions.Role, perms permissions.Set) error {
	query := `
		UPDATE memberships
		SET role = $1, can_read = $2, can_write = $3, can_delete = $4, can_admin = $5, updated_at = $6
		WHERE user_id = $7 AND subaccount_id = $8
	`
	return s.execMembershipUpdate(ctx, userID, subaccountID, query,
		role, perms.Read, perms.Write, perms.Delete, perms.Admin, nowUTC(), userID, subaccountID)
}

// UpdateMembershipPermissions replaces the permission booleans and collection
// overrides without touching the role
func (s *PostgresStore) UpdateMembershipPermissions(ctx context.Context, userID, subaccountID string, perms permissions.Set, collections []permissions.CollectionOverride) error {
	m := &permissions.Membership{Collections: collections}
	collectionsJSON, _, err := membershipJSONFields(m)
	if err != nil {
		return err
	}

	query := `
		UPDATE memberships
		SET can_read = $1, can_write = $2, can_delete = $3, can_admin = $4, collections = $5, updated_at = $6
		WHERE user_id = $7 AND subaccount_id = $8
	`
	return s.execMembershipUpdate(ctx, userID, subaccountID, query,
		perms.Read, perms.Write, perms.Delete, perms.Admin, collectionsJSON, nowUTC(), userID, subaccountID)
}

// SetMembershipActive flips the soft-delete flag
func (s *PostgresStore) SetMembershipActive(ctx context.Context, userID, subaccountID string, active bool) error {
	query := `UPDATE memberships SET is_active = $1, updated_at = $2 WHERE user_id = $3 AND subaccount_id = $4`
	return s.execMembershipUpdate(ctx, userID, subaccountID, query, active, nowUTC(), userID, subaccountID)
}

// SetTemporaryAccess grants or revokes a time-boxed membership window. A nil
// grant clears the fields.
func (s *PostgresStore) SetTemporaryAccess(ctx context.Context, userID, subaccountID string, ta *permissions.TemporaryAccess) error {
	m := &permissions.Membership{TemporaryAccess: ta}
	enabled, expiresAt, reason := tempAccessFields(m)

	query := `
		UPDATE memberships
		SET temp_enabled = $1, temp_expires_at = $2, temp_reason = $3, updated_at = $4
		WHERE user_id = $5 AND subaccount_id = $6
	`
	return s.execMembershipUpdate(ctx, userID, subaccountID, query,
		enabled, expiresAt, reason, nowUTC(), userID, subaccountID)
}

// ListMemberships returns every membership on a subaccount, including inactive
// ones, oldest first
func (s *PostgresStore) ListMemberships(ctx context.Context, subaccountID string) ([]*permissions.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE subaccount_id = $1 ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, subaccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var members []*permissions.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListExpiredTemporary returns active memberships whose temporary access has
// lapsed as of now, for the hygiene sweep
func (s *PostgresStore) ListExpiredTemporary(ctx context.Context, now time.Time) ([]*permissions.Membership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM memberships
		WHERE is_active = TRUE AND temp_enabled = TRUE AND temp_expires_at < $1`

	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired memberships: %w", err)
	}
	defer rows.Close()

	var members []*permissions.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PostgresStore) execMembershipUpdate(ctx context.Context, userID, subaccountID, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("membership %s/%s: %w", userID, subaccountID, access.ErrNotFound)
	}
	return nil
}
