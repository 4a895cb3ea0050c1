package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
)

// Invitation is a pending offer of membership, redeemed by token
type Invitation struct {
	Token        string           `json:"token"`
	SubaccountID string           `json:"subaccount_id"`
	UserID       string           `json:"user_id"`
	Role         permissions.Role `json:"role"`
	// Overrides are merged on top of the role defaults when accepted
	Overrides  *permissions.Set `json:"overrides,omitempty"`
	InvitedBy  string           `json:"invited_by,omitempty"`
	ExpiresAt  time.Time        `json:"expires_at"`
	AcceptedAt *time.Time       `json:"accepted_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Expired reports whether the invitation can no longer be accepted
func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// CreateInvitation inserts a pending invitation
func (s *PostgresStore) CreateInvitation(ctx context.Context, inv *Invitation) error {
	var overrides []byte
	if inv.Overrides != nil {
		var err error
		overrides, err = json.Marshal(inv.Overrides)
		if err != nil {
			return fmt.Errorf("failed to encode overrides: %w", err)
		}
	}

	query := `
		INSERT INTO invitations (token, subaccount_id, user_id, role, overrides, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	now := nowUTC()
	_, err := s.db.ExecContext(ctx, query,
		inv.Token, inv.SubaccountID, inv.UserID, inv.Role, overrides,
		sql.NullString{String: inv.InvitedBy, Valid: inv.InvitedBy != ""},
		inv.ExpiresAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	inv.CreatedAt = now
	return nil
}

// GetInvitation retrieves an invitation by token
func (s *PostgresStore) GetInvitation(ctx context.Context, token string) (*Invitation, error) {
	query := `
		SELECT token, subaccount_id, user_id, role, overrides, invited_by, expires_at, accepted_at, created_at
		FROM invitations
		WHERE token = $1
	`
	inv := &Invitation{}
	var overrides []byte
	var invitedBy sql.NullString
	var acceptedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&inv.Token, &inv.SubaccountID, &inv.UserID, &inv.Role,
		&overrides, &invitedBy, &inv.ExpiresAt, &acceptedAt, &inv.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invitation: %w", access.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &inv.Overrides); err != nil {
			return nil, fmt.Errorf("failed to decode overrides: %w", err)
		}
	}
	if invitedBy.Valid {
		inv.InvitedBy = invitedBy.String
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	return inv, nil
}

// MarkInvitationAccepted stamps the acceptance time. It fails on a token that
// was already redeemed, making acceptance single-use under concurrency.
func (s *PostgresStore) MarkInvitationAccepted(ctx context.Context, token string, when time.Time) error {
	query := `UPDATE invitations SET accepted_at = $1 WHERE token = $2 AND accepted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, when, token)
	if err != nil {
		return fmt.Errorf("failed to mark invitation accepted: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("invitation already accepted or missing: %w", access.ErrNotFound)
	}
	return nil
}

// DeleteExpiredInvitations removes invitations that can no longer be redeemed
func (s *PostgresStore) DeleteExpiredInvitations(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM invitations WHERE expires_at < $1 AND accepted_at IS NULL`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}
	return result.RowsAffected()
}
