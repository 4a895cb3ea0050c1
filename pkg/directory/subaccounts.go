package directory

import (
	"context"
	"fmt"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
)

// CreateSubaccount inserts a new subaccount
func (s *PostgresStore) CreateSubaccount(ctx context.Context, sub *access.Subaccount) error {
	query := `
		INSERT INTO subaccounts (id, name, is_active, maintenance_mode, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO NOTHING
	`
	now := nowUTC()
	result, err := s.db.ExecContext(ctx, query, sub.ID, sub.Name, sub.IsActive, sub.MaintenanceMode, now)
	if err != nil {
		return fmt.Errorf("failed to create subaccount: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("subaccount %s already exists", sub.ID)
	}

	sub.CreatedAt = now
	sub.UpdatedAt = now
	return nil
}

// UpdateSubaccountName renames a subaccount
func (s *PostgresStore) UpdateSubaccountName(ctx context.Context, subaccountID, name string) error {
	query := `UPDATE subaccounts SET name = $1, updated_at = $2 WHERE id = $3`
	return s.execSubaccountUpdate(ctx, subaccountID, query, name, nowUTC(), subaccountID)
}

// SetSubaccountActive flips the active flag
func (s *PostgresStore) SetSubaccountActive(ctx context.Context, subaccountID string, active bool) error {
	query := `UPDATE subaccounts SET is_active = $1, updated_at = $2 WHERE id = $3`
	return s.execSubaccountUpdate(ctx, subaccountID, query, active, nowUTC(), subaccountID)
}

// SetMaintenanceMode flips the maintenance flag
func (s *PostgresStore) SetMaintenanceMode(ctx context.Context, subaccountID string, enabled bool) error {
	query := `UPDATE subaccounts SET maintenance_mode = $1, updated_at = $2 WHERE id = $3`
	return s.execSubaccountUpdate(ctx, subaccountID, query, enabled, nowUTC(), subaccountID)
}

// DeleteSubaccount removes a subaccount and its dependent rows
func (s *PostgresStore) DeleteSubaccount(ctx context.Context, subaccountID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE subaccount_id = $1`, subaccountID); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM invitations WHERE subaccount_id = $1`, subaccountID); err != nil {
		return fmt.Errorf("failed to delete invitations: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM subaccounts WHERE id = $1`, subaccountID)
	if err != nil {
		return fmt.Errorf("failed to delete subaccount: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("subaccount %s: %w", subaccountID, access.ErrNotFound)
	}

	return tx.Commit()
}

// ListSubaccountsForUser returns the subaccounts the user holds an active
// membership on, newest first
func (s *PostgresStore) ListSubaccountsForUser(ctx context.Context, userID string) ([]*access.Subaccount, error) {
	query := `
		SELECT sa.id, sa.name, sa.is_active, sa.maintenance_mode, sa.created_at, sa.updated_at
		FROM subaccounts sa
		JOIN memberships m ON m.subaccount_id = sa.id
		WHERE m.user_id = $1 AND m.is_active = TRUE
		ORDER BY sa.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subaccounts: %w", err)
	}
	defer rows.Close()

	var subs []*access.Subaccount
	for rows.Next() {
		sub := &access.Subaccount{}
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.IsActive, &sub.MaintenanceMode, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subaccount: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *PostgresStore) execSubaccountUpdate(ctx context.Context, subaccountID, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update subaccount: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("subaccount %s: %w", subaccountID, access.ErrNotFound)
	}
	return nil
}
