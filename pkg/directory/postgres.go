package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
)

// PostgresStore persists directory state in Postgres
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on an existing database handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetUser retrieves a user by id
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*access.User, error) {
	query := `SELECT id, global_role, is_active FROM users WHERE id = $1`

	user := &access.User{}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&user.ID, &user.GlobalRole, &user.IsActive)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", userID, access.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetSubaccount retrieves a subaccount by id
func (s *PostgresStore) GetSubaccount(ctx context.Context, subaccountID string) (*access.Subaccount, error) {
	query := `
		SELECT id, name, is_active, maintenance_mode, created_at, updated_at
		FROM subaccounts
		WHERE id = $1
	`
	sub := &access.Subaccount{}
	err := s.db.QueryRowContext(ctx, query, subaccountID).Scan(
		&sub.ID, &sub.Name, &sub.IsActive, &sub.MaintenanceMode, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("subaccount %s: %w", subaccountID, access.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subaccount: %w", err)
	}
	return sub, nil
}

const membershipColumns = `
	user_id, subaccount_id, role,
	can_read, can_write, can_delete, can_admin,
	collections, query_limits, is_active,
	temp_enabled, temp_expires_at, temp_reason,
	created_at, updated_at
`

// GetMembership retrieves the (user, subaccount) membership record
func (s *PostgresStore) GetMembership(ctx context.Context, userID, subaccountID string) (*permissions.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE user_id = $1 AND subaccount_id = $2`

	m, err := scanMembership(s.db.QueryRowContext(ctx, query, userID, subaccountID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("membership %s/%s: %w", userID, subaccountID, access.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMembership(row rowScanner) (*permissions.Membership, error) {
	m := &permissions.Membership{}
	var collections, queryLimits []byte
	var tempEnabled bool
	var tempExpires sql.NullTime
	var tempReason sql.NullString

	if err := row.Scan(
		&m.UserID, &m.SubaccountID, &m.Role,
		&m.Permissions.Read, &m.Permissions.Write, &m.Permissions.Delete, &m.Permissions.Admin,
		&collections, &queryLimits, &m.IsActive,
		&tempEnabled, &tempExpires, &tempReason,
		&m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(collections) > 0 {
		if err := json.Unmarshal(collections, &m.Collections); err != nil {
			return nil, fmt.Errorf("failed to decode collection overrides: %w", err)
		}
	}
	if len(queryLimits) > 0 {
		if err := json.Unmarshal(queryLimits, &m.QueryLimits); err != nil {
			return nil, fmt.Errorf("failed to decode query limits: %w", err)
		}
	}
	if tempEnabled && tempExpires.Valid {
		m.TemporaryAccess = &permissions.TemporaryAccess{
			Enabled:   true,
			ExpiresAt: tempExpires.Time,
		}
		if tempReason.Valid {
			m.TemporaryAccess.Reason = tempReason.String
		}
	}
	return m, nil
}

func membershipJSONFields(m *permissions.Membership) (collections, queryLimits []byte, err error) {
	if len(m.Collections) > 0 {
		collections, err = json.Marshal(m.Collections)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode collection overrides: %w", err)
		}
	}
	if m.QueryLimits != nil {
		queryLimits, err = json.Marshal(m.QueryLimits)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode query limits: %w", err)
		}
	}
	return collections, queryLimits, nil
}

func tempAccessFields(m *permissions.Membership) (enabled bool, expiresAt sql.NullTime, reason sql.NullString) {
	if m.TemporaryAccess == nil || !m.TemporaryAccess.Enabled {
		return false, sql.NullTime{}, sql.NullString{}
	}
	return true,
		sql.NullTime{Time: m.TemporaryAccess.ExpiresAt, Valid: true},
		sql.NullString{String: m.TemporaryAccess.Reason, Valid: m.TemporaryAccess.Reason != ""}
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
