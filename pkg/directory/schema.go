package directory

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the directory tables. Statements are idempotent so startup
// can run them unconditionally.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		global_role TEXT NOT NULL DEFAULT 'user',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS subaccounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		maintenance_mode BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// user_id carries no foreign key: users are owned by the identity
	// service and referenced by id only, so a membership may be written
	// before the user row is synced into the local users table.
	`CREATE TABLE IF NOT EXISTS memberships (
		user_id TEXT NOT NULL,
		subaccount_id TEXT NOT NULL REFERENCES subaccounts(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		can_read BOOLEAN NOT NULL DEFAULT FALSE,
		can_write BOOLEAN NOT NULL DEFAULT FALSE,
		can_delete BOOLEAN NOT NULL DEFAULT FALSE,
		can_admin BOOLEAN NOT NULL DEFAULT FALSE,
		collections JSONB,
		query_limits JSONB,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		temp_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		temp_expires_at TIMESTAMPTZ,
		temp_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, subaccount_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memberships_subaccount ON memberships(subaccount_id)`,
	`CREATE INDEX IF NOT EXISTS idx_memberships_temp_expiry ON memberships(temp_expires_at) WHERE temp_enabled = TRUE`,
	`CREATE TABLE IF NOT EXISTS invitations (
		token TEXT PRIMARY KEY,
		subaccount_id TEXT NOT NULL REFERENCES subaccounts(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		overrides JSONB,
		invited_by TEXT,
		expires_at TIMESTAMPTZ NOT NULL,
		accepted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// InitSchema creates all directory tables and indexes if they do not exist
func InitSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
