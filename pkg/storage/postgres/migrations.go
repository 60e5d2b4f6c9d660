package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the full schema, in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id VARCHAR(64) PRIMARY KEY,
					tenant_id VARCHAR(64) NOT NULL,
					parent_id VARCHAR(64) REFERENCES organizations(id) ON DELETE SET NULL,
					code VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					depth INT NOT NULL DEFAULT 0,
					path TEXT NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, code)
				);

				CREATE INDEX idx_organizations_parent_id ON organizations(parent_id);
				CREATE INDEX idx_organizations_path ON organizations(path);
			`,
		},
		{
			Version:     2,
			Description: "Create users and membership tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(64) PRIMARY KEY,
					username VARCHAR(255) NOT NULL,
					email VARCHAR(255),
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS user_organizations (
					user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					organization_id VARCHAR(64) NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					PRIMARY KEY (user_id, organization_id)
				);

				CREATE TABLE IF NOT EXISTS groups (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS user_groups (
					user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					group_id VARCHAR(64) NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					PRIMARY KEY (user_id, group_id)
				);

				CREATE INDEX idx_user_organizations_user_id ON user_organizations(user_id);
				CREATE INDEX idx_user_groups_user_id ON user_groups(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Create clients table",
			SQL: `
				CREATE TABLE IF NOT EXISTS clients (
					id VARCHAR(64) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					secret_hashes JSONB NOT NULL DEFAULT '[]',
					is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     4,
			Description: "Create resources table",
			SQL: `
				CREATE TABLE IF NOT EXISTS resources (
					id BIGSERIAL PRIMARY KEY,
					client_id VARCHAR(64) NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
					code VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					resource_type VARCHAR(50) NOT NULL DEFAULT 'menu',
					parent_id BIGINT REFERENCES resources(id) ON DELETE SET NULL,
					is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
					sort_order INT NOT NULL DEFAULT 0,
					UNIQUE(client_id, code)
				);

				CREATE INDEX idx_resources_client_id ON resources(client_id);
				CREATE INDEX idx_resources_parent_id ON resources(parent_id);
			`,
		},
		{
			Version:     5,
			Description: "Create permission_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_grants (
					id BIGSERIAL PRIMARY KEY,
					subject_type VARCHAR(20) NOT NULL,
					subject_id VARCHAR(64) NOT NULL,
					subject_name VARCHAR(255),
					resource_id BIGINT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
					scopes VARCHAR(255) NOT NULL,
					inherit_to_children BOOLEAN NOT NULL DEFAULT FALSE,
					is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
					granted_by VARCHAR(64),
					granted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX idx_permission_grants_subject ON permission_grants(subject_type, subject_id);
				CREATE INDEX idx_permission_grants_resource_id ON permission_grants(resource_id);
				CREATE INDEX idx_permission_grants_expires_at ON permission_grants(expires_at);
			`,
		},
		{
			Version:     6,
			Description: "Create revoked_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS revoked_tokens (
					jti VARCHAR(128) PRIMARY KEY,
					subject_id VARCHAR(64),
					client_id VARCHAR(64),
					token_type VARCHAR(20) NOT NULL DEFAULT 'access',
					expiration_time TIMESTAMP WITH TIME ZONE NOT NULL,
					revoked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					reason TEXT,
					revoked_by VARCHAR(64)
				);

				CREATE INDEX idx_revoked_tokens_expiration ON revoked_tokens(expiration_time);
				CREATE INDEX idx_revoked_tokens_subject_id ON revoked_tokens(subject_id);
			`,
		},
		{
			Version:     7,
			Description: "Create permission_check_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_check_logs (
					id BIGSERIAL PRIMARY KEY,
					subject_id VARCHAR(64),
					client_id VARCHAR(64),
					resource VARCHAR(255),
					requested_scopes VARCHAR(255),
					granted_scopes VARCHAR(255),
					allowed BOOLEAN NOT NULL DEFAULT FALSE,
					error_code VARCHAR(50),
					error_message TEXT,
					processing_time_ms BIGINT NOT NULL DEFAULT 0,
					ip_address VARCHAR(45),
					user_agent TEXT,
					request_id VARCHAR(100),
					checked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_check_logs_checked_at ON permission_check_logs(checked_at DESC);
				CREATE INDEX idx_check_logs_subject_id ON permission_check_logs(subject_id);
				CREATE INDEX idx_check_logs_client_id ON permission_check_logs(client_id);
				CREATE INDEX idx_check_logs_allowed ON permission_check_logs(allowed);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
