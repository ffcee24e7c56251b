package store

import (
	"context"
	"fmt"
	"strings"
)

// prefixColumns qualifies each column in a comma-separated list with a table
// alias, for use in joined queries.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

// platformDDL creates the control-plane tables. Statements are idempotent so
// startup can run them unconditionally.
var platformDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		full_name VARCHAR(255) NOT NULL DEFAULT '',
		hashed_password VARCHAR(255) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		slug VARCHAR(255) NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		api_key VARCHAR(64) NOT NULL UNIQUE,
		db_name VARCHAR(63) NOT NULL UNIQUE,
		bucket_name VARCHAR(63) NOT NULL UNIQUE,
		max_items INTEGER NOT NULL DEFAULT 1000,
		storage_limit_mb INTEGER NOT NULL DEFAULT 500,
		api_rate_limit INTEGER NOT NULL DEFAULT 1000,
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		provisioning_status VARCHAR(16) NOT NULL DEFAULT 'pending',
		owner_id BIGINT NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS project_memberships (
		id BIGSERIAL PRIMARY KEY,
		project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id),
		role VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		invited_by BIGINT NOT NULL REFERENCES users(id),
		invited_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		accepted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_memberships_project ON project_memberships(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_memberships_user ON project_memberships(user_id, status)`,
}

// EnsureSchema creates the control-plane tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, ddl := range platformDDL {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to ensure platform schema: %w", err)
		}
	}
	return nil
}
