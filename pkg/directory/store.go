// Package directory provides read access to the subjects the permission
// checker reasons about: users, groups, organizations, clients and the
// resources clients register.
package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// Store handles directory data persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new directory store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetUser retrieves a user by ID. Returns (nil, nil) when the user does not
// exist so callers can distinguish absence from query failure.
func (s *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	query := `
		SELECT id, username, COALESCE(email, ''), is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user User
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetUserGroupIDs retrieves the IDs of all groups the user belongs to
func (s *Store) GetUserGroupIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT group_id
		FROM user_groups
		WHERE user_id = $1
		ORDER BY group_id
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user groups: %w", err)
	}
	defer rows.Close()

	var groupIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		groupIDs = append(groupIDs, id)
	}

	return groupIDs, rows.Err()
}

// GetUserOrganizations retrieves the organizations the user is a direct
// member of, with their materialized paths
func (s *Store) GetUserOrganizations(ctx context.Context, userID string) ([]Organization, error) {
	query := `
		SELECT o.id, o.tenant_id, o.parent_id, o.code, o.name, o.depth, o.path, o.created_at
		FROM organizations o
		JOIN user_organizations uo ON uo.organization_id = o.id
		WHERE uo.user_id = $1
		ORDER BY o.id
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user organizations: %w", err)
	}
	defer rows.Close()

	return scanOrganizations(rows)
}

// GetOrganizationsByIDs retrieves organizations for a set of IDs. Unknown
// IDs are skipped.
func (s *Store) GetOrganizationsByIDs(ctx context.Context, ids []string) ([]Organization, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, tenant_id, parent_id, code, name, depth, path, created_at
		FROM organizations
		WHERE id = ANY($1)
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get organizations: %w", err)
	}
	defer rows.Close()

	return scanOrganizations(rows)
}

func scanOrganizations(rows *sql.Rows) ([]Organization, error) {
	var orgs []Organization
	for rows.Next() {
		var org Organization
		var parentID sql.NullString
		if err := rows.Scan(
			&org.ID,
			&org.TenantID,
			&parentID,
			&org.Code,
			&org.Name,
			&org.Depth,
			&org.Path,
			&org.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		if parentID.Valid {
			id := parentID.String
			org.ParentID = &id
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// GetClient retrieves a client by ID. Returns (nil, nil) when the client
// does not exist.
func (s *Store) GetClient(ctx context.Context, clientID string) (*Client, error) {
	query := `
		SELECT id, name, secret_hashes, is_enabled, created_at
		FROM clients
		WHERE id = $1
	`

	var client Client
	var hashesJSON []byte
	err := s.db.QueryRowContext(ctx, query, clientID).Scan(
		&client.ID,
		&client.Name,
		&hashesJSON,
		&client.IsEnabled,
		&client.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	if err := json.Unmarshal(hashesJSON, &client.SecretHashes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret hashes: %w", err)
	}

	return &client, nil
}

// GetResourceByCode retrieves a client's resource by its code. Returns
// (nil, nil) when no such resource exists.
func (s *Store) GetResourceByCode(ctx context.Context, clientID, code string) (*Resource, error) {
	query := `
		SELECT id, client_id, code, name, resource_type, parent_id, is_enabled, sort_order
		FROM resources
		WHERE client_id = $1 AND code = $2
	`

	var res Resource
	var parentID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, clientID, code).Scan(
		&res.ID,
		&res.ClientID,
		&res.Code,
		&res.Name,
		&res.Type,
		&parentID,
		&res.IsEnabled,
		&res.SortOrder,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}

	if parentID.Valid {
		id := parentID.Int64
		res.ParentID = &id
	}

	return &res, nil
}

// ListClientResources retrieves all enabled resources registered by a client
func (s *Store) ListClientResources(ctx context.Context, clientID string) ([]Resource, error) {
	query := `
		SELECT id, client_id, code, name, resource_type, parent_id, is_enabled, sort_order
		FROM resources
		WHERE client_id = $1 AND is_enabled = TRUE
		ORDER BY sort_order, code
	`

	rows, err := s.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []Resource
	for rows.Next() {
		var res Resource
		var parentID sql.NullInt64
		if err := rows.Scan(
			&res.ID,
			&res.ClientID,
			&res.Code,
			&res.Name,
			&res.Type,
			&parentID,
			&res.IsEnabled,
			&res.SortOrder,
		); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		if parentID.Valid {
			id := parentID.Int64
			res.ParentID = &id
		}
		resources = append(resources, res)
	}

	return resources, rows.Err()
}
