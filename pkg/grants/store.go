package grants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sentinel-iam/sentinel/pkg/scope"
)

// Store handles permission grant persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new grant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const grantColumns = `id, subject_type, subject_id, COALESCE(subject_name, ''), resource_id,
	scopes, inherit_to_children, is_enabled, COALESCE(granted_by, ''), granted_at, expires_at`

// CreateGrant persists a new grant and fills in its ID and grant time
func (s *Store) CreateGrant(ctx context.Context, grant *Grant) error {
	if err := grant.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO permission_grants (subject_type, subject_id, subject_name, resource_id, scopes, inherit_to_children, is_enabled, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		string(grant.SubjectType),
		grant.SubjectID,
		grant.SubjectName,
		grant.ResourceID,
		scope.Encode(grant.Scopes),
		grant.InheritToChildren,
		grant.IsEnabled,
		grant.GrantedBy,
		now,
		grant.ExpiresAt,
	).Scan(&grant.ID)

	if err != nil {
		return fmt.Errorf("failed to create grant: %w", err)
	}

	grant.GrantedAt = now
	return nil
}

// BatchResult reports the outcome of a batch grant operation
type BatchResult struct {
	Granted int      `json:"granted"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// CreateGrantBatch persists a set of grants atomically: either every grant
// in the batch commits or none do. The result reports per-item counts; a
// rejected batch counts every grant as failed.
func (s *Store) CreateGrantBatch(ctx context.Context, batch []*Grant) (*BatchResult, error) {
	for i, grant := range batch {
		if err := grant.Validate(); err != nil {
			return &BatchResult{
				Failed: len(batch),
				Errors: []string{
					fmt.Sprintf("grant %d: %v", i, err),
					"batch rejected: no grants were persisted",
				},
			}, nil
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	ids := make([]int64, len(batch))

	for i, grant := range batch {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO permission_grants (subject_type, subject_id, subject_name, resource_id, scopes, inherit_to_children, is_enabled, granted_by, granted_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`,
			string(grant.SubjectType),
			grant.SubjectID,
			grant.SubjectName,
			grant.ResourceID,
			scope.Encode(grant.Scopes),
			grant.InheritToChildren,
			grant.IsEnabled,
			grant.GrantedBy,
			now,
			grant.ExpiresAt,
		).Scan(&ids[i])

		if err != nil {
			return &BatchResult{
				Failed: len(batch),
				Errors: []string{
					fmt.Sprintf("grant %d: %v", i, err),
					"batch rolled back: no grants were persisted",
				},
			}, nil
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}

	for i, grant := range batch {
		grant.ID = ids[i]
		grant.GrantedAt = now
	}
	return &BatchResult{Granted: len(batch)}, nil
}

// GetGrant retrieves a grant by ID, or (nil, nil) if absent
func (s *Store) GetGrant(ctx context.Context, grantID int64) (*Grant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM permission_grants
		WHERE id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, grantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	defer rows.Close()

	grants, err := scanGrants(rows, false)
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return nil, nil
	}
	return &grants[0], nil
}

// DeleteGrant removes a grant. Returns true when the grant existed.
func (s *Store) DeleteGrant(ctx context.Context, grantID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM permission_grants WHERE id = $1", grantID)
	if err != nil {
		return false, fmt.Errorf("failed to delete grant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// ListGrantsForSubject retrieves all grants held by one subject, newest
// first, with resource codes resolved
func (s *Store) ListGrantsForSubject(ctx context.Context, subjectType SubjectType, subjectID string) ([]Grant, error) {
	query := `
		SELECT g.id, g.subject_type, g.subject_id, COALESCE(g.subject_name, ''), g.resource_id,
		       r.client_id, r.code, g.scopes, g.inherit_to_children, g.is_enabled,
		       COALESCE(g.granted_by, ''), g.granted_at, g.expires_at
		FROM permission_grants g
		JOIN resources r ON r.id = g.resource_id
		WHERE g.subject_type = $1 AND g.subject_id = $2
		ORDER BY g.granted_at DESC, g.id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, string(subjectType), subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	return scanGrants(rows, true)
}

// GetActiveGrantsForResource retrieves the enabled, unexpired grants on one
// resource held by any of the candidate subjects
func (s *Store) GetActiveGrantsForResource(ctx context.Context, resourceID int64, userID string, groupIDs, orgIDs []string) ([]Grant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM permission_grants
		WHERE resource_id = $1
		  AND is_enabled = TRUE
		  AND (expires_at IS NULL OR expires_at > NOW())
		  AND (
			(subject_type = 'user' AND subject_id = $2)
			OR (subject_type = 'group' AND subject_id = ANY($3))
			OR (subject_type = 'organization' AND subject_id = ANY($4))
		  )
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, resourceID, userID, pq.Array(groupIDs), pq.Array(orgIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to get active grants: %w", err)
	}
	defer rows.Close()

	return scanGrants(rows, false)
}

// GetActiveGrantsForSubject retrieves the enabled, unexpired grants held by
// any of the candidate subjects on any enabled resource, across all clients
func (s *Store) GetActiveGrantsForSubject(ctx context.Context, userID string, groupIDs, orgIDs []string) ([]Grant, error) {
	query := `
		SELECT g.id, g.subject_type, g.subject_id, COALESCE(g.subject_name, ''), g.resource_id,
		       r.client_id, r.code, g.scopes, g.inherit_to_children, g.is_enabled,
		       COALESCE(g.granted_by, ''), g.granted_at, g.expires_at
		FROM permission_grants g
		JOIN resources r ON r.id = g.resource_id
		WHERE r.is_enabled = TRUE
		  AND g.is_enabled = TRUE
		  AND (g.expires_at IS NULL OR g.expires_at > NOW())
		  AND (
			(g.subject_type = 'user' AND g.subject_id = $1)
			OR (g.subject_type = 'group' AND g.subject_id = ANY($2))
			OR (g.subject_type = 'organization' AND g.subject_id = ANY($3))
		  )
		ORDER BY r.client_id, g.id
	`

	rows, err := s.db.QueryContext(ctx, query, userID, pq.Array(groupIDs), pq.Array(orgIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to get active grants: %w", err)
	}
	defer rows.Close()

	return scanGrants(rows, true)
}

func scanGrants(rows *sql.Rows, withResource bool) ([]Grant, error) {
	var grants []Grant
	for rows.Next() {
		var g Grant
		var subjectType, scopes string
		var expiresAt sql.NullTime

		dest := []interface{}{&g.ID, &subjectType, &g.SubjectID, &g.SubjectName, &g.ResourceID}
		if withResource {
			dest = append(dest, &g.ClientID, &g.ResourceCode)
		}
		dest = append(dest, &scopes, &g.InheritToChildren, &g.IsEnabled, &g.GrantedBy, &g.GrantedAt, &expiresAt)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}

		g.SubjectType = SubjectType(subjectType)
		g.Scopes = scope.Decode(scopes)
		if expiresAt.Valid {
			t := expiresAt.Time
			g.ExpiresAt = &t
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
