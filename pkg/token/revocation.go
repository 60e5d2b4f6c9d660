package token

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sentinel-iam/sentinel/pkg/storage/redis"
)

// RevocationChecker is the lookup surface the validator consults
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RevocationStore persists revoked-token records. An optional Redis
// look-aside cache bounds database load on the hot validation path; cached
// answers may lag a new revocation by at most the cache TTL.
type RevocationStore struct {
	db       *sql.DB
	cache    *redis.Client
	cacheTTL time.Duration
}

// NewRevocationStore creates a revocation store. cache may be nil.
func NewRevocationStore(db *sql.DB, cache *redis.Client, cacheTTL time.Duration) *RevocationStore {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &RevocationStore{db: db, cache: cache, cacheTTL: cacheTTL}
}

func revocationCacheKey(jti string) string {
	return "revoked:" + jti
}

// Revoke records a token revocation. Revoking an already-revoked token
// refreshes the record's revocation metadata rather than duplicating it.
func (s *RevocationStore) Revoke(ctx context.Context, record RevokedToken) error {
	if record.JTI == "" {
		return fmt.Errorf("jti is required")
	}
	if record.TokenType == "" {
		record.TokenType = TypeAccess
	}
	if record.RevokedAt.IsZero() {
		record.RevokedAt = time.Now()
	}

	query := `
		INSERT INTO revoked_tokens (jti, subject_id, client_id, token_type, expiration_time, revoked_at, reason, revoked_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (jti) DO UPDATE SET
			revoked_at = EXCLUDED.revoked_at,
			reason = EXCLUDED.reason,
			revoked_by = EXCLUDED.revoked_by
	`

	_, err := s.db.ExecContext(ctx, query,
		record.JTI,
		nullIfEmpty(record.SubjectID),
		nullIfEmpty(record.ClientID),
		string(record.TokenType),
		record.ExpirationTime,
		record.RevokedAt,
		nullIfEmpty(record.Reason),
		nullIfEmpty(record.RevokedBy),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	if s.cache != nil {
		// Overwrite any cached negative answer immediately.
		if err := s.cache.SetJSON(ctx, revocationCacheKey(record.JTI), true, s.cacheTTL); err != nil {
			return nil // cache failures do not fail the revocation
		}
	}

	return nil
}

// Unrevoke removes a revocation record. Returns true when a record existed.
func (s *RevocationStore) Unrevoke(ctx context.Context, jti string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM revoked_tokens WHERE jti = $1", jti)
	if err != nil {
		return false, fmt.Errorf("failed to unrevoke token: %w", err)
	}

	if s.cache != nil {
		s.cache.Delete(ctx, revocationCacheKey(jti))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// IsRevoked reports whether the jti appears in the revocation store
func (s *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}

	if s.cache != nil {
		var revoked bool
		if found, err := s.cache.GetJSON(ctx, revocationCacheKey(jti), &revoked); err == nil && found {
			return revoked, nil
		}
	}

	var revoked bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)", jti,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}

	if s.cache != nil {
		s.cache.SetJSON(ctx, revocationCacheKey(jti), revoked, s.cacheTTL)
	}

	return revoked, nil
}

// GetRevocation retrieves a revocation record, or (nil, nil) if absent
func (s *RevocationStore) GetRevocation(ctx context.Context, jti string) (*RevokedToken, error) {
	query := `
		SELECT jti, COALESCE(subject_id, ''), COALESCE(client_id, ''), token_type,
		       expiration_time, revoked_at, COALESCE(reason, ''), COALESCE(revoked_by, '')
		FROM revoked_tokens
		WHERE jti = $1
	`

	var record RevokedToken
	var tokenType string
	err := s.db.QueryRowContext(ctx, query, jti).Scan(
		&record.JTI,
		&record.SubjectID,
		&record.ClientID,
		&tokenType,
		&record.ExpirationTime,
		&record.RevokedAt,
		&record.Reason,
		&record.RevokedBy,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get revocation: %w", err)
	}

	record.TokenType = TokenType(tokenType)
	return &record, nil
}

// CleanupExpired deletes revocation records for tokens that expired more
// than retention ago. Returns the number of rows removed.
func (s *RevocationStore) CleanupExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM revoked_tokens WHERE expiration_time < $1", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up revocations: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
