package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DBLogger writes permission check records to PostgreSQL and serves the
// audit query API
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger
func NewDBLogger(db *sql.DB) *DBLogger {
	return &DBLogger{db: db}
}

// LogCheck inserts one audit row
func (l *DBLogger) LogCheck(ctx context.Context, record *PermissionCheckLog) error {
	if record.CheckedAt.IsZero() {
		record.CheckedAt = time.Now()
	}

	query := `
		INSERT INTO permission_check_logs (subject_id, client_id, resource, requested_scopes, granted_scopes, allowed, error_code, error_message, processing_time_ms, ip_address, user_agent, request_id, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		nullIfEmpty(record.SubjectID),
		nullIfEmpty(record.ClientID),
		nullIfEmpty(record.Resource),
		nullIfEmpty(record.RequestedScopes),
		nullIfEmpty(record.GrantedScopes),
		record.Allowed,
		nullIfEmpty(record.ErrorCode),
		nullIfEmpty(record.ErrorMessage),
		record.ProcessingTimeMs,
		nullIfEmpty(record.IPAddress),
		nullIfEmpty(record.UserAgent),
		nullIfEmpty(record.RequestID),
		record.CheckedAt,
	).Scan(&record.ID)

	if err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// Query retrieves audit rows matching the filter, newest first
func (l *DBLogger) Query(ctx context.Context, filter QueryFilter) ([]*PermissionCheckLog, error) {
	var conditions []string
	var args []interface{}

	addCondition := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.SubjectID != "" {
		addCondition("subject_id = $%d", filter.SubjectID)
	}
	if filter.ClientID != "" {
		addCondition("client_id = $%d", filter.ClientID)
	}
	if filter.Resource != "" {
		addCondition("resource = $%d", filter.Resource)
	}
	if filter.ErrorCode != "" {
		addCondition("error_code = $%d", filter.ErrorCode)
	}
	if filter.Allowed != nil {
		addCondition("allowed = $%d", *filter.Allowed)
	}
	if filter.Since != nil {
		addCondition("checked_at >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		addCondition("checked_at < $%d", *filter.Until)
	}

	query := `
		SELECT id, COALESCE(subject_id, ''), COALESCE(client_id, ''), COALESCE(resource, ''),
		       COALESCE(requested_scopes, ''), COALESCE(granted_scopes, ''), allowed,
		       COALESCE(error_code, ''), COALESCE(error_message, ''), processing_time_ms,
		       COALESCE(ip_address, ''), COALESCE(user_agent, ''), COALESCE(request_id, ''), checked_at
		FROM permission_check_logs
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY checked_at DESC, id DESC LIMIT $%d", len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []*PermissionCheckLog
	for rows.Next() {
		var r PermissionCheckLog
		if err := rows.Scan(
			&r.ID,
			&r.SubjectID,
			&r.ClientID,
			&r.Resource,
			&r.RequestedScopes,
			&r.GrantedScopes,
			&r.Allowed,
			&r.ErrorCode,
			&r.ErrorMessage,
			&r.ProcessingTimeMs,
			&r.IPAddress,
			&r.UserAgent,
			&r.RequestID,
			&r.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, &r)
	}

	return records, rows.Err()
}

// Cleanup deletes audit rows older than the retention window. Returns the
// number of rows removed.
func (l *DBLogger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := l.db.ExecContext(ctx,
		"DELETE FROM permission_check_logs WHERE checked_at < $1", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit records: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

// Close is a no-op; the connection pool is owned by the caller
func (l *DBLogger) Close() error { return nil }

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
