package audit

import "context"

// Logger is the sink permission check records are written to
type Logger interface {
	// LogCheck records one permission check.
	LogCheck(ctx context.Context, record *PermissionCheckLog) error

	// Close flushes and releases the sink.
	Close() error
}

// NopLogger discards all records. Used when auditing is not configured and
// in tests.
type NopLogger struct{}

// LogCheck discards the record
func (NopLogger) LogCheck(ctx context.Context, record *PermissionCheckLog) error { return nil }

// Close is a no-op
func (NopLogger) Close() error { return nil }
