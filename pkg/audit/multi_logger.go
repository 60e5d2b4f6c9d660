package audit

import "context"

// MultiLogger fans each record out to several sinks. Every sink is
// attempted even when an earlier one fails; the first error is returned.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger writing to all the given sinks
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// LogCheck writes the record to every sink
func (m *MultiLogger) LogCheck(ctx context.Context, record *PermissionCheckLog) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.LogCheck(ctx, record); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every sink
func (m *MultiLogger) Close() error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
