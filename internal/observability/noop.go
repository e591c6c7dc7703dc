package observability

// NoopLogger is a no-op implementation of the Logger interface, used in tests
// and as a safe default when no logger is supplied.
type NoopLogger struct{}

// NewNoopLogger creates a new NoopLogger
func NewNoopLogger() Logger {
	return &NoopLogger{}
}

// Debug is a no-op implementation
func (l *NoopLogger) Debug(msg string, fields map[string]interface{}) {}

// Info is a no-op implementation
func (l *NoopLogger) Info(msg string, fields map[string]interface{}) {}

// Warn is a no-op implementation
func (l *NoopLogger) Warn(msg string, fields map[string]interface{}) {}

// Error is a no-op implementation
func (l *NoopLogger) Error(msg string, fields map[string]interface{}) {}

// Fatal is a no-op implementation; it does not exit
func (l *NoopLogger) Fatal(msg string, fields map[string]interface{}) {}

// Debugf is a no-op implementation
func (l *NoopLogger) Debugf(format string, args ...interface{}) {}

// Infof is a no-op implementation
func (l *NoopLogger) Infof(format string, args ...interface{}) {}

// Warnf is a no-op implementation
func (l *NoopLogger) Warnf(format string, args ...interface{}) {}

// Errorf is a no-op implementation
func (l *NoopLogger) Errorf(format string, args ...interface{}) {}

// WithPrefix returns the same no-op logger
func (l *NoopLogger) WithPrefix(prefix string) Logger { return l }

// With returns the same no-op logger
func (l *NoopLogger) With(fields map[string]interface{}) Logger { return l }
