package sourced

// Logger is the minimal structured logging interface used throughout the
// package. Adapt your logger of choice (slog, zap, zerolog) to this
// interface; keysAndValues are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NoopLogger returns a Logger that discards everything. It is the default
// when no logger is configured.
func NoopLogger() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}
