// Package logger defines the logging interface used by the core packages.
// infra/logger provides the zerolog implementation.
package logger

// Fields are structured key/value pairs attached to a log entry.
type Fields = map[string]any

// Logger is implemented by every component logger.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, fields Fields)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
