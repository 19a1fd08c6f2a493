// Package logging provides the single structured logger used by every
// pgbulk process (CLI, copy worker, index worker, CDC services).
package logging

import (
	"os"

	"github.com/pterm/pterm"
)

// Logger is the structured logging surface. A BUG-class invariant
// violation is always logged with Bug, which prefixes the message so it is
// grep-able in operator logs regardless of the surrounding output.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Bug(msg string, args ...any)

	// WithFields returns a derived logger that always includes the given
	// key/value pairs, used to tag a worker's pid/role/table on every
	// subsequent log line.
	WithFields(args ...any) Logger
}

type ptermLogger struct {
	logger pterm.Logger
	fields []any
}

// New returns the default logger, writing structured key=value lines to
// stderr.
func New() Logger {
	return &ptermLogger{
		logger: pterm.DefaultLogger.WithWriter(os.Stderr),
	}
}

// NewNoop returns a logger that discards all output, used in tests.
func NewNoop() Logger {
	return &ptermLogger{logger: pterm.DefaultLogger.WithWriter(noopWriter{})}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func (l *ptermLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.logger.Args(append(append([]any{}, l.fields...), args...)...))
}

func (l *ptermLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, l.logger.Args(append(append([]any{}, l.fields...), args...)...))
}

func (l *ptermLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, l.logger.Args(append(append([]any{}, l.fields...), args...)...))
}

func (l *ptermLogger) Bug(msg string, args ...any) {
	l.logger.Error("BUG: "+msg, l.logger.Args(append(append([]any{}, l.fields...), args...)...))
}

func (l *ptermLogger) WithFields(args ...any) Logger {
	return &ptermLogger{
		logger: l.logger,
		fields: append(append([]any{}, l.fields...), args...),
	}
}
