// Package obs provides the logging facade shared by every adapter component.
package obs

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger is the minimal logging surface adapter components depend on.
// Implementations must be safe for concurrent use.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type defaultLogger struct {
	prefix string
	slog   *slog.Logger
}

// DefaultLogger returns a Logger backed by slog.Default(), prefixing every
// message so adapter output is distinguishable in shared process logs.
func DefaultLogger() Logger {
	return &defaultLogger{prefix: "onebot: ", slog: slog.Default()}
}

// SlogLogger wraps an existing *slog.Logger as a Logger, for hosts that want
// adapter diagnostics routed through their own structured logger.
func SlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &defaultLogger{prefix: "onebot: ", slog: l}
}

func (l *defaultLogger) Debugf(format string, args ...any) {
	l.slog.Debug(l.prefix + fmt.Sprintf(format, args...))
}

func (l *defaultLogger) Infof(format string, args ...any) {
	l.slog.Info(l.prefix + fmt.Sprintf(format, args...))
}

func (l *defaultLogger) Warnf(format string, args ...any) {
	l.slog.Warn(l.prefix + fmt.Sprintf(format, args...))
}

func (l *defaultLogger) Errorf(format string, args ...any) {
	l.slog.Error(l.prefix + fmt.Sprintf(format, args...))
}

// NewInstanceTag returns a short, unique per-process identifier used to tag
// startup log lines.
func NewInstanceTag() string {
	return "ob-" + uuid.New().String()[:8]
}

// NewLineLogger returns a Logger that writes plain lines to stderr, used by
// the CLI entrypoint before any structured sink is configured.
func NewLineLogger() Logger {
	return SlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}
