package status

import (
	"log/slog"
	"strings"

	"github.com/roach88/texstack/internal/errs"
)

// Logger forwards status messages to a slog.Logger.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a Backend on top of logger. A nil logger uses
// slog.Default().
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

// Report implements Backend.
func (l *Logger) Report(kind Kind, msg string, err error) {
	var attrs []any
	if err != nil {
		attrs = append(attrs, "error", strings.Join(errs.Chain(err), "; "))
	}

	switch kind {
	case KindWarning:
		l.logger.Warn(msg, attrs...)
	case KindError:
		l.logger.Error(msg, attrs...)
	default:
		l.logger.Info(msg, attrs...)
	}
}
