package zapadapter

import (
	"go.uber.org/zap"
)

// ZapLogger is an adapter that implements the ratelimit.Logger interface
// using a zap.SugaredLogger internally.
type ZapLogger struct {
	logger *zap.SugaredLogger
}

// New creates a new ZapLogger from a zap.Logger.
//
// If a nil logger is provided, it uses zap.NewNop() internally, which
// is a no-op logger that discards all messages.
func New(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{logger: l.Sugar()}
}

// Debugf logs a debug-level message with formatting.
func (z *ZapLogger) Debugf(format string, args ...interface{}) {
	z.logger.Debugf(format, args...)
}

// Warnf logs a warn-level message with formatting. The engine uses this
// level when the counter store is down and it fails open.
func (z *ZapLogger) Warnf(format string, args ...interface{}) {
	z.logger.Warnf(format, args...)
}

// Errorf logs an error-level message with formatting.
func (z *ZapLogger) Errorf(format string, args ...interface{}) {
	z.logger.Errorf(format, args...)
}
