// Package lib holds pooled objects and small helpers shared by the connection
// manager, the scheduler and the thread pool.
package lib

import (
	"go.uber.org/zap"
)

// Logger returns l, or a no-op logger when l is nil.
func Logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// LogPanic records a recovered panic value together with the goroutine stack.
func LogPanic(l *zap.Logger, msg string, v interface{}) {
	Logger(l).Error(msg, zap.Any("panic", v), zap.Stack("stack"))
}
