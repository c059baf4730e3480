package errors

import (
	"context"
	"log/slog"
	"sync"
)

var warned sync.Map

// WarnOnce logs a warning the first time it is called with a given key.
// It reports whether the warning was logged.
func WarnOnce(logger *slog.Logger, key, msg string, args ...any) bool {
	if _, loaded := warned.LoadOrStore(key, struct{}{}); loaded {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), slog.LevelWarn, msg, args...)
	return true
}

// WarnCode logs the registered warning for code once per key.
func WarnCode(logger *slog.Logger, code, key string, args ...any) bool {
	e := New(code)
	return WarnOnce(logger, code+"|"+key, e.Message, append([]any{"code", code, "detail", e.Detail}, args...)...)
}

// ResetWarnings forgets which warnings were already logged.
func ResetWarnings() {
	warned.Range(func(k, _ any) bool {
		warned.Delete(k)
		return true
	})
}
