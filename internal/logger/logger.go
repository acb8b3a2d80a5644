// Package logger provides the shared slog front for gopwsh.
//
// All packages log through the package-level functions so the host
// application controls verbosity in one place via SetDebug.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu    sync.RWMutex
	level = new(slog.LevelVar)
	log   = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
)

// SetDebug toggles debug-level logging. The default level is info.
func SetDebug(debug bool) {
	if debug {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// SetOutput redirects log output, primarily for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// WithSession returns a logger with the session id pre-attached.
func WithSession(sessionID string) *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log.With("sessionID", sessionID)
}

// Debug logs at debug level with key/value pairs.
func Debug(msg string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	log.Debug(msg, args...)
}

// Info logs at info level with key/value pairs.
func Info(msg string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	log.Info(msg, args...)
}

// Warn logs at warn level with key/value pairs.
func Warn(msg string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	log.Warn(msg, args...)
}

// Error logs at error level with key/value pairs.
func Error(msg string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	log.Error(msg, args...)
}
