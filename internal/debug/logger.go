// Package debug provides the process-wide diagnostic logger built on log/slog.
package debug

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// discardHandler mirrors slog.DiscardHandler (Go 1.24+) for older toolchains.
var discardHandler = slog.NewTextHandler(io.Discard, nil)

var (
	mu      sync.RWMutex
	logger  = slog.New(discardHandler)
	enabled bool
)

// Init configures the logger. When enable is true diagnostic output goes to
// stderr at debug level; otherwise every log call is discarded.
func Init(enable bool) {
	mu.Lock()
	defer mu.Unlock()

	enabled = enable
	if enable {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	} else {
		logger = slog.New(discardHandler)
	}
}

// Enabled reports whether diagnostic logging is active.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) { get().Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { get().Info(msg, args...) }

// Warn logs at warning level.
func Warn(msg string, args ...any) { get().Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { get().Error(msg, args...) }

// With returns a child logger carrying the given attributes.
func With(args ...any) *slog.Logger { return get().With(args...) }
