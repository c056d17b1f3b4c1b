// Package logger writes diagnostic lines for sopctx to stderr.
//
// Debug, Info and Warn lines are only written in verbose mode (--verbose).
// Error lines are always written.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level tags a diagnostic line.
type Level string

// Levels, in increasing severity.
const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu      sync.RWMutex
	verbose bool
	out     io.Writer = os.Stderr
)

// SetVerbose toggles verbose mode.
func SetVerbose(v bool) {
	mu.Lock()
	verbose = v
	mu.Unlock()
}

// IsVerbose reports whether verbose mode is on.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput redirects diagnostics, mainly for tests. Nil restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	mu.Lock()
	out = w
	mu.Unlock()
}

// Debug traces pipeline internals.
func Debug(format string, args ...any) { write(LevelDebug, format, args...) }

// Info reports progress.
func Info(format string, args ...any) { write(LevelInfo, format, args...) }

// Warn reports a recoverable problem, such as a skipped file or a
// degraded answer.
func Warn(format string, args ...any) { write(LevelWarn, format, args...) }

// Error reports a failure. It is written even when verbose mode is off.
func Error(format string, args ...any) { write(LevelError, format, args...) }

// Elapsed traces the duration of an operation started at start:
//
//	defer logger.Elapsed("embed batch", time.Now())
func Elapsed(name string, start time.Time) {
	write(LevelDebug, "%s took %s", name, time.Since(start).Round(time.Millisecond))
}

func write(level Level, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if level != LevelError && !verbose {
		return
	}
	fmt.Fprintf(out, "[%s] %s\n", level, fmt.Sprintf(format, args...))
}
