// Package logger provides process-wide structured logging for kb.
//
// Messages go through log/slog. Stderr gets a text handler when it is a
// terminal and a JSON handler otherwise; an optional log file always gets
// JSON. Both sinks are combined with slog-multi. Without --verbose only
// warnings and errors are emitted.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/term"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	file    io.WriteCloser
	level   = new(slog.LevelVar)
	log     = build()
)

func init() {
	level.Set(slog.LevelWarn)
}

// build assembles the handler chain. Callers hold mu.
func build() *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	if isTerminal(output) {
		console = slog.NewTextHandler(output, opts)
	} else {
		console = slog.NewJSONHandler(output, opts)
	}

	if file == nil {
		return slog.New(console)
	}
	return slog.New(slogmulti.Fanout(console, slog.NewJSONHandler(file, opts)))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelWarn)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the console writer. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	log = build()
}

// SetLogFile additionally writes JSON records to path. An empty path
// closes any open log file.
func SetLogFile(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		_ = file.Close()
		file = nil
	}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			log = build()
			return fmt.Errorf("open log file: %w", err)
		}
		file = f
	}
	log = build()
	return nil
}

// Logger returns the current structured logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func emit(l slog.Level, format string, args ...any) {
	logger := Logger()
	ctx := context.Background()
	if !logger.Enabled(ctx, l) {
		return
	}
	logger.Log(ctx, l, fmt.Sprintf(format, args...))
}

// Debug logs a message at debug level.
func Debug(format string, args ...any) {
	emit(slog.LevelDebug, format, args...)
}

// Section marks the start of a pipeline stage in debug output.
func Section(name string) {
	logger := Logger()
	logger.Debug("section", slog.String("name", name))
}

// Info logs an informational message.
func Info(format string, args ...any) {
	emit(slog.LevelInfo, format, args...)
}

// Warn logs a warning.
func Warn(format string, args ...any) {
	emit(slog.LevelWarn, format, args...)
}

// Error logs an error.
func Error(format string, args ...any) {
	emit(slog.LevelError, format, args...)
}
