// Package logger builds the process-wide structured logger. All logs are
// written as JSON to <logDir>/system.log, rotated by size.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the system logger.
type Options struct {
	Level slog.Level
	// MaxSizeMB is the size at which system.log is rotated. Defaults to 50.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept. Defaults to 5.
	MaxBackups int
	// Stderr mirrors every record to standard error.
	Stderr bool
}

// NewSystemLogger creates a JSON slog.Logger that writes to <logDir>/system.log.
// The directory is created if it does not exist. The returned closer
// releases the log file.
func NewSystemLogger(logDir string, opts Options) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return nil, nil, fmt.Errorf("creating log directory %q: %w", logDir, err)
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 50
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "system.log"),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}

	var w io.Writer = file
	if opts.Stderr {
		w = io.MultiWriter(file, os.Stderr)
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	return slog.New(handler), file, nil
}

// NewStderrLogger creates a JSON logger on standard error, for one-shot
// commands that should not touch the log directory.
func NewStderrLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
