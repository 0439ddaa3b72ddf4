// Package logging builds the process-wide slog logger
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/preslavrachev/sitebase/config"
)

// Rotation limits for LOG_FILE
const (
	maxSizeMB  = 10
	maxBackups = 3
	maxAgeDays = 28
)

// New creates a text logger writing to stderr, or to a rotating file when
// cfg.File is set. The returned closer releases the file and is never nil.
func New(cfg *config.LogConfig) (*slog.Logger, io.Closer) {
	if cfg == nil {
		cfg = &config.LogConfig{}
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
		out, closer = rotator, rotator
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return slog.New(handler), closer
}

// ParseLevel maps a level name to slog.Level, info by default
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Used by tests and as the
// fallback when a component is constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or Discard() when l is nil
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
