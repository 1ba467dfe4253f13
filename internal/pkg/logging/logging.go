// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Settings is the subset of configuration the logger needs.
type Settings interface {
	GetAppName() string
	GetLogLevel() string
	GetLogDirectory() string
	GetLogMaxSizeMB() int
	GetLogMaxBackups() int
	GetLogMaxAgeDays() int
	IsProduction() bool
	IsTest() bool
}

// New returns a logger writing to stdout and to a rotated file under the log
// directory. Production uses JSON records; other environments use text.
// Tests never touch the filesystem.
func New(s Settings) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(s.GetLogLevel())}

	var out io.Writer = os.Stdout
	if !s.IsTest() && s.GetLogDirectory() != "" {
		if err := os.MkdirAll(s.GetLogDirectory(), 0o755); err == nil {
			out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
				Filename:   filepath.Join(s.GetLogDirectory(), s.GetAppName()+".log"),
				MaxSize:    s.GetLogMaxSizeMB(),
				MaxBackups: s.GetLogMaxBackups(),
				MaxAge:     s.GetLogMaxAgeDays(),
				Compress:   true,
			})
		}
	}

	var handler slog.Handler
	if s.IsProduction() {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler).With(slog.String("app", s.GetAppName()))
}

// ParseLevel maps a configured level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
