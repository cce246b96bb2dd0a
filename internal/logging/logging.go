// Package logging builds the structured logger shared by every hogqueue
// process. Config.Format picks colorized console output or JSON; the CLI
// sets it from --log-format, which defaults to console for every
// subcommand.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Config controls the logger's verbosity and rendering.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output io.Writer
}

// New builds a logger from Config. An empty Output defaults to stderr, so
// stdout stays free for command output like a submitted jobid.
func New(cfg Config) *slog.Logger {
	level := parseLevel(cfg.Level)

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(writer, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
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
