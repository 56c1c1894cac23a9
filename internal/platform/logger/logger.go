package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. JSON output so log aggregation works the
// same in dev and production; level comes from LOG_LEVEL when set.
func New() *slog.Logger {
	level := slog.LevelInfo
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		_ = level.UnmarshalText([]byte(v))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
