package logger

import (
	"log/slog"
	"os"
)

// New returns the root structured logger. Level defaults to info; set
// FACELEDGER_LOG_LEVEL=debug to see per-frame capture decisions.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("FACELEDGER_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
