package testutil

import (
	"io"
	"log/slog"
)

// NewLogger returns a logger that discards all output, for quiet tests.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
