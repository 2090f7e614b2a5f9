package internal

import (
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// NewLogger returns a single-line text logger tagged with a fresh run id.
func NewLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("run_id", uuid.NewString())
}
