// Package cli provides utility functions for the command line daemons.
package cli

import (
	"io"
	"log/slog"

	"github.com/openaviation/grievance-insights/internal/common/constants"
)

// NewLogger builds the process logger from the verbose flag count.
//
// The returned logger is meant to be created once at startup and handed to every component.
func NewLogger(level int, jsonLogs bool, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: getLevel(level)}
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func getLevel(level int) slog.Level {
	switch level {
	case 0:
		return constants.DefaultLogLevel
	case 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
