// Package logging provides logging utilities for bancho3.
package logging

import (
	"log"
	"log/slog"
	"os"
)

// DebugEnabled controls whether Debug() produces output.
// banchod sets it from the "debug" setting in config.json.
var DebugEnabled bool

// Debug logs a message only when DebugEnabled is true. Cheap no-op when
// disabled, used in hot paths (packet dispatch) where a structured logger
// call would be wasted work.
func Debug(format string, args ...any) {
	if DebugEnabled {
		log.Printf("DEBUG: "+format, args...)
	}
}

// New builds the process-wide structured logger. json selects a JSON handler
// (suited to log aggregation); otherwise a human-readable text handler is used.
func New(json bool, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
