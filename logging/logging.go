// Package logging sets up the structured logger shared by every component
// of the daemon, in the style of encodeous-nylon's core.Start/setupDebugging:
// a tint-backed slog.Handler for readable console output.
package logging

import (
	"log/slog"
	"os"

	"github.com/encodeous/tint"
)

// New builds a logger writing to w (os.Stderr in production) at level,
// prefixed with name so multi-component logs (coordinator, supervisor,
// dhcp) stay attributable at a glance.
func New(name string, level slog.Level, w *os.File) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:        level,
		AddSource:    false,
		TimeFormat:   "15:04:05",
		CustomPrefix: name,
	}))
}

// Default builds a logger at slog.LevelInfo writing to os.Stderr.
// cmd/aethercastd calls New instead, to pick the level at startup.
func Default(name string) *slog.Logger {
	return New(name, slog.LevelInfo, os.Stderr)
}
