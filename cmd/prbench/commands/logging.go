package commands

import (
	"log/slog"
	"os"
)

// SetupLogging installs a text-handler slog.Logger as the package default,
// level-gated by level ("debug", "info", "warn", "error"; unrecognized
// values fall back to info). Grounded on cmd/cie/index.go's
// logLevel-then-SetDefault wiring.
func SetupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
