package runtime

import (
	"log/slog"
	"os"
	"strings"
)

func DefaultLogger() *slog.Logger {
	return NewLogger("info")
}

// NewLogger returns a stderr text logger at the named level. Unknown names
// fall back to info.
func NewLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

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
