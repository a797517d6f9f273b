package lib

import (
	"io"
	"log/slog"
	"strings"

	g_error "github.com/phil-mansfield/impact/lib/error"
)

// NewLogger creates the logger used by every mode. level is one of "debug",
// "info", "warn", or "error" and format is either "text" or "json".
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, g_error.InvalidArgumentf("logging.level is '%s', but "+
			"it must be 'debug', 'info', 'warn', or 'error'", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, g_error.InvalidArgumentf("logging.format is '%s', but it "+
		"must be 'text' or 'json'", format)
}
