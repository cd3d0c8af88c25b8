// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New returns a tint console logger for format "text" and a JSON logger for
// "json", both writing to w.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var h slog.Handler
	switch format {
	case "text", "":
		h = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.StampMilli,
			NoColor:    !isTerminal(w),
		})
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(h).With("app", "smartmeter"), nil
}

type fdWriter interface {
	Fd() uintptr
}

// isTerminal keeps colour escapes out of the journal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(fdWriter)
	return ok && isatty.IsTerminal(f.Fd())
}
