package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/phsym/console-slog"
)

// newLogger builds the process logger. "console" is meant for humans at a
// terminal; "json" writes one object per line with a "ts" time key.
func newLogger(w io.Writer, format string, debug bool) (*slog.Logger, error) {
	level := &slog.LevelVar{}
	if debug {
		level.Set(slog.LevelDebug)
	}

	var handler slog.Handler
	switch format {
	case "console", "":
		handler = console.NewHandler(w, &console.HandlerOptions{
			AddSource: debug,
			Level:     level,
		})
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			AddSource: debug,
			Level:     level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && len(groups) == 0 {
					a.Key = "ts"
				}
				return a
			},
		})
	default:
		return nil, fmt.Errorf("unknown log format %q (use console or json)", format)
	}
	return slog.New(handler), nil
}
