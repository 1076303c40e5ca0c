package main

import (
	"io"
	"log/slog"
	"log/syslog"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var levelColors = map[slog.Level]*color.Color{
	slog.LevelDebug: color.New(color.Faint),
	slog.LevelWarn:  color.New(color.FgYellow),
	slog.LevelError: color.New(color.FgRed, color.Bold),
}

// newLogger builds the root logger. A daemon logs to syslog; a foreground
// process logs to out, as colored text on a terminal and JSON otherwise.
// The returned function releases the log destination.
func newLogger(out io.Writer, debug, daemonized bool) (*slog.Logger, func() error) {
	level := slog.LevelInfo
	if debug || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if daemonized {
		w, err := syslog.New(syslog.LOG_USER|syslog.LOG_INFO, "pktlogd")
		if err == nil {
			opts.ReplaceAttr = dropTime
			return slog.New(slog.NewTextHandler(w, opts)), w.Close
		}
		// out is the null device here
		log := slog.New(slog.NewJSONHandler(out, opts))
		log.Warn("syslog unavailable", "error", err)
		return log, noClose
	}

	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		opts.ReplaceAttr = terminalAttr
		return slog.New(slog.NewTextHandler(out, opts)), noClose
	}
	return slog.New(slog.NewJSONHandler(out, opts)), noClose
}

func noClose() error { return nil }

func dropTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

func terminalAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if !ok || level == slog.LevelInfo {
			return slog.Attr{}
		}
		if c := levelColors[level]; c != nil {
			return slog.String(slog.LevelKey, c.Sprint(level.String()))
		}
	}
	return a
}
