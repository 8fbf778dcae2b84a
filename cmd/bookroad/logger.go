package main

import (
	"io"
	"log/slog"
	"os"
)

// setupLogger installs the default logger. tee, when set, receives a copy of
// every record.
func setupLogger(verbose bool, tee io.Writer) {
	logger, level := newLogger(verbose, tee)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())
}

func newLogger(verbose bool, tee io.Writer) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	var out io.Writer = os.Stdout
	if tee != nil {
		out = io.MultiWriter(os.Stdout, tee)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
