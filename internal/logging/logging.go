// Package logging configures the process-wide slog logger.
package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// Configure sets the default slog logger from a level name ("none", "error",
// "warn", "info", "debug") and an optional output file (stdout if empty).
// It returns the opened *os.File, if any, so the caller can close it on
// shutdown.
func Configure(level, file string) (*os.File, error) {
	var handlerOpts slog.HandlerOptions

	switch level {
	case "none":
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	case "error":
		handlerOpts.Level = slog.LevelError
	case "warn":
		handlerOpts.Level = slog.LevelWarn
	case "info":
		handlerOpts.Level = slog.LevelInfo
	case "debug":
		handlerOpts.Level = slog.LevelDebug
	default:
		return nil, errors.New("logging: unexpected log level " + level)
	}

	var f *os.File
	var handler slog.Handler
	if file == "" {
		handler = slog.NewTextHandler(os.Stdout, &handlerOpts)
	} else {
		opened, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		f = opened
		handler = slog.NewJSONHandler(f, &handlerOpts)
	}

	slog.SetDefault(slog.New(handler))
	return f, nil
}
