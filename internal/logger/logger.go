// Package logger wraps log/slog with the error-first helpers used across
// the service.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// AppLogger is the structured logger handed to every component.
type AppLogger interface {
	Debug(message string, args ...slog.Attr)
	Info(message string, args ...slog.Attr)
	Warn(message string, args ...slog.Attr)
	Error(message string, err error, args ...slog.Attr)
	Fatal(message string, err error, args ...slog.Attr)
	With(args ...slog.Attr) AppLogger
}

type appLogger struct {
	log *slog.Logger
}

// NewAppSLogger builds a JSON logger writing to stdout at the given level.
func NewAppSLogger(appHash, level string) AppLogger {
	return NewAppSLoggerTo(os.Stdout, appHash, level)
}

// NewAppSLoggerTo is NewAppSLogger with an explicit writer.
func NewAppSLoggerTo(w io.Writer, appHash, level string) AppLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	l := slog.New(handler)
	if appHash != "" {
		l = l.With(slog.String("app_hash", appHash))
	}
	return &appLogger{log: l}
}

// NewNop returns a logger that discards everything.
func NewNop() AppLogger {
	return &appLogger{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel maps debug|info|warn|error to a slog level, defaulting to info.
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

func (l *appLogger) Debug(message string, args ...slog.Attr) {
	l.log.LogAttrs(context.Background(), slog.LevelDebug, message, args...)
}

func (l *appLogger) Info(message string, args ...slog.Attr) {
	l.log.LogAttrs(context.Background(), slog.LevelInfo, message, args...)
}

func (l *appLogger) Warn(message string, args ...slog.Attr) {
	l.log.LogAttrs(context.Background(), slog.LevelWarn, message, args...)
}

func (l *appLogger) Error(message string, err error, args ...slog.Attr) {
	l.log.LogAttrs(context.Background(), slog.LevelError, message, withErr(err, args)...)
}

func (l *appLogger) Fatal(message string, err error, args ...slog.Attr) {
	l.log.LogAttrs(context.Background(), slog.LevelError, message, withErr(err, args)...)
	os.Exit(1)
}

func (l *appLogger) With(args ...slog.Attr) AppLogger {
	anyArgs := make([]any, 0, len(args))
	for _, a := range args {
		anyArgs = append(anyArgs, a)
	}
	return &appLogger{log: l.log.With(anyArgs...)}
}

func withErr(err error, args []slog.Attr) []slog.Attr {
	if err == nil {
		return args
	}
	return append(args, slog.String("error", err.Error()))
}
