package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 30
)

type ctxKey struct{}

// Init installs the default logger on stderr. When file is set, records are
// also written to a rotating log file.
func Init(service, level, appEnv, file string) *slog.Logger {
	logger := slog.New(newHandler(service, level, appEnv, file, os.Stderr))
	slog.SetDefault(logger)
	return logger
}

func newHandler(service, level, appEnv, file string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	out := w
	var fileErr error
	if file != "" {
		if fileErr = os.MkdirAll(filepath.Dir(file), 0o755); fileErr == nil {
			out = io.MultiWriter(w, &lumberjack.Logger{
				Filename:   file,
				MaxSize:    DefaultMaxSizeMB,
				MaxBackups: DefaultMaxBackups,
				MaxAge:     DefaultMaxAgeDays,
				Compress:   true,
			})
		}
	}

	var handler slog.Handler
	if appEnv == "development" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	handler = handler.WithAttrs([]slog.Attr{slog.String("service", service)})

	if fileErr != nil {
		slog.New(handler).Warn("log file disabled", "file", file, "error", fileErr)
	}
	return handler
}

func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
