package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"
)

const LevelTrace slog.Level = -8

func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				switch attr.Value.Any().(slog.Level) {
				case LevelTrace:
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attr
		},
	}))
}

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

func Trace(msg string, args ...any) {
	trace(context.TODO(), 2, msg, args...)
}

func TraceContext(ctx context.Context, msg string, args ...any) {
	trace(ctx, 2, msg, args...)
}

func trace(ctx context.Context, skip int, msg string, args ...any) {
	if logger := FromContext(ctx); logger.Enabled(ctx, LevelTrace) {
		// skip [Callers, trace] plus the exported wrapper
		var pcs [1]uintptr
		runtime.Callers(skip+1, pcs[:])
		record := slog.NewRecord(time.Now(), LevelTrace, msg, pcs[0])
		record.Add(args...)
		logger.Handler().Handle(ctx, record)
	}
}
