package log

import (
	"context"
	"log/slog"

	"go.uber.org/zap/zapcore"
)

// AsSlog returns a *slog.Logger backed by this logger, for libraries that
// speak the standard structured logging interface.
func (l *Logger) AsSlog() *slog.Logger {
	return slog.New(&slogHandler{logger: l})
}

type slogHandler struct {
	logger *Logger
	fields []Field
	group  string
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.level.Enabled(slogToZapLevel(level))
}

func (h *slogHandler) Handle(ctx context.Context, record slog.Record) error {
	fields := make([]Field, 0, len(h.fields)+record.NumAttrs())
	fields = append(fields, h.fields...)

	record.Attrs(func(attr slog.Attr) bool {
		fields = append(fields, h.attrToField(attr))
		return true
	})

	h.logger.log(ctx, slogToZapLevel(record.Level), record.Message, fields)

	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]Field, 0, len(h.fields)+len(attrs))
	fields = append(fields, h.fields...)

	for _, attr := range attrs {
		fields = append(fields, h.attrToField(attr))
	}

	return &slogHandler{
		logger: h.logger,
		fields: fields,
		group:  h.group,
	}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	group := name
	if h.group != "" {
		group = h.group + "." + name
	}

	return &slogHandler{
		logger: h.logger,
		fields: h.fields,
		group:  group,
	}
}

func (h *slogHandler) attrToField(attr slog.Attr) Field {
	key := attr.Key
	if h.group != "" {
		key = h.group + "." + key
	}

	return Any(key, attr.Value.Any())
}

func slogToZapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
