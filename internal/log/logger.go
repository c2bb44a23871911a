package log

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps a zap logger with a context-aware API and a hook chain.
// Hooks run on every entry and may pull fields out of the context.
type Logger struct {
	zl    *zap.Logger
	level zap.AtomicLevel
	hooks []Hook
}

// New builds a Logger from the config. Invalid level or encoding values fall
// back to info/json rather than failing the boot.
func New(config Config) *Logger {
	level := zap.NewAtomicLevelAt(parseLevel(config.Level))

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	var encoder zapcore.Encoder

	switch strings.ToLower(config.Encoding) {
	case "console":
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, newSyncer(config), level)

	zl := zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))
	if config.Name != "" {
		zl = zl.Named(config.Name)
	}

	return &Logger{
		zl:    zl,
		level: level,
	}
}

func newSyncer(config Config) zapcore.WriteSyncer {
	switch strings.ToLower(config.Output) {
	case "stderr":
		return zapcore.Lock(os.Stderr)
	case "file":
		if config.File.Path == "" {
			return zapcore.Lock(os.Stdout)
		}

		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.File.Path,
			MaxSize:    config.File.MaxSizeMB,
			MaxBackups: config.File.MaxBackups,
			MaxAge:     int(config.File.MaxAge.Hours() / 24),
			Compress:   config.File.Compress,
		})
	default:
		return zapcore.Lock(os.Stdout)
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// AddHook registers a hook. Hooks must be registered during boot, before the
// logger is shared across goroutines.
func (l *Logger) AddHook(hook Hook) {
	l.hooks = append(l.hooks, hook)
}

// With returns a child logger that always carries the given fields.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{
		zl:    l.zl.With(fields...),
		level: l.level,
		hooks: l.hooks,
	}
}

// DebugEnabled reports whether debug entries are currently emitted.
func (l *Logger) DebugEnabled() bool {
	return l.level.Enabled(zapcore.DebugLevel)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields []Field) {
	ce := l.zl.Check(level, msg)
	if ce == nil {
		return
	}

	for _, hook := range l.hooks {
		fields = hook.Apply(ctx, msg, fields...)
	}

	ce.Write(fields...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}
