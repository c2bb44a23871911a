package log

import (
	"context"
	"sync/atomic"
)

var globalLogger atomic.Pointer[Logger]

func init() {
	globalLogger.Store(New(Config{Name: "global"}))
}

// SetGlobalConfig rebuilds the global logger from the config.
// Hooks registered on the previous global logger are not carried over.
func SetGlobalConfig(config Config) {
	globalLogger.Store(New(config))
}

// SetGlobalLogger replaces the global logger.
func SetGlobalLogger(logger *Logger) {
	globalLogger.Store(logger)
}

// GetGlobalLogger returns the current global logger.
func GetGlobalLogger() *Logger {
	return globalLogger.Load()
}

// DebugEnabled reports whether the global logger emits debug entries.
// Callers use it to skip expensive field construction.
func DebugEnabled(ctx context.Context) bool {
	_ = ctx
	return GetGlobalLogger().DebugEnabled()
}

func Debug(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Debug(ctx, msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Info(ctx, msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Warn(ctx, msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Error(ctx, msg, fields...)
}
