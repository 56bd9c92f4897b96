package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging surface used across the clipper.
// Each call carries a message, an event key and an object of fields.
type Logger interface {
	DebugObj(msg, key string, obj map[string]any)
	InfoObj(msg, key string, obj map[string]any)
	WarnObj(msg, key string, obj map[string]any)
	ErrorObj(msg, key string, obj map[string]any)
	Sync() error
}

// Options configure the zap backend.
type Options struct {
	Level  string
	Format string // "json" or "console"
}

type zapLogger struct {
	z *zap.Logger
}

// New builds a zap backed Logger.
func New(opts Options) (Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(defaultString(opts.Level, "info"))))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(opts.Format, "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &zapLogger{z: z}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) Logger {
	if z == nil {
		return NopLogger{}
	}
	return &zapLogger{z: z}
}

func (l *zapLogger) DebugObj(msg, key string, obj map[string]any) {
	l.z.Debug(msg, fields(key, obj)...)
}

func (l *zapLogger) InfoObj(msg, key string, obj map[string]any) {
	l.z.Info(msg, fields(key, obj)...)
}

func (l *zapLogger) WarnObj(msg, key string, obj map[string]any) {
	l.z.Warn(msg, fields(key, obj)...)
}

func (l *zapLogger) ErrorObj(msg, key string, obj map[string]any) {
	l.z.Error(msg, fields(key, obj)...)
}

func (l *zapLogger) Sync() error { return l.z.Sync() }

func fields(key string, obj map[string]any) []zap.Field {
	out := []zap.Field{zap.String("event", key)}
	if len(obj) > 0 {
		out = append(out, zap.Any(key, obj))
	}
	return out
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) DebugObj(string, string, map[string]any) {}
func (NopLogger) InfoObj(string, string, map[string]any)  {}
func (NopLogger) WarnObj(string, string, map[string]any)  {}
func (NopLogger) ErrorObj(string, string, map[string]any) {}
func (NopLogger) Sync() error                             { return nil }

// Ensure returns log, or a NopLogger when log is nil.
func Ensure(log Logger) Logger {
	if log == nil {
		return NopLogger{}
	}
	return log
}
