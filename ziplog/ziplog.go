// Package ziplog adapts mailcore.Logger onto go.uber.org/zap.
package ziplog

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mailforge/mailcore"
)

// Level mirrors zapcore.Level so callers don't need to import zap directly
// just to pick a minimum log level.
type Level = zapcore.Level

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
)

// Logger adapts mailcore.Logger onto a *zap.Logger.
type Logger struct {
	z     *zap.Logger
	attrs []mailcore.LogAttr
}

// New wraps an existing *zap.Logger.
func New(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

// NewProduction builds a Logger with zap's JSON production encoder at the
// given minimum level.
func NewProduction(level Level) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

func fields(base, extra []mailcore.LogAttr) []zap.Field {
	out := make([]zap.Field, 0, len(base)+len(extra))
	for _, a := range base {
		out = append(out, zap.Any(a.Key, a.Value))
	}
	for _, a := range extra {
		out = append(out, zap.Any(a.Key, a.Value))
	}
	return out
}

func (l *Logger) Debug(_ context.Context, msg string, attrs ...mailcore.LogAttr) {
	l.z.Debug(msg, fields(l.attrs, attrs)...)
}

func (l *Logger) Info(_ context.Context, msg string, attrs ...mailcore.LogAttr) {
	l.z.Info(msg, fields(l.attrs, attrs)...)
}

func (l *Logger) Warn(_ context.Context, msg string, attrs ...mailcore.LogAttr) {
	l.z.Warn(msg, fields(l.attrs, attrs)...)
}

func (l *Logger) Error(_ context.Context, msg string, attrs ...mailcore.LogAttr) {
	l.z.Error(msg, fields(l.attrs, attrs)...)
}

func (l *Logger) WithAttrs(attrs ...mailcore.LogAttr) mailcore.Logger {
	merged := make([]mailcore.LogAttr, 0, len(l.attrs)+len(attrs))
	merged = append(merged, l.attrs...)
	merged = append(merged, attrs...)
	return &Logger{z: l.z, attrs: merged}
}

func (l *Logger) WithSession(sessionID mailcore.SessionID) mailcore.Logger {
	return l.WithAttrs(mailcore.Attr(mailcore.AttrSessionID, string(sessionID)))
}

// Sync flushes any buffered log entries; call during shutdown.
func (l *Logger) Sync() error { return l.z.Sync() }

var _ mailcore.Logger = (*Logger)(nil)
