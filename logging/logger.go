// Package logging defines the Logger used across the infrastructure tooling
// and a zap-backed implementation of it.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger accepted by every client in this module.
// Fields added with WithField/WithFields are carried by the returned logger
// only; the receiver is left untouched.
type Logger interface {
	WithField(key string, value any) Logger
	WithFields(fields map[string]any) Logger
	Debug(msg string)
	Debugf(format string, args ...any)
	Info(msg string)
	Infof(format string, args ...any)
	Warn(msg string)
	Warnf(format string, args ...any)
	Error(msg string)
	Errorf(format string, args ...any)
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZap builds a production zap logger writing JSON to stderr. Debug
// messages are emitted only when verbose is true.
//
//nolint:ireturn
func NewZap(verbose bool) (Logger, func(), error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	sync := func() { _ = l.Sync() }

	return FromZap(l), sync, nil
}

// FromZap wraps an existing zap logger.
//
//nolint:ireturn
func FromZap(l *zap.Logger) Logger {
	return &zapLogger{sugar: l.Sugar()}
}

//nolint:ireturn
func (z *zapLogger) WithField(key string, value any) Logger {
	return &zapLogger{sugar: z.sugar.With(key, value)}
}

//nolint:ireturn
func (z *zapLogger) WithFields(fields map[string]any) Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	return &zapLogger{sugar: z.sugar.With(args...)}
}

func (z *zapLogger) Debug(msg string)                  { z.sugar.Debug(msg) }
func (z *zapLogger) Debugf(format string, args ...any) { z.sugar.Debugf(format, args...) }
func (z *zapLogger) Info(msg string)                   { z.sugar.Info(msg) }
func (z *zapLogger) Infof(format string, args ...any)  { z.sugar.Infof(format, args...) }
func (z *zapLogger) Warn(msg string)                   { z.sugar.Warn(msg) }
func (z *zapLogger) Warnf(format string, args ...any)  { z.sugar.Warnf(format, args...) }
func (z *zapLogger) Error(msg string)                  { z.sugar.Error(msg) }
func (z *zapLogger) Errorf(format string, args ...any) { z.sugar.Errorf(format, args...) }

// Nop returns a Logger that discards everything.
//
//nolint:ireturn
func Nop() Logger {
	return FromZap(zap.NewNop())
}
