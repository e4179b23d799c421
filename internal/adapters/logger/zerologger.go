package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type ctxFieldsKey struct{}

// ContextWithFields returns a context whose log entries carry fields.
// Fields already present on ctx are kept unless overwritten.
func ContextWithFields(ctx context.Context, fields map[string]interface{}) context.Context {
	merged := make(map[string]interface{}, len(fields))
	if existing, ok := ctx.Value(ctxFieldsKey{}).(map[string]interface{}); ok {
		for k, v := range existing {
			merged[k] = v
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	return context.WithValue(ctx, ctxFieldsKey{}, merged)
}

func fieldsFromContext(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(ctxFieldsKey{}).(map[string]interface{})
	return fields
}

// ZeroLogger implements the ports.Logger interface on top of zerolog.
type ZeroLogger struct {
	logger zerolog.Logger
	level  LogLevel
}

// Options configures a ZeroLogger.
type Options struct {
	Level   LogLevel
	Console bool      // Human readable output instead of JSON
	Out     io.Writer // Defaults to os.Stderr
}

// New creates a zerolog backed logger.
func New(opts Options) *ZeroLogger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(out).Level(opts.Level.zerolog()).With().Timestamp().Logger()
	return &ZeroLogger{logger: zl, level: opts.Level}
}

// Level returns the configured threshold.
func (l *ZeroLogger) Level() LogLevel {
	return l.level
}

func (l *ZeroLogger) log(ctx context.Context, ev *zerolog.Event, msg string, err error, fields ...map[string]interface{}) {
	if ev == nil {
		return // Below the configured level
	}
	if err != nil {
		ev = ev.Err(err)
	}
	if ctxFields := fieldsFromContext(ctx); len(ctxFields) > 0 {
		ev = ev.Fields(ctxFields)
	}
	for _, f := range fields {
		if f != nil {
			ev = ev.Fields(f)
		}
	}
	ev.Msg(msg)
}

// Debug logs a message at Debug level.
func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, l.logger.Debug(), msg, nil, fields...)
}

// Info logs a message at Info level.
func (l *ZeroLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, l.logger.Info(), msg, nil, fields...)
}

// Warn logs a message at Warning level.
func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, l.logger.Warn(), msg, nil, fields...)
}

// Error logs an error message at Error level.
func (l *ZeroLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.log(ctx, l.logger.Error(), msg, err, fields...)
}
