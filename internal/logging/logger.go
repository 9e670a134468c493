// Package logging wraps zerolog with the handful of calls the pipeline uses.
//
// Every stage logs key/value pairs:
//
//	log.Info(ctx, "job started", "job_id", id, "key", key)
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a context-aware, structured logger.
type Logger struct {
	zl zerolog.Logger
}

// Options controls how New builds the logger.
type Options struct {
	Level   string
	Format  string // json or console
	Output  io.Writer
	Service string
}

// New creates a Logger for the given options.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	var zl zerolog.Logger
	if opts.Format == "console" {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		zl = zerolog.New(out)
	}
	zl = zl.Level(parseLevel(opts.Level)).With().Timestamp().Logger()
	if opts.Service != "" {
		zl = zl.With().Str("service", opts.Service).Logger()
	}
	return &Logger{zl: zl}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Debug logs a debug message.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, l.zl.Debug(), msg, args)
}

// Info logs an informational message.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, l.zl.Info(), msg, args)
}

// Warn logs unusual but non-fatal conditions.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, l.zl.Warn(), msg, args)
}

// Error logs failures.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, l.zl.Error(), msg, args)
}

// With returns a child logger that always includes the given pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{zl: l.zl.With().Fields(pairs(args)).Logger()}
}

func (l *Logger) emit(ctx context.Context, evt *zerolog.Event, msg string, args []any) {
	if evt == nil {
		return
	}
	if ctx != nil {
		evt = evt.Ctx(ctx)
	}
	evt.Fields(pairs(args)).Msg(msg)
}

// pairs turns a flat key/value list into a map. A trailing key without a
// value is kept under "!BADKEY" the way slog does it.
func pairs(args []any) map[string]any {
	fields := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			fields["!BADKEY"] = key
			break
		}
		if err, isErr := args[i+1].(error); isErr {
			fields[key] = err.Error()
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
