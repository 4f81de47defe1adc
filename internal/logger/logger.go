// Package logger provides the daemon's structured logging: a context-first
// call style (logger.Info(ctx, msg, kvs...)) backed by log/slog, fanned out
// to a human-readable console handler and, when a run directory is
// configured, a rotated JSON file handler.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

// Logger is the daemon-wide logging facade. All methods are safe to call
// with a nil *slog.Logger receiver chain via the package-level helpers,
// which fall back to a default logger when none is attached to ctx.
type Logger struct {
	slog *slog.Logger
}

// Option configures New.
type Option func(*options)

type options struct {
	debug   bool
	format  string // "text" or "json"
	writer  io.Writer
	logFile *lumberjack.Logger
	quiet   bool
}

// WithDebug enables debug-level logging.
func WithDebug() Option { return func(o *options) { o.debug = true } }

// WithFormat selects the console encoding ("text" or "json").
func WithFormat(format string) Option { return func(o *options) { o.format = format } }

// WithWriter overrides the console writer (tests use this to capture output).
func WithWriter(w io.Writer) Option { return func(o *options) { o.writer = w } }

// WithQuiet suppresses the console handler, leaving only the file handler
// (if configured) active.
func WithQuiet() Option { return func(o *options) { o.quiet = true } }

// WithRotatedFile adds a lumberjack-rotated JSON file handler alongside the
// console handler.
func WithRotatedFile(path string, maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *options) {
		o.logFile = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
	}
}

// New builds a Logger from the given options.
func New(opts ...Option) *Logger {
	o := &options{format: "text", writer: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}

	var handlers []slog.Handler
	if !o.quiet {
		handlers = append(handlers, consoleHandler(o.writer, o.format, level))
	}
	if o.logFile != nil {
		handlers = append(handlers, slog.NewJSONHandler(o.logFile, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}))
	}

	var h slog.Handler
	switch len(handlers) {
	case 0:
		h = slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: level})
	case 1:
		h = handlers[0]
	default:
		h = slogmulti.Fanout(handlers...)
	}

	return &Logger{slog: slog.New(h)}
}

func consoleHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	hopts := &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}
	if format == "json" {
		return slog.NewJSONHandler(w, hopts)
	}
	return slog.NewTextHandler(w, hopts)
}

// WithContext attaches l to ctx so downstream code can retrieve it with
// FromContext.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the Logger attached to ctx, or a default
// text Logger writing to stderr if none was attached.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return defaultLogger
}

var defaultLogger = New(WithWriter(os.Stderr))

func (l *Logger) log(level slog.Level, msg string, kvs ...any) {
	if l == nil || l.slog == nil {
		return
	}
	l.slog.Log(context.Background(), level, msg, kvs...)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, kvs ...any) { l.log(slog.LevelDebug, msg, kvs...) }

// Info logs at info level.
func (l *Logger) Info(msg string, kvs ...any) { l.log(slog.LevelInfo, msg, kvs...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, kvs ...any) { l.log(slog.LevelWarn, msg, kvs...) }

// Error logs at error level.
func (l *Logger) Error(msg string, kvs ...any) { l.log(slog.LevelError, msg, kvs...) }

// Fatal logs at error level then exits the process with status 1.
func (l *Logger) Fatal(msg string, kvs ...any) {
	l.log(slog.LevelError, msg, kvs...)
	os.Exit(1)
}

// Debugf/Infof/Warnf/Errorf are printf-style variants with no structured
// key/value pairs.
func (l *Logger) Debugf(format string, args ...any) { l.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.Error(fmt.Sprintf(format, args...)) }

// Package-level, context-first helpers: the call style used throughout the
// daemon is logger.Info(ctx, msg, kvs...), resolving the Logger from ctx.

// Debug logs at debug level using the Logger attached to ctx.
func Debug(ctx context.Context, msg string, kvs ...any) { FromContext(ctx).Debug(msg, kvs...) }

// Info logs at info level using the Logger attached to ctx.
func Info(ctx context.Context, msg string, kvs ...any) { FromContext(ctx).Info(msg, kvs...) }

// Warn logs at warn level using the Logger attached to ctx.
func Warn(ctx context.Context, msg string, kvs ...any) { FromContext(ctx).Warn(msg, kvs...) }

// Error logs at error level using the Logger attached to ctx.
func Error(ctx context.Context, msg string, kvs ...any) { FromContext(ctx).Error(msg, kvs...) }

// Fatal logs at error level using the Logger attached to ctx, then exits.
func Fatal(ctx context.Context, msg string, kvs ...any) { FromContext(ctx).Fatal(msg, kvs...) }

// Debugf/Infof/Warnf/Errorf are the printf-style, context-first variants.
func Debugf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Debugf(format, args...)
}
func Infof(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Infof(format, args...)
}
func Warnf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Warnf(format, args...)
}
func Errorf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Errorf(format, args...)
}
