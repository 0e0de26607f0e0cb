// Package logging is the structured logging facade used by every package
// in this module. It wraps charmbracelet/log behind a narrow interface so
// call sites never depend on the concrete logging library directly.
package logging

import (
	"context"
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Logger is the facade every package logs through.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

func (l Level) toCharm() charmlog.Level {
	switch l {
	case DebugLevel:
		return charmlog.DebugLevel
	case WarnLevel:
		return charmlog.WarnLevel
	case ErrorLevel:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// Config controls how a Logger is constructed.
type Config struct {
	Level  Level
	Output io.Writer
	JSON   bool
}

func DefaultConfig() Config {
	return Config{Level: InfoLevel, Output: os.Stderr}
}

type logger struct {
	l *charmlog.Logger
}

func New(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	l := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
		Level:           cfg.Level.toCharm(),
	})
	if cfg.JSON {
		l.SetFormatter(charmlog.JSONFormatter)
	}
	return &logger{l: l}
}

func (g *logger) Debug(msg string, keyvals ...any) { g.l.Debug(msg, keyvals...) }
func (g *logger) Info(msg string, keyvals ...any)  { g.l.Info(msg, keyvals...) }
func (g *logger) Warn(msg string, keyvals ...any)  { g.l.Warn(msg, keyvals...) }
func (g *logger) Error(msg string, keyvals ...any) { g.l.Error(msg, keyvals...) }
func (g *logger) With(keyvals ...any) Logger       { return &logger{l: g.l.With(keyvals...)} }

var defaultLogger Logger = New(DefaultConfig())

// Init replaces the package-level default logger, called once from cmd/.
func Init(cfg Config) { defaultLogger = New(cfg) }

func GetDefault() Logger { return defaultLogger }

type ctxKey struct{}

func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or the package default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return defaultLogger
}

func Debug(msg string, keyvals ...any) { defaultLogger.Debug(msg, keyvals...) }
func Info(msg string, keyvals ...any)  { defaultLogger.Info(msg, keyvals...) }
func Warn(msg string, keyvals ...any)  { defaultLogger.Warn(msg, keyvals...) }
func Error(msg string, keyvals ...any) { defaultLogger.Error(msg, keyvals...) }
