// Package log wraps log/slog with the component and field conventions used
// across neovest's server, worker and admin commands.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a slog.Logger that remembers which component it belongs to.
type Logger struct {
	*slog.Logger
	component string
	base      slog.Handler
	attrs     []any // added through With, replayed by WithComponent
}

type Config struct {
	Level     slog.Level
	Component string
	Output    io.Writer    // defaults to stdout
	Handler   slog.Handler // overrides Level and Output when set
}

func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Component: ComponentApp,
	}
}

func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		out := config.Output
		if out == nil {
			out = os.Stdout
		}
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: config.Level})
	}
	component := config.Component
	if component == "" {
		component = ComponentApp
	}
	return &Logger{
		Logger:    slog.New(handler).With(FieldComponent, component),
		component: component,
		base:      handler,
	}
}

// ParseLevel maps LOG_LEVEL values to slog levels; unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (l *Logger) With(args ...any) *Logger {
	attrs := append(append([]any(nil), l.attrs...), args...)
	return &Logger{Logger: l.Logger.With(args...), component: l.component, base: l.base, attrs: attrs}
}

// WithComponent returns a child logger whose records carry the new component.
// The parent's component attribute is replaced, not duplicated; other
// attributes added with With are kept.
func (l *Logger) WithComponent(component string) *Logger {
	base := l.base
	if base == nil {
		base = l.Logger.Handler()
	}
	args := append([]any{FieldComponent, component}, l.attrs...)
	return &Logger{
		Logger:    slog.New(base).With(args...),
		component: component,
		base:      base,
		attrs:     l.attrs,
	}
}

// WithContextFields adds request scoped fields found in ctx.
func (l *Logger) WithContextFields(ctx context.Context) *Logger {
	var args []any
	if id, ok := ctx.Value(RequestIDContextKey).(string); ok && id != "" {
		args = append(args, FieldRequestID, id)
	}
	if uid, ok := ctx.Value(UserIDContextKey).(string); ok && uid != "" {
		args = append(args, FieldUserID, uid)
	}
	if len(args) == 0 {
		return l
	}
	return l.With(args...)
}

func (l *Logger) Component() string {
	return l.component
}

// SetDefault makes logger the process wide slog default.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}
