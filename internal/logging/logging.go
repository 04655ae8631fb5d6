// Package logging builds the slog loggers shared by binaries and interceptors.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) slog() slog.Level {
	switch Level(strings.ToLower(string(l))) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a text logger on stderr.
func New(level Level) *slog.Logger {
	return NewWithWriter(level, os.Stderr)
}

func NewWithWriter(level Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.slog()}))
}

// NewTee writes every record to console and to a JSON file handler.
func NewTee(level Level, console io.Writer, file io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level.slog()}
	return slog.New(teeHandler{
		slog.NewTextHandler(console, opts),
		slog.NewJSONHandler(file, opts),
	})
}

func WithComponent(l *slog.Logger, component string) *slog.Logger {
	if l == nil {
		l = Discard()
	}
	return l.With("component", component)
}

func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard lets constructors accept a nil logger.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
