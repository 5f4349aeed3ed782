// Package trace is the event-trace sink every other package logs
// through. It wraps log/slog with a colored console handler and an
// optional file handler, fanned out by hand rather than through a
// fan-out library (see DESIGN.md).
package trace

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/encodeous/tint"
)

// Options configures New.
type Options struct {
	// Level is the minimum level written to the console handler. The
	// file handler, when enabled, always receives everything at Debug
	// and above, independent of this setting.
	Level slog.Level
	// FilePath, if non-empty, additionally opens (creating or
	// appending to) a plain-text log at this path.
	FilePath string
	// NoColor disables ANSI color codes in the console handler, for
	// output that will be redirected to a file or piped elsewhere.
	NoColor bool
}

// New builds a *slog.Logger per Options. The returned closer must be
// called to release the optional file handle; it is a no-op when no
// file was opened.
func New(w io.Writer, opts Options) (*slog.Logger, func() error, error) {
	console := tint.NewHandler(w, &tint.Options{
		Level:      opts.Level,
		TimeFormat: "15:04:05.000",
		NoColor:    opts.NoColor,
	})

	if opts.FilePath == "" {
		return slog.New(console), func() error { return nil }, nil
	}

	f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	file := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(NewMulti(console, file)), f.Close, nil
}

// Multi fans a record out to every handler it wraps, continuing past an
// individual handler's error rather than aborting the rest. It's a
// hand-rolled stand-in for what slog-multi provides upstream (see
// DESIGN.md for why that dependency isn't used here).
type Multi struct {
	handlers []slog.Handler
}

// NewMulti returns a Multi that fans out to every given handler.
func NewMulti(handlers ...slog.Handler) *Multi {
	return &Multi{handlers: handlers}
}

func (m *Multi) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *Multi) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Multi) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &Multi{handlers: next}
}

func (m *Multi) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &Multi{handlers: next}
}
