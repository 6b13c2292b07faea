package clilog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelNone disables logging entirely when used as the minimum level.
const LevelNone = slog.Level(1000)

// Format selects the terminal log encoding.
type Format string

const (
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
)

// ParseLevel maps a --verbosity value to a slog level.
// Accepted values: debug, info, warn (or warning), error, none.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "none", "off", "silent":
		return LevelNone, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid verbosity %q (expected debug, info, warn, error or none)", s)
}

// LevelName is the inverse of ParseLevel.
func LevelName(level slog.Level) string {
	switch {
	case level >= LevelNone:
		return "none"
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// Rotation configures the rotating log file.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Options describes how Configure builds a logger.
type Options struct {
	Level  slog.Level
	Format Format
	// Output receives terminal logs; defaults to os.Stderr.
	Output io.Writer
	// File, when set, additionally receives every record as JSON through a
	// rotating lumberjack writer.
	File     string
	Rotation Rotation
}

// Configure builds a logger from opts. The returned io.Closer releases the
// log file, if any, and is always non-nil.
func Configure(opts Options) (*slog.Logger, io.Closer, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var terminal slog.Handler
	switch opts.Format {
	case "", FormatHuman:
		terminal = HumanFriendlySlogHandler(out, handlerOpts)
	case FormatJSON:
		terminal = MachineFriendlySlogHandler(out, handlerOpts)
	default:
		return nil, nopCloser{}, fmt.Errorf("invalid log format %q (expected human or json)", opts.Format)
	}

	if opts.File == "" {
		return slog.New(terminal), nopCloser{}, nil
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.Rotation.MaxSizeMB,
		MaxBackups: opts.Rotation.MaxBackups,
		MaxAge:     opts.Rotation.MaxAgeDays,
		Compress:   opts.Rotation.Compress,
	}
	handler := Fanout(terminal, MachineFriendlySlogHandler(file, handlerOpts))
	return slog.New(handler), file, nil
}

// MachineFriendlySlogHandler returns a JSON handler for machine-readable logging.
func MachineFriendlySlogHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewJSONHandler(w, opts)
}

// Discard returns a logger that drops everything, for tests and for
// components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanoutHandler sends every record to all handlers that accept its level.
type fanoutHandler struct {
	handlers []slog.Handler
}

// Fanout returns a handler that duplicates records to each of handlers.
func Fanout(handlers ...slog.Handler) slog.Handler {
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, inner := range h.handlers {
		if inner.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, inner := range h.handlers {
		if !inner.Enabled(ctx, r.Level) {
			continue
		}
		if err := inner.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, inner := range h.handlers {
		out[i] = inner.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: out}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, inner := range h.handlers {
		out[i] = inner.WithGroup(name)
	}
	return &fanoutHandler{handlers: out}
}
