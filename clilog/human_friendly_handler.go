package clilog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// SourceKey is the attribute key naming the component that emitted a record.
// HumanFriendlyHandler renders it next to the level instead of as key=value.
const SourceKey = "source"

// HumanFriendlyHandler is a slog.Handler that formats logs in a human-friendly way
// with colorized log levels and no timestamps, ideal for CLI commands.
//
//	[INFO] (executor) command finished command=deploy duration=12ms
//
// Thread safety: Handle assembles the complete log line in a local buffer and
// writes it in a single w.Write call, so no mutex is needed. All fields are
// immutable after construction.
type HumanFriendlyHandler struct {
	w      io.Writer
	level  slog.Leveler
	color  bool
	source string
	group  string
	attrs  []slog.Attr
}

// HumanFriendlySlogHandler creates a new HumanFriendlyHandler that writes to w.
func HumanFriendlySlogHandler(w io.Writer, opts *slog.HandlerOptions) *HumanFriendlyHandler {
	h := &HumanFriendlyHandler{
		w:     w,
		color: true,
	}
	if opts != nil {
		h.level = opts.Level
	}
	if h.level == nil {
		h.level = slog.LevelInfo
	}
	return h
}

// WithoutColor returns a copy of h that writes plain level tags, for sinks
// that are not terminals.
func (h *HumanFriendlyHandler) WithoutColor() *HumanFriendlyHandler {
	c := *h
	c.color = false
	return &c
}

// Enabled reports whether the handler handles records at the given level.
func (h *HumanFriendlyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes a log record.
func (h *HumanFriendlyHandler) Handle(_ context.Context, r slog.Record) error {
	var buf []byte

	buf = append(buf, h.levelTag(r.Level)...)

	source := h.source
	var recordAttrs []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == SourceKey && h.group == "" {
			source = a.Value.String()
			return true
		}
		recordAttrs = append(recordAttrs, a)
		return true
	})
	if source != "" {
		buf = append(buf, " ("...)
		buf = append(buf, source...)
		buf = append(buf, ')')
	}

	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	for _, attr := range h.attrs {
		buf = appendAttr(buf, "", attr)
	}
	for _, attr := range recordAttrs {
		buf = appendAttr(buf, h.group, attr)
	}

	buf = append(buf, '\n')

	_, err := h.w.Write(buf)
	return err
}

// WithAttrs returns a new handler with the given attributes added.
func (h *HumanFriendlyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(c.attrs, h.attrs)
	for _, a := range attrs {
		if a.Key == SourceKey && h.group == "" {
			c.source = a.Value.String()
			continue
		}
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return &c
}

// WithGroup returns a new handler whose subsequent attribute keys are
// prefixed with name, e.g. "timing.duration".
func (h *HumanFriendlyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if c.group != "" {
		c.group += "." + name
	} else {
		c.group = name
	}
	return &c
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

func (h *HumanFriendlyHandler) levelTag(level slog.Level) string {
	tag, color := levelLabel(level)
	if !h.color {
		return tag
	}
	return color + tag + colorReset
}

func levelLabel(level slog.Level) (string, string) {
	switch {
	case level >= slog.LevelError:
		return "[ERROR]", colorRed
	case level >= slog.LevelWarn:
		return "[WARN]", colorYellow
	case level >= slog.LevelInfo:
		return "[INFO]", colorBlue
	default:
		return "[DEBUG]", colorGray
	}
}

// appendAttr appends " key=value", flattening groups into dotted keys.
func appendAttr(buf []byte, prefix string, attr slog.Attr) []byte {
	if attr.Equal(slog.Attr{}) {
		return buf
	}

	key := attr.Key
	if prefix != "" {
		key = prefix + "." + key
	}

	if attr.Value.Kind() == slog.KindGroup {
		for _, a := range attr.Value.Group() {
			buf = appendAttr(buf, key, a)
		}
		return buf
	}

	buf = append(buf, ' ')
	buf = append(buf, key...)
	buf = append(buf, '=')
	return appendValue(buf, attr.Value)
}

// appendValue appends a formatted value to the buffer.
func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if needsQuoting(s) {
			return append(buf, fmt.Sprintf("%q", s)...)
		}
		return append(buf, s...)
	case slog.KindInt64:
		return append(buf, fmt.Sprintf("%d", v.Int64())...)
	case slog.KindUint64:
		return append(buf, fmt.Sprintf("%d", v.Uint64())...)
	case slog.KindFloat64:
		return append(buf, fmt.Sprintf("%g", v.Float64())...)
	case slog.KindBool:
		return append(buf, fmt.Sprintf("%t", v.Bool())...)
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindTime:
		return append(buf, v.Time().Format("15:04:05")...)
	case slog.KindLogValuer:
		return appendValue(buf, v.Resolve())
	default:
		s := fmt.Sprint(v.Any())
		if needsQuoting(s) {
			return append(buf, fmt.Sprintf("%q", s)...)
		}
		return append(buf, s...)
	}
}

func needsQuoting(s string) bool {
	return s == "" || strings.ContainsAny(s, " \t\n\"=")
}
