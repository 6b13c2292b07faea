package clilog

import (
	"context"
	"log/slog"
	"slices"
)

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored by WithLogger, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}

// FromContextOr returns the logger stored by WithLogger, or fallback.
func FromContextOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return fallback
}

// ForSource tags every record from the returned logger with a source
// attribute, e.g. "pipeline" or "executor".
func ForSource(logger *slog.Logger, source string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String(SourceKey, source))
}

// Redacted is the placeholder logged in place of sensitive values.
const Redacted = "[REDACTED]"

// RedactedAttrs turns values into a group attribute, replacing the value of
// every key listed in sensitive with Redacted. Keys are sorted for stable
// output.
func RedactedAttrs(name string, values map[string]any, sensitive []string) slog.Attr {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	attrs := make([]any, 0, len(keys))
	for _, k := range keys {
		v := values[k]
		if slices.Contains(sensitive, k) {
			v = Redacted
		}
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.Group(name, attrs...)
}
