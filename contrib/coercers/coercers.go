// Package coercers provides reusable cliargs.CoerceFunc factories for common
// value shapes that the built-in field types do not cover.
//
// Attach one to a definition with Type cliargs.TypeCustom:
//
//	{Name: "timeout", Type: cliargs.TypeCustom, Coerce: coercers.Duration()}
//
// Every coercer passes through values that already have the target Go type,
// so preset files and defaults may supply either form.
package coercers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/drewfead/clikit/cliargs"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func asString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fmt.Errorf("expected a string, got %T", raw)
}

// Timestamp parses RFC3339 strings into time.Time.
func Timestamp() cliargs.CoerceFunc {
	return func(raw any) (any, error) {
		if t, ok := raw.(time.Time); ok {
			return t, nil
		}
		s, err := asString(raw)
		if err != nil {
			return nil, err
		}

		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("invalid RFC3339 timestamp %q: %w", s, err)
		}

		return t, nil
	}
}

// Duration parses Go duration strings (e.g. "5m30s") into time.Duration.
func Duration() cliargs.CoerceFunc {
	return func(raw any) (any, error) {
		switch v := raw.(type) {
		case time.Duration:
			return v, nil
		case int:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		}
		s, err := asString(raw)
		if err != nil {
			return nil, err
		}

		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", s, err)
		}

		return d, nil
	}
}

// KeyValue parses "k1=v1,k2=v2" into map[string]string. Repeated options
// (Multiple) are coerced one element at a time, so "-l a=1 -l b=2" yields a
// slice of single-entry maps; use Merge to combine them.
func KeyValue() cliargs.CoerceFunc {
	return func(raw any) (any, error) {
		if m, ok := raw.(map[string]string); ok {
			return m, nil
		}
		if m, ok := raw.(map[string]any); ok {
			out := make(map[string]string, len(m))
			for k, v := range m {
				out[k] = fmt.Sprint(v)
			}
			return out, nil
		}
		s, err := asString(raw)
		if err != nil {
			return nil, err
		}

		out := make(map[string]string)
		if s == "" {
			return out, nil
		}
		for _, pair := range strings.Split(s, ",") {
			k, v, ok := strings.Cut(pair, "=")
			k = strings.TrimSpace(k)
			if !ok || k == "" {
				return nil, fmt.Errorf("invalid key=value pair %q", pair)
			}
			out[k] = strings.TrimSpace(v)
		}

		return out, nil
	}
}

// Merge folds a value produced by KeyValue, or a slice of them, into one map.
// Later entries win.
func Merge(value any) map[string]string {
	out := make(map[string]string)
	switch v := value.(type) {
	case map[string]string:
		for k, val := range v {
			out[k] = val
		}
	case []any:
		for _, item := range v {
			for k, val := range Merge(item) {
				out[k] = val
			}
		}
	}
	return out
}

// FieldMask parses comma-separated field paths into a protobuf FieldMask.
func FieldMask() cliargs.CoerceFunc {
	return func(raw any) (any, error) {
		if m, ok := raw.(*fieldmaskpb.FieldMask); ok {
			return m, nil
		}
		s, err := asString(raw)
		if err != nil {
			return nil, err
		}
		if s == "" {
			return &fieldmaskpb.FieldMask{}, nil
		}

		paths := strings.Split(s, ",")
		for i, p := range paths {
			paths[i] = strings.TrimSpace(p)
		}

		return &fieldmaskpb.FieldMask{Paths: paths}, nil
	}
}

// Struct parses a JSON object into a protobuf Struct. Preset files may
// supply the object directly.
func Struct() cliargs.CoerceFunc {
	return func(raw any) (any, error) {
		switch v := raw.(type) {
		case *structpb.Struct:
			return v, nil
		case map[string]any:
			st, err := structpb.NewStruct(v)
			if err != nil {
				return nil, fmt.Errorf("invalid object for Struct: %w", err)
			}
			return st, nil
		}
		s, err := asString(raw)
		if err != nil {
			return nil, err
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil, fmt.Errorf("invalid JSON for Struct %q: %w", s, err)
		}
		st, err := structpb.NewStruct(obj)
		if err != nil {
			return nil, fmt.Errorf("invalid JSON for Struct %q: %w", s, err)
		}

		return st, nil
	}
}

// ProtoTimestamp is Timestamp producing a protobuf Timestamp.
func ProtoTimestamp() cliargs.CoerceFunc {
	parse := Timestamp()
	return func(raw any) (any, error) {
		if ts, ok := raw.(*timestamppb.Timestamp); ok {
			return ts, nil
		}
		v, err := parse(raw)
		if err != nil {
			return nil, err
		}
		return timestamppb.New(v.(time.Time)), nil
	}
}

// ProtoDuration is Duration producing a protobuf Duration.
func ProtoDuration() cliargs.CoerceFunc {
	parse := Duration()
	return func(raw any) (any, error) {
		if d, ok := raw.(*durationpb.Duration); ok {
			return d, nil
		}
		v, err := parse(raw)
		if err != nil {
			return nil, err
		}
		return durationpb.New(v.(time.Duration)), nil
	}
}
