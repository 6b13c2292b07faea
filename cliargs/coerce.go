package cliargs

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// coerce converts value towards typ. Invalid input is returned unchanged so
// that type validation can report it; only a custom CoerceFunc produces err.
func coerce(f *field, typ FieldType, value any) (any, string, error) {
	if f.coerceFn != nil {
		v, err := f.coerceFn(value)
		if err != nil {
			return value, "", err
		}
		return v, "", nil
	}
	if !f.coerce {
		return value, "", nil
	}

	switch typ {
	case TypeNumber:
		return toNumber(value), "", nil
	case TypeInteger:
		return toInteger(value), "", nil
	case TypeBoolean:
		return toBool(value), "", nil
	case TypeArray:
		return toArray(value), "", nil
	case TypeJSON:
		s, ok := value.(string)
		if !ok {
			return value, "", nil
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return s, "not valid JSON, using raw string", nil
		}
		return parsed, "", nil
	}

	return value, "", nil
}

func toNumber(value any) any {
	switch v := value.(type) {
	case string:
		if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return n
		}
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	}
	return value
}

func toInteger(value any) any {
	switch v := value.(type) {
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	case int64:
		return int(v)
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	}
	return value
}

// ParseBool accepts true/1/yes/on and false/0/no/off, case-insensitively.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func toBool(value any) any {
	if s, ok := value.(string); ok {
		if b, err := ParseBool(s); err == nil {
			return b
		}
	}
	return value
}

func toArray(value any) any {
	switch v := value.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	}
	return []any{value}
}
