package cliargs

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"unicode/utf8"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// validateField runs the built-in checks for f against its coerced value.
func validateField(f *field, value any) []ValidationError {
	if !f.multiple {
		return validateValue(f, f.typ, f.path(), value)
	}

	list, _ := value.([]any)
	var errs []ValidationError
	elemType := f.typ
	if elemType == TypeArray {
		elemType = TypeString
	}
	for i, item := range list {
		errs = append(errs, validateValue(f, elemType, fmt.Sprintf("%s[%d]", f.path(), i), item)...)
	}
	return errs
}

func validateValue(f *field, typ FieldType, path string, value any) []ValidationError {
	mismatch := func(expected string) []ValidationError {
		return []ValidationError{{
			Path:     path,
			Message:  fmt.Sprintf("expected %s, received %s", expected, describe(value)),
			Code:     CodeInvalidType,
			Expected: expected,
			Received: received(f, value),
		}}
	}

	switch typ {
	case TypeCustom, TypeJSON:
		return nil

	case TypeNumber:
		n, ok := value.(float64)
		if !ok {
			return mismatch("number")
		}
		return checkRange(f, path, n, "")

	case TypeInteger:
		n, ok := value.(int)
		if !ok {
			return mismatch("integer")
		}
		return checkRange(f, path, float64(n), "")

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return mismatch("boolean")
		}
		return nil

	case TypeArray:
		list, ok := value.([]any)
		if !ok {
			return mismatch("array")
		}
		return checkRange(f, path, float64(len(list)), " items")
	}

	s, ok := value.(string)
	if !ok {
		return mismatch("string")
	}

	var errs []ValidationError
	errs = append(errs, checkRange(f, path, float64(utf8.RuneCountInString(s)), " characters")...)

	if f.pattern != nil && !f.pattern.MatchString(s) {
		errs = append(errs, ValidationError{
			Path:     path,
			Message:  fmt.Sprintf("value does not match pattern %s", f.pattern),
			Code:     CodeInvalidString,
			Expected: f.pattern.String(),
			Received: received(f, s),
		})
	}

	if (typ == TypeEnum || len(f.choices) > 0) && !slices.Contains(f.choices, s) {
		errs = append(errs, ValidationError{
			Path:     path,
			Message:  fmt.Sprintf("invalid value %q, expected one of %v", redact(f, s), f.choices),
			Code:     CodeInvalidEnumValue,
			Expected: f.choices,
			Received: received(f, s),
		})
	}

	switch typ {
	case TypeEmail:
		if !emailPattern.MatchString(s) {
			errs = append(errs, ValidationError{
				Path:     path,
				Message:  "invalid email address",
				Code:     CodeInvalidEmail,
				Expected: "email",
				Received: received(f, s),
			})
		}
	case TypeURL:
		if u, err := url.ParseRequestURI(s); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Path:     path,
				Message:  "invalid URL",
				Code:     CodeInvalidURL,
				Expected: "url",
				Received: received(f, s),
			})
		}
	}

	return errs
}

func checkRange(f *field, path string, n float64, unit string) []ValidationError {
	var errs []ValidationError
	if f.min != nil && n < *f.min {
		errs = append(errs, ValidationError{
			Path:     path,
			Message:  fmt.Sprintf("must be at least %g%s", *f.min, unit),
			Code:     CodeTooSmall,
			Expected: *f.min,
			Received: receivedNumber(f, n),
		})
	}
	if f.max != nil && n > *f.max {
		errs = append(errs, ValidationError{
			Path:     path,
			Message:  fmt.Sprintf("must be at most %g%s", *f.max, unit),
			Code:     CodeTooBig,
			Expected: *f.max,
			Received: receivedNumber(f, n),
		})
	}
	return errs
}

// received hides values of secret fields.
func received(f *field, v any) any {
	if f.secret {
		return nil
	}
	return v
}

func receivedNumber(f *field, n float64) any {
	if f.secret {
		return nil
	}
	return n
}

func redact(f *field, s string) string {
	if f.secret {
		return "***"
	}
	return s
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "nothing"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
