package cliargs

import (
	"regexp"
)

// FieldType is the semantic type of a declared argument or option.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeNumber   FieldType = "number"
	TypeInteger  FieldType = "integer"
	TypeBoolean  FieldType = "boolean"
	TypeArray    FieldType = "array"
	TypeEnum     FieldType = "enum"
	TypeEmail    FieldType = "email"
	TypeURL      FieldType = "url"
	TypeJSON     FieldType = "json"
	TypeFilePath FieldType = "file-path"
	TypeCustom   FieldType = "custom"
)

// CoerceFunc converts a raw string (or an already-typed value from a preset)
// into the field's Go value. Returning an error leaves the original value in
// place and records an invalid_type error.
type CoerceFunc func(raw any) (any, error)

// Validator is a custom per-field check run after the built-in checks.
// A non-empty warning is recorded even when err is nil.
type Validator func(value any) (warning string, err error)

// Schema validates, and may transform, a field value.
type Schema interface {
	Parse(value any) (any, error)
}

// ArgumentDefinition declares a positional argument.
type ArgumentDefinition struct {
	Name        string
	Description string
	Type        FieldType
	Required    bool
	Default     any
	Min         *float64
	Max         *float64
	Pattern     *regexp.Regexp
	Choices     []string
	// Multiple makes the argument consume every remaining positional.
	// Only meaningful on the last declared argument.
	Multiple  bool
	EnvVar    string
	SecretKey string
	Secret    bool
	NoCoerce  bool
	Coerce    CoerceFunc
	Validator Validator
	Schema    Schema
}

// OptionDefinition declares a named option (flag).
type OptionDefinition struct {
	Name        string
	Short       string
	Aliases     []string
	Description string
	Type        FieldType
	Required    bool
	Default     any
	Min         *float64
	Max         *float64
	Pattern     *regexp.Regexp
	Choices     []string
	// Multiple accumulates repeated occurrences into a slice.
	Multiple  bool
	EnvVar    string
	SecretKey string
	// Secret hides the value from validation errors and logs.
	Secret    bool
	NoCoerce  bool
	Coerce    CoerceFunc
	Validator Validator
	Schema    Schema
	Conflicts []string
	Requires  []string
	Hidden    bool
}

// Bound returns a pointer to v, for use in Min/Max.
func Bound(v float64) *float64 {
	return &v
}

// field is the shared view of arguments and options used by the resolver.
type field struct {
	kind      string // "arguments" or "options"
	name      string
	typ       FieldType
	required  bool
	def       any
	min, max  *float64
	pattern   *regexp.Regexp
	choices   []string
	multiple  bool
	envVar    string
	secretKey string
	secret    bool
	coerce    bool
	coerceFn  CoerceFunc
	validator Validator
	schema    Schema
	conflicts []string
	requires  []string
}

func (f *field) path() string {
	return f.kind + "." + f.name
}

func (f *field) isBool() bool {
	return f.typ == TypeBoolean
}

func (f *field) isNumeric() bool {
	return f.typ == TypeNumber || f.typ == TypeInteger
}

func argumentField(d ArgumentDefinition) *field {
	return &field{
		kind:      "arguments",
		name:      d.Name,
		typ:       typeOrDefault(d.Type),
		required:  d.Required,
		def:       d.Default,
		min:       d.Min,
		max:       d.Max,
		pattern:   d.Pattern,
		choices:   d.Choices,
		multiple:  d.Multiple,
		envVar:    d.EnvVar,
		secretKey: d.SecretKey,
		secret:    d.Secret || d.SecretKey != "",
		coerce:    !d.NoCoerce,
		coerceFn:  d.Coerce,
		validator: d.Validator,
		schema:    d.Schema,
	}
}

func optionField(d OptionDefinition) *field {
	return &field{
		kind:      "options",
		name:      d.Name,
		typ:       typeOrDefault(d.Type),
		required:  d.Required,
		def:       d.Default,
		min:       d.Min,
		max:       d.Max,
		pattern:   d.Pattern,
		choices:   d.Choices,
		multiple:  d.Multiple,
		envVar:    d.EnvVar,
		secretKey: d.SecretKey,
		secret:    d.Secret || d.SecretKey != "",
		coerce:    !d.NoCoerce,
		coerceFn:  d.Coerce,
		validator: d.Validator,
		schema:    d.Schema,
		conflicts: d.Conflicts,
		requires:  d.Requires,
	}
}

func typeOrDefault(t FieldType) FieldType {
	if t == "" {
		return TypeString
	}
	return t
}
