package cliargs

import (
	"fmt"
	"strings"
)

// Validation error codes.
const (
	CodeRequired          = "required"
	CodeInvalidType       = "invalid_type"
	CodeTooSmall          = "too_small"
	CodeTooBig            = "too_big"
	CodeInvalidString     = "invalid_string"
	CodeInvalidEnumValue  = "invalid_enum_value"
	CodeInvalidEmail      = "invalid_email"
	CodeInvalidURL        = "invalid_url"
	CodeSchema            = "schema"
	CodeCustom            = "custom"
	CodeOptionConflict    = "option_conflict"
	CodeMissingDependency = "missing_dependency"
	CodeUnknownOption     = "unknown_option"
)

// ValidationError is a single field-level problem found while parsing.
// Errors are accumulated on ParseResult.Validation rather than returned.
type ValidationError struct {
	Path     string `json:"path" yaml:"path"`
	Message  string `json:"message" yaml:"message"`
	Code     string `json:"code" yaml:"code"`
	Expected any    `json:"expected,omitempty" yaml:"expected,omitempty"`
	Received any    `json:"received,omitempty" yaml:"received,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationResult is the outcome of field validation.
type ValidationResult struct {
	Success  bool              `json:"success" yaml:"success"`
	Errors   []ValidationError `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// HasCode reports whether any error carries the given code.
func (v ValidationResult) HasCode(code string) bool {
	for _, e := range v.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// ErrorsFor returns the errors whose path matches exactly.
func (v ValidationResult) ErrorsFor(path string) []ValidationError {
	var out []ValidationError
	for _, e := range v.Errors {
		if e.Path == path {
			out = append(out, e)
		}
	}
	return out
}

// Summary joins all error messages into one line.
func (v ValidationResult) Summary() string {
	msgs := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
