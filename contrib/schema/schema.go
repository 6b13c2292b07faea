// Package schema adapts JSON Schema documents to cliargs.Schema so argument
// and option values can be validated against them.
//
//	s := schema.MustCompile(`{"type":"object","required":["region"]}`)
//	{Name: "target", Type: cliargs.TypeJSON, Schema: s}
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drewfead/clikit/cliargs"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalid wraps every validation failure reported by Parse.
var ErrInvalid = errors.New("does not match schema")

// JSONSchema is a compiled JSON Schema.
type JSONSchema struct {
	schema *gojsonschema.Schema
}

var _ cliargs.Schema = (*JSONSchema)(nil)

// Compile parses a schema given as a JSON string.
func Compile(document string) (*JSONSchema, error) {
	return compile(gojsonschema.NewStringLoader(document))
}

// FromValue compiles a schema given as a Go value, typically a map[string]any.
func FromValue(document any) (*JSONSchema, error) {
	return compile(gojsonschema.NewGoLoader(document))
}

// MustCompile is Compile that panics on an invalid schema.
func MustCompile(document string) *JSONSchema {
	s, err := Compile(document)
	if err != nil {
		panic(err)
	}
	return s
}

func compile(loader gojsonschema.JSONLoader) (*JSONSchema, error) {
	s, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &JSONSchema{schema: s}, nil
}

// Parse validates value and returns it unchanged.
func (s *JSONSchema) Parse(value any) (any, error) {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return nil, fmt.Errorf("failed to validate: %w", err)
	}
	if result.Valid() {
		return value, nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		if field := desc.Field(); field != "" && field != "(root)" {
			details = append(details, field+": "+desc.Description())
			continue
		}
		details = append(details, desc.Description())
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(details, "; "))
}
