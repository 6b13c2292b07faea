package clikit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"sort"
	"text/template"

	"github.com/urfave/cli/v3"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"
)

// jsonFormat formats results as JSON.
type jsonFormat struct{}

func (f *jsonFormat) Name() string {
	return "json"
}

func (f *jsonFormat) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output with indentation",
		},
	}
}

func (f *jsonFormat) Format(_ context.Context, cmd *cli.Command, w io.Writer, result *CommandResult) error {
	s, err := ResultStruct(result)
	if err != nil {
		return err
	}

	marshaler := protojson.MarshalOptions{
		EmitUnpopulated: true,
	}

	if cmd.Bool("pretty") {
		marshaler.Indent = "  "
	}

	jsonBytes, err := marshaler.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	_, err = w.Write(jsonBytes)
	return err
}

// goFormat formats results using Go's default %+v formatting.
type goFormat struct{}

func (f *goFormat) Name() string {
	return "go"
}

func (f *goFormat) Format(_ context.Context, _ *cli.Command, w io.Writer, result *CommandResult) error {
	switch {
	case result.Data != nil && result.Message != "":
		_, err := fmt.Fprintf(w, "%s\n%+v", result.Message, result.Data)
		return err
	case result.Data != nil:
		_, err := fmt.Fprintf(w, "%+v", result.Data)
		return err
	default:
		_, err := fmt.Fprint(w, result.Message)
		return err
	}
}

// yamlFormat formats results as YAML.
type yamlFormat struct{}

func (f *yamlFormat) Name() string {
	return "yaml"
}

func (f *yamlFormat) Format(_ context.Context, _ *cli.Command, w io.Writer, result *CommandResult) error {
	data, err := ResultMap(result)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	// yaml.v3 ends documents with a newline; the caller adds its own
	_, err = w.Write(bytes.TrimRight(out, "\n"))
	return err
}

// ResultMap converts a result to the generic map every structured format
// renders, keyed by the result's JSON field names. Data is normalised
// through its JSON encoding so struct tags apply.
func ResultMap(result *CommandResult) (map[string]any, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return data, nil
}

// ResultStruct converts a result to a protobuf Struct for protojson and
// other proto-aware renderers.
func ResultStruct(result *CommandResult) (*structpb.Struct, error) {
	data, err := ResultMap(result)
	if err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert result: %w", err)
	}
	return s, nil
}

// Factory functions for built-in formats

// JSON returns a new JSON output format with optional --pretty flag.
func JSON() OutputFormat {
	return &jsonFormat{}
}

// YAML returns a new YAML output format.
func YAML() OutputFormat {
	return &yamlFormat{}
}

// Go returns a new Go-style output format (uses %+v).
func Go() OutputFormat {
	return &goFormat{}
}

// templateFormat renders results using Go text templates.
// Templates are keyed by command name.
type templateFormat struct {
	name      string
	templates map[string]*template.Template // Parsed templates keyed by command name
}

func (f *templateFormat) Name() string {
	return f.name
}

func (f *templateFormat) Format(_ context.Context, cmd *cli.Command, w io.Writer, result *CommandResult) error {
	tmpl, ok := f.templates[cmd.Name]
	if !ok {
		tmpl, ok = f.templates["*"]
	}
	if !ok {
		return fmt.Errorf("no template registered for command %s (available: %v)", cmd.Name, f.availableCommands())
	}

	data, err := ResultMap(result)
	if err != nil {
		return fmt.Errorf("failed to convert result to map: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute template for %s: %w", cmd.Name, err)
	}

	_, err = w.Write(buf.Bytes())
	return err
}

// availableCommands returns the command names with templates, for error messages
func (f *templateFormat) availableCommands() []string {
	names := make([]string, 0, len(f.templates))
	for name := range f.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TemplateFormat creates an output format that renders results using Go text templates.
//
// Templates are specified as a map from command name to template string. The
// key "*" matches any command without its own template.
//
// Templates see the result as a map with the keys success, exitCode, data and
// message, so command data is reached with {{.data.field}}.
//
// Optional function maps can be provided to add custom template functions.
//
// Example:
//
//	templates := map[string]string{
//	    "deploy": `Deployed {{.data.service}} to {{.data.environment}} ({{.data.replicas}} replicas)`,
//	}
//
//	format := clikit.TemplateFormat("summary", templates)
func TemplateFormat(name string, templates map[string]string, funcMaps ...template.FuncMap) (OutputFormat, error) {
	funcMap := template.FuncMap{}
	for _, fm := range funcMaps {
		maps.Copy(funcMap, fm)
	}

	parsed := make(map[string]*template.Template)
	for cmdName, tmplStr := range templates {
		tmpl, err := template.New(cmdName).Funcs(funcMap).Parse(tmplStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template for %s: %w", cmdName, err)
		}
		parsed[cmdName] = tmpl
	}

	return &templateFormat{
		name:      name,
		templates: parsed,
	}, nil
}

// MustTemplateFormat is like TemplateFormat but panics on error.
// Useful for package-level initialization where template errors should be caught at startup.
func MustTemplateFormat(name string, templates map[string]string, funcMaps ...template.FuncMap) OutputFormat {
	format, err := TemplateFormat(name, templates, funcMaps...)
	if err != nil {
		panic(fmt.Sprintf("failed to create template format: %v", err))
	}
	return format
}
