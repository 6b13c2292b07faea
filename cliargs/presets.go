package cliargs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PresetFormat decodes a preset file into field values keyed by name.
type PresetFormat interface {
	// Name returns the format identifier (e.g., "json", "yaml")
	Name() string

	// Extensions returns file extensions this format handles (e.g., [".json"] or [".yaml", ".yml"])
	Extensions() []string

	// Decode parses data into a name → value map.
	Decode(data []byte) (map[string]any, error)
}

type jsonPresetFormat struct{}

func (f *jsonPresetFormat) Name() string { return "json" }

func (f *jsonPresetFormat) Extensions() []string { return []string{".json"} }

func (f *jsonPresetFormat) Decode(data []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return out, nil
}

type yamlPresetFormat struct{}

func (f *yamlPresetFormat) Name() string { return "yaml" }

func (f *yamlPresetFormat) Extensions() []string { return []string{".yaml", ".yml"} }

func (f *yamlPresetFormat) Decode(data []byte) (map[string]any, error) {
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return normalizeYAML(out).(map[string]any), nil
}

// normalizeYAML rewrites map[any]any produced for nested YAML mappings with
// non-string keys, so values look the same as their JSON equivalents.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		if t == nil {
			return map[string]any{}
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	}
	return v
}

// JSONPresets returns a PresetFormat for JSON files.
func JSONPresets() PresetFormat {
	return &jsonPresetFormat{}
}

// YAMLPresets returns a PresetFormat for YAML files.
func YAMLPresets() PresetFormat {
	return &yamlPresetFormat{}
}

// DefaultPresetFormats returns JSON and YAML.
func DefaultPresetFormats() []PresetFormat {
	return []PresetFormat{JSONPresets(), YAMLPresets()}
}

// LoadPresets reads the file at path into a value map for Config.Presets.
//
// Format selection waterfall:
//  1. If formatName is non-empty, find the format by name. Error if not found.
//  2. Match filepath.Ext(path) against each format's Extensions(). Use first match.
//  3. Try all formats in order, use the first one that succeeds. If all fail, return a combined error.
func LoadPresets(path, formatName string, formats []PresetFormat) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset file %s: %w", path, err)
	}

	if formatName != "" {
		for _, f := range formats {
			if f.Name() == formatName {
				values, err := f.Decode(data)
				if err != nil {
					return nil, fmt.Errorf("failed to decode preset file %s as %s: %w", path, formatName, err)
				}
				return values, nil
			}
		}
		var available []string
		for _, f := range formats {
			available = append(available, f.Name())
		}
		return nil, fmt.Errorf("unknown preset format %q (available: %v)", formatName, available)
	}

	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range formats {
		for _, fExt := range f.Extensions() {
			if ext == fExt {
				values, err := f.Decode(data)
				if err != nil {
					return nil, fmt.Errorf("failed to decode preset file %s as %s: %w", path, f.Name(), err)
				}
				return values, nil
			}
		}
	}

	var errs []string
	for _, f := range formats {
		values, err := f.Decode(data)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f.Name(), err))
			continue
		}
		return values, nil
	}

	return nil, fmt.Errorf("failed to decode preset file %s: no format matched (tried: %s)", path, strings.Join(errs, "; "))
}
