package cliconfig

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Manager handles configuration file operations
type Manager struct {
	// globalPath is the path to the global config file (~/.config/appname/config.yaml)
	globalPath string

	// localPath is the path to the local config file (./.appname/config.yaml)
	localPath string

	appName string
}

// NewManager creates a new config manager for appName
func NewManager(appName string) *Manager {
	homeDir, _ := os.UserHomeDir()
	globalPath := filepath.Join(homeDir, ".config", appName, "config.yaml")
	localPath := filepath.Join(".", "."+appName, "config.yaml")

	return &Manager{
		globalPath: globalPath,
		localPath:  localPath,
		appName:    appName,
	}
}

// SetGlobalPath sets a custom global config path
func (m *Manager) SetGlobalPath(path string) {
	m.globalPath = path
}

// SetLocalPath sets a custom local config path
func (m *Manager) SetLocalPath(path string) {
	m.localPath = path
}

// GlobalPath returns the global config file path
func (m *Manager) GlobalPath() string {
	return m.globalPath
}

// LocalPath returns the local config file path
func (m *Manager) LocalPath() string {
	return m.localPath
}

// ReadSettings reads and merges settings from global and local files.
// Local takes precedence over global; env vars and flags are not applied.
func (m *Manager) ReadSettings() (Settings, error) {
	return NewLoader(FileConfig(m.globalPath, m.localPath)).Load(nil)
}

// GetValue retrieves a config value by dot-notation key (e.g., "executor.timeout")
// Returns the value and the source (file path or "default")
func (m *Manager) GetValue(key string) (string, string, error) {
	k, ok := LookupKey(key)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}

	for _, path := range []string{m.localPath, m.globalPath} {
		values, err := readValues(path)
		if err != nil {
			return "", "", err
		}
		if raw, found := lookupNested(values, key); found {
			var s Settings
			if err := k.set(&s, fmt.Sprint(raw)); err != nil {
				return "", "", fmt.Errorf("%s: %w", path, err)
			}
			return k.get(&s), path, nil
		}
	}

	return k.Default, "default", nil
}

// SetValue validates and writes key=value pairs into the file at path,
// preserving everything else in it. The file format follows its extension.
func (m *Manager) SetValue(path string, keyValues map[string]string) error {
	values, err := readValues(path)
	if err != nil {
		return err
	}
	if values == nil {
		values = make(map[string]any)
	}

	for key, value := range keyValues {
		k, ok := LookupKey(key)
		if !ok {
			return fmt.Errorf("%w: %s", ErrInvalidKey, key)
		}
		typed, err := k.Typed(value)
		if err != nil {
			return err
		}
		setNested(values, key, typed)
	}

	return writeValues(path, values)
}

// ListAll returns all config values with their sources
func (m *Manager) ListAll() (map[string]ValueWithSource, error) {
	result := make(map[string]ValueWithSource)

	for _, k := range keyTable {
		val, source, err := m.GetValue(k.Name)
		if err != nil {
			return nil, err
		}
		result[k.Name] = ValueWithSource{
			Value:  val,
			Source: source,
		}
	}

	return result, nil
}

// ValueWithSource holds a config value and its source
type ValueWithSource struct {
	Value  string
	Source string
}

// readValues reads a config file into a nested map. A missing file is empty.
func readValues(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	values, err := decodeFile(path, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return values, nil
}

func writeValues(path string, values map[string]any) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(values); err != nil {
			return fmt.Errorf("failed to encode TOML: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = yaml.Marshal(values)
		if err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// lookupNested finds a dotted key either as nested sections or as a literal
// dotted entry.
func lookupNested(values map[string]any, key string) (any, bool) {
	if v, ok := values[key]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(key, ".")
	if !found {
		return nil, false
	}
	section, ok := values[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookupNested(section, rest)
}

func setNested(values map[string]any, key string, value any) {
	head, rest, found := strings.Cut(key, ".")
	if !found {
		values[key] = value
		return
	}
	// a literal dotted entry would shadow the nested one
	delete(values, key)
	section, ok := values[head].(map[string]any)
	if !ok {
		section = make(map[string]any)
		values[head] = section
	}
	setNested(section, rest, value)
}
