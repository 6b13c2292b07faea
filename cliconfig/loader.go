package cliconfig

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// ErrUnknownField is returned when a config file names a key that does not exist.
var ErrUnknownField = errors.New("unknown field")

// DebugInfo tracks config loading for debugging.
type DebugInfo struct {
	PathsChecked   []string          // All paths that were checked
	FilesLoaded    []string          // Paths that were successfully loaded
	FilesFailed    map[string]string // Paths that failed with error message
	EnvVarsApplied map[string]string // Env vars that were applied (name -> value)
	FlagsApplied   map[string]string // CLI flags that were applied (name -> value)
	Final          Settings          // Final merged settings
}

// Loader loads settings with precedence: CLI flags > env vars > files > defaults.
type Loader struct {
	paths     []string
	readers   []io.Reader
	envPrefix string
	lookupEnv func(string) (string, bool)
	debug     bool
	debugInfo *DebugInfo
}

// LoaderOption is a functional option for configuring a Loader.
type LoaderOption func(*Loader)

// FileConfig adds config file paths to load. Later files override earlier
// ones; missing files are skipped.
func FileConfig(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.paths = append(l.paths, paths...)
	}
}

// ReaderConfig adds YAML io.Readers to load config from (for testing).
func ReaderConfig(readers ...io.Reader) LoaderOption {
	return func(l *Loader) {
		l.readers = append(l.readers, readers...)
	}
}

// EnvPrefix sets the environment variable prefix for config overrides.
func EnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// LookupEnv replaces os.LookupEnv.
func LookupEnv(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		if fn != nil {
			l.lookupEnv = fn
		}
	}
}

// DebugMode enables config loading debug information.
func DebugMode(enabled bool) LoaderOption {
	return func(l *Loader) {
		l.debug = enabled
		if enabled && l.debugInfo == nil {
			l.debugInfo = &DebugInfo{
				PathsChecked:   []string{},
				FilesLoaded:    []string{},
				FilesFailed:    make(map[string]string),
				EnvVarsApplied: make(map[string]string),
				FlagsApplied:   make(map[string]string),
			}
		}
	}
}

// NewLoader creates a new settings loader with options.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DebugInfo returns the debug information (only populated if debug mode is enabled).
func (l *Loader) DebugInfo() *DebugInfo {
	return l.debugInfo
}

// DefaultPaths returns the default config file locations for appName, lowest
// precedence first.
func DefaultPaths(appName string) []string {
	home, _ := os.UserHomeDir()

	return []string{
		filepath.Join(home, ".config", appName, "config.yaml"),
		filepath.Join(".", "."+appName, "config.yaml"),
		fmt.Sprintf("./%s.yaml", appName),
	}
}

// Load resolves settings. cmd may be nil, in which case flags are skipped.
func (l *Loader) Load(cmd *cli.Command) (Settings, error) {
	settings := Defaults()

	// 1. Load and merge all config files
	if err := l.loadFromFiles(&settings); err != nil {
		return Settings{}, fmt.Errorf("failed to load config from files: %w", err)
	}

	// 2. Override with environment variables
	if err := l.applyEnvVars(&settings); err != nil {
		return Settings{}, fmt.Errorf("failed to apply environment variables: %w", err)
	}

	// 3. Override with CLI flags
	if cmd != nil {
		if err := l.applyFlags(cmd, &settings); err != nil {
			return Settings{}, fmt.Errorf("failed to apply CLI flags: %w", err)
		}
	}

	if l.debug {
		l.debugInfo.Final = settings
	}

	return settings, nil
}

func (l *Loader) loadFromFiles(target *Settings) error {
	for _, path := range l.paths {
		if l.debug {
			l.debugInfo.PathsChecked = append(l.debugInfo.PathsChecked, path)
		}

		// Skip if file doesn't exist (silent ignore for default paths)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if l.debug {
				l.debugInfo.FilesFailed[path] = "file does not exist"
			}
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			if l.debug {
				l.debugInfo.FilesFailed[path] = err.Error()
			}
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		values, err := decodeFile(path, data)
		if err == nil {
			err = merge(values, "", target)
		}
		if err != nil {
			if l.debug {
				l.debugInfo.FilesFailed[path] = err.Error()
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}

		if l.debug {
			l.debugInfo.FilesLoaded = append(l.debugInfo.FilesLoaded, path)
		}
	}

	// Load from readers (for testing)
	for i, reader := range l.readers {
		data, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("failed to read config reader %d: %w", i, err)
		}

		values, err := decodeYAML(data)
		if err != nil {
			return fmt.Errorf("failed to load config reader %d: %w", i, err)
		}
		if err := merge(values, "", target); err != nil {
			return fmt.Errorf("failed to load config reader %d: %w", i, err)
		}
	}

	return nil
}

func (l *Loader) applyEnvVars(target *Settings) error {
	if l.envPrefix == "" {
		return nil
	}

	for _, k := range keyTable {
		envName := k.EnvVar(l.envPrefix)
		value, exists := l.lookupEnv(envName)
		if !exists {
			continue
		}

		if l.debug {
			l.debugInfo.EnvVarsApplied[envName] = value
		}

		if err := k.set(target, value); err != nil {
			return fmt.Errorf("failed to set %s from env %s: %w", k.Name, envName, err)
		}
	}
	return nil
}

func (l *Loader) applyFlags(cmd *cli.Command, target *Settings) error {
	for _, k := range keyTable {
		if k.Flag == "" || !cmd.IsSet(k.Flag) {
			continue
		}

		value := fmt.Sprint(cmd.Value(k.Flag))
		if l.debug {
			l.debugInfo.FlagsApplied[k.Flag] = value
		}

		if err := k.set(target, value); err != nil {
			return fmt.Errorf("failed to set %s from --%s: %w", k.Name, k.Flag, err)
		}
	}
	return nil
}

// decodeFile parses YAML, or TOML for .toml files, into a nested map.
func decodeFile(path string, data []byte) (map[string]any, error) {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return decodeTOML(data)
	}
	return decodeYAML(data)
}

func decodeYAML(data []byte) (map[string]any, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return root, nil
}

func decodeTOML(data []byte) (map[string]any, error) {
	var root map[string]any
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid TOML: %w", err)
	}
	return root, nil
}

// merge applies a nested map onto target. Both nested sections and dotted
// keys ("executor.timeout: 5s") are accepted.
func merge(data map[string]any, prefix string, target *Settings) error {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fieldPath := name
		if prefix != "" {
			fieldPath = prefix + "." + name
		}

		switch v := data[name].(type) {
		case map[string]any:
			if err := merge(v, fieldPath, target); err != nil {
				return err
			}
		case nil:
			// explicit null keeps the lower layer's value
		case []any:
			return fmt.Errorf("%s: lists are not supported", fieldPath)
		default:
			k, ok := LookupKey(fieldPath)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownField, fieldPath)
			}
			if err := k.set(target, fmt.Sprint(v)); err != nil {
				return err
			}
		}
	}
	return nil
}
