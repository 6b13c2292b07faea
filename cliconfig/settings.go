package cliconfig

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	// ErrInvalidKey is returned when a config key doesn't exist in the key table
	ErrInvalidKey = errors.New("invalid config key")

	// ErrInvalidValue is returned when a value cannot be parsed for its key
	ErrInvalidValue = errors.New("invalid config value")
)

// Settings are the toolkit-level knobs shared by every command.
type Settings struct {
	Executor ExecutorSettings `json:"executor" yaml:"executor" toml:"executor"`
	Log      LogSettings      `json:"log" yaml:"log" toml:"log"`
	Output   OutputSettings   `json:"output" yaml:"output" toml:"output"`
}

// ExecutorSettings configure admission control, timeouts and parsing.
type ExecutorSettings struct {
	MaxConcurrent int           `json:"maxConcurrent" yaml:"maxConcurrent" toml:"maxConcurrent"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
	Profile       string        `json:"profile" yaml:"profile" toml:"profile"`
	Strict        bool          `json:"strict" yaml:"strict" toml:"strict"`
}

// LogSettings configure the terminal logger and the optional rotating file.
type LogSettings struct {
	Verbosity  string `json:"verbosity" yaml:"verbosity" toml:"verbosity"`
	Format     string `json:"format" yaml:"format" toml:"format"`
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"maxSizeMB" yaml:"maxSizeMB" toml:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups" toml:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays" yaml:"maxAgeDays" toml:"maxAgeDays"`
	Compress   bool   `json:"compress" yaml:"compress" toml:"compress"`
}

// OutputSettings configure result rendering.
type OutputSettings struct {
	Format string `json:"format" yaml:"format" toml:"format"`
}

// Kind is the value type of a key.
type Kind string

const (
	KindString   Kind = "string"
	KindInt      Kind = "int"
	KindBool     Kind = "bool"
	KindDuration Kind = "duration"
)

// Key describes one dotted settings key.
type Key struct {
	Name        string
	Kind        Kind
	Default     string
	Description string
	// Choices restricts string values when non-empty.
	Choices []string
	// Flag is the global flag that overrides this key, if any.
	Flag string

	get func(*Settings) string
	set func(*Settings, string) error
}

// EnvVar returns the environment variable for the key under prefix, e.g.
// "executor.maxConcurrent" with prefix "APP" is APP_EXECUTOR_MAX_CONCURRENT.
func (k Key) EnvVar(prefix string) string {
	parts := strings.Split(k.Name, ".")
	for i, p := range parts {
		parts[i] = screamingSnake(p)
	}
	name := strings.Join(parts, "_")
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

// Typed converts a string value to the Go value written to config files.
func (k Key) Typed(value string) (any, error) {
	switch k.Kind {
	case KindInt:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w for %s: expected integer, got %q", ErrInvalidValue, k.Name, value)
		}
		return n, nil
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w for %s: expected boolean (true/false), got %q", ErrInvalidValue, k.Name, value)
		}
		return b, nil
	case KindDuration:
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w for %s: expected duration like 30s, got %q", ErrInvalidValue, k.Name, value)
		}
		return d.String(), nil
	}
	if len(k.Choices) > 0 && !slices.Contains(k.Choices, value) {
		return nil, fmt.Errorf("%w for %s: expected one of [%s], got %q",
			ErrInvalidValue, k.Name, strings.Join(k.Choices, ", "), value)
	}
	return value, nil
}

func intKey(name, def, desc, flag string, field func(*Settings) *int) Key {
	k := Key{Name: name, Kind: KindInt, Default: def, Description: desc, Flag: flag}
	k.get = func(s *Settings) string { return strconv.Itoa(*field(s)) }
	k.set = func(s *Settings, v string) error {
		typed, err := k.Typed(v)
		if err != nil {
			return err
		}
		*field(s) = typed.(int)
		return nil
	}
	return k
}

func boolKey(name, def, desc, flag string, field func(*Settings) *bool) Key {
	k := Key{Name: name, Kind: KindBool, Default: def, Description: desc, Flag: flag}
	k.get = func(s *Settings) string { return strconv.FormatBool(*field(s)) }
	k.set = func(s *Settings, v string) error {
		typed, err := k.Typed(v)
		if err != nil {
			return err
		}
		*field(s) = typed.(bool)
		return nil
	}
	return k
}

func stringKey(name, def, desc, flag string, choices []string, field func(*Settings) *string) Key {
	k := Key{Name: name, Kind: KindString, Default: def, Description: desc, Flag: flag, Choices: choices}
	k.get = func(s *Settings) string { return *field(s) }
	k.set = func(s *Settings, v string) error {
		typed, err := k.Typed(v)
		if err != nil {
			return err
		}
		*field(s) = typed.(string)
		return nil
	}
	return k
}

func durationKey(name, def, desc, flag string, field func(*Settings) *time.Duration) Key {
	k := Key{Name: name, Kind: KindDuration, Default: def, Description: desc, Flag: flag}
	k.get = func(s *Settings) string { return field(s).String() }
	k.set = func(s *Settings, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w for %s: expected duration like 30s, got %q", ErrInvalidValue, k.Name, v)
		}
		*field(s) = d
		return nil
	}
	return k
}

var keyTable = []Key{
	intKey("executor.maxConcurrent", "0", "maximum simultaneous executions (0 for unlimited)", "max-concurrent",
		func(s *Settings) *int { return &s.Executor.MaxConcurrent }),
	durationKey("executor.timeout", "0s", "per-execution timeout (0s for none)", "timeout",
		func(s *Settings) *time.Duration { return &s.Executor.Timeout }),
	stringKey("executor.profile", "default", "pipeline profile", "profile",
		[]string{"default", "minimal", "debug"},
		func(s *Settings) *string { return &s.Executor.Profile }),
	boolKey("executor.strict", "false", "reject unknown options", "strict",
		func(s *Settings) *bool { return &s.Executor.Strict }),
	stringKey("log.verbosity", "info", "log level", "verbosity",
		[]string{"debug", "info", "warn", "error", "none"},
		func(s *Settings) *string { return &s.Log.Verbosity }),
	stringKey("log.format", "human", "terminal log format", "log-format",
		[]string{"human", "json"},
		func(s *Settings) *string { return &s.Log.Format }),
	stringKey("log.file", "", "also write JSON logs to this file", "log-file", nil,
		func(s *Settings) *string { return &s.Log.File }),
	intKey("log.maxSizeMB", "100", "rotate the log file after this many megabytes", "",
		func(s *Settings) *int { return &s.Log.MaxSizeMB }),
	intKey("log.maxBackups", "3", "rotated log files to keep", "",
		func(s *Settings) *int { return &s.Log.MaxBackups }),
	intKey("log.maxAgeDays", "28", "days to keep rotated log files", "",
		func(s *Settings) *int { return &s.Log.MaxAgeDays }),
	boolKey("log.compress", "false", "gzip rotated log files", "",
		func(s *Settings) *bool { return &s.Log.Compress }),
	stringKey("output.format", "go", "result output format", "format", nil,
		func(s *Settings) *string { return &s.Output.Format }),
}

// Keys returns every settings key in table order.
func Keys() []Key {
	return slices.Clone(keyTable)
}

// LookupKey finds a key by its dotted name.
func LookupKey(name string) (Key, bool) {
	for _, k := range keyTable {
		if k.Name == name {
			return k, true
		}
	}
	return Key{}, false
}

// Defaults returns settings with every key at its default.
func Defaults() Settings {
	var s Settings
	for _, k := range keyTable {
		// defaults are valid by construction
		_ = k.set(&s, k.Default)
	}
	return s
}

// Set parses value for key and stores it.
func (s *Settings) Set(key, value string) error {
	k, ok := LookupKey(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return k.set(s, value)
}

// Get returns the string form of key's current value.
func (s *Settings) Get(key string) (string, error) {
	k, ok := LookupKey(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return k.get(s), nil
}

// Flatten returns every key with its current value.
func (s *Settings) Flatten() map[string]string {
	out := make(map[string]string, len(keyTable))
	for _, k := range keyTable {
		out[k.Name] = k.get(s)
	}
	return out
}

// screamingSnake converts camelCase to SCREAMING_SNAKE_CASE.
func screamingSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
