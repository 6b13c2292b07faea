package cliconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"
)

var (
	// ErrInvalidArgument is returned when a command line argument is invalid
	ErrInvalidArgument = errors.New("invalid argument format")

	// ErrKeyValueRequired is returned when at least one key=value pair is required
	ErrKeyValueRequired = errors.New("at least one key=value pair required")

	// ErrExactlyOneKey is returned when exactly one key is required
	ErrExactlyOneKey = errors.New("exactly one key required")
)

// Commands creates the config command suite with init, set, get, and list subcommands
func Commands(manager *Manager) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "manage configuration",
		Commands: []*cli.Command{
			initCommand(manager),
			setCommand(manager),
			getCommand(manager),
			listCommand(manager),
		},
	}
}

func initCommand(manager *Manager) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "initialize or edit configuration file",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "global",
				Usage: "operate on global config (~/.config/appname/config.yaml)",
			},
			&cli.BoolFlag{
				Name:  "replace",
				Usage: "replace existing config file with stub template",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := manager.LocalPath()
			if cmd.Bool("global") {
				path = manager.GlobalPath()
			}

			fileExists := false
			if _, err := os.Stat(path); err == nil {
				fileExists = true
			}

			// If file exists and --replace not specified, just open for editing
			if fileExists && !cmd.Bool("replace") {
				return openEditor(ctx, path)
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			if err := os.WriteFile(path, []byte(Stub(path)), 0o600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			return openEditor(ctx, path)
		},
	}
}

func setCommand(manager *Manager) *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "set configuration values",
		ArgsUsage: "<key=value> [key=value...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "global",
				Usage: "set in global config (~/.config/appname/config.yaml)",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return ErrKeyValueRequired
			}

			path := manager.LocalPath()
			if cmd.Bool("global") {
				path = manager.GlobalPath()
			}

			keyValues := make(map[string]string)
			for i := 0; i < cmd.Args().Len(); i++ {
				arg := cmd.Args().Get(i)
				key, value, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("%w: %s (expected key=value)", ErrInvalidArgument, arg)
				}
				keyValues[key] = value
			}

			if err := manager.SetValue(path, keyValues); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.Writer, "Set %d value(s) in %s\n", len(keyValues), path)
			return nil
		},
	}
}

func getCommand(manager *Manager) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "get configuration value",
		ArgsUsage: "<key>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return ErrExactlyOneKey
			}

			key := cmd.Args().First()

			// A section name prints every key beneath it
			prefix := key + "."
			var nested []string
			for _, k := range keyTable {
				if strings.HasPrefix(k.Name, prefix) {
					nested = append(nested, k.Name)
				}
			}
			if len(nested) > 0 {
				for _, k := range nested {
					val, source, err := manager.GetValue(k)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(cmd.Writer, "%s: %s  # %s\n", k, val, source)
				}
				return nil
			}

			val, source, err := manager.GetValue(key)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.Writer, "%s  # %s\n", val, source)
			return nil
		},
	}
}

func listCommand(manager *Manager) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list all configuration values",
		Action: func(_ context.Context, cmd *cli.Command) error {
			values, err := manager.ListAll()
			if err != nil {
				return err
			}

			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			for _, key := range keys {
				v := values[key]
				if v.Value != "" {
					_, _ = fmt.Fprintf(cmd.Writer, "%s: %s  # %s\n", key, v.Value, v.Source)
				} else {
					_, _ = fmt.Fprintf(cmd.Writer, "%s:   # %s (not set)\n", key, v.Source)
				}
			}

			return nil
		},
	}
}

// openEditor opens the specified file in the user's preferred editor
func openEditor(ctx context.Context, path string) error {
	// Check for editor in order: VISUAL, EDITOR, fallback to vi
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	cmd := exec.CommandContext(ctx, editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

// Stub renders a commented config template listing every key at its
// default, in TOML for .toml paths and YAML otherwise.
func Stub(path string) string {
	isTOML := strings.EqualFold(filepath.Ext(path), ".toml")

	var sb strings.Builder
	sb.WriteString("# Configuration file\n")
	sb.WriteString("# Edit values below and save\n")

	section := ""
	for _, k := range keyTable {
		head, field, _ := strings.Cut(k.Name, ".")
		if head != section {
			section = head
			sb.WriteString("\n")
			if isTOML {
				fmt.Fprintf(&sb, "[%s]\n", head)
			} else {
				fmt.Fprintf(&sb, "%s:\n", head)
			}
		}

		indent := "  "
		sep := ": "
		if isTOML {
			indent, sep = "", " = "
		}

		comment := k.Description
		if len(k.Choices) > 0 {
			comment += fmt.Sprintf(" (one of: %s)", strings.Join(k.Choices, ", "))
		}
		fmt.Fprintf(&sb, "%s# %s\n", indent, comment)
		fmt.Fprintf(&sb, "%s%s%s%s\n", indent, field, sep, placeholder(k))
	}

	return sb.String()
}

func placeholder(k Key) string {
	switch k.Kind {
	case KindInt, KindBool:
		return k.Default
	}
	return fmt.Sprintf("%q", k.Default)
}
