package clisecrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

var (
	// ErrKeyRequired is returned when a subcommand is missing its key argument
	ErrKeyRequired = errors.New("secret key required")

	// ErrValueRequired is returned when set has neither a value nor --stdin
	ErrValueRequired = errors.New("secret value required (pass it as an argument or use --stdin)")
)

// Config holds the secrets configuration.
type Config struct {
	Store Store
	// Stdin is read by "set --stdin"; defaults to os.Stdin.
	Stdin io.Reader
}

// Option configures a secrets Config.
type Option func(*Config)

// WithStore sets a custom Store instead of the default KeychainStore.
func WithStore(store Store) Option {
	return func(c *Config) {
		c.Store = store
	}
}

// WithStdin replaces os.Stdin for "set --stdin".
func WithStdin(r io.Reader) Option {
	return func(c *Config) {
		c.Stdin = r
	}
}

// NewConfig creates a Config with sensible defaults.
// If no Store is provided via options, a KeychainStore is used.
func NewConfig(appName string, opts ...Option) *Config {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Store == nil {
		cfg.Store = NewKeychainStore(appName)
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	return cfg
}

// Commands builds the "secrets" parent command.
func Commands(cfg *Config) *cli.Command {
	return &cli.Command{
		Name:  "secrets",
		Usage: "manage stored secrets",
		Commands: []*cli.Command{
			setCommand(cfg),
			getCommand(cfg),
			deleteCommand(cfg),
			listCommand(cfg),
		},
	}
}

func setCommand(cfg *Config) *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "store a secret",
		ArgsUsage: "<key> [value]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stdin",
				Usage: "read the value from the first line of standard input",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			key := cmd.Args().First()
			if key == "" {
				return ErrKeyRequired
			}

			var value string
			switch {
			case cmd.Bool("stdin"):
				line, err := bufio.NewReader(cfg.Stdin).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("failed to read secret from stdin: %w", err)
				}
				value = strings.TrimRight(line, "\r\n")
			case cmd.Args().Len() == 2:
				value = cmd.Args().Get(1)
			default:
				return ErrValueRequired
			}

			if err := cfg.Store.Set(key, value); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.Writer, "Stored secret %s\n", key)
			return nil
		},
	}
}

func getCommand(cfg *Config) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "show a secret (masked unless --reveal)",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "reveal",
				Usage: "print the secret in clear text",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			key := cmd.Args().First()
			if key == "" {
				return ErrKeyRequired
			}
			value, err := cfg.Store.Get(key)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if !cmd.Bool("reveal") {
				value = Mask(value)
			}
			_, _ = fmt.Fprintln(cmd.Writer, value)
			return nil
		},
	}
}

func deleteCommand(cfg *Config) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "remove a stored secret",
		ArgsUsage: "<key>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			key := cmd.Args().First()
			if key == "" {
				return ErrKeyRequired
			}
			if err := cfg.Store.Delete(key); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			_, _ = fmt.Fprintf(cmd.Writer, "Deleted secret %s\n", key)
			return nil
		},
	}
}

func listCommand(cfg *Config) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list stored secret keys",
		Action: func(_ context.Context, cmd *cli.Command) error {
			keys, err := cfg.Store.List()
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				_, _ = fmt.Fprintln(cmd.Writer, "No secrets stored.")
				return nil
			}
			for _, k := range keys {
				_, _ = fmt.Fprintln(cmd.Writer, k)
			}
			return nil
		},
	}
}

// Mask hides all but the last two characters. Values of four characters or
// fewer are hidden entirely.
func Mask(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-2) + value[len(value)-2:]
}
