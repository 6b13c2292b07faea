package clikit

import (
	"context"
	"io"
	"time"

	"github.com/drewfead/clikit/cliargs"
	"github.com/drewfead/clikit/clisecrets"
	"github.com/drewfead/clikit/cliservices"
	"github.com/urfave/cli/v3"
)

// OutputFormat defines how to render a command result
type OutputFormat interface {
	// Name returns the format identifier (e.g., "json", "text")
	Name() string

	// Format writes the formatted result to the writer
	Format(ctx context.Context, cmd *cli.Command, w io.Writer, result *CommandResult) error
}

// FlagConfiguredOutputFormat is an optional interface for formats that need custom flags
type FlagConfiguredOutputFormat interface {
	OutputFormat

	// Flags returns additional flags this format needs (e.g., --pretty for JSON)
	Flags() []cli.Flag
}

// Hook runs around a command invocation. cmd is the urfave command being run.
type Hook func(ctx context.Context, cmd *cli.Command) error

// baseOptions defines common options interface for both command and root levels
type baseOptions interface {
	AddBeforeCommand(Hook)
	AddAfterCommand(Hook)
	AddOutputFormats(...OutputFormat)
}

type hookOptions struct {
	beforeCommand []Hook
	afterCommand  []Hook
	outputFormats []OutputFormat
}

// AddBeforeCommand appends a before hook
func (o *hookOptions) AddBeforeCommand(fn Hook) {
	o.beforeCommand = append(o.beforeCommand, fn)
}

// AddAfterCommand appends an after hook
func (o *hookOptions) AddAfterCommand(fn Hook) {
	o.afterCommand = append(o.afterCommand, fn)
}

// AddOutputFormats appends output formats
func (o *hookOptions) AddOutputFormats(formats ...OutputFormat) {
	o.outputFormats = append(o.outputFormats, formats...)
}

// commandOptions holds configuration for one registered command
type commandOptions struct {
	hookOptions
	timeout    *time.Duration
	aliases    []string
	hidden     bool
	categories string
}

// rootCommandOptions holds configuration for the root CLI command
type rootCommandOptions struct {
	hookOptions
	commands         []registeredCommand
	configPaths      []string
	envPrefix        string
	executorOptions  []ExecutorOption
	stages           []Stage
	services         *cliservices.Container
	secrets          cliargs.SecretSource
	secretsOptions   []clisecrets.Option
	secretsCommands  bool
	configCommands   bool
	localConfigPath  string
	globalConfigPath string
	lookupEnv        func(string) (string, bool)
}

type registeredCommand struct {
	command Command
	options *commandOptions
}

// Option types for type-safe configuration using interface pattern

// CommandOption interface for per-command configuration
type CommandOption interface {
	applyToCommandConfig(*commandOptions)
}

// RootOption interface for root-level configuration
type RootOption interface {
	applyToRootConfig(*rootCommandOptions)
}

// SharedOption is a concrete option type that works with both command and root levels
// It implements both CommandOption and RootOption interfaces
type SharedOption func(baseOptions)

var _ CommandOption = SharedOption(nil)
var _ RootOption = SharedOption(nil)

func (fn SharedOption) applyToCommandConfig(opts *commandOptions) {
	fn(opts)
}

func (fn SharedOption) applyToRootConfig(opts *rootCommandOptions) {
	fn(opts)
}

// CommandOnlyOption only works when registering a command
type CommandOnlyOption func(*commandOptions)

var _ CommandOption = CommandOnlyOption(nil)

func (fn CommandOnlyOption) applyToCommandConfig(opts *commandOptions) {
	fn(opts)
}

// RootOnlyOption is a concrete option type that only works with root level
// It implements only the RootOption interface
type RootOnlyOption func(*rootCommandOptions)

var _ RootOption = RootOnlyOption(nil)

func (fn RootOnlyOption) applyToRootConfig(opts *rootCommandOptions) {
	fn(opts)
}

// WithBeforeCommand registers a hook that runs before each command execution.
// Can be called multiple times; hooks run in registration order, root hooks first.
func WithBeforeCommand(fn Hook) SharedOption {
	return SharedOption(func(o baseOptions) {
		o.AddBeforeCommand(fn)
	})
}

// WithAfterCommand registers a hook that runs after each command execution,
// even when a before hook failed. Hooks run in reverse registration order and
// their errors are logged, not returned.
func WithAfterCommand(fn Hook) SharedOption {
	return SharedOption(func(o baseOptions) {
		o.AddAfterCommand(fn)
	})
}

// WithOutputFormats registers output formats for result rendering.
// Command-level formats take precedence over root-level ones of the same name.
func WithOutputFormats(formats ...OutputFormat) SharedOption {
	return SharedOption(func(o baseOptions) {
		o.AddOutputFormats(formats...)
	})
}

// Command-only options

// WithTimeout overrides the executor's default timeout for this command.
// Zero disables the timeout.
func WithTimeout(d time.Duration) CommandOnlyOption {
	return CommandOnlyOption(func(o *commandOptions) {
		o.timeout = &d
	})
}

// WithAliases adds alternative subcommand names
func WithAliases(aliases ...string) CommandOnlyOption {
	return CommandOnlyOption(func(o *commandOptions) {
		o.aliases = append(o.aliases, aliases...)
	})
}

// WithCategory groups the command in help output
func WithCategory(category string) CommandOnlyOption {
	return CommandOnlyOption(func(o *commandOptions) {
		o.categories = category
	})
}

// Hidden hides the command from help output
func Hidden() CommandOnlyOption {
	return CommandOnlyOption(func(o *commandOptions) {
		o.hidden = true
	})
}

// Root-only options

// WithCommand registers a command as a subcommand of the root
func WithCommand(cmd Command, opts ...CommandOption) RootOnlyOption {
	return RootOnlyOption(func(o *rootCommandOptions) {
		co := &commandOptions{}
		for _, opt := range opts {
			opt.applyToCommandConfig(co)
		}
		o.commands = append(o.commands, registeredCommand{command: cmd, options: co})
	})
}

// WithConfigFile adds a config file path to load
// Can be called multiple times; later files override earlier ones
func WithConfigFile(path string) RootOnlyOption {
	return RootOnlyOption(func(o *rootCommandOptions) {
		o.configPaths = append(o.configPaths, path)
	})
}

// WithEnvPrefix sets the environment variable prefix for settings overrides
// Example: WithEnvPrefix("DEPLOYCTL") enables DEPLOYCTL_EXECUTOR_TIMEOUT
func WithEnvPrefix(prefix string) RootOnlyOption {
	return RootOnlyOption(func(o *rootCommandOptions) {
		o.envPrefix = prefix
	})
}

// WithExecutorOptions passes options to every executor the root builds.
// They are applied after the options derived from settings.
func WithExecutorOptions(opts ...ExecutorOption) RootOnlyOption {
	return RootOnlyOption(func(o *rootCommandOptions) {
		o.executorOptions = append(o.executorOptions, opts...)
	})
}

// WithMiddleware adds stages to the pipeline selected by --profile
func WithMiddleware(stages ...Stage) RootOnlyOption {
	return RootOnlyOption(func(o *rootCommandOptions) {
		o.stages = append(o.stages, stages...)
	})
}

// WithServiceContainer shares a service container with every execution
func WithServiceContainer(c *cliservices.Container) RootOnlyOption {
	return RootOnlyOption(func(o *rootCommandOptions) {
		o.services = c
	})
}

// WithSecrets sets the secret source consulted for fields with a SecretKey
func WithSecrets(src cliargs.SecretSource) RootOnlyOption {
	return RootOnlyOption(func(o *rootCommandOptions) {
		o.secrets = src
	})
}

// WithSecretsCommands mounts the "secrets" command suite. Unless WithSecrets
// is also given, its store becomes the secret source.
func WithSecretsCommands(opts ...clisecrets.Option) RootOnlyOption {
	return RootOnlyOption(func(o *rootCommandOptions) {
		o.secretsCommands = true
		o.secretsOptions = append(o.secretsOptions, opts...)
	})
}

// WithConfigCommands mounts the "config" command suite
func WithConfigCommands() RootOnlyOption {
	return RootOnlyOption(func(o *rootCommandOptions) {
		o.configCommands = true
	})
}

// WithLocalConfigPath overrides the local config file the config commands edit
func WithLocalConfigPath(path string) RootOnlyOption {
	return RootOnlyOption(func(o *rootCommandOptions) {
		o.localConfigPath = path
	})
}

// WithGlobalConfigPath overrides the global config file the config commands edit
func WithGlobalConfigPath(path string) RootOnlyOption {
	return RootOnlyOption(func(o *rootCommandOptions) {
		o.globalConfigPath = path
	})
}

// WithLookupEnv replaces os.LookupEnv for settings and argument resolution
func WithLookupEnv(fn func(string) (string, bool)) RootOnlyOption {
	return RootOnlyOption(func(o *rootCommandOptions) {
		o.lookupEnv = fn
	})
}

// applyRootOptions applies functional options and returns configured root settings
func applyRootOptions(opts ...RootOption) *rootCommandOptions {
	options := &rootCommandOptions{}
	for _, opt := range opts {
		opt.applyToRootConfig(options)
	}
	return options
}
