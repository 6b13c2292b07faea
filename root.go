package clikit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/drewfead/clikit/cliargs"
	"github.com/drewfead/clikit/cliconfig"
	"github.com/drewfead/clikit/clilog"
	"github.com/drewfead/clikit/clisecrets"
	"github.com/urfave/cli/v3"
)

// ResultError reports a failed command result to urfave/cli. It implements
// cli.ExitCoder so the process exits with the result's code.
type ResultError struct {
	Result *CommandResult
}

func (e *ResultError) Error() string {
	if e.Result.Message != "" {
		return e.Result.Message
	}
	if e.Result.Error != nil {
		return e.Result.Error.Error()
	}
	return "command failed"
}

// ExitCode implements cli.ExitCoder.
func (e *ResultError) ExitCode() int {
	if e.Result.ExitCode == ExitSuccess {
		return ExitFailure
	}
	return e.Result.ExitCode
}

func (e *ResultError) Unwrap() error {
	return e.Result.Error
}

var _ cli.ExitCoder = (*ResultError)(nil)

// ExitCode maps an error returned by a root command's Run to a process exit
// code: 0 for nil, the code of any cli.ExitCoder in the chain, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return ExitFailure
}

// rootRuntime builds executors for one root command.
type rootRuntime struct {
	appName string
	options *rootCommandOptions
	secrets cliargs.SecretSource
}

// RootCommand creates a root CLI command with the given app name and options.
//
// Each registered Command becomes a subcommand whose raw arguments go to the
// argument resolver, so global flags must come before the subcommand name.
// The returned command never calls os.Exit; pass Run's error to ExitCode.
func RootCommand(appName string, opts ...RootOption) *cli.Command {
	options := applyRootOptions(opts...)

	rt := &rootRuntime{appName: appName, options: options, secrets: options.secrets}

	var commands []*cli.Command
	for _, reg := range options.commands {
		commands = append(commands, rt.subcommand(reg))
	}

	if options.configCommands {
		manager := cliconfig.NewManager(appName)
		if options.localConfigPath != "" {
			manager.SetLocalPath(options.localConfigPath)
		}
		if options.globalConfigPath != "" {
			manager.SetGlobalPath(options.globalConfigPath)
		}
		commands = append(commands, cliconfig.Commands(manager))
	}

	if options.secretsCommands {
		secretsCfg := clisecrets.NewConfig(appName, options.secretsOptions...)
		if rt.secrets == nil {
			rt.secrets = clisecrets.Source(secretsCfg.Store, "")
		}
		commands = append(commands, clisecrets.Commands(secretsCfg))
	}

	// Setup default config paths if not provided
	configPaths := options.configPaths
	if len(configPaths) == 0 {
		configPaths = cliconfig.DefaultPaths(appName)
	}

	globalFlags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "config",
			Value: configPaths,
			Usage: "Config file path (can specify multiple; later files win)",
		},
		&cli.StringFlag{
			Name:   "env-prefix",
			Value:  options.envPrefix,
			Usage:  "Environment variable prefix for settings overrides",
			Hidden: true,
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output file (- or empty for stdout)",
		},
		&cli.StringFlag{
			Name:  "input",
			Usage: "YAML or JSON file supplying argument and option values",
		},
		&cli.StringFlag{
			Name:  "input-format",
			Usage: "Input file format (auto-detected from extension if not set)",
		},
	}
	globalFlags = append(globalFlags, settingsFlags()...)
	globalFlags = append(globalFlags, formatFlags(rt.allFormats())...)

	return &cli.Command{
		Name:     appName,
		Usage:    fmt.Sprintf("%s command line", appName),
		Flags:    globalFlags,
		Commands: commands,
		// failures are returned to the caller instead of exiting the process
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

// settingsFlags exposes every settings key that has a flag name.
func settingsFlags() []cli.Flag {
	var flags []cli.Flag
	for _, k := range cliconfig.Keys() {
		if k.Flag == "" {
			continue
		}
		usage := k.Description
		switch k.Kind {
		case cliconfig.KindInt:
			flags = append(flags, &cli.IntFlag{Name: k.Flag, Usage: usage})
		case cliconfig.KindBool:
			flags = append(flags, &cli.BoolFlag{Name: k.Flag, Usage: usage})
		case cliconfig.KindDuration:
			flags = append(flags, &cli.DurationFlag{Name: k.Flag, Usage: usage})
		default:
			flags = append(flags, &cli.StringFlag{Name: k.Flag, Usage: usage})
		}
	}
	return flags
}

// formatFlags collects the extra flags of flag-configured formats, first
// registration of a flag name wins.
func formatFlags(formats []OutputFormat) []cli.Flag {
	seen := make(map[string]bool)
	var flags []cli.Flag
	for _, f := range formats {
		fc, ok := f.(FlagConfiguredOutputFormat)
		if !ok {
			continue
		}
		for _, flag := range fc.Flags() {
			name := flag.Names()[0]
			if seen[name] {
				continue
			}
			seen[name] = true
			flags = append(flags, flag)
		}
	}
	return flags
}

// allFormats lists every format any command could use.
func (rt *rootRuntime) allFormats() []OutputFormat {
	formats := append([]OutputFormat{}, rt.options.outputFormats...)
	for _, reg := range rt.options.commands {
		formats = append(formats, reg.options.outputFormats...)
	}
	return append(formats, Go(), JSON(), YAML())
}

// formatsFor returns the formats available to reg in lookup order: its own,
// then the root's, then the built-ins.
func (rt *rootRuntime) formatsFor(reg registeredCommand) []OutputFormat {
	formats := append([]OutputFormat{}, reg.options.outputFormats...)
	formats = append(formats, rt.options.outputFormats...)
	return append(formats, Go(), JSON(), YAML())
}

const commandMetadataKey = "clikit.command"

// CommandOf returns the Command a subcommand built by RootCommand runs.
func CommandOf(c *cli.Command) (Command, bool) {
	if c == nil || c.Metadata == nil {
		return nil, false
	}
	cmd, ok := c.Metadata[commandMetadataKey].(Command)
	return cmd, ok
}

func (rt *rootRuntime) subcommand(reg registeredCommand) *cli.Command {
	cmd := reg.command
	return &cli.Command{
		Name:            cmd.Name(),
		Aliases:         reg.options.aliases,
		Usage:           descriptionOf(cmd),
		Description:     Usage(cmd),
		Category:        reg.options.categories,
		Hidden:          reg.options.hidden,
		SkipFlagParsing: true,
		Metadata:        map[string]any{commandMetadataKey: cmd},
		Action: func(ctx context.Context, c *cli.Command) error {
			return rt.run(ctx, c, reg)
		},
	}
}

// session is what one invocation needs: the configured executor and the
// logger resources to release afterwards.
type session struct {
	settings cliconfig.Settings
	executor *Executor
	logger   *slog.Logger
}

// prepare resolves settings and builds the logger and executor.
func (rt *rootRuntime) prepare(cmd *cli.Command) (*session, io.Closer, error) {
	root := cmd.Root()

	lookupEnv := rt.options.lookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	loader := cliconfig.NewLoader(
		cliconfig.FileConfig(root.StringSlice("config")...),
		cliconfig.EnvPrefix(root.String("env-prefix")),
		cliconfig.LookupEnv(lookupEnv),
	)
	settings, err := loader.Load(root)
	if err != nil {
		return nil, nil, err
	}

	level, err := clilog.ParseLevel(settings.Log.Verbosity)
	if err != nil {
		return nil, nil, err
	}
	logger, closer, err := clilog.Configure(clilog.Options{
		Level:  level,
		Format: clilog.Format(settings.Log.Format),
		Output: root.ErrWriter,
		File:   settings.Log.File,
		Rotation: clilog.Rotation{
			MaxSizeMB:  settings.Log.MaxSizeMB,
			MaxBackups: settings.Log.MaxBackups,
			MaxAgeDays: settings.Log.MaxAgeDays,
			Compress:   settings.Log.Compress,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	profile, err := ParseProfile(settings.Executor.Profile)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	pipeline, err := PipelineFor(profile)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	for _, stage := range rt.options.stages {
		if err := pipeline.Use(stage); err != nil {
			_ = closer.Close()
			return nil, nil, err
		}
	}

	var presets map[string]any
	if path := root.String("input"); path != "" {
		presets, err = cliargs.LoadPresets(path, root.String("input-format"), cliargs.DefaultPresetFormats())
		if err != nil {
			_ = closer.Close()
			return nil, nil, err
		}
	}

	execOpts := []ExecutorOption{
		UsePipeline(pipeline),
		MaxConcurrent(settings.Executor.MaxConcurrent),
		DefaultTimeout(settings.Executor.Timeout),
		StrictParsing(settings.Executor.Strict),
		LogTo(logger),
		EnvLookup(lookupEnv),
		PresetValues(presets),
	}
	if rt.options.services != nil {
		execOpts = append(execOpts, UseServices(rt.options.services))
	}
	if rt.secrets != nil {
		execOpts = append(execOpts, UseSecrets(rt.secrets))
	}
	execOpts = append(execOpts, rt.options.executorOptions...)

	return &session{
		settings: settings,
		executor: NewExecutor(execOpts...),
		logger:   logger,
	}, closer, nil
}

func (rt *rootRuntime) run(ctx context.Context, cmd *cli.Command, reg registeredCommand) (err error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, closer, err := rt.prepare(cmd)
	if err != nil {
		return fmt.Errorf("failed to configure %s: %w", rt.appName, err)
	}
	defer func() { _ = closer.Close() }()
	ctx = clilog.WithLogger(ctx, sess.logger)

	before := append(append([]Hook{}, rt.options.beforeCommand...), reg.options.beforeCommand...)
	after := append(append([]Hook{}, rt.options.afterCommand...), reg.options.afterCommand...)

	// After hooks are deferred first so they run even if a before hook fails.
	// Their errors are logged and never change the outcome.
	defer func() {
		for i := len(after) - 1; i >= 0; i-- {
			if hookErr := after[i](ctx, cmd); hookErr != nil {
				sess.logger.Warn("after hook failed", "error", hookErr)
			}
		}
	}()

	for _, hook := range before {
		if err := hook(ctx, cmd); err != nil {
			return fmt.Errorf("before hook failed: %w", err)
		}
	}

	var execOpts []ExecuteOption
	if reg.options.timeout != nil {
		execOpts = append(execOpts, CallTimeout(*reg.options.timeout))
	}

	result, err := sess.executor.Execute(ctx, reg.command, cmd.Args().Slice(), execOpts...)
	if err != nil {
		return err
	}

	if !result.Success {
		return &ResultError{Result: result}
	}

	out, closeOutput, err := openOutput(cmd.Root())
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer func() { _ = closeOutput() }()

	// help text is printed as is, whatever the output format
	if result.Data == nil && result.Message == Usage(reg.command) {
		_, err := fmt.Fprintln(out, result.Message)
		return err
	}

	return rt.render(ctx, cmd, out, reg, sess.settings.Output.Format, result)
}

// render writes result in the named format followed by a newline.
func (rt *rootRuntime) render(ctx context.Context, cmd *cli.Command, w io.Writer, reg registeredCommand, formatName string, result *CommandResult) error {
	formats := rt.formatsFor(reg)
	for _, outputFmt := range formats {
		if outputFmt.Name() != formatName {
			continue
		}
		if err := outputFmt.Format(ctx, cmd, w, result); err != nil {
			return fmt.Errorf("format failed: %w", err)
		}
		// Write final newline to keep terminal clean
		if _, err := w.Write([]byte("\n")); err != nil {
			return fmt.Errorf("failed to write final newline: %w", err)
		}
		return nil
	}

	seen := make(map[string]bool)
	var availableFormats []string
	for _, f := range formats {
		if !seen[f.Name()] {
			seen[f.Name()] = true
			availableFormats = append(availableFormats, f.Name())
		}
	}
	return fmt.Errorf("unknown format %q (available: %v)", formatName, availableFormats)
}

// openOutput returns the root's writer for "" and "-", or creates the file.
// Only a created file is closed by the returned func; the root's writer
// belongs to the caller.
func openOutput(root *cli.Command) (io.Writer, func() error, error) {
	path := root.String("output")
	if path == "" || path == "-" {
		noop := func() error { return nil }
		if root.Writer != nil {
			return root.Writer, noop, nil
		}
		return os.Stdout, noop, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
