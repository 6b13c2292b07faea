// Package clikit runs CLI commands through a middleware pipeline with
// argument resolution, cancellation, timeouts and admission control.
//
// A Command declares its arguments and options (by implementing Definer) and
// receives an ExecutionContext holding the resolved values, a logger, a
// service container and a CancellationToken. The Executor parses raw
// arguments with package cliargs, builds the context and runs the command
// through a Pipeline of prioritized middleware stages.
//
// # Commands
//
//	deploy := &clikit.BasicCommand{
//	    CommandName: "deploy",
//	    Summary:     "deploy a service",
//	    Args: []cliargs.ArgumentDefinition{
//	        {Name: "service", Type: cliargs.TypeString, Required: true},
//	    },
//	    Run: func(ectx *clikit.ExecutionContext) (*clikit.CommandResult, error) {
//	        return clikit.Succeed(map[string]any{"service": ectx.StringArgument("service")}), nil
//	    },
//	}
//
// Optional capabilities are detected by interface assertion:
//
//   - Validator: checks input before execution
//   - SetupHook / CleanupHook: acquire and release resources
//   - Describer: one-line description used in usage text
//
// # Pipeline
//
// Stages run in ascending priority order on the way in. The built-ins are
// error handling (0), logging (100), timing (200), validation (300) and
// lifecycle (400), so lifecycle hooks sit closest to the command.
// Profiles select a composition: default, minimal and debug. Custom stages are
// added with Pipeline.Use or WithMiddleware.
//
// # Root command
//
// RootCommand wires registered commands into a urfave/cli application:
//
//	root := clikit.RootCommand("deployctl",
//	    clikit.WithCommand(deploy, clikit.WithTimeout(time.Minute)),
//	    clikit.WithEnvPrefix("DEPLOYCTL"),
//	    clikit.WithConfigCommands(),
//	    clikit.WithSecretsCommands(),
//	)
//	if err := root.Run(ctx, os.Args); err != nil {
//	    fmt.Fprintln(os.Stderr, err)
//	    os.Exit(clikit.ExitCode(err))
//	}
//
// Settings (executor limits, log verbosity and format, output format) load
// from config files, then environment variables, then global flags, which
// must precede the subcommand name.
//
// # Output Formats
//
// Successful results are rendered with the format named by --format:
//
//   - clikit.Go(): Go %+v formatting (the default)
//   - clikit.JSON(): JSON output with optional --pretty flag
//   - clikit.YAML(): YAML output
//
// Custom formats implement OutputFormat, and FlagConfiguredOutputFormat when
// they need extra flags. TemplateFormat renders results with text/template,
// keyed by command name:
//
//	format := clikit.MustTemplateFormat("summary", map[string]string{
//	    "deploy": `{{.data.service}} deployed`,
//	})
//
// Failed results are returned from Run as *ResultError, which carries the
// result's exit code.
package clikit
