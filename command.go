package clikit

import (
	"context"
	"fmt"

	"github.com/drewfead/clikit/cliargs"
)

// Exit codes used by the built-in failure paths.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitInvalidInput = 2
)

// Command is the unit of work the executor runs.
type Command interface {
	Name() string
	Execute(ectx *ExecutionContext) (*CommandResult, error)
}

// Validator is implemented by commands that check their input before running.
// Returning false (or an error) stops the pipeline with a failure result.
type Validator interface {
	Validate(ectx *ExecutionContext) (bool, error)
}

// SetupHook is implemented by commands that acquire resources before Execute.
type SetupHook interface {
	Setup(ctx context.Context) error
}

// CleanupHook is implemented by commands that release resources after
// Execute. It runs even when Execute fails.
type CleanupHook interface {
	Cleanup(ctx context.Context) error
}

// Definer is implemented by commands that declare their arguments and options.
// Commands without it accept no declared fields.
type Definer interface {
	Arguments() []cliargs.ArgumentDefinition
	Options() []cliargs.OptionDefinition
}

// Describer is implemented by commands with a one-line description.
type Describer interface {
	Description() string
}

// CommandResult is the outcome of a command execution.
type CommandResult struct {
	Success  bool   `json:"success" yaml:"success"`
	ExitCode int    `json:"exitCode" yaml:"exitCode"`
	Data     any    `json:"data,omitempty" yaml:"data,omitempty"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
	// Error is the underlying cause of a failure, kept for callers that want
	// to inspect it with errors.Is/As. It is never serialized.
	Error error `json:"-" yaml:"-"`
}

// Succeed returns a successful result carrying data.
func Succeed(data any) *CommandResult {
	return &CommandResult{Success: true, ExitCode: ExitSuccess, Data: data}
}

// SucceedWithMessage returns a successful result with a message and no data.
func SucceedWithMessage(format string, args ...any) *CommandResult {
	return &CommandResult{Success: true, ExitCode: ExitSuccess, Message: fmt.Sprintf(format, args...)}
}

// Fail returns a failure result with exit code 1.
func Fail(message string) *CommandResult {
	return &CommandResult{Success: false, ExitCode: ExitFailure, Message: message}
}

// FailWithError returns a failure result that keeps err as its cause.
func FailWithError(err error) *CommandResult {
	return &CommandResult{Success: false, ExitCode: ExitFailure, Message: err.Error(), Error: err}
}

// FailWithCode returns a failure result with the given exit code.
func FailWithCode(code int, message string) *CommandResult {
	return &CommandResult{Success: false, ExitCode: code, Message: message}
}

// BasicCommand implements Command and every optional capability through
// function fields; nil fields are treated as absent.
type BasicCommand struct {
	CommandName string
	Summary     string
	Args        []cliargs.ArgumentDefinition
	Opts        []cliargs.OptionDefinition

	Run        func(ectx *ExecutionContext) (*CommandResult, error)
	ValidateFn func(ectx *ExecutionContext) (bool, error)
	SetupFn    func(ctx context.Context) error
	CleanupFn  func(ctx context.Context) error
}

var (
	_ Command     = (*BasicCommand)(nil)
	_ Validator   = (*BasicCommand)(nil)
	_ SetupHook   = (*BasicCommand)(nil)
	_ CleanupHook = (*BasicCommand)(nil)
	_ Definer     = (*BasicCommand)(nil)
	_ Describer   = (*BasicCommand)(nil)
)

func (c *BasicCommand) Name() string { return c.CommandName }

func (c *BasicCommand) Description() string { return c.Summary }

func (c *BasicCommand) Arguments() []cliargs.ArgumentDefinition { return c.Args }

func (c *BasicCommand) Options() []cliargs.OptionDefinition { return c.Opts }

// Execute runs Run. A command with no Run function succeeds with no data.
func (c *BasicCommand) Execute(ectx *ExecutionContext) (*CommandResult, error) {
	if c.Run == nil {
		return Succeed(nil), nil
	}
	return c.Run(ectx)
}

func (c *BasicCommand) Validate(ectx *ExecutionContext) (bool, error) {
	if c.ValidateFn == nil {
		return true, nil
	}
	return c.ValidateFn(ectx)
}

func (c *BasicCommand) Setup(ctx context.Context) error {
	if c.SetupFn == nil {
		return nil
	}
	return c.SetupFn(ctx)
}

func (c *BasicCommand) Cleanup(ctx context.Context) error {
	if c.CleanupFn == nil {
		return nil
	}
	return c.CleanupFn(ctx)
}

// definitionsOf returns the declared fields of cmd, if any.
func definitionsOf(cmd Command) ([]cliargs.ArgumentDefinition, []cliargs.OptionDefinition) {
	if d, ok := cmd.(Definer); ok {
		return d.Arguments(), d.Options()
	}
	return nil, nil
}

// descriptionOf returns cmd's description or an empty string.
func descriptionOf(cmd Command) string {
	if d, ok := cmd.(Describer); ok {
		return d.Description()
	}
	return ""
}

// Usage renders cmd's usage text from its declared arguments and options,
// preceded by its description when it has one.
func Usage(cmd Command) string {
	arguments, options := definitionsOf(cmd)
	usage := cliargs.Usage(cmd.Name(), arguments, options)
	if desc := descriptionOf(cmd); desc != "" {
		return desc + "\n\n" + usage
	}
	return usage
}
