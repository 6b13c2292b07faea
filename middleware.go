package clikit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/drewfead/clikit/clilog"
)

// Metadata keys written by the built-in middleware and read by the executor.
const (
	MetaTimingStart       = "timing.start"
	MetaTimingEnd         = "timing.end"
	MetaTimingDuration    = "timing.duration"
	MetaErrorType         = "error.type"
	MetaLifecyclePhase    = "lifecycle.phase"
	MetaCleanupError      = "lifecycle.cleanupError"
	MetaValidationFailed  = "validation.failed"
	MetaContinueOnError   = "continueOnError"
	MetaExecutionTimedOut = "execution.timedOut"
)

// Priorities of the built-in stages.
const (
	PriorityErrorHandling = 0
	PriorityLogging       = 100
	PriorityTiming        = 200
	PriorityValidation    = 300
	PriorityLifecycle     = 400
)

var (
	// ErrValidationFailed is the cause of results produced when a command's
	// Validate returns false.
	ErrValidationFailed = errors.New("validation failed")

	// ErrSetupFailed wraps errors returned by SetupHook.Setup.
	ErrSetupFailed = errors.New("setup failed")
)

// PanicError is the cause recorded when a command or middleware panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes a panicked error value.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ErrorHandlingMiddleware converts errors and panics from the rest of the
// pipeline into failure results with exit code 1. The original error is kept
// in CommandResult.Error and its type is recorded under MetaErrorType.
func ErrorHandlingMiddleware() Middleware {
	return func(ectx *ExecutionContext, next Next) (result *CommandResult, err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			perr := &PanicError{Value: r, Stack: debug.Stack()}
			ectx.Metadata.Set(MetaErrorType, "panic")
			ectx.Logger.Error("command panicked",
				slog.String(clilog.SourceKey, "pipeline"),
				slog.String("command", ectx.commandName()),
				slog.Any("panic", r),
			)
			result, err = FailWithError(perr), nil
		}()

		result, err = next()
		if err == nil {
			return result, nil
		}

		errType := fmt.Sprintf("%T", err)
		if errors.Is(err, ErrCancelled) {
			errType = "cancelled"
		}
		ectx.Metadata.Set(MetaErrorType, errType)
		return FailWithError(err), nil
	}
}

// LoggingMiddleware logs each execution before and after it runs. Start and
// success records use level; failures are logged at warn, and errors that
// escape the inner stages at error. Sensitive arguments and options are
// redacted.
func LoggingMiddleware(level slog.Level) Middleware {
	return func(ectx *ExecutionContext, next Next) (*CommandResult, error) {
		logger := clilog.ForSource(ectx.Logger, "pipeline").With(
			slog.String("command", ectx.commandName()),
			slog.String("execution", ectx.ID),
		)
		ctx := ectx.Context()

		if logger.Enabled(ctx, level) {
			logger.Log(ctx, level, "executing command",
				clilog.RedactedAttrs("args", ectx.args, ectx.secretArg),
				clilog.RedactedAttrs("options", ectx.options, ectx.sensitive),
			)
		}

		result, err := next()
		elapsed := time.Since(ectx.StartTime)

		switch {
		case err != nil:
			logger.ErrorContext(ctx, "command errored", slog.Duration("elapsed", elapsed), slog.Any("error", err))
		case result != nil && !result.Success:
			logger.WarnContext(ctx, "command failed",
				slog.Duration("elapsed", elapsed),
				slog.Int("exitCode", result.ExitCode),
				slog.String("message", result.Message),
			)
		default:
			logger.Log(ctx, level, "command completed", slog.Duration("elapsed", elapsed))
		}

		return result, err
	}
}

// TimingMiddleware records MetaTimingStart, MetaTimingEnd and
// MetaTimingDuration. The end and duration are written even if an inner
// stage panics.
func TimingMiddleware() Middleware {
	return func(ectx *ExecutionContext, next Next) (*CommandResult, error) {
		start := time.Now()
		ectx.Metadata.Set(MetaTimingStart, start)
		defer func() {
			end := time.Now()
			ectx.Metadata.Set(MetaTimingEnd, end)
			ectx.Metadata.Set(MetaTimingDuration, end.Sub(start))
		}()
		return next()
	}
}

// ValidationMiddleware stops cancelled executions and runs the command's
// Validator, if it has one. A false result or an error becomes a failure
// result; nothing downstream runs.
func ValidationMiddleware() Middleware {
	return func(ectx *ExecutionContext, next Next) (*CommandResult, error) {
		if err := ectx.Token.ThrowIfCancelled(); err != nil {
			return nil, err
		}

		v, ok := ectx.Command.(Validator)
		if !ok {
			return next()
		}

		valid, err := v.Validate(ectx)
		if err != nil {
			ectx.Metadata.Set(MetaValidationFailed, true)
			return &CommandResult{
				ExitCode: ExitFailure,
				Message:  fmt.Sprintf("Validation failed: %v", err),
				Error:    fmt.Errorf("%w: %w", ErrValidationFailed, err),
			}, nil
		}
		if !valid {
			ectx.Metadata.Set(MetaValidationFailed, true)
			return &CommandResult{
				ExitCode: ExitFailure,
				Message:  "Validation failed",
				Error:    ErrValidationFailed,
			}, nil
		}
		return next()
	}
}

// LifecycleMiddleware runs SetupHook.Setup before the command and
// CleanupHook.Cleanup after it. When setup fails the command does not run,
// cleanup is skipped and the result reads "Setup failed: <msg>". Cleanup
// runs even if the command fails or panics; a cleanup error is logged and
// recorded but never changes the result.
func LifecycleMiddleware() Middleware {
	return func(ectx *ExecutionContext, next Next) (result *CommandResult, err error) {
		if s, ok := ectx.Command.(SetupHook); ok {
			ectx.Metadata.Set(MetaLifecyclePhase, "setup")
			if setupErr := s.Setup(ectx.Context()); setupErr != nil {
				return &CommandResult{
					ExitCode: ExitFailure,
					Message:  "Setup failed: " + setupErr.Error(),
					Error:    fmt.Errorf("%w: %w", ErrSetupFailed, setupErr),
				}, nil
			}
		}

		if c, ok := ectx.Command.(CleanupHook); ok {
			defer func() {
				ectx.Metadata.Set(MetaLifecyclePhase, "cleanup")
				// cleanup must still run after cancellation
				ctx := context.WithoutCancel(ectx.Context())
				if cleanupErr := c.Cleanup(ctx); cleanupErr != nil {
					ectx.Metadata.Set(MetaCleanupError, cleanupErr.Error())
					ectx.Logger.Warn("command cleanup failed",
						slog.String(clilog.SourceKey, "pipeline"),
						slog.String("command", ectx.commandName()),
						slog.Any("error", cleanupErr),
					)
				}
			}()
		}

		ectx.Metadata.Set(MetaLifecyclePhase, "execute")
		return next()
	}
}

// Profile names a preset pipeline composition.
type Profile string

const (
	// ProfileDefault runs every built-in stage, logging at debug level.
	ProfileDefault Profile = "default"
	// ProfileMinimal runs error handling, validation and lifecycle only.
	ProfileMinimal Profile = "minimal"
	// ProfileDebug runs every built-in stage and logs executions at info
	// level so they show without raising verbosity.
	ProfileDebug Profile = "debug"
)

// Profiles lists the known profile names.
func Profiles() []Profile {
	return []Profile{ProfileDefault, ProfileMinimal, ProfileDebug}
}

// ParseProfile validates a profile name. An empty string means the default.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProfileDefault, nil
	case ProfileDefault, ProfileMinimal, ProfileDebug:
		return p, nil
	}
	return "", fmt.Errorf("unknown pipeline profile %q (expected default, minimal or debug)", s)
}

// PipelineFor builds a pipeline with the built-in stages of profile.
func PipelineFor(profile Profile) (*Pipeline, error) {
	errorHandling := Stage{Name: "error-handling", Priority: PriorityErrorHandling, Handler: ErrorHandlingMiddleware()}
	timing := Stage{Name: "timing", Priority: PriorityTiming, Handler: TimingMiddleware()}
	validation := Stage{Name: "validation", Priority: PriorityValidation, Handler: ValidationMiddleware()}
	lifecycle := Stage{Name: "lifecycle", Priority: PriorityLifecycle, Handler: LifecycleMiddleware()}

	switch profile {
	case "", ProfileDefault:
		return NewPipeline(errorHandling,
			Stage{Name: "logging", Priority: PriorityLogging, Handler: LoggingMiddleware(slog.LevelDebug)},
			timing, validation, lifecycle)
	case ProfileMinimal:
		return NewPipeline(errorHandling, validation, lifecycle)
	case ProfileDebug:
		return NewPipeline(errorHandling,
			Stage{Name: "logging", Priority: PriorityLogging, Handler: LoggingMiddleware(slog.LevelInfo)},
			timing, validation, lifecycle)
	}
	return nil, fmt.Errorf("unknown pipeline profile %q", profile)
}

// DefaultPipeline returns the default profile pipeline.
func DefaultPipeline() *Pipeline {
	p, _ := PipelineFor(ProfileDefault)
	return p
}
