package clikit_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/drewfead/clikit"
	"github.com/drewfead/clikit/clilog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipelineOf(t *testing.T, stages ...clikit.Stage) *clikit.Pipeline {
	t.Helper()
	p, err := clikit.NewPipeline(stages...)
	require.NoError(t, err)
	return p
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(clilog.HumanFriendlySlogHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}).WithoutColor())
}

func TestUnit_ErrorHandlingMiddleware(t *testing.T) {
	p := pipelineOf(t, clikit.Stage{Name: "errors", Handler: clikit.ErrorHandlingMiddleware()})

	t.Run("error becomes failure", func(t *testing.T) {
		boom := errors.New("disk full")
		cmd := &clikit.BasicCommand{
			CommandName: "write",
			Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
				return nil, boom
			},
		}
		ectx := clikit.NewExecutionContext(context.Background(), cmd)

		result, err := p.Execute(ectx)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, clikit.ExitFailure, result.ExitCode)
		assert.Equal(t, "disk full", result.Message)
		assert.ErrorIs(t, result.Error, boom)

		errType, _ := ectx.Metadata.Get(clikit.MetaErrorType)
		assert.Equal(t, "*errors.errorString", errType)
	})

	t.Run("panic becomes failure", func(t *testing.T) {
		cmd := &clikit.BasicCommand{
			CommandName: "explode",
			Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
				panic("kaboom")
			},
		}
		ectx := clikit.NewExecutionContext(context.Background(), cmd, clikit.WithLogger(clilog.Discard()))

		result, err := p.Execute(ectx)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "panic: kaboom", result.Message)

		var perr *clikit.PanicError
		require.ErrorAs(t, result.Error, &perr)
		assert.NotEmpty(t, perr.Stack)

		errType, _ := ectx.Metadata.Get(clikit.MetaErrorType)
		assert.Equal(t, "panic", errType)
	})

	t.Run("cancellation typed", func(t *testing.T) {
		cmd := &clikit.BasicCommand{
			CommandName: "poll",
			Run: func(ectx *clikit.ExecutionContext) (*clikit.CommandResult, error) {
				ectx.Cancel("stop")
				return nil, ectx.Err()
			},
		}
		ectx := clikit.NewExecutionContext(context.Background(), cmd)

		result, err := p.Execute(ectx)
		require.NoError(t, err)
		assert.ErrorIs(t, result.Error, clikit.ErrCancelled)

		errType, _ := ectx.Metadata.Get(clikit.MetaErrorType)
		assert.Equal(t, "cancelled", errType)
	})
}

func TestUnit_TimingMiddleware_RecordsEvenOnPanic(t *testing.T) {
	p := pipelineOf(t,
		clikit.Stage{Name: "errors", Priority: clikit.PriorityErrorHandling, Handler: clikit.ErrorHandlingMiddleware()},
		clikit.Stage{Name: "timing", Priority: clikit.PriorityTiming, Handler: clikit.TimingMiddleware()},
	)

	cmd := &clikit.BasicCommand{
		CommandName: "slow-panic",
		Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
			time.Sleep(5 * time.Millisecond)
			panic("late")
		},
	}
	ectx := clikit.NewExecutionContext(context.Background(), cmd, clikit.WithLogger(clilog.Discard()))

	result, err := p.Execute(ectx)
	require.NoError(t, err)
	assert.False(t, result.Success)

	_, hasStart := ectx.Metadata.Get(clikit.MetaTimingStart)
	_, hasEnd := ectx.Metadata.Get(clikit.MetaTimingEnd)
	assert.True(t, hasStart)
	assert.True(t, hasEnd)
	assert.GreaterOrEqual(t, ectx.Metadata.Duration(clikit.MetaTimingDuration), 5*time.Millisecond)
}

func TestUnit_ValidationMiddleware(t *testing.T) {
	p := pipelineOf(t, clikit.Stage{Name: "validation", Handler: clikit.ValidationMiddleware()})

	tests := []struct {
		name        string
		validate    func(*clikit.ExecutionContext) (bool, error)
		wantSuccess bool
		wantMessage string
	}{
		{
			name:        "valid runs command",
			validate:    func(*clikit.ExecutionContext) (bool, error) { return true, nil },
			wantSuccess: true,
		},
		{
			name:        "false fails",
			validate:    func(*clikit.ExecutionContext) (bool, error) { return false, nil },
			wantMessage: "Validation failed",
		},
		{
			name:        "error fails with cause",
			validate:    func(*clikit.ExecutionContext) (bool, error) { return false, errors.New("name taken") },
			wantMessage: "Validation failed: name taken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := false
			cmd := &clikit.BasicCommand{
				CommandName: "create",
				ValidateFn:  tt.validate,
				Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
					ran = true
					return clikit.Succeed(nil), nil
				},
			}
			ectx := clikit.NewExecutionContext(context.Background(), cmd)

			result, err := p.Execute(ectx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantSuccess, ran)
			if !tt.wantSuccess {
				assert.Equal(t, tt.wantMessage, result.Message)
				assert.Equal(t, clikit.ExitFailure, result.ExitCode)
				assert.ErrorIs(t, result.Error, clikit.ErrValidationFailed)
				assert.True(t, ectx.Metadata.Bool(clikit.MetaValidationFailed))
			}
		})
	}

	t.Run("cancelled token stops before validation", func(t *testing.T) {
		validated := false
		cmd := &clikit.BasicCommand{
			CommandName: "late",
			ValidateFn: func(*clikit.ExecutionContext) (bool, error) {
				validated = true
				return true, nil
			},
		}
		ectx := clikit.NewExecutionContext(context.Background(), cmd)
		ectx.Cancel("too late")

		_, err := p.Execute(ectx)
		require.ErrorIs(t, err, clikit.ErrCancelled)
		assert.False(t, validated)
	})
}

func TestUnit_LifecycleMiddleware(t *testing.T) {
	p := pipelineOf(t, clikit.Stage{Name: "lifecycle", Handler: clikit.LifecycleMiddleware()})

	t.Run("setup failure skips command and cleanup", func(t *testing.T) {
		var calls []string
		cmd := &clikit.BasicCommand{
			CommandName: "migrate",
			SetupFn: func(context.Context) error {
				calls = append(calls, "setup")
				return errors.New("no database")
			},
			Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
				calls = append(calls, "execute")
				return clikit.Succeed(nil), nil
			},
			CleanupFn: func(context.Context) error {
				calls = append(calls, "cleanup")
				return nil
			},
		}
		ectx := clikit.NewExecutionContext(context.Background(), cmd)

		result, err := p.Execute(ectx)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "Setup failed: no database", result.Message)
		assert.ErrorIs(t, result.Error, clikit.ErrSetupFailed)
		assert.Equal(t, []string{"setup"}, calls)

		phase, _ := ectx.Metadata.Get(clikit.MetaLifecyclePhase)
		assert.Equal(t, "setup", phase)
	})

	t.Run("cleanup runs after failure", func(t *testing.T) {
		var calls []string
		cmd := &clikit.BasicCommand{
			CommandName: "sync",
			SetupFn:     func(context.Context) error { calls = append(calls, "setup"); return nil },
			Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
				calls = append(calls, "execute")
				return clikit.Fail("remote unavailable"), nil
			},
			CleanupFn: func(context.Context) error { calls = append(calls, "cleanup"); return nil },
		}

		result, err := p.Execute(clikit.NewExecutionContext(context.Background(), cmd))
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, []string{"setup", "execute", "cleanup"}, calls)
	})

	t.Run("cleanup error does not override success", func(t *testing.T) {
		var buf bytes.Buffer
		cmd := &clikit.BasicCommand{
			CommandName: "upload",
			CleanupFn:   func(context.Context) error { return errors.New("temp dir busy") },
		}
		ectx := clikit.NewExecutionContext(context.Background(), cmd, clikit.WithLogger(bufferLogger(&buf)))

		result, err := p.Execute(ectx)
		require.NoError(t, err)
		assert.True(t, result.Success)

		cleanupErr, _ := ectx.Metadata.Get(clikit.MetaCleanupError)
		assert.Equal(t, "temp dir busy", cleanupErr)
		assert.Contains(t, buf.String(), "command cleanup failed")
	})

	t.Run("cleanup context survives cancellation", func(t *testing.T) {
		var cleanupErr error
		cmd := &clikit.BasicCommand{
			CommandName: "abort",
			Run: func(ectx *clikit.ExecutionContext) (*clikit.CommandResult, error) {
				ectx.Cancel("abort")
				return clikit.Fail("aborted"), nil
			},
			CleanupFn: func(ctx context.Context) error {
				cleanupErr = ctx.Err()
				return nil
			},
		}

		_, err := p.Execute(clikit.NewExecutionContext(context.Background(), cmd))
		require.NoError(t, err)
		assert.NoError(t, cleanupErr)
	})
}

func TestUnit_LoggingMiddleware_RedactsSensitiveOptions(t *testing.T) {
	var buf bytes.Buffer
	p := pipelineOf(t, clikit.Stage{Name: "logging", Handler: clikit.LoggingMiddleware(slog.LevelInfo)})

	cmd := &clikit.BasicCommand{CommandName: "login"}
	ectx := clikit.NewExecutionContext(context.Background(), cmd,
		clikit.WithLogger(bufferLogger(&buf)),
		clikit.WithOptions(map[string]any{"user": "ada", "token": "hunter2"}),
		clikit.WithSensitiveOptions("token"),
	)

	_, err := p.Execute(ectx)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "(pipeline) executing command")
	assert.Contains(t, out, "options.user=ada")
	assert.Contains(t, out, "options.token=[REDACTED]")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "command completed")
}

func TestUnit_LoggingMiddleware_RedactsSensitiveArguments(t *testing.T) {
	var buf bytes.Buffer
	p := pipelineOf(t, clikit.Stage{Name: "logging", Handler: clikit.LoggingMiddleware(slog.LevelInfo)})

	cmd := &clikit.BasicCommand{CommandName: "login"}
	ectx := clikit.NewExecutionContext(context.Background(), cmd,
		clikit.WithLogger(bufferLogger(&buf)),
		clikit.WithArguments(map[string]any{"user": "ada", "password": "hunter2"}),
		clikit.WithSensitiveArguments("password"),
	)

	_, err := p.Execute(ectx)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "args.user=ada")
	assert.Contains(t, out, "args.password=[REDACTED]")
	assert.NotContains(t, out, "hunter2")
	assert.Equal(t, []string{"password"}, ectx.SensitiveArguments())
	assert.Equal(t, []string{"password"}, ectx.Child(cmd).SensitiveArguments(), "children inherit redaction")
}

func TestUnit_LoggingMiddleware_FailureLevels(t *testing.T) {
	var buf bytes.Buffer
	p := pipelineOf(t, clikit.Stage{Name: "logging", Handler: clikit.LoggingMiddleware(slog.LevelDebug)})

	failing := &clikit.BasicCommand{
		CommandName: "fails",
		Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
			return clikit.Fail("nope"), nil
		},
	}
	erroring := &clikit.BasicCommand{
		CommandName: "errors",
		Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
			return nil, errors.New("broken")
		},
	}

	_, err := p.Execute(clikit.NewExecutionContext(context.Background(), failing, clikit.WithLogger(bufferLogger(&buf))))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "[WARN] (pipeline) command failed")

	buf.Reset()
	_, err = p.Execute(clikit.NewExecutionContext(context.Background(), erroring, clikit.WithLogger(bufferLogger(&buf))))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "[ERROR] (pipeline) command errored")
}

func TestUnit_PipelineProfiles(t *testing.T) {
	stageNames := func(p *clikit.Pipeline) []string {
		var names []string
		for _, s := range p.Stages() {
			names = append(names, s.Name)
		}
		return names
	}

	def, err := clikit.PipelineFor(clikit.ProfileDefault)
	require.NoError(t, err)
	assert.Equal(t, []string{"error-handling", "logging", "timing", "validation", "lifecycle"}, stageNames(def))

	minimal, err := clikit.PipelineFor(clikit.ProfileMinimal)
	require.NoError(t, err)
	assert.Equal(t, []string{"error-handling", "validation", "lifecycle"}, stageNames(minimal))

	debug, err := clikit.PipelineFor(clikit.ProfileDebug)
	require.NoError(t, err)
	assert.Len(t, debug.Stages(), 5)

	_, err = clikit.PipelineFor("chatty")
	require.Error(t, err)

	profile, err := clikit.ParseProfile(" Minimal ")
	require.NoError(t, err)
	assert.Equal(t, clikit.ProfileMinimal, profile)

	profile, err = clikit.ParseProfile("")
	require.NoError(t, err)
	assert.Equal(t, clikit.ProfileDefault, profile)

	_, err = clikit.ParseProfile("verbose")
	require.Error(t, err)
}
