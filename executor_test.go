package clikit_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drewfead/clikit"
	"github.com/drewfead/clikit/cliargs"
	"github.com/drewfead/clikit/clilog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(opts ...clikit.ExecutorOption) *clikit.Executor {
	return clikit.NewExecutor(append([]clikit.ExecutorOption{clikit.LogTo(clilog.Discard())}, opts...)...)
}

func deployCommand(run func(*clikit.ExecutionContext) (*clikit.CommandResult, error)) *clikit.BasicCommand {
	return &clikit.BasicCommand{
		CommandName: "deploy",
		Summary:     "Deploy the application",
		Args:        []cliargs.ArgumentDefinition{{Name: "environment", Required: true, Choices: []string{"dev", "prod"}}},
		Opts: []cliargs.OptionDefinition{
			{Name: "dry-run", Type: cliargs.TypeBoolean},
			{Name: "replicas", Short: "r", Type: cliargs.TypeInteger, Default: 1, Min: cliargs.Bound(1)},
		},
		Run: run,
	}
}

func TestIntegration_Executor_Execute(t *testing.T) {
	exec := newTestExecutor()

	cmd := deployCommand(func(ectx *clikit.ExecutionContext) (*clikit.CommandResult, error) {
		return clikit.Succeed(map[string]any{
			"environment": ectx.StringArgument("environment"),
			"dryRun":      ectx.BoolOption("dry-run"),
			"replicas":    ectx.IntOption("replicas"),
		}), nil
	})

	result, err := exec.Execute(context.Background(), cmd, []string{"prod", "--dry-run", "-r", "3"})
	require.NoError(t, err)
	require.True(t, result.Success, result.Message)
	assert.Equal(t, map[string]any{"environment": "prod", "dryRun": true, "replicas": 3}, result.Data)

	stats := exec.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Successful)
	assert.Equal(t, 0, stats.Current)
	assert.Equal(t, 1, stats.Peak)
}

func TestIntegration_Executor_InvalidInput(t *testing.T) {
	exec := newTestExecutor()

	ran := false
	cmd := deployCommand(func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
		ran = true
		return clikit.Succeed(nil), nil
	})

	result, err := exec.Execute(context.Background(), cmd, []string{"staging", "--replicas", "0"})
	require.NoError(t, err)
	assert.False(t, ran)
	assert.False(t, result.Success)
	assert.Equal(t, clikit.ExitInvalidInput, result.ExitCode)
	assert.True(t, strings.HasPrefix(result.Message, "invalid input: "))
	assert.Contains(t, result.Message, "arguments.environment")
	assert.Contains(t, result.Message, "options.replicas")

	var inputErr *clikit.InputError
	require.ErrorAs(t, result.Error, &inputErr)
	assert.Len(t, inputErr.Errors, 2)

	assert.Equal(t, 0, exec.Stats().Total, "invalid input never reaches the pipeline")
}

func TestIntegration_Executor_Help(t *testing.T) {
	exec := newTestExecutor()

	result, err := exec.Execute(context.Background(), deployCommand(nil), []string{"--help"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "Deploy the application")
	assert.Contains(t, result.Message, "Usage: deploy [options] <environment>")
	assert.Equal(t, 0, exec.Stats().Total)
}

func TestIntegration_Executor_ConcurrencyCeiling(t *testing.T) {
	exec := newTestExecutor(clikit.MaxConcurrent(2))

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	blocking := &clikit.BasicCommand{
		CommandName: "block",
		Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
			started <- struct{}{}
			<-release
			return clikit.Succeed(nil), nil
		},
	}

	var wg sync.WaitGroup
	results := make(chan *clikit.CommandResult, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := exec.Execute(context.Background(), blocking, nil)
			assert.NoError(t, err)
			results <- result
		}()
	}
	<-started
	<-started

	assert.Len(t, exec.Running(), 2)

	begin := time.Now()
	result, err := exec.Execute(context.Background(), blocking, nil)
	require.ErrorIs(t, err, clikit.ErrConcurrencyLimit)
	assert.Nil(t, result)
	assert.Less(t, time.Since(begin), 100*time.Millisecond, "rejection is immediate, not queued")

	close(release)
	wg.Wait()
	close(results)
	for r := range results {
		assert.True(t, r.Success)
	}

	stats := exec.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Successful)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 2, stats.Peak)
	assert.Equal(t, 0, stats.Current)
	assert.Empty(t, exec.Running())
}

func TestIntegration_Executor_Timeout(t *testing.T) {
	exec := newTestExecutor(clikit.DefaultTimeout(50 * time.Millisecond))

	var observed error
	done := make(chan struct{})
	slow := &clikit.BasicCommand{
		CommandName: "slow",
		Run: func(ectx *clikit.ExecutionContext) (*clikit.CommandResult, error) {
			defer close(done)
			select {
			case <-ectx.Context().Done():
				observed = ectx.Err()
				return nil, observed
			case <-time.After(5 * time.Second):
				return clikit.Succeed("too slow"), nil
			}
		},
	}

	begin := time.Now()
	result, err := exec.Execute(context.Background(), slow, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), 500*time.Millisecond)

	assert.False(t, result.Success)
	assert.Equal(t, clikit.ExitFailure, result.ExitCode)
	assert.Contains(t, result.Message, "timed out after 50ms")
	assert.ErrorIs(t, result.Error, clikit.ErrCancelled)

	<-done
	assert.ErrorIs(t, observed, clikit.ErrCancelled, "the command sees the token trip")

	stats := exec.Stats()
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.TimedOut)
	assert.Empty(t, exec.Running())
}

func TestIntegration_Executor_CallTimeoutOverride(t *testing.T) {
	exec := newTestExecutor(clikit.DefaultTimeout(10 * time.Millisecond))

	cmd := &clikit.BasicCommand{
		CommandName: "moderate",
		Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
			time.Sleep(30 * time.Millisecond)
			return clikit.Succeed("done"), nil
		},
	}

	result, err := exec.Execute(context.Background(), cmd, nil, clikit.CallTimeout(0))
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestIntegration_Executor_SetupFailure(t *testing.T) {
	exec := newTestExecutor()

	executed := false
	cmd := &clikit.BasicCommand{
		CommandName: "connect",
		SetupFn:     func(context.Context) error { return errors.New("connection refused") },
		Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
			executed = true
			return clikit.Succeed(nil), nil
		},
	}

	result, err := exec.Execute(context.Background(), cmd, nil)
	require.NoError(t, err)
	assert.False(t, executed)
	assert.False(t, result.Success)
	assert.Equal(t, "Setup failed: connection refused", result.Message)

	stats := exec.Stats()
	assert.Equal(t, 0, stats.Successful)
	assert.Equal(t, 1, stats.Failed)
}

func TestIntegration_Executor_CallerCancellation(t *testing.T) {
	exec := newTestExecutor()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	cmd := &clikit.BasicCommand{
		CommandName: "never",
		Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
			ran = true
			return clikit.Succeed(nil), nil
		},
	}

	result, err := exec.Execute(ctx, cmd, nil)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, clikit.ErrCancelled)
}

func TestIntegration_Executor_UnhandledErrorReturned(t *testing.T) {
	p, err := clikit.PipelineFor(clikit.ProfileMinimal)
	require.NoError(t, err)
	require.True(t, p.Remove("error-handling"))

	exec := newTestExecutor(clikit.UsePipeline(p))
	boom := errors.New("boom")
	cmd := &clikit.BasicCommand{
		CommandName: "raw",
		Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
			return nil, boom
		},
	}

	_, err = exec.Execute(context.Background(), cmd, nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, exec.Stats().Failed)
}

func TestIntegration_Executor_UnhandledPanicReturned(t *testing.T) {
	p, err := clikit.PipelineFor(clikit.ProfileMinimal)
	require.NoError(t, err)
	require.True(t, p.Remove("error-handling"))

	exec := newTestExecutor(clikit.UsePipeline(p))
	cmd := &clikit.BasicCommand{
		CommandName: "raw",
		Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
			panic("kaboom")
		},
	}

	var result *clikit.CommandResult
	require.NotPanics(t, func() {
		result, err = exec.Execute(context.Background(), cmd, nil)
	})
	assert.Nil(t, result)

	var panicErr *clikit.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "kaboom", panicErr.Value)

	stats := exec.Stats()
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Current, "the slot is released after a panic")
}

func TestIntegration_Executor_SecretArgumentsNotLogged(t *testing.T) {
	var buf bytes.Buffer
	exec := clikit.NewExecutor(clikit.LogTo(bufferLogger(&buf)))

	cmd := &clikit.BasicCommand{
		CommandName: "login",
		Args: []cliargs.ArgumentDefinition{
			{Name: "user", Required: true},
			{Name: "password", Required: true, Secret: true},
		},
		Run: func(ectx *clikit.ExecutionContext) (*clikit.CommandResult, error) {
			return clikit.SucceedWithMessage("welcome %s", ectx.StringArgument("user")), nil
		},
	}

	result, err := exec.Execute(context.Background(), cmd, []string{"ada", "hunter2"})
	require.NoError(t, err)
	require.True(t, result.Success, result.Message)

	out := buf.String()
	assert.Contains(t, out, "executing command")
	assert.Contains(t, out, "args.user=ada")
	assert.Contains(t, out, "args.password=[REDACTED]")
	assert.NotContains(t, out, "hunter2")
}

func TestIntegration_Executor_CancelExecution(t *testing.T) {
	exec := newTestExecutor()

	started := make(chan string, 1)
	cmd := &clikit.BasicCommand{
		CommandName: "wait",
		Run: func(ectx *clikit.ExecutionContext) (*clikit.CommandResult, error) {
			started <- ectx.ID
			<-ectx.Token.Done()
			return nil, ectx.Err()
		},
	}

	out := make(chan *clikit.CommandResult, 1)
	go func() {
		result, err := exec.Execute(context.Background(), cmd, nil)
		assert.NoError(t, err)
		out <- result
	}()

	id := <-started
	assert.False(t, exec.CancelExecution("unknown", "nope"))
	assert.True(t, exec.CancelExecution(id, "operator request"))

	result := <-out
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "operator request")
}

func TestIntegration_Executor_CancelAllExecutions(t *testing.T) {
	exec := newTestExecutor()

	started := make(chan struct{}, 3)
	cmd := &clikit.BasicCommand{
		CommandName: "wait",
		Run: func(ectx *clikit.ExecutionContext) (*clikit.CommandResult, error) {
			started <- struct{}{}
			<-ectx.Context().Done()
			return nil, ectx.Err()
		},
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := exec.Execute(context.Background(), cmd, nil)
			assert.NoError(t, err)
			assert.False(t, result.Success)
		}()
	}
	for range 3 {
		<-started
	}

	assert.Equal(t, 3, exec.CancelAllExecutions("shutdown"))
	wg.Wait()
	assert.Equal(t, 3, exec.Stats().Failed)
}

func TestIntegration_Executor_ExecuteChild(t *testing.T) {
	exec := newTestExecutor(clikit.MaxConcurrent(1))

	child := &clikit.BasicCommand{
		CommandName: "child",
		Args:        []cliargs.ArgumentDefinition{{Name: "item", Required: true}},
		Run: func(ectx *clikit.ExecutionContext) (*clikit.CommandResult, error) {
			return clikit.Succeed("child:" + ectx.StringArgument("item")), nil
		},
	}

	parent := &clikit.BasicCommand{
		CommandName: "parent",
		Run: func(ectx *clikit.ExecutionContext) (*clikit.CommandResult, error) {
			result, err := exec.ExecuteChild(ectx, child, []string{"widget"})
			if err != nil {
				return nil, err
			}
			return clikit.Succeed(result.Data), nil
		},
	}

	result, err := exec.Execute(context.Background(), parent, nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Message)
	assert.Equal(t, "child:widget", result.Data)

	stats := exec.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Peak, "children share the parent's slot")
}

func TestIntegration_Executor_ExecuteConcurrent(t *testing.T) {
	exec := newTestExecutor(clikit.MaxConcurrent(3))

	echo := &clikit.BasicCommand{
		CommandName: "echo",
		Args:        []cliargs.ArgumentDefinition{{Name: "value", Required: true}},
		Run: func(ectx *clikit.ExecutionContext) (*clikit.CommandResult, error) {
			time.Sleep(10 * time.Millisecond)
			if ectx.StringArgument("value") == "bad" {
				return clikit.Fail("bad value"), nil
			}
			return clikit.Succeed(ectx.StringArgument("value")), nil
		},
	}

	results := exec.ExecuteConcurrent(context.Background(), []clikit.Invocation{
		{Command: echo, Args: []string{"one"}},
		{Command: echo, Args: []string{"bad"}},
		{Command: echo, Args: []string{"three"}},
	})

	require.Len(t, results, 3)
	assert.Equal(t, "one", results[0].Data)
	assert.False(t, results[1].Success)
	assert.Equal(t, "three", results[2].Data)
}

func TestIntegration_Executor_ExecuteConcurrentRejections(t *testing.T) {
	exec := newTestExecutor(clikit.MaxConcurrent(1))

	release := make(chan struct{})
	hold := &clikit.BasicCommand{
		CommandName: "hold",
		Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
			<-release
			return clikit.Succeed(nil), nil
		},
	}

	go func() {
		for len(exec.Running()) == 0 {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	results := exec.ExecuteConcurrent(context.Background(), []clikit.Invocation{
		{Command: hold}, {Command: hold}, {Command: hold},
	})

	succeeded, rejected := 0, 0
	for _, r := range results {
		require.NotNil(t, r)
		if r.Success {
			succeeded++
			continue
		}
		assert.ErrorIs(t, r.Error, clikit.ErrConcurrencyLimit)
		rejected++
	}
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.Equal(t, 3, succeeded+rejected)
}

func TestIntegration_Executor_ExecuteSequential(t *testing.T) {
	step := func(name string, ok bool, log *[]string) *clikit.BasicCommand {
		return &clikit.BasicCommand{
			CommandName: name,
			Run: func(*clikit.ExecutionContext) (*clikit.CommandResult, error) {
				*log = append(*log, name)
				if !ok {
					return clikit.Fail(name + " failed"), nil
				}
				return clikit.Succeed(nil), nil
			},
		}
	}

	t.Run("stops at first failure", func(t *testing.T) {
		var ran []string
		exec := newTestExecutor()
		results := exec.ExecuteSequential(context.Background(), []clikit.Invocation{
			{Command: step("a", true, &ran)},
			{Command: step("b", false, &ran)},
			{Command: step("c", true, &ran)},
		})
		assert.Equal(t, []string{"a", "b"}, ran)
		require.Len(t, results, 2)
		assert.False(t, results[1].Success)
	})

	t.Run("continueOnError moves past a failure", func(t *testing.T) {
		var ran []string
		exec := newTestExecutor()
		results := exec.ExecuteSequential(context.Background(), []clikit.Invocation{
			{Command: step("a", true, &ran)},
			{Command: step("b", false, &ran), Metadata: map[string]any{clikit.MetaContinueOnError: true}},
			{Command: step("c", true, &ran)},
		})
		assert.Equal(t, []string{"a", "b", "c"}, ran)
		assert.Len(t, results, 3)
	})
}

func TestIntegration_Executor_SecretsAndPresets(t *testing.T) {
	exec := newTestExecutor(
		clikit.UseSecrets(stubSecrets{"api/token": "from-keychain"}),
		clikit.PresetValues(map[string]any{"region": "eu-west-1"}),
		clikit.EnvLookup(func(string) (string, bool) { return "", false }),
	)

	cmd := &clikit.BasicCommand{
		CommandName: "call",
		Opts: []cliargs.OptionDefinition{
			{Name: "token", SecretKey: "api/token", Required: true},
			{Name: "region", Default: "us-east-1"},
		},
		Run: func(ectx *clikit.ExecutionContext) (*clikit.CommandResult, error) {
			return clikit.Succeed(ectx.StringOption("token") + "@" + ectx.StringOption("region")), nil
		},
	}

	result, err := exec.Execute(context.Background(), cmd, nil)
	require.NoError(t, err)
	require.True(t, result.Success, result.Message)
	assert.Equal(t, "from-keychain@eu-west-1", result.Data)
}

func TestIntegration_Executor_StrictParsing(t *testing.T) {
	cmd := &clikit.BasicCommand{CommandName: "plain"}

	lenient := newTestExecutor()
	result, err := lenient.Execute(context.Background(), cmd, []string{"--mystery"})
	require.NoError(t, err)
	assert.True(t, result.Success)

	strict := newTestExecutor(clikit.StrictParsing(true))
	result, err = strict.Execute(context.Background(), cmd, []string{"--mystery"})
	require.NoError(t, err)
	assert.Equal(t, clikit.ExitInvalidInput, result.ExitCode)
	assert.Contains(t, result.Message, "unknown")
}

type stubSecrets map[string]string

func (s stubSecrets) Lookup(key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}
