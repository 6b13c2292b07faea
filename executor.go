package clikit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/drewfead/clikit/cliargs"
	"github.com/drewfead/clikit/clilog"
	"github.com/drewfead/clikit/cliservices"
	"golang.org/x/sync/errgroup"
)

// ErrConcurrencyLimit is returned when an execution is attempted while the
// executor is already running its maximum number of executions. Executions
// are rejected immediately, never queued.
var ErrConcurrencyLimit = errors.New("concurrency limit reached")

// InputError describes arguments that failed to parse or validate.
type InputError struct {
	Errors []cliargs.ValidationError
}

func (e *InputError) Error() string {
	return "invalid input: " + cliargs.ValidationResult{Errors: e.Errors}.Summary()
}

// ExecutionStats is a snapshot of executor bookkeeping.
type ExecutionStats struct {
	Total           int           `json:"total" yaml:"total"`
	Successful      int           `json:"successful" yaml:"successful"`
	Failed          int           `json:"failed" yaml:"failed"`
	TimedOut        int           `json:"timedOut" yaml:"timedOut"`
	Rejected        int           `json:"rejected" yaml:"rejected"`
	TotalDuration   time.Duration `json:"totalDuration" yaml:"totalDuration"`
	AverageDuration time.Duration `json:"averageDuration" yaml:"averageDuration"`
	Current         int           `json:"current" yaml:"current"`
	Peak            int           `json:"peak" yaml:"peak"`
}

// RunningExecution describes an in-flight execution.
type RunningExecution struct {
	ID        string    `json:"id" yaml:"id"`
	Command   string    `json:"command" yaml:"command"`
	StartTime time.Time `json:"startTime" yaml:"startTime"`
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// MaxConcurrent caps the number of simultaneous executions. Zero or less
// means unlimited.
func MaxConcurrent(n int) ExecutorOption {
	return func(e *Executor) { e.maxConcurrent = n }
}

// DefaultTimeout bounds every execution that does not set its own timeout.
func DefaultTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// UsePipeline replaces the default pipeline.
func UsePipeline(p *Pipeline) ExecutorOption {
	return func(e *Executor) {
		if p != nil {
			e.pipeline = p
		}
	}
}

// UseServices sets the container each execution scope is created from.
func UseServices(c *cliservices.Container) ExecutorOption {
	return func(e *Executor) {
		if c != nil {
			e.services = c
		}
	}
}

// UseSecrets sets the secret source consulted for options with a SecretKey.
func UseSecrets(s cliargs.SecretSource) ExecutorOption {
	return func(e *Executor) { e.secrets = s }
}

// LogTo sets the executor's logger.
func LogTo(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.base = logger
		}
	}
}

// StrictParsing makes unknown options validation errors.
func StrictParsing(strict bool) ExecutorOption {
	return func(e *Executor) { e.strict = strict }
}

// PresetValues supplies field values below env vars and above defaults.
func PresetValues(values map[string]any) ExecutorOption {
	return func(e *Executor) { e.presets = values }
}

// EnvLookup replaces os.LookupEnv for option env var fallbacks.
func EnvLookup(fn func(string) (string, bool)) ExecutorOption {
	return func(e *Executor) {
		if fn != nil {
			e.lookupEnv = fn
		}
	}
}

// ExecuteOption adjusts a single execution.
type ExecuteOption func(*executeConfig)

type executeConfig struct {
	timeout time.Duration
}

// CallTimeout overrides the executor's default timeout for one execution.
// Zero disables the timeout.
func CallTimeout(d time.Duration) ExecuteOption {
	return func(c *executeConfig) { c.timeout = d }
}

// Executor runs commands through a pipeline with admission control,
// timeouts and bookkeeping.
type Executor struct {
	pipeline      *Pipeline
	base          *slog.Logger
	logger        *slog.Logger
	services      *cliservices.Container
	secrets       cliargs.SecretSource
	presets       map[string]any
	lookupEnv     func(string) (string, bool)
	strict        bool
	maxConcurrent int
	timeout       time.Duration

	mu      sync.Mutex
	running map[string]*ExecutionContext
	stats   ExecutionStats
}

// NewExecutor returns an executor using the default pipeline unless
// UsePipeline says otherwise.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		base:      clilog.Discard(),
		services:  cliservices.New(),
		lookupEnv: os.LookupEnv,
		running:   make(map[string]*ExecutionContext),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pipeline == nil {
		e.pipeline = DefaultPipeline()
	}
	e.logger = clilog.ForSource(e.base, "executor")
	return e
}

// Pipeline returns the pipeline executions run through.
func (e *Executor) Pipeline() *Pipeline {
	return e.pipeline
}

// Services returns the root service container.
func (e *Executor) Services() *cliservices.Container {
	return e.services
}

// Parse resolves rawArgs against cmd's declared fields.
func (e *Executor) Parse(cmd Command, rawArgs []string) *cliargs.ParseResult {
	arguments, options := definitionsOf(cmd)
	parser := cliargs.NewParser(arguments, options, cliargs.Config{
		Strict:    e.strict,
		LookupEnv: e.lookupEnv,
		Secrets:   e.secrets,
		Presets:   e.presets,
	})
	return parser.Parse(rawArgs)
}

// Execute parses rawArgs for cmd and runs it. Invalid input produces a
// failure result with ExitInvalidInput and is not counted in the stats. A
// help request returns the command's usage text as the message.
func (e *Executor) Execute(ctx context.Context, cmd Command, rawArgs []string, opts ...ExecuteOption) (*CommandResult, error) {
	if cmd == nil {
		return nil, ErrNilCommand
	}

	parsed := e.Parse(cmd, rawArgs)
	if parsed.Help {
		return &CommandResult{Success: true, ExitCode: ExitSuccess, Message: Usage(cmd)}, nil
	}
	if !parsed.Validation.Success {
		return invalidInput(parsed), nil
	}
	for _, w := range parsed.Validation.Warnings {
		e.logger.Warn(w, slog.String("command", cmd.Name()))
	}

	ectx := NewExecutionContext(ctx, cmd,
		WithParseResult(parsed),
		WithServices(e.services),
		WithLogger(clilog.FromContextOr(ctx, e.base)),
	)
	return e.ExecuteWithContext(ectx, opts...)
}

// ExecuteWithContext runs an already constructed execution. It returns
// ErrConcurrencyLimit without running anything when the executor is full.
// Cancellations and timeouts come back as failure results; any other error
// that escapes the pipeline is returned.
func (e *Executor) ExecuteWithContext(ectx *ExecutionContext, opts ...ExecuteOption) (*CommandResult, error) {
	if ectx == nil || ectx.Command == nil {
		return nil, ErrNilCommand
	}
	if err := e.admit(ectx); err != nil {
		return nil, err
	}
	return e.run(ectx, true, opts)
}

// ExecuteChild runs cmd as a nested execution of parent. The child shares
// the parent's cancellation token and admission slot, so it is neither
// limited by MaxConcurrent nor listed in Running.
func (e *Executor) ExecuteChild(parent *ExecutionContext, cmd Command, rawArgs []string, opts ...ExecuteOption) (*CommandResult, error) {
	if parent == nil || cmd == nil {
		return nil, ErrNilCommand
	}

	parsed := e.Parse(cmd, rawArgs)
	if parsed.Help {
		return &CommandResult{Success: true, ExitCode: ExitSuccess, Message: Usage(cmd)}, nil
	}
	if !parsed.Validation.Success {
		return invalidInput(parsed), nil
	}

	child := parent.Child(cmd, WithParseResult(parsed))
	return e.run(child, false, opts)
}

// Invocation is one entry of ExecuteConcurrent or ExecuteSequential.
type Invocation struct {
	Command Command
	Args    []string
	// Metadata seeds the execution's metadata. Setting MetaContinueOnError
	// to true lets ExecuteSequential move past this invocation's failure.
	Metadata map[string]any
}

// ExecuteConcurrent runs every invocation at once and waits for all of them.
// Results are in invocation order. Rejections and errors become failure
// results; a failure never stops the others.
func (e *Executor) ExecuteConcurrent(ctx context.Context, invocations []Invocation, opts ...ExecuteOption) []*CommandResult {
	results := make([]*CommandResult, len(invocations))

	var g errgroup.Group
	for i, inv := range invocations {
		g.Go(func() error {
			result, err := e.invoke(ctx, inv, opts)
			if err != nil {
				result = FailWithError(err)
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ExecuteSequential runs invocations one after another, stopping after the
// first failure unless that invocation set MetaContinueOnError. The returned
// slice holds the results of the invocations that ran.
func (e *Executor) ExecuteSequential(ctx context.Context, invocations []Invocation, opts ...ExecuteOption) []*CommandResult {
	results := make([]*CommandResult, 0, len(invocations))

	for _, inv := range invocations {
		result, err := e.invoke(ctx, inv, opts)
		if err != nil {
			result = FailWithError(err)
		}
		results = append(results, result)

		if !result.Success {
			if cont, _ := inv.Metadata[MetaContinueOnError].(bool); !cont {
				break
			}
		}
	}

	return results
}

func (e *Executor) invoke(ctx context.Context, inv Invocation, opts []ExecuteOption) (*CommandResult, error) {
	if inv.Command == nil {
		return nil, ErrNilCommand
	}

	parsed := e.Parse(inv.Command, inv.Args)
	if !parsed.Validation.Success {
		return invalidInput(parsed), nil
	}

	ctxOpts := []ContextOption{
		WithParseResult(parsed),
		WithServices(e.services),
		WithLogger(clilog.FromContextOr(ctx, e.base)),
	}
	for k, v := range inv.Metadata {
		ctxOpts = append(ctxOpts, WithMetadata(k, v))
	}

	return e.ExecuteWithContext(NewExecutionContext(ctx, inv.Command, ctxOpts...), opts...)
}

// CancelExecution trips the token of the running execution id. It reports
// whether such an execution was found. Cancellation is cooperative.
func (e *Executor) CancelExecution(id, reason string) bool {
	e.mu.Lock()
	ectx, ok := e.running[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	ectx.Cancel(reason)
	return true
}

// CancelAllExecutions trips every running execution's token and returns how
// many were signalled.
func (e *Executor) CancelAllExecutions(reason string) int {
	e.mu.Lock()
	targets := make([]*ExecutionContext, 0, len(e.running))
	for _, ectx := range e.running {
		targets = append(targets, ectx)
	}
	e.mu.Unlock()

	for _, ectx := range targets {
		ectx.Cancel(reason)
	}
	return len(targets)
}

// Stats returns a snapshot of the executor's bookkeeping.
func (e *Executor) Stats() ExecutionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	if s.Total > 0 {
		s.AverageDuration = s.TotalDuration / time.Duration(s.Total)
	}
	return s
}

// Running lists the executions currently admitted.
func (e *Executor) Running() []RunningExecution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RunningExecution, 0, len(e.running))
	for id, ectx := range e.running {
		out = append(out, RunningExecution{ID: id, Command: ectx.commandName(), StartTime: ectx.StartTime})
	}
	return out
}

func (e *Executor) admit(ectx *ExecutionContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.maxConcurrent > 0 && len(e.running) >= e.maxConcurrent {
		e.stats.Rejected++
		e.logger.Warn("execution rejected",
			slog.String("command", ectx.commandName()),
			slog.Int("maxConcurrent", e.maxConcurrent),
		)
		return fmt.Errorf("%w: %d executions already running", ErrConcurrencyLimit, e.maxConcurrent)
	}
	if _, dup := e.running[ectx.ID]; dup {
		return fmt.Errorf("execution %s is already running", ectx.ID)
	}

	e.running[ectx.ID] = ectx
	e.stats.Current = len(e.running)
	if e.stats.Current > e.stats.Peak {
		e.stats.Peak = e.stats.Current
	}
	return nil
}

type outcome struct {
	result *CommandResult
	err    error
}

// execute runs the pipeline, turning an escaped panic into a *PanicError.
func (e *Executor) execute(ectx *ExecutionContext) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = outcome{err: &PanicError{Value: r, Stack: debug.Stack()}}
		}
	}()
	result, err := e.pipeline.Execute(ectx)
	return outcome{result: result, err: err}
}

// run executes ectx through the pipeline, racing it against the timeout.
// Bookkeeping happens in a deferred call so it runs on every path.
func (e *Executor) run(ectx *ExecutionContext, tracked bool, opts []ExecuteOption) (result *CommandResult, err error) {
	cfg := executeConfig{timeout: e.timeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	timedOut := false
	defer func() {
		e.finish(ectx, tracked, result, err, timedOut)
	}()

	e.logger.Debug("execution started",
		slog.String("command", ectx.commandName()),
		slog.String("execution", ectx.ID),
	)

	if cfg.timeout <= 0 {
		o := e.execute(ectx)
		result, err = o.result, o.err
	} else {
		done := make(chan outcome, 1)
		go func() {
			done <- e.execute(ectx)
		}()

		timer := time.NewTimer(cfg.timeout)
		defer timer.Stop()

		select {
		case o := <-done:
			result, err = o.result, o.err
		case <-timer.C:
			// The pipeline goroutine is not preempted; it observes the
			// token or Context() and winds down on its own.
			reason := fmt.Sprintf("timed out after %s", cfg.timeout)
			timedOut = true
			ectx.Metadata.Set(MetaExecutionTimedOut, true)
			ectx.Token.Cancel(reason)
			err = &CancelledError{Reason: reason}
		}
	}

	if err != nil && errors.Is(err, ErrCancelled) {
		return &CommandResult{ExitCode: ExitFailure, Message: err.Error(), Error: err}, nil
	}
	if err == nil && result == nil {
		result = Succeed(nil)
	}
	return result, err
}

func (e *Executor) finish(ectx *ExecutionContext, tracked bool, result *CommandResult, err error, timedOut bool) {
	duration := time.Since(ectx.StartTime)
	success := err == nil && result != nil && result.Success

	e.mu.Lock()
	if tracked {
		delete(e.running, ectx.ID)
		e.stats.Current = len(e.running)
	}
	e.stats.Total++
	if success {
		e.stats.Successful++
	} else {
		e.stats.Failed++
	}
	if timedOut {
		e.stats.TimedOut++
	}
	e.stats.TotalDuration += duration
	e.mu.Unlock()

	if tracked {
		ectx.detach()
	}

	attrs := []any{
		slog.String("command", ectx.commandName()),
		slog.String("execution", ectx.ID),
		slog.Duration("duration", duration),
		slog.Bool("success", success),
	}
	if timedOut {
		e.logger.Warn("execution timed out", attrs...)
		return
	}
	e.logger.Debug("execution finished", attrs...)
}

func invalidInput(parsed *cliargs.ParseResult) *CommandResult {
	err := &InputError{Errors: parsed.Validation.Errors}
	return &CommandResult{
		ExitCode: ExitInvalidInput,
		Message:  err.Error(),
		Data:     parsed.Validation.Errors,
		Error:    err,
	}
}
