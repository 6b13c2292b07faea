package clikit

import (
	"context"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/drewfead/clikit/cliargs"
	"github.com/drewfead/clikit/clilog"
	"github.com/drewfead/clikit/cliservices"
	"github.com/google/uuid"
)

// Metadata is a concurrency-safe key/value bag attached to an execution.
// Middleware use it to publish facts such as timing.duration.
type Metadata struct {
	mu     sync.RWMutex
	values map[string]any
}

func newMetadata() *Metadata {
	return &Metadata{values: make(map[string]any)}
}

// Set stores value under key, overwriting any previous value.
func (m *Metadata) Set(key string, value any) {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
}

// Get returns the value stored under key.
func (m *Metadata) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Bool reports whether key holds the boolean true.
func (m *Metadata) Bool(key string) bool {
	v, _ := m.Get(key)
	b, _ := v.(bool)
	return b
}

// Duration returns the time.Duration stored under key, or zero.
func (m *Metadata) Duration(key string) time.Duration {
	v, _ := m.Get(key)
	d, _ := v.(time.Duration)
	return d
}

// Delete removes key.
func (m *Metadata) Delete(key string) {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
}

// Snapshot returns a copy of all entries.
func (m *Metadata) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}

// ExecutionContext carries the state of a single command invocation through
// the pipeline. Arguments and options are read-only once constructed.
type ExecutionContext struct {
	ID        string
	StartTime time.Time
	Command   Command
	Token     *CancellationToken
	Metadata  *Metadata
	Services  *cliservices.Container
	Logger    *slog.Logger

	args      map[string]any
	options   map[string]any
	rawArgs   []string
	sensitive []string
	secretArg []string
	parent    *ExecutionContext
	ctx       context.Context
	release   func() bool
	stop      context.CancelCauseFunc
}

// ContextOption customizes NewExecutionContext.
type ContextOption func(*ExecutionContext)

// WithArguments sets the resolved positional arguments.
func WithArguments(args map[string]any) ContextOption {
	return func(e *ExecutionContext) { e.args = maps.Clone(args) }
}

// WithOptions sets the resolved options.
func WithOptions(opts map[string]any) ContextOption {
	return func(e *ExecutionContext) { e.options = maps.Clone(opts) }
}

// WithRawArgs records the unparsed argument list.
func WithRawArgs(raw []string) ContextOption {
	return func(e *ExecutionContext) { e.rawArgs = append([]string(nil), raw...) }
}

// WithParseResult copies arguments, options, raw args and the sensitive
// field list from a parser result.
func WithParseResult(r *cliargs.ParseResult) ContextOption {
	return func(e *ExecutionContext) {
		e.args = maps.Clone(r.Arguments)
		e.options = maps.Clone(r.Options)
		e.rawArgs = append([]string(nil), r.Raw...)
		for _, path := range r.Sensitive {
			if name, ok := strings.CutPrefix(path, "options."); ok {
				e.sensitive = append(e.sensitive, name)
			}
			if name, ok := strings.CutPrefix(path, "arguments."); ok {
				e.secretArg = append(e.secretArg, name)
			}
		}
	}
}

// WithServices sets the container the execution scope is created from.
func WithServices(c *cliservices.Container) ContextOption {
	return func(e *ExecutionContext) {
		if c != nil {
			e.Services = c.CreateChild()
		}
	}
}

// WithLogger sets the execution logger.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(e *ExecutionContext) {
		if logger != nil {
			e.Logger = logger
		}
	}
}

// WithSensitiveOptions marks option names whose values must never be logged.
func WithSensitiveOptions(names ...string) ContextOption {
	return func(e *ExecutionContext) { e.sensitive = append(e.sensitive, names...) }
}

// WithSensitiveArguments marks positional arguments whose values must not be logged.
func WithSensitiveArguments(names ...string) ContextOption {
	return func(e *ExecutionContext) { e.secretArg = append(e.secretArg, names...) }
}

// WithMetadata seeds a metadata entry, e.g. continueOnError for
// ExecuteSequential.
func WithMetadata(key string, value any) ContextOption {
	return func(e *ExecutionContext) { e.Metadata.Set(key, value) }
}

// NewExecutionContext creates the context for one invocation of cmd. The
// returned context's Context() is cancelled when its token trips, and the
// token is tripped if ctx is cancelled first.
func NewExecutionContext(ctx context.Context, cmd Command, opts ...ContextOption) *ExecutionContext {
	if ctx == nil {
		ctx = context.Background()
	}
	e := &ExecutionContext{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		Command:   cmd,
		Token:     NewCancellationToken(),
		Metadata:  newMetadata(),
		args:      map[string]any{},
		options:   map[string]any{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.Services == nil {
		e.Services = cliservices.New()
	}
	if e.Logger == nil {
		e.Logger = clilog.FromContext(ctx)
	}
	e.bind(ctx)
	return e
}

// bind links the token and a derived context.Context in both directions.
func (e *ExecutionContext) bind(parent context.Context) {
	ctx, cancel := context.WithCancelCause(parent)
	e.stop = cancel
	logger := e.Logger
	e.Token.setPanicHandler(func(r any) {
		logger.Error("cancellation callback panicked",
			slog.String(clilog.SourceKey, "token"),
			slog.Any("panic", r),
		)
	})
	e.Token.OnCancel(func(reason string) {
		cancel(&CancelledError{Reason: reason})
	})
	token := e.Token
	trip := func() {
		reason := "context cancelled"
		if cause := context.Cause(ctx); cause != nil {
			reason = cause.Error()
		}
		token.Cancel(reason)
	}
	e.release = context.AfterFunc(ctx, trip)
	// AfterFunc runs asynchronously for an already-done context
	if ctx.Err() != nil {
		trip()
	}
	e.ctx = clilog.WithLogger(ctx, e.Logger)
}

// Child derives a context for a nested command. The child shares the
// parent's cancellation token but gets its own id, metadata and service
// scope.
func (e *ExecutionContext) Child(cmd Command, opts ...ContextOption) *ExecutionContext {
	c := &ExecutionContext{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		Command:   cmd,
		Token:     e.Token,
		Metadata:  newMetadata(),
		Services:  e.Services.CreateChild(),
		Logger:    e.Logger,
		args:      map[string]any{},
		options:   map[string]any{},
		sensitive: append([]string(nil), e.sensitive...),
		secretArg: append([]string(nil), e.secretArg...),
		parent:    e,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx = clilog.WithLogger(e.ctx, c.Logger)
	return c
}

// Context returns a context.Context that is done once the execution is
// cancelled, for passing to blocking calls.
func (e *ExecutionContext) Context() context.Context {
	return e.ctx
}

// Parent returns the context this one was derived from, or nil.
func (e *ExecutionContext) Parent() *ExecutionContext {
	return e.parent
}

// Cancel trips the execution's token.
func (e *ExecutionContext) Cancel(reason string) {
	e.Token.Cancel(reason)
}

// Err is shorthand for Token.Err().
func (e *ExecutionContext) Err() error {
	return e.Token.Err()
}

// Arguments returns a copy of the resolved positional arguments.
func (e *ExecutionContext) Arguments() map[string]any {
	return maps.Clone(e.args)
}

// Options returns a copy of the resolved options.
func (e *ExecutionContext) Options() map[string]any {
	return maps.Clone(e.options)
}

// RawArgs returns a copy of the unparsed arguments.
func (e *ExecutionContext) RawArgs() []string {
	return append([]string(nil), e.rawArgs...)
}

// Argument returns the positional argument called name.
func (e *ExecutionContext) Argument(name string) (any, bool) {
	v, ok := e.args[name]
	return v, ok
}

// Option returns the option called name.
func (e *ExecutionContext) Option(name string) (any, bool) {
	v, ok := e.options[name]
	return v, ok
}

// StringArgument returns the argument as a string, or "".
func (e *ExecutionContext) StringArgument(name string) string {
	s, _ := e.args[name].(string)
	return s
}

// StringOption returns the option as a string, or "".
func (e *ExecutionContext) StringOption(name string) string {
	s, _ := e.options[name].(string)
	return s
}

// BoolOption returns the option as a bool, or false.
func (e *ExecutionContext) BoolOption(name string) bool {
	b, _ := e.options[name].(bool)
	return b
}

// IntOption returns the option as an int. Number-typed options are
// truncated.
func (e *ExecutionContext) IntOption(name string) int {
	switch v := e.options[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// FloatOption returns the option as a float64.
func (e *ExecutionContext) FloatOption(name string) float64 {
	switch v := e.options[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// StringsOption returns a multi-value or array option as strings.
func (e *ExecutionContext) StringsOption(name string) []string {
	list, _ := e.options[name].([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// SensitiveOptions lists option names whose values must not be logged.
func (e *ExecutionContext) SensitiveOptions() []string {
	return append([]string(nil), e.sensitive...)
}

// SensitiveArguments lists argument names whose values must not be logged.
func (e *ExecutionContext) SensitiveArguments() []string {
	return append([]string(nil), e.secretArg...)
}

// commandName returns the command name or "<nil>".
func (e *ExecutionContext) commandName() string {
	if e.Command == nil {
		return "<nil>"
	}
	return e.Command.Name()
}

// detach unlinks a finished execution from the caller's context so the
// caller cancelling later no longer trips the token.
func (e *ExecutionContext) detach() {
	if e.release != nil {
		e.release()
	}
	if e.stop != nil {
		e.stop(nil)
	}
}
