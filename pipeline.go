package clikit

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrInvalidStage is returned by Pipeline.Use for malformed stages.
	ErrInvalidStage = errors.New("invalid pipeline stage")

	// ErrDuplicateStage is returned by Pipeline.Use when a stage name is taken.
	ErrDuplicateStage = errors.New("duplicate pipeline stage")

	// ErrNilCommand is returned when a pipeline or executor is asked to run
	// an execution context without a command.
	ErrNilCommand = errors.New("no command to execute")
)

// Next invokes the remainder of the pipeline.
type Next func() (*CommandResult, error)

// Middleware wraps the rest of the pipeline. It may return its own result
// without calling next to short-circuit, or call next and post-process what
// comes back.
type Middleware func(ectx *ExecutionContext, next Next) (*CommandResult, error)

// Stage is a named middleware with a priority. Lower priorities run first on
// the way in and last on the way out.
type Stage struct {
	Name     string
	Priority int
	Handler  Middleware
}

// Pipeline is an ordered middleware chain around a command.
//
// Thread safety: stages may be added or removed while executions are in
// flight; each Execute works on the stage list as it was when it started.
type Pipeline struct {
	mu     sync.RWMutex
	stages []Stage
}

// NewPipeline returns a pipeline containing stages.
func NewPipeline(stages ...Stage) (*Pipeline, error) {
	p := &Pipeline{}
	for _, s := range stages {
		if err := p.Use(s); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Use registers a stage. Stages with equal priority keep registration order.
func (p *Pipeline) Use(stage Stage) error {
	if stage.Name == "" {
		return fmt.Errorf("%w: stage name is required", ErrInvalidStage)
	}
	if stage.Handler == nil {
		return fmt.Errorf("%w: stage %q has no handler", ErrInvalidStage, stage.Name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.stages {
		if s.Name == stage.Name {
			return fmt.Errorf("%w: %q", ErrDuplicateStage, stage.Name)
		}
	}

	// insert after every stage with priority <= stage.Priority
	idx := len(p.stages)
	for i, s := range p.stages {
		if s.Priority > stage.Priority {
			idx = i
			break
		}
	}
	p.stages = slices.Insert(p.stages, idx, stage)
	return nil
}

// UseFunc is Use for an inline middleware.
func (p *Pipeline) UseFunc(name string, priority int, handler Middleware) error {
	return p.Use(Stage{Name: name, Priority: priority, Handler: handler})
}

// Remove drops the stage called name. It reports whether a stage was removed.
func (p *Pipeline) Remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.stages {
		if s.Name == name {
			p.stages = slices.Delete(p.stages, i, i+1)
			return true
		}
	}
	return false
}

// Stages returns the registered stages in execution order.
func (p *Pipeline) Stages() []Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.stages)
}

// Execute runs ectx.Command through every stage. A nil result from the
// command is treated as an empty success.
func (p *Pipeline) Execute(ectx *ExecutionContext) (*CommandResult, error) {
	if ectx == nil || ectx.Command == nil {
		return nil, ErrNilCommand
	}

	stages := p.Stages()

	next := Next(func() (*CommandResult, error) {
		result, err := ectx.Command.Execute(ectx)
		if result == nil && err == nil {
			result = Succeed(nil)
		}
		return result, err
	})

	for i := len(stages) - 1; i >= 0; i-- {
		handler, inner := stages[i].Handler, next
		next = func() (*CommandResult, error) {
			return handler(ectx, inner)
		}
	}

	return next()
}
