// Package cliservices is a small token-keyed service container with
// transient, singleton and scoped lifetimes.
//
// A Container is safe for concurrent use. Child containers created with
// CreateChild see their parent's registrations, but registrations made on a
// child never leak upward, so each execution can hold its own scope.
package cliservices

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotRegistered is returned by Resolve for unknown tokens.
var ErrNotRegistered = errors.New("service not registered")

// Lifetime controls how often a factory is invoked.
type Lifetime int

const (
	// Transient services are built on every Resolve.
	Transient Lifetime = iota
	// Singleton services are built once by the container that registered them
	// and shared with all of its children.
	Singleton
	// Scoped services are built once per container: a child resolving a
	// scoped registration from its parent gets its own instance.
	Scoped
)

func (l Lifetime) String() string {
	switch l {
	case Transient:
		return "transient"
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	}
	return fmt.Sprintf("Lifetime(%d)", int(l))
}

// Factory builds a service. It receives the container performing the
// resolution so it can resolve its own dependencies.
type Factory func(c *Container) (any, error)

type registration struct {
	factory  Factory
	lifetime Lifetime

	once     sync.Once
	instance any
	err      error
}

// Container resolves services by token.
type Container struct {
	parent *Container

	mu            sync.RWMutex
	registrations map[string]*registration
	scoped        map[string]any
}

// New returns an empty root container.
func New() *Container {
	return &Container{
		registrations: make(map[string]*registration),
		scoped:        make(map[string]any),
	}
}

// Register binds token to a ready-made implementation. With singleton the
// value is shared as is; otherwise it is still the same value on every
// resolve, since there is nothing to rebuild.
func (c *Container) Register(token string, impl any, singleton bool) {
	lifetime := Transient
	if singleton {
		lifetime = Singleton
	}
	c.RegisterFactory(token, func(*Container) (any, error) { return impl, nil }, lifetime)
}

// RegisterFactory binds token to a factory with the given lifetime,
// replacing any earlier registration for token in this container.
func (c *Container) RegisterFactory(token string, factory Factory, lifetime Lifetime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations[token] = &registration{factory: factory, lifetime: lifetime}
	delete(c.scoped, token)
}

// Has reports whether token is registered here or in any ancestor.
func (c *Container) Has(token string) bool {
	reg, _ := c.lookup(token)
	return reg != nil
}

// Resolve returns the service bound to token.
func (c *Container) Resolve(token string) (any, error) {
	reg, owner := c.lookup(token)
	if reg == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, token)
	}

	switch reg.lifetime {
	case Singleton:
		reg.once.Do(func() {
			reg.instance, reg.err = reg.factory(owner)
		})
		if reg.err != nil {
			return nil, fmt.Errorf("failed to build %s: %w", token, reg.err)
		}
		return reg.instance, nil

	case Scoped:
		c.mu.RLock()
		v, ok := c.scoped[token]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}
		v, err := reg.factory(c)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s: %w", token, err)
		}
		c.mu.Lock()
		if existing, raced := c.scoped[token]; raced {
			v = existing
		} else {
			c.scoped[token] = v
		}
		c.mu.Unlock()
		return v, nil
	}

	v, err := reg.factory(c)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", token, err)
	}
	return v, nil
}

// MustResolve is Resolve that panics on error. Intended for wiring code
// where a missing service is a programming mistake.
func (c *Container) MustResolve(token string) any {
	v, err := c.Resolve(token)
	if err != nil {
		panic(err)
	}
	return v
}

// CreateChild returns a container scoped below c.
func (c *Container) CreateChild() *Container {
	child := New()
	child.parent = c
	return child
}

// Parent returns the container c was created from, or nil for a root.
func (c *Container) Parent() *Container {
	return c.parent
}

// Tokens lists the tokens registered directly on c.
func (c *Container) Tokens() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.registrations))
	for token := range c.registrations {
		out = append(out, token)
	}
	return out
}

// lookup walks up the scope chain and returns the registration together
// with the container that owns it.
func (c *Container) lookup(token string) (*registration, *Container) {
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		reg, ok := cur.registrations[token]
		cur.mu.RUnlock()
		if ok {
			return reg, cur
		}
	}
	return nil, nil
}

// Resolve is a typed wrapper around Container.Resolve.
func Resolve[T any](c *Container, token string) (T, error) {
	var zero T
	v, err := c.Resolve(token)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("service %s has type %T, not %T", token, v, zero)
	}
	return typed, nil
}
