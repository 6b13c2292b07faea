package clikit

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCancelled is matched by every CancelledError via errors.Is.
var ErrCancelled = errors.New("execution cancelled")

// CancelledError reports that an execution was cancelled, and why.
type CancelledError struct {
	Reason string
}

func (e *CancelledError) Error() string {
	if e.Reason == "" {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCancelled.Error(), e.Reason)
}

// Is makes errors.Is(err, ErrCancelled) hold for any CancelledError.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// CancellationToken is a one-way cooperative cancellation flag shared by an
// execution and all of its children.
//
// Thread safety: all methods may be called concurrently. Callbacks run
// outside the lock, in registration order, each at most once.
type CancellationToken struct {
	mu        sync.Mutex
	cancelled bool
	reason    string
	callbacks []func(reason string)
	done      chan struct{}
	onPanic   func(recovered any)
}

// NewCancellationToken returns an untripped token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{done: make(chan struct{})}
}

// Cancel trips the token. Only the first call has any effect: its reason is
// kept and the registered callbacks are fired. A panicking callback does not
// prevent the others from running.
func (t *CancellationToken) Cancel(reason string) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.reason = reason
	callbacks := t.callbacks
	t.callbacks = nil
	onPanic := t.onPanic
	close(t.done)
	t.mu.Unlock()

	for _, cb := range callbacks {
		runCallback(cb, reason, onPanic)
	}
}

// OnCancel registers cb. If the token has already been cancelled, cb runs
// immediately with the recorded reason.
func (t *CancellationToken) OnCancel(cb func(reason string)) {
	if cb == nil {
		return
	}

	t.mu.Lock()
	if !t.cancelled {
		t.callbacks = append(t.callbacks, cb)
		t.mu.Unlock()
		return
	}
	reason := t.reason
	onPanic := t.onPanic
	t.mu.Unlock()

	runCallback(cb, reason, onPanic)
}

// IsCancelled reports whether Cancel has been called.
func (t *CancellationToken) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Reason returns the reason given to the first Cancel call.
func (t *CancellationToken) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Done is closed once the token is cancelled.
func (t *CancellationToken) Done() <-chan struct{} {
	return t.done
}

// Err returns a *CancelledError once the token is cancelled, nil before.
func (t *CancellationToken) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cancelled {
		return nil
	}
	return &CancelledError{Reason: t.reason}
}

// ThrowIfCancelled is Err under the name commands commonly poll with.
func (t *CancellationToken) ThrowIfCancelled() error {
	return t.Err()
}

// setPanicHandler installs a hook that observes recovered callback panics.
func (t *CancellationToken) setPanicHandler(fn func(recovered any)) {
	t.mu.Lock()
	t.onPanic = fn
	t.mu.Unlock()
}

func runCallback(cb func(string), reason string, onPanic func(any)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(r)
		}
	}()
	cb(reason)
}
