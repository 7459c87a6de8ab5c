package capture

import (
	"errors"
	"sync"
)

// ErrCompleted is returned by OnComplete when the continuation finished
// before the callback could be registered.
var ErrCompleted = errors.New("capture: continuation already completed")

// Continuation represents an exchange whose processing outlives the
// handler that started it. It completes exactly once, on whichever
// goroutine finishes the work, and notifies registered callbacks with the
// completion error, if any. Error and timeout completions are ordinary
// completions: whatever was buffered up to that point is still reported.
type Continuation struct {
	mu        sync.Mutex
	done      bool
	err       error
	callbacks []func(error)
}

// OnComplete registers fn to run when the continuation completes. If the
// continuation already completed, fn is not registered and ErrCompleted
// is returned so the caller can handle the completion itself.
func (c *Continuation) OnComplete(fn func(error)) error {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return ErrCompleted
	}
	c.callbacks = append(c.callbacks, fn)
	c.mu.Unlock()
	return nil
}

// Complete marks the continuation finished and runs the registered
// callbacks. Subsequent calls are no-ops.
func (c *Continuation) Complete(err error) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.err = err
	callbacks := c.callbacks
	c.callbacks = nil
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(err)
	}
}

// Done reports whether the continuation has completed.
func (c *Continuation) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err returns the completion error, if the continuation completed with
// one.
func (c *Continuation) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
