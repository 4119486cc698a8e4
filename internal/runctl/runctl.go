// Package runctl carries the two cancellation signals of a run: a
// cooperative stop flag checked between steps and a hard abort that cancels
// in-flight calls.
package runctl

import (
	"context"
	"sync/atomic"
)

type controlKey struct{}

// Control stops or aborts one run.
type Control struct {
	stopped atomic.Bool
	cancel  context.CancelFunc
}

// WithControl derives a run context and its control.
func WithControl(parent context.Context) (context.Context, *Control) {
	ctx, cancel := context.WithCancel(parent)
	c := &Control{cancel: cancel}
	return context.WithValue(ctx, controlKey{}, c), c
}

// Stop clears the keep-running flag. In-flight calls finish; the run stops
// advancing at its next check.
func (c *Control) Stop() {
	c.stopped.Store(true)
}

// Abort stops the run and cancels its context so in-flight calls end.
func (c *Control) Abort() {
	c.stopped.Store(true)
	c.cancel()
}

// Stopped reports whether Stop or Abort was called.
func (c *Control) Stopped() bool {
	return c.stopped.Load()
}

// Active reports whether the run carried by ctx should keep going. It is
// false once the context is done or the run's control was stopped.
func Active(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if c, ok := ctx.Value(controlKey{}).(*Control); ok {
		return !c.Stopped()
	}
	return true
}
