// Package task runs supervised background loops.
//
// A Handle pairs a goroutine with a cancellation signal and a done channel.
// Stopping is always cooperative: Cancel asks the loop to finish at its next
// scheduling point and Join waits a bounded time for it. A join that times
// out is a warning for the caller, the goroutine is never killed.
package task

import (
	"context"
	"errors"
	"time"
)

// ErrJoinTimeout is returned by Join when the loop is still running after
// the timeout.
var ErrJoinTimeout = errors.New("task: join timed out")

// Handle supervises one goroutine.
type Handle struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Go starts fn in a new goroutine. The context passed to fn is cancelled by
// Cancel or when parent is cancelled.
func Go(parent context.Context, name string, fn func(ctx context.Context)) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		defer cancel()
		fn(ctx)
	}()
	return h
}

// Name returns the label given to Go.
func (h *Handle) Name() string { return h.name }

// Cancel signals the loop to stop. Safe to call more than once.
func (h *Handle) Cancel() { h.cancel() }

// Cancelled reports whether the loop was asked to stop, by Cancel or by its
// parent context. It may still be running.
func (h *Handle) Cancelled() bool { return h.ctx.Err() != nil }

// Done is closed once the goroutine has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Finished reports whether the goroutine has returned.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Join waits up to timeout for the goroutine to return. A non-positive
// timeout waits without limit.
func (h *Handle) Join(timeout time.Duration) error {
	if timeout <= 0 {
		<-h.done
		return nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-h.done:
		return nil
	case <-t.C:
		return ErrJoinTimeout
	}
}

// Stop cancels and joins.
func (h *Handle) Stop(timeout time.Duration) error {
	h.Cancel()
	return h.Join(timeout)
}

// Sleep waits for d or until ctx is done. It reports false when the wait was
// cut short by cancellation.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
