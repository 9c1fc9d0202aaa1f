package coqui

import (
	"context"
)

// Future is the handle returned by the Async entry points. It resolves exactly
// once, to either a value or an error, when the underlying operation finishes.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the future resolves or ctx is cancelled, whichever comes
// first. Waiting more than once is fine and returns the same result.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed once the future has resolved. Useful
// for select loops; read the result with Wait afterwards.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// asyncFlowKey marks a context as belonging to a flow driven by Go or an
// Async entry point. The blocking entry points check for it to refuse nesting.
type asyncFlowKey struct{}

func inAsyncFlow(ctx context.Context) bool {
	return ctx.Value(asyncFlowKey{}) != nil
}

// Go runs fn on its own goroutine and returns a future for its result. The
// context handed to fn is marked, so calling a blocking entry point from
// inside fn fails with SchedulerMisuseError instead of deadlocking; use the
// Async entry points there instead.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	ctx = context.WithValue(ctx, asyncFlowKey{}, struct{}{})
	go func() {
		defer close(f.done)
		f.val, f.err = fn(ctx)
	}()
	return f
}

// runSync drives fn to completion on a private goroutine and blocks the
// caller until it finishes, returning fn's value or error unchanged. Each
// operation body is written once and shared between runSync and Go, so the
// blocking and async entry points cannot drift apart.
func runSync[T any](ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	if inAsyncFlow(ctx) {
		var zero T
		return zero, &SchedulerMisuseError{Op: op}
	}
	f := Go(ctx, fn)
	<-f.done
	return f.val, f.err
}
