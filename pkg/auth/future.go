package auth

import "context"

// Executor schedules chain evaluation off the calling goroutine for
// AuthenticateAsync. Implementations decide where tasks run; the
// SecurityContext only ever submits a single task per call, so the chain
// stays strictly sequential regardless of executor parallelism.
type Executor interface {
	Execute(task func())
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(task func())

func (f ExecutorFunc) Execute(task func()) { f(task) }

// GoExecutor runs each task on its own goroutine.
type GoExecutor struct{}

func (GoExecutor) Execute(task func()) { go task() }

// Future is a value that becomes available once an asynchronous
// authenticate call resolves.
type Future struct {
	done   chan struct{}
	result *Result
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result *Result, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Done returns a channel that is closed when the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or the context is cancelled.
// Cancellation abandons the wait only; the chain itself runs to completion.
func (f *Future) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
