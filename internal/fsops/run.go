// Package fsops provides async, typed wrappers around the in-kernel
// filesystem operations the copy engine needs (spec §4.3). Go has no
// io_uring submission-queue runtime reachable without cgo against
// liburing, so every primitive here instead runs on a bounded pool of
// bounded-lifetime goroutines dedicated to blocking syscalls — the
// same observable property the spec asks for (submission never blocks
// the caller's goroutine) without claiming an io_uring opcode mapping
// that doesn't exist in the Go ecosystem. See DESIGN.md.
package fsops

import (
	"context"
	"runtime"
)

// executor is the dedicated blocking-I/O pool every primitive submits
// through. Its size bounds the number of OS threads concurrently
// blocked in a syscall; it is intentionally generous relative to the
// semaphore's permit budget, since permits (not this pool) are the
// primary concurrency control (spec §5).
type executor struct {
	sem chan struct{}
}

func newExecutor(size int) *executor {
	if size <= 0 {
		size = 4 * runtime.GOMAXPROCS(0)
	}
	return &executor{sem: make(chan struct{}, size)}
}

// run submits fn to the executor and blocks the calling goroutine
// (not an OS thread — fn runs on its own goroutine) until fn
// completes or ctx is done. This gives every primitive a single
// suspension point at submission, matching spec §5's "every
// filesystem primitive suspends at submission".
func (e *executor) run(ctx context.Context, fn func() error) error {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// The syscall itself cannot be cancelled once submitted;
		// the goroutine running fn is left to finish and its
		// result is discarded. This matches spec §5's note that
		// in-flight submissions that outlive their owning task are
		// drained, not forcibly aborted, on cancellation.
		return ctx.Err()
	}
}

// defaultExecutor is shared by every package-level primitive wrapper
// so callers don't need to thread one through manually.
var defaultExecutor = newExecutor(0)
