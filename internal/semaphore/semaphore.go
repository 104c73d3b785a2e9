// Package semaphore implements the bounded, FIFO-fair async permit
// pool described in spec §4.1. Its structural split mirrors
// golang.org/x/sync/semaphore.Weighted: a lock-free fast path over an
// atomic counter, and a mutex-protected FIFO waiter queue for the slow
// path, generalized here to support ReducePermits/AddPermits (dynamic
// resize), which the upstream Weighted type does not expose.
package semaphore

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Semaphore is a bounded, async, FIFO-fair counting semaphore.
type Semaphore struct {
	max       int64 // immutable
	available int64 // atomic; current free units
	withdrawn int64 // atomic; units removed from circulation by ReducePermits

	mu      sync.Mutex
	waiters list.List // of *waiter
}

type waiter struct {
	ready chan struct{}
}

// New creates a Semaphore with the given number of permits. It panics
// if permits == 0: construction with zero permits is a programmer
// error, not a runtime failure mode (spec §4.1).
func New(permits int) *Semaphore {
	if permits == 0 {
		panic("semaphore: permits must be non-zero")
	}
	s := &Semaphore{max: int64(permits)}
	s.available = int64(permits)
	return s
}

// Permit is an opaque token representing one slot in the
// concurrent-operations budget. Release returns exactly one unit to
// the pool and wakes the head waiter, if any. Only the first Release
// call on a Permit has an effect; later calls, including concurrent
// ones, are no-ops.
type Permit struct {
	sem      *Semaphore
	released atomic.Bool
}

// Release returns the permit's unit to the pool. Calling Release more
// than once on the same Permit is a no-op after the first call.
func (p *Permit) Release() {
	if p == nil || p.sem == nil {
		return
	}
	if !p.released.CompareAndSwap(false, true) {
		return
	}
	p.sem.addOne()
}

// TryAcquire attempts to take one permit without blocking. It returns
// (nil, false) immediately if none are available, with no side
// effects on failure.
func (s *Semaphore) TryAcquire() (*Permit, bool) {
	for {
		cur := atomic.LoadInt64(&s.available)
		if cur <= 0 {
			return nil, false
		}
		if atomic.CompareAndSwapInt64(&s.available, cur, cur-1) {
			return &Permit{sem: s}, true
		}
	}
}

// Acquire blocks (without spinning) until a permit is available,
// honoring strict FIFO order among waiters. It performs TryAcquire
// first; on failure it re-checks under the waiter-queue lock, enqueues
// itself and suspends, re-attempting TryAcquire on every wake before
// re-suspending — this double-check closes the register-then-release
// race described in spec §4.1.
func (s *Semaphore) Acquire() *Permit {
	if p, ok := s.TryAcquire(); ok {
		return p
	}
	for {
		w := &waiter{ready: make(chan struct{})}
		s.mu.Lock()
		// A release landing between a failed TryAcquire and PushBack
		// would find no waiter to wake. wakeOne takes this same lock,
		// so re-checking here means any later release sees this waiter.
		if p, ok := s.TryAcquire(); ok {
			s.mu.Unlock()
			return p
		}
		elem := s.waiters.PushBack(w)
		s.mu.Unlock()

		<-w.ready

		if p, ok := s.TryAcquire(); ok {
			return p
		}
		// Spurious wake (e.g. a racing ReducePermits consumed the
		// unit before we got to it): re-queue at the tail rather
		// than the head, per "re-queue (no lost wakeups)".
		s.mu.Lock()
		s.waiters.Remove(elem)
		s.mu.Unlock()
	}
}

// addOne makes one unit available and wakes exactly one waiter.
func (s *Semaphore) addOne() {
	atomic.AddInt64(&s.available, 1)
	s.wakeOne()
}

// wakeOne wakes the head of the FIFO waiter queue, if any.
func (s *Semaphore) wakeOne() {
	s.mu.Lock()
	front := s.waiters.Front()
	if front == nil {
		s.mu.Unlock()
		return
	}
	s.waiters.Remove(front)
	s.mu.Unlock()
	w := front.Value.(*waiter)
	close(w.ready)
}

// AddPermits increases available by n and wakes up to n queued
// waiters in FIFO order.
func (s *Semaphore) AddPermits(n int) {
	if n <= 0 {
		return
	}
	atomic.AddInt64(&s.available, int64(n))
	for i := 0; i < n; i++ {
		s.wakeOne()
	}
}

// ReducePermits atomically withdraws up to n currently-available
// units and returns the number actually withdrawn. It never affects
// units already issued as outstanding Permits.
func (s *Semaphore) ReducePermits(n int) (actuallyReduced int) {
	if n <= 0 {
		return 0
	}
	for {
		cur := atomic.LoadInt64(&s.available)
		take := int64(n)
		if take > cur {
			take = cur
		}
		if take <= 0 {
			return 0
		}
		if atomic.CompareAndSwapInt64(&s.available, cur, cur-take) {
			atomic.AddInt64(&s.withdrawn, take)
			return int(take)
		}
	}
}

// Available returns the current number of free permits (best-effort).
func (s *Semaphore) Available() int { return int(atomic.LoadInt64(&s.available)) }

// Max returns the configured maximum permit count.
func (s *Semaphore) Max() int { return int(s.max) }

// Withdrawn returns the number of units currently removed from
// circulation by ReducePermits.
func (s *Semaphore) Withdrawn() int { return int(atomic.LoadInt64(&s.withdrawn)) }

// InUse returns max - available - withdrawn, i.e. permits currently
// held by in-flight tasks (best-effort), satisfying the invariant
// available + in_use + withdrawn == max.
func (s *Semaphore) InUse() int {
	return int(s.max) - s.Available() - s.Withdrawn()
}
