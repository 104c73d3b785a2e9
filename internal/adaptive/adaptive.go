// Package adaptive wraps internal/semaphore with the EMFILE-aware
// shrink policy described in spec §4.2. It classifies completed I/O
// errors by numeric os error number (never string matching, per
// spec §9) and shrinks the permit pool with hysteresis to avoid
// thrashing on a burst of EMFILE.
package adaptive

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/semaphore"
	"github.com/jmalicki/localsync/internal/synclog"
)

// shrinkEvery is N in "every Nth occurrence" from spec §4.2.
const shrinkEvery = 5

// Controller transparently wraps a Semaphore, shrinking it under
// file-descriptor pressure and never letting it fall below a floor of
// max(10, initial/10), capped at initial.
type Controller struct {
	sem   *semaphore.Semaphore
	max   int // initial/configured max, for floor computation
	floor int

	emfileCount  atomic.Int64
	shrinkCount  atomic.Int64
	firstShrink  sync.Once
	lastShrinkMu sync.Mutex
	lastShrinkAt time.Time

	logger *synclog.Logger
}

// New returns a Controller seeded with initial permits.
func New(initial int, logger *synclog.Logger) *Controller {
	if logger == nil {
		logger = synclog.Default
	}
	floor := initial / 10
	if floor < 10 {
		floor = 10
	}
	if floor > initial {
		floor = initial
	}
	return &Controller{
		sem:    semaphore.New(initial),
		max:    initial,
		floor:  floor,
		logger: logger,
	}
}

// Acquire delegates to the underlying semaphore.
func (c *Controller) Acquire() *semaphore.Permit { return c.sem.Acquire() }

// TryAcquire delegates to the underlying semaphore.
func (c *Controller) TryAcquire() (*semaphore.Permit, bool) { return c.sem.TryAcquire() }

// IsFDExhaustion reports whether err is EMFILE by numeric os error
// number, per spec §9 ("replace string-matching on error messages to
// detect EMFILE with direct inspection of the os error number").
func IsFDExhaustion(err error) bool {
	return errnoIs(err, unix.EMFILE)
}

// Observe inspects an I/O error returned by a filesystem primitive.
// If it is FD exhaustion, it increments the cumulative EMFILE counter
// and shrinks the pool by max(10, currentMax/4) on the 1st, (1+N)th,
// (1+2N)th, ... occurrence (N = shrinkEvery): an immediate first
// response to pressure, then hysteresis so a sustained burst doesn't
// shrink on every single EMFILE.
func (c *Controller) Observe(err error) {
	if err == nil || !IsFDExhaustion(err) {
		return
	}
	n := c.emfileCount.Add(1)
	if n%shrinkEvery != 1 {
		return
	}
	c.shrink()
}

func (c *Controller) shrink() {
	currentMax := c.sem.Max() - c.sem.Withdrawn()
	amount := currentMax / 4
	if amount < 10 {
		amount = 10
	}
	if currentMax-amount < c.floor {
		amount = currentMax - c.floor
	}
	if amount <= 0 {
		return
	}
	reduced := c.sem.ReducePermits(amount)
	if reduced <= 0 {
		return
	}
	shrinkNum := c.shrinkCount.Add(1)
	c.lastShrinkMu.Lock()
	c.lastShrinkAt = time.Now()
	c.lastShrinkMu.Unlock()

	c.firstShrink.Do(func() {
		c.logger.Noticef(nil,
			"adaptive concurrency: hit file descriptor pressure (EMFILE), reducing concurrent operations from %d to %d; this may slow the run but avoids further EMFILE errors. If this persists, consider raising the process open-file limit (ulimit -n).",
			currentMax, currentMax-reduced)
	})
	if shrinkNum > 1 {
		c.logger.Noticef(nil, "adaptive concurrency: further EMFILE pressure, reduced permits by %d (now %d)",
			reduced, currentMax-reduced)
	}
}

// Stats is the snapshot returned by Controller.Stats.
type Stats struct {
	Max          int
	Available    int
	InUse        int
	EMFILECount  int64
	ShrinkCount  int64
	LastShrinkAt time.Time
}

// Stats returns the controller's current counters.
func (c *Controller) Stats() Stats {
	c.lastShrinkMu.Lock()
	last := c.lastShrinkAt
	c.lastShrinkMu.Unlock()
	return Stats{
		Max:          c.sem.Max(),
		Available:    c.sem.Available(),
		InUse:        c.sem.InUse(),
		EMFILECount:  c.emfileCount.Load(),
		ShrinkCount:  c.shrinkCount.Load(),
		LastShrinkAt: last,
	}
}
