package semaphore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPanicsOnZero(t *testing.T) {
	assert.Panics(t, func() { New(0) })
}

func TestTryAcquireRespectsAvailability(t *testing.T) {
	s := New(2)
	p1, ok := s.TryAcquire()
	require.True(t, ok)
	p2, ok := s.TryAcquire()
	require.True(t, ok)
	_, ok = s.TryAcquire()
	assert.False(t, ok, "third TryAcquire should fail with no permits left")

	p1.Release()
	p3, ok := s.TryAcquire()
	assert.True(t, ok, "after release, acquire should succeed")

	p2.Release()
	p3.Release()
	assert.Equal(t, 2, s.Available())
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := New(1)
	p, ok := s.TryAcquire()
	require.True(t, ok)
	p.Release()
	p.Release() // must not double-credit the pool
	assert.Equal(t, 1, s.Available())
}

func TestAcquireBlocksUntilReleased(t *testing.T) {
	s := New(1)
	p := s.Acquire()

	acquired := make(chan struct{})
	go func() {
		p2 := s.Acquire()
		close(acquired)
		p2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire completed before first permit was released")
	case <-time.After(20 * time.Millisecond):
	}

	p.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

// TestFIFOOrdering exercises scenario 4 from spec §8: with a
// 2-permit semaphore and three waiting tasks, releases wake waiters
// in the order they queued.
func TestFIFOOrdering(t *testing.T) {
	s := New(2)
	p1 := s.Acquire()
	p2 := s.Acquire()

	var mu sync.Mutex
	var order []int
	started := make([]chan struct{}, 3)
	for i := range started {
		started[i] = make(chan struct{})
	}

	release := func(id int) {
		go func() {
			p := s.Acquire()
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			close(started[id])
			p.Release()
		}()
		time.Sleep(10 * time.Millisecond) // ensure enqueue order
	}

	release(0)
	release(1)
	release(2)

	p1.Release()
	<-started[0]
	p2.Release()
	<-started[1]

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, []int{0, 1}, order, "FIFO order must be preserved")
}

func TestReducePermitsNeverGoesNegative(t *testing.T) {
	s := New(5)
	reduced := s.ReducePermits(10)
	assert.Equal(t, 5, reduced)
	assert.Equal(t, 0, s.Available())
	assert.Equal(t, 5, s.Withdrawn())

	// A further acquire must not succeed, since all permits were
	// withdrawn, not just temporarily held.
	_, ok := s.TryAcquire()
	assert.False(t, ok)
}

func TestAddPermitsWakesWaiters(t *testing.T) {
	s := New(1)
	p := s.Acquire()
	_, ok := s.TryAcquire()
	require.False(t, ok)

	done := make(chan struct{})
	go func() {
		p2 := s.Acquire()
		p2.Release()
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)

	s.AddPermits(1)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken by AddPermits")
	}
	p.Release()
}

func TestInvariantAvailablePlusInUsePlusWithdrawn(t *testing.T) {
	s := New(10)
	var permits []*Permit
	for i := 0; i < 4; i++ {
		p, ok := s.TryAcquire()
		require.True(t, ok)
		permits = append(permits, p)
	}
	s.ReducePermits(3)

	assert.Equal(t, s.Max(), s.Available()+s.InUse()+s.Withdrawn())

	for _, p := range permits {
		p.Release()
	}
}
