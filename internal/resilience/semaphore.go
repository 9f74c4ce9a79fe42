// Package resilience provides the concurrency governor: a counting
// admission gate bounding in-flight provider calls, and a retry executor
// with exponential backoff.
package resilience

import (
	"context"
	"sync"
)

// Semaphore is a counting admission gate. A caller must acquire a slot
// before issuing work and release it on every exit path.
type Semaphore struct {
	mu       sync.Mutex
	capacity int
	current  int
	waiters  []chan struct{}
}

// NewSemaphore creates a semaphore with the given capacity.
// Non-positive capacities are clamped to 1.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{capacity: capacity}
}

// TryAcquire takes a slot without blocking; false when at capacity.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < s.capacity {
		s.current++
		return true
	}
	return false
}

// Acquire takes a slot, blocking until one frees or ctx is done.
// The capacity check and waiter enqueue happen in one critical section:
// a Release can therefore never slip between them and free a slot the
// waiter will not see.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.current < s.capacity {
		s.current++
		s.mu.Unlock()
		return nil
	}

	waiter := make(chan struct{})
	s.waiters = append(s.waiters, waiter)
	s.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == waiter {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()
		// A release closed our waiter while ctx was firing: the slot was
		// handed to us, so give it back before reporting cancellation.
		s.Release()
		return ctx.Err()
	}
}

// Release frees a slot, handing it directly to the oldest waiter if any.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current <= 0 {
		return
	}

	if len(s.waiters) > 0 {
		waiter := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(waiter)
		// The slot transfers to the waiter; current stays as-is.
		return
	}

	s.current--
}

// InFlight returns the number of held slots.
func (s *Semaphore) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Capacity returns the configured ceiling.
func (s *Semaphore) Capacity() int { return s.capacity }
