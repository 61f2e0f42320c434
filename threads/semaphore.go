// Package threads implements the kernel's cooperative-thread and
// synchronization primitives: semaphores, owner-tracked locks, Mesa
// condition variables, a rendezvous channel, a reader/writer controller,
// and the Thread/Join abstraction they are built for.
package threads

import "sync"

// Semaphore is a counting semaphore with FIFO wakeup, grounded on
// original_source/code/threads/lock.cc & condition.cc's use of
// Semaphore as the base primitive. Built on sync.Mutex + sync.Cond;
// sync.Cond.Signal wakes the longest-waiting goroutine, which gives the
// FIFO property spec §4.1 requires without needing a hand-rolled queue.
type Semaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value int
	name  string
}

// NewSemaphore creates a semaphore with the given initial value.
func NewSemaphore(name string, initial int) *Semaphore {
	s := &Semaphore{value: initial, name: name}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// P decrements the semaphore, blocking while its value is zero.
func (s *Semaphore) P() {
	s.mu.Lock()
	for s.value == 0 {
		s.cond.Wait()
	}
	s.value--
	s.mu.Unlock()
}

// V increments the semaphore and wakes one waiter, if any.
func (s *Semaphore) V() {
	s.mu.Lock()
	s.value++
	s.cond.Signal()
	s.mu.Unlock()
}

// Name returns the semaphore's debug name.
func (s *Semaphore) Name() string {
	return s.name
}
