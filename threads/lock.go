package threads

import (
	"fmt"

	"github.com/TomasCastroRojas/nachos/defs"
)

// Lock is mutual exclusion with owner tracking, built atop a binary
// Semaphore. Grounded 1:1 on original_source/code/threads/lock.cc,
// except the owner is tracked by a defs.ThreadID rather than a thread
// name/pointer, per spec §9 Design Notes.
type Lock struct {
	name string
	sem  *Semaphore
	// owner is accessed only while the caller already holds sem (i.e.
	// only the current holder, or a thread checking its own identity
	// under IsHeldByCurrentThread's lockless read), matching the
	// original's unsynchronized `owner` field.
	owner   defs.ThreadID
	hasOwner bool
}

// NewLock creates an unheld lock.
func NewLock(name string) *Lock {
	return &Lock{name: name, sem: NewSemaphore(name, 1)}
}

// Acquire blocks until the lock is free, then takes it.
func (l *Lock) Acquire() {
	if l.IsHeldByCurrentThread() {
		panic(fmt.Sprintf("lock %q: recursive Acquire by owner", l.name))
	}
	l.sem.P()
	l.owner = CurrentThreadID()
	l.hasOwner = true
}

// Release gives up the lock. Panics if the caller does not hold it,
// mirroring the original's ASSERT(IsHeldByCurrentThread()).
func (l *Lock) Release() {
	if !l.IsHeldByCurrentThread() {
		panic(fmt.Sprintf("lock %q: Release by non-owner", l.name))
	}
	l.hasOwner = false
	l.sem.V()
}

// IsHeldByCurrentThread reports whether the calling thread holds the lock.
func (l *Lock) IsHeldByCurrentThread() bool {
	return l.hasOwner && l.owner == CurrentThreadID()
}

// Name returns the lock's debug name.
func (l *Lock) Name() string {
	return l.name
}
