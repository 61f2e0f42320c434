package threads

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// E6: garden turnstile. Two turnstiles, five iterations each, guarded by
// a lock; the final counter must be exactly 10. Grounded on
// original_source/code/threads/thread_test_garden.cc.
func TestGardenTurnstileWithLock(t *testing.T) {
	const turnstiles = 2
	const iterations = 5

	lock := NewLock("garden lock")
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < turnstiles; i++ {
		wg.Add(1)
		Fork("turnstile", 0, func(arg any) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				lock.Acquire()
				count++
				lock.Release()
				Yield()
			}
		}, nil)
	}
	wg.Wait()

	assert.Equal(t, turnstiles*iterations, count)
}

// E5: three producers and two consumers on a bounded buffer of capacity
// 10, five iterations each. Final buffer count is 3*5 - 2*5 = 5 and no
// wakeup is lost. Grounded on
// original_source/code/threads/thread_test_prod_cons.cc, redone with a
// blocking Join instead of the original's busy-spin on a done[] array.
func TestProducerConsumer(t *testing.T) {
	const capacity = 10
	const iterations = 5
	const producers = 3
	const consumers = 2

	lock := NewLock("prodcons lock")
	notFull := NewCondition("not full", lock)
	notEmpty := NewCondition("not empty", lock)
	buffer := 0

	var threadsStarted []*Thread

	for i := 0; i < producers; i++ {
		th := Fork("producer", 0, func(arg any) {
			for j := 0; j < iterations; j++ {
				lock.Acquire()
				for buffer == capacity {
					notFull.Wait()
				}
				buffer++
				notEmpty.Signal()
				lock.Release()
				Yield()
			}
		}, nil)
		threadsStarted = append(threadsStarted, th)
	}
	for i := 0; i < consumers; i++ {
		th := Fork("consumer", 0, func(arg any) {
			for j := 0; j < iterations; j++ {
				lock.Acquire()
				for buffer == 0 {
					notEmpty.Wait()
				}
				buffer--
				notFull.Signal()
				lock.Release()
				Yield()
			}
		}, nil)
		threadsStarted = append(threadsStarted, th)
	}

	for _, th := range threadsStarted {
		th.Join()
	}

	assert.Equal(t, producers*iterations-consumers*iterations, buffer)
}

func TestLockOwnership(t *testing.T) {
	lock := NewLock("l")
	lock.Acquire()
	assert.True(t, lock.IsHeldByCurrentThread())
	lock.Release()
	assert.False(t, lock.IsHeldByCurrentThread())

	assert.Panics(t, func() { lock.Release() })
}

func TestChannelRendezvous(t *testing.T) {
	ch := NewChannel("c")
	var got int
	var wg sync.WaitGroup
	wg.Add(2)
	Fork("sender", 0, func(arg any) {
		defer wg.Done()
		ch.Send(42)
	}, nil)
	Fork("receiver", 0, func(arg any) {
		defer wg.Done()
		got = ch.Receive()
	}, nil)
	wg.Wait()
	assert.Equal(t, 42, got)
}

// Mesa discipline: a thread woken by Signal must re-acquire the lock
// before Wait returns, and must re-check its predicate (Testable
// Property 4).
func TestConditionMesaSemantics(t *testing.T) {
	lock := NewLock("l")
	cond := NewCondition("c", lock)
	ready := false

	done := make(chan struct{})
	Fork("waiter", 0, func(arg any) {
		lock.Acquire()
		for !ready {
			cond.Wait()
		}
		require.True(t, lock.IsHeldByCurrentThread())
		lock.Release()
		close(done)
	}, nil)

	Yield()
	lock.Acquire()
	ready = true
	cond.Signal()
	lock.Release()

	<-done
}

func TestReadWriteControllerExclusion(t *testing.T) {
	rw := NewReadWriteController()
	var mu sync.Mutex
	writerActive := false
	violation := false

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		Fork("reader", 0, func(arg any) {
			defer wg.Done()
			rw.AcquireRead()
			mu.Lock()
			if writerActive {
				violation = true
			}
			mu.Unlock()
			rw.ReleaseRead()
		}, nil)
	}
	wg.Add(1)
	Fork("writer", 0, func(arg any) {
		defer wg.Done()
		rw.AcquireWrite()
		mu.Lock()
		writerActive = true
		mu.Unlock()
		mu.Lock()
		writerActive = false
		mu.Unlock()
		rw.ReleaseWrite()
	}, nil)
	wg.Wait()

	assert.False(t, violation)
}

func TestJoinReturnsFinishStatus(t *testing.T) {
	th := Fork("worker", 0, func(arg any) {
		th := CurrentThread()
		th.Finish(7)
	}, nil)
	assert.Equal(t, 7, th.Join())
}

func TestSchedulerTracksForkedThreads(t *testing.T) {
	sched := NewScheduler()
	release := make(chan struct{})
	th := sched.ForkTracked("tracked", 0, func(arg any) {
		<-release
	}, nil)

	found := false
	for _, l := range sched.List() {
		if l.ID == th.ID {
			found = true
		}
	}
	assert.True(t, found)

	close(release)
	th.Join()
}
