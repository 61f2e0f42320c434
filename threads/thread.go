package threads

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/TomasCastroRojas/nachos/defs"
)

// Thread is a cooperative kernel thread. The teacher (mit-pdos-biscuit)
// represents kernel threads as real goroutines rather than literally
// interpreting a single-CPU schedule; we follow the same idiom. Fork
// starts a goroutine, Join blocks on its completion, Finish records the
// exit status — the contract spec §4.2 describes, implemented with Go's
// own scheduler standing in for the simulated one (an equivalent
// primitive on the host, per spec §4.1's note on Semaphore atomicity).
type Thread struct {
	ID       defs.ThreadID
	Name     string
	Priority int

	// AddressSpace, when non-nil, is the user process this thread runs.
	// Declared as an empty interface to avoid an import cycle with vm;
	// syscall glue downcasts it.
	AddressSpace interface{}

	// Cwd is the thread's current working directory, an ordered
	// component list (spec §4.2); it is a *fs.FilePath in practice but
	// kept untyped here to avoid an import cycle with fs.
	Cwd interface{}
	// CwdLock is the per-directory lock currently held for read-only
	// path operations against Cwd, per spec §4.2.
	CwdLock *Lock

	join *joinState
}

type joinState struct {
	mu     sync.Mutex
	cond   *sync.Cond
	done   bool
	status int
}

var nextThreadID atomic.Uint64

// NewID allocates a fresh stable thread identifier.
func NewID() defs.ThreadID {
	return defs.ThreadID(nextThreadID.Add(1))
}

func newThread(name string, priority int) *Thread {
	t := &Thread{ID: NewID(), Name: name, Priority: priority, join: &joinState{}}
	t.join.cond = sync.NewCond(&t.join.mu)
	return t
}

// Fork creates a new Thread named name with the given priority hint and
// starts fn(arg) running on its own goroutine. The returned Thread can be
// Join'd to wait for fn to call Finish (or return, which implicitly
// Finish(0)s, matching the original Nachos's Thread::Finish at the end
// of a thread's body).
func Fork(name string, priority int, fn func(arg any), arg any) *Thread {
	t := newThread(name, priority)
	started := make(chan struct{})
	go func() {
		registerCurrent(t)
		close(started)
		defer unregisterCurrent()
		defer t.Finish(0)
		fn(arg)
	}()
	<-started
	return t
}

// Finish records status as the thread's exit status and wakes any
// joiners. Calling Finish more than once is a no-op after the first
// call, so a thread body may call it explicitly and still fall through
// to Fork's implicit Finish(0) without harm.
func (t *Thread) Finish(status int) {
	t.join.mu.Lock()
	defer t.join.mu.Unlock()
	if t.join.done {
		return
	}
	t.join.status = status
	t.join.done = true
	t.join.cond.Broadcast()
}

// Join blocks until t calls Finish (or returns), and returns its status.
func (t *Thread) Join() int {
	t.join.mu.Lock()
	defer t.join.mu.Unlock()
	for !t.join.done {
		t.join.cond.Wait()
	}
	return t.join.status
}

// Yield is a cooperative scheduling point. Go's runtime already
// schedules goroutines preemptively, so Yield is a hint rather than a
// strict requirement, matching spec §5's note that suspension points are
// where a context switch *may* occur, not where one must.
func Yield() {
	runtime.Gosched()
}

// --- current-thread registry -------------------------------------------------
//
// The original Nachos exposes a global `currentThread` pointer, updated
// on every context switch. Go has no notion of "the current goroutine"
// exposed to user code, so we maintain a small goroutine-local registry
// keyed by the runtime-assigned goroutine id. Fork registers the thread
// it spawns; any goroutine that uses a Lock/Semaphore/etc. without going
// through Fork (the bootstrap goroutine in particular) is lazily
// assigned an implicit Thread the first time it is observed.

var (
	registryMu sync.Mutex
	registry   = map[uint64]*Thread{}
)

func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}

func registerCurrent(t *Thread) {
	gid := goroutineID()
	registryMu.Lock()
	registry[gid] = t
	registryMu.Unlock()
}

func unregisterCurrent() {
	gid := goroutineID()
	registryMu.Lock()
	delete(registry, gid)
	registryMu.Unlock()
}

// CurrentThread returns the Thread running on the calling goroutine,
// creating an implicit one on first use if this goroutine was not
// started via Fork.
func CurrentThread() *Thread {
	gid := goroutineID()
	registryMu.Lock()
	defer registryMu.Unlock()
	if t, ok := registry[gid]; ok {
		return t
	}
	t := newThread("implicit", 0)
	registry[gid] = t
	return t
}

// CurrentThreadID returns the stable identifier of the calling goroutine's
// Thread (see CurrentThread).
func CurrentThreadID() defs.ThreadID {
	return CurrentThread().ID
}
