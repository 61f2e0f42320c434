package threads

// ReadWriteController implements many-readers/one-writer exclusion
// guarding an on-disk file body. Grounded 1:1 on
// original_source/code/filesys/read_write_controller.cc. Spec §9 Open
// Question: the original's AcquireRead skips the increment when the
// caller already holds the counter lock, which has no defined
// semantics; this implementation treats readers and writers as disjoint
// callers and drops that branch.
//
// Writer preference is not guaranteed; a steady stream of readers can
// starve a waiting writer — a design limitation inherited intentionally
// (spec §4.1).
type ReadWriteController struct {
	lock      *Lock
	noReaders *Condition
	readers   int
}

// NewReadWriteController creates a controller with zero active readers.
func NewReadWriteController() *ReadWriteController {
	rw := &ReadWriteController{lock: NewLock("ReadWriteController lock")}
	rw.noReaders = NewCondition("ReadWriteController cond", rw.lock)
	return rw
}

// AcquireRead registers the caller as an active reader. It does not
// block unless a writer currently holds the controller.
func (rw *ReadWriteController) AcquireRead() {
	rw.lock.Acquire()
	rw.readers++
	rw.lock.Release()
}

// ReleaseRead unregisters the caller as an active reader, waking waiting
// writers once the last reader leaves.
func (rw *ReadWriteController) ReleaseRead() {
	rw.lock.Acquire()
	rw.readers--
	if rw.readers == 0 {
		rw.noReaders.Broadcast()
	}
	rw.lock.Release()
}

// AcquireWrite takes the controller for exclusive access, waiting for
// every active reader to leave. The underlying lock is held across the
// call and released only by ReleaseWrite.
func (rw *ReadWriteController) AcquireWrite() {
	rw.lock.Acquire()
	for rw.readers > 0 {
		rw.noReaders.Wait()
	}
}

// ReleaseWrite wakes one waiter (if any) and releases the controller.
func (rw *ReadWriteController) ReleaseWrite() {
	rw.noReaders.Signal()
	rw.lock.Release()
}
