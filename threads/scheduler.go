package threads

import "sync"

// Scheduler tracks every Thread started through ForkTracked until its
// body returns; threads started with plain Fork are not tracked. The
// teacher's cooperative scheduler keeps an explicit ready queue because
// it must pick the next thread to run by hand; here Go's own runtime
// performs that scheduling, so Scheduler is reduced to listing live
// threads (it has no lookup by id; List returns a snapshot), grounded
// on the shape of mit-pdos-biscuit's proc.ptable_t (a mutex-guarded
// id-keyed table).
type Scheduler struct {
	mu      sync.Mutex
	threads map[defs_ThreadID]*Thread
}

// defs_ThreadID avoids importing defs just for the map key type here;
// kept as a type alias so the field above stays self-documenting.
type defs_ThreadID = uint64

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{threads: map[defs_ThreadID]*Thread{}}
}

// ForkTracked forks a thread the way Fork does, and additionally
// registers it with s so it shows up in List until fn returns.
func (s *Scheduler) ForkTracked(name string, priority int, fn func(arg any), arg any) *Thread {
	t := newThread(name, priority)
	started := make(chan struct{})
	go func() {
		registerCurrent(t)
		s.add(t)
		close(started)
		defer s.remove(t)
		defer unregisterCurrent()
		defer t.Finish(0)
		fn(arg)
	}()
	<-started
	return t
}

func (s *Scheduler) add(t *Thread) {
	s.mu.Lock()
	s.threads[defs_ThreadID(t.ID)] = t
	s.mu.Unlock()
}

func (s *Scheduler) remove(t *Thread) {
	s.mu.Lock()
	delete(s.threads, defs_ThreadID(t.ID))
	s.mu.Unlock()
}

// List returns a snapshot of every thread the scheduler knows about.
func (s *Scheduler) List() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	return out
}
