package common

import "sync/atomic"

// Counter is an atomic monotonic stat counter, grounded on
// mit-pdos-biscuit's common.Counter_t. Used for diagnostic counts
// (here, vm.CoreMap's eviction count) that the teacher also
// tracks this way rather than through a metrics library — no example
// repo in the pack imports one.
type Counter struct {
	v int64
}

func (c *Counter) Inc() {
	atomic.AddInt64(&c.v, 1)
}

func (c *Counter) Add(n int64) {
	atomic.AddInt64(&c.v, n)
}

func (c *Counter) Get() int64 {
	return atomic.LoadInt64(&c.v)
}
