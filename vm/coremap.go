package vm

import (
	"math/rand"
	"sync"

	"github.com/TomasCastroRojas/nachos/common"
)

// VictimPolicy selects how CoreMap picks a frame to evict once every
// physical frame is occupied. Grounded on original_source/code/lib/
// coremap.cc, which implements FIFO only; LRU and Random are this
// repo's extension of the same queue/bitmap shape per spec §4.9.
type VictimPolicy int

const (
	FIFO VictimPolicy = iota
	LRU
	Random
)

// Evictable is the notification target for a frame being stolen out
// from under an AddressSpace. Grounded on address_space.cc's
// WriteToSwap, called by Coremap::Find when it must evict.
type Evictable interface {
	WriteToSwap(vpn int)
}

type frameOwner struct {
	space Evictable
	vpn   int
}

// CoreMap is the process-wide physical-frame manager: a bitmap of free
// frames plus, per occupied frame, the owning address space and its
// vpn, and a policy-dependent ordering queue. Grounded 1:1 on
// original_source/code/lib/coremap.cc's Coremap (framesMap,
// virtualPages, spaces, pagesQueue), reshaped into one struct with a
// selectable Policy per spec §4.9 instead of three separate types.
type CoreMap struct {
	mu        sync.Mutex
	numFrames int
	owners    []frameOwner
	occupied  []bool
	queue     []int
	policy    VictimPolicy
	evictions common.Counter
}

// NewCoreMap creates a core map of numFrames physical frames, using
// policy to select eviction victims.
func NewCoreMap(numFrames int, policy VictimPolicy) *CoreMap {
	return &CoreMap{
		numFrames: numFrames,
		owners:    make([]frameOwner, numFrames),
		occupied:  make([]bool, numFrames),
		policy:    policy,
	}
}

// findFree returns the lowest-numbered free frame, marking it
// occupied, or -1 if every frame is occupied.
func (c *CoreMap) findFree() int {
	for i := 0; i < c.numFrames; i++ {
		if !c.occupied[i] {
			c.occupied[i] = true
			return i
		}
	}
	return -1
}

// Find returns a physical frame for (vpn, space): a free frame if one
// exists, otherwise a victim is chosen via the configured policy and
// its owner is asked to write its page out to swap first.
func (c *CoreMap) Find(vpn int, space Evictable) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame := c.findFree()
	if frame < 0 {
		frame = c.pickVictim()
		victim := c.owners[frame]
		c.evictions.Inc()
		c.mu.Unlock()
		victim.space.WriteToSwap(victim.vpn)
		c.mu.Lock()
	}

	c.owners[frame] = frameOwner{space: space, vpn: vpn}
	c.queue = append(c.queue, frame)
	return frame
}

// pickVictim selects and removes a frame from the tracking queue
// according to the configured policy. Must be called with mu held.
func (c *CoreMap) pickVictim() int {
	switch c.policy {
	case Random:
		i := rand.Intn(len(c.queue))
		frame := c.queue[i]
		c.queue = append(c.queue[:i], c.queue[i+1:]...)
		return frame
	default: // FIFO, LRU
		frame := c.queue[0]
		c.queue = c.queue[1:]
		return frame
	}
}

// PageUsed promotes which to the back of the eviction queue when the
// policy is LRU, giving it the longest possible time before becoming
// a victim again. A no-op under FIFO/Random.
func (c *CoreMap) PageUsed(which int) {
	if c.policy != LRU {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, f := range c.queue {
		if f == which {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
	c.queue = append(c.queue, which)
}

// Clear marks frame free and drops its owner, for use when an
// AddressSpace voluntarily releases a page (not eviction).
func (c *CoreMap) Clear(which int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.occupied[which] = false
	c.owners[which] = frameOwner{}
	for i, f := range c.queue {
		if f == which {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
}

// CountClear returns the number of unoccupied frames.
func (c *CoreMap) CountClear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, occ := range c.occupied {
		if !occ {
			n++
		}
	}
	return n
}

// NumFrames returns the core map's fixed frame count.
func (c *CoreMap) NumFrames() int {
	return c.numFrames
}

// Evictions returns the number of frames reclaimed from a busy owner
// since the core map was created, a diagnostic counter in the same
// style as the teacher's common.Counter stat fields.
func (c *CoreMap) Evictions() int64 {
	return c.evictions.Get()
}
