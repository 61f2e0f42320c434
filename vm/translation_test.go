package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TomasCastroRojas/nachos/defs"
)

// Exercises the TLB's refill path: the simulated MMU (out of scope)
// calls SetTlbPage on every miss and SetUseDirty on every hit; this
// test plays that role directly per spec §4.8's TLB coordination note.
func TestSetTlbPageRotatesAndSavesEvictedSlot(t *testing.T) {
	tlb := NewTlb()
	owner := make([]TranslationEntry, defs.TlbSize+1)
	for vpn := range owner {
		owner[vpn] = TranslationEntry{VirtualPage: vpn}
	}

	for vpn := 0; vpn < defs.TlbSize; vpn++ {
		tlb.SetTlbPage(TranslationEntry{VirtualPage: vpn, Valid: true, PhysicalPage: vpn}, owner)
	}
	_, found := tlb.Lookup(0)
	assert.True(t, found)

	tlb.SetUseDirty(1, true)
	entry, found := tlb.Lookup(1)
	assert.True(t, found)
	assert.True(t, entry.Use)
	assert.True(t, entry.Dirty)

	// The TLB is full; inserting vpn=defs.TlbSize evicts slot 0 (the
	// rotating index wrapped back to the start) and must save its
	// dirty/use bits into owner before overwriting it.
	tlb.SetUseDirty(0, true)
	tlb.SetTlbPage(TranslationEntry{VirtualPage: defs.TlbSize, Valid: true}, owner)

	assert.True(t, owner[0].Dirty)
	_, found = tlb.Lookup(0)
	assert.False(t, found)
	_, found = tlb.Lookup(defs.TlbSize)
	assert.True(t, found)
}

func TestSaveAndInvalidateOnlyTouchesMatchingEntry(t *testing.T) {
	tlb := NewTlb()
	owner := make([]TranslationEntry, 2)
	owner[0] = TranslationEntry{VirtualPage: 0}
	owner[1] = TranslationEntry{VirtualPage: 1}

	tlb.SetTlbPage(TranslationEntry{VirtualPage: 0, Valid: true, Dirty: true}, owner)
	tlb.SetTlbPage(TranslationEntry{VirtualPage: 1, Valid: true, Use: true}, owner)

	tlb.SaveAndInvalidate(0, owner)

	assert.True(t, owner[0].Dirty)
	_, found := tlb.Lookup(0)
	assert.False(t, found)
	_, found = tlb.Lookup(1)
	assert.True(t, found)
}
