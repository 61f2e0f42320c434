// Package vm implements the virtual-memory manager: per-process page
// tables and TLB synchronization, the physical-frame core map with
// selectable eviction policies, and address-space construction with
// eager, demand-paged, and swap-backed variants.
package vm

import "github.com/TomasCastroRojas/nachos/defs"

// TranslationEntry is one virtual-to-physical page mapping. Grounded
// 1:1 on original_source/code/userprog/address_space.cc's use of
// TranslationEntry (virtualPage, physicalPage, valid, use, dirty,
// readOnly).
type TranslationEntry struct {
	VirtualPage  int
	PhysicalPage int
	Valid        bool
	Use          bool
	Dirty        bool
	ReadOnly     bool
}

// Tlb is a small fully-associative translation cache with rotating
// insertion. Grounded 1:1 on address_space.cc's SetTlbPage/
// SavePageFromTLB/InvalidateTLB.
type Tlb struct {
	entries [defs.TlbSize]TranslationEntry
	index   int
}

// NewTlb creates an empty (all-invalid) TLB.
func NewTlb() *Tlb {
	return &Tlb{}
}

// Lookup returns the TLB entry for vpn and whether it was found.
func (t *Tlb) Lookup(vpn int) (TranslationEntry, bool) {
	for _, e := range t.entries {
		if e.Valid && e.VirtualPage == vpn {
			return e, true
		}
	}
	return TranslationEntry{}, false
}

// SetUseDirty updates the use/dirty bits of vpn's TLB entry, if
// present — mirroring how the MIPS MMU marks these bits on access
// without kernel intervention.
func (t *Tlb) SetUseDirty(vpn int, dirty bool) {
	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].VirtualPage == vpn {
			t.entries[i].Use = true
			if dirty {
				t.entries[i].Dirty = true
			}
			return
		}
	}
}

// SavePageFromTLB propagates slot's dirty/use bits back into owner
// (the page table) and invalidates the slot, if it currently holds a
// valid translation.
func (t *Tlb) SavePageFromTLB(slot int, owner []TranslationEntry) {
	e := t.entries[slot]
	if !e.Valid {
		return
	}
	owner[e.VirtualPage].Dirty = e.Dirty
	owner[e.VirtualPage].Use = e.Use
	t.entries[slot].Valid = false
}

// InvalidateTLB invalidates every TLB slot without propagating bits —
// used on context-switch in, since the incoming address space's page
// table is already authoritative.
func (t *Tlb) InvalidateTLB() {
	for i := range t.entries {
		t.entries[i].Valid = false
	}
}

// SaveState saves every valid TLB slot back to owner — used on
// context-switch out.
func (t *Tlb) SaveState(owner []TranslationEntry) {
	for slot := range t.entries {
		t.SavePageFromTLB(slot, owner)
	}
}

// SetTlbPage inserts entry at the rotating index, first saving
// whatever occupied that slot back to owner.
func (t *Tlb) SetTlbPage(entry TranslationEntry, owner []TranslationEntry) {
	if t.entries[t.index].Valid {
		t.SavePageFromTLB(t.index, owner)
	}
	t.entries[t.index] = entry
	t.index = (t.index + 1) % defs.TlbSize
}

// SaveAndInvalidate propagates the dirty/use bits of any TLB entry
// mapping vpn back into owner, then invalidates that entry. Used when
// vpn's physical frame is about to be evicted out from under the page
// table owner describes.
func (t *Tlb) SaveAndInvalidate(vpn int, owner []TranslationEntry) {
	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].VirtualPage == vpn {
			t.SavePageFromTLB(i, owner)
		}
	}
}
