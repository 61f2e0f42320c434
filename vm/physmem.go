package vm

import "github.com/TomasCastroRojas/nachos/defs"

// PhysicalMemory is the flat byte array backing every physical frame
// in the simulated machine, shared across every AddressSpace. Stands
// in for the out-of-scope MIPS simulator's mainMemory array
// (original_source/code/userprog/address_space.cc reaches it via
// machine->GetMMU()->mainMemory); here it is an explicit in-scope
// collaborator since the virtual-memory manager's testable properties
// (demand-loading equality, swap correctness) are observations about
// these exact bytes.
type PhysicalMemory struct {
	bytes []byte
}

// NewPhysicalMemory allocates a zeroed memory of numFrames physical
// frames, each defs.PageSize bytes.
func NewPhysicalMemory(numFrames int) *PhysicalMemory {
	return &PhysicalMemory{bytes: make([]byte, numFrames*defs.PageSize)}
}

// Frame returns a slice view of frame's bytes; mutations through it
// write directly into physical memory.
func (m *PhysicalMemory) Frame(frame int) []byte {
	start := frame * defs.PageSize
	return m.bytes[start : start+defs.PageSize]
}
