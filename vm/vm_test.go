package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomasCastroRojas/nachos/defs"
	"github.com/TomasCastroRojas/nachos/disk"
	"github.com/TomasCastroRojas/nachos/fs"
)

func makeExe() *MemExecutable {
	code := make([]byte, defs.PageSize+17)
	for i := range code {
		code[i] = byte(i)
	}
	data := make([]byte, defs.PageSize/2)
	for i := range data {
		data[i] = byte(200 + i)
	}
	return NewMemExecutable(0, code, len(code), data)
}

// Testable Property 6: an eagerly loaded address space and a demand-
// loaded one over the same executable observe identical bytes at every
// page, whether or not a fault ever occurred for that page.
func TestDemandLoadingEqualsEagerLoading(t *testing.T) {
	exe := makeExe()

	eagerMem := NewPhysicalMemory(defs.NumPhysPages)
	eagerFrames := NewCoreMap(defs.NumPhysPages, FIFO)
	eagerTlb := NewTlb()
	eager, err := NewEagerAddressSpace(exe, eagerMem, eagerFrames, eagerTlb)
	require.NoError(t, err)

	demandMem := NewPhysicalMemory(defs.NumPhysPages)
	demandFrames := NewCoreMap(defs.NumPhysPages, FIFO)
	demandTlb := NewTlb()
	demand := NewDemandAddressSpace(exe, demandMem, demandFrames, demandTlb)

	require.Equal(t, eager.NumPages(), demand.NumPages())
	for vpn := 0; vpn < eager.NumPages(); vpn++ {
		eagerEntry := eager.pageTable[vpn]
		demandEntry := demand.GetTranslationEntry(vpn)
		assert.Equal(t, eagerMem.Frame(eagerEntry.PhysicalPage), demandMem.Frame(demandEntry.PhysicalPage))
		assert.Equal(t, eagerEntry.ReadOnly, demandEntry.ReadOnly)
	}
}

// Testable Property 7: under memory pressure that forces eviction, a
// dirty page written to swap reads back with the write visible, and the
// swap file is gone once the address space is closed.
func TestSwapRoundTripUnderPressure(t *testing.T) {
	exe := makeExe()
	require.Greater(t, exe.CodeSize()+exe.InitDataSize()+defs.UserStackSize, 2*defs.PageSize)

	mem := NewPhysicalMemory(2)
	frames := NewCoreMap(2, FIFO)
	tlb := NewTlb()

	d := disk.NewMemDisk(400)
	sd := disk.NewSynchDisk(d)
	fsys, err := fs.NewFileSystem(sd, 400, true)
	require.NoError(t, err)

	as, err := NewSwapAddressSpace(exe, mem, frames, tlb, fsys, "SWAP.1")
	require.NoError(t, err)
	require.Greater(t, as.NumPages(), 2)

	entry0 := as.GetTranslationEntry(0)
	frame0 := entry0.PhysicalPage
	entry0.Dirty = true
	mem.Frame(frame0)[0] = 0xAB

	as.GetTranslationEntry(1)
	as.GetTranslationEntry(2)

	assert.False(t, as.pageTable[0].Valid)

	reloaded := as.GetTranslationEntry(0)
	assert.True(t, reloaded.Valid)
	assert.Equal(t, byte(0xAB), mem.Frame(reloaded.PhysicalPage)[0])

	as.Close()
	_, errno := fsys.Open("SWAP.1")
	assert.Equal(t, defs.NotFound, errno)
}
