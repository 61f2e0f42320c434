package vm

import (
	"fmt"

	"github.com/TomasCastroRojas/nachos/defs"
	"github.com/TomasCastroRojas/nachos/fs"
)

// AddressSpace is one process's page table plus however much of the
// demand-loading/swap machinery it was built with. Grounded 1:1 on
// original_source/code/userprog/address_space.cc's AddressSpace (its
// constructor, LoadPage, ReadFromSwap, WriteToSwap, SaveState,
// RestoreState, GetTranslationEntry), generalized per spec §4.8 into
// three explicit build-mode variants instead of one constructor
// branching on a global "-s" flag.
type AddressSpace struct {
	exe    Executable
	mem    *PhysicalMemory
	frames *CoreMap
	tlb    *Tlb

	numPages     int
	codeAddr     int
	codeSize     int
	initDataAddr int
	initDataSize int

	pageTable []TranslationEntry

	swap bool

	fsys     *fs.FileSystem
	swapName string
	swapFile *fs.OpenFile
	inSwap   *fs.Bitmap
}

func pageCount(exe Executable) int {
	end := exe.InitDataAddr() + exe.InitDataSize()
	if codeEnd := exe.CodeAddr() + exe.CodeSize(); codeEnd > end {
		end = codeEnd
	}
	end += defs.UserStackSize
	return (end + defs.PageSize - 1) / defs.PageSize
}

// NewEagerAddressSpace builds an address space with every page loaded
// up front and no swap capability. frames must have at least as many
// free frames as the executable needs; LoadPage is never asked to
// evict, mirroring the original's -s-less ASSERT(numPages <=
// frames->CountClear()).
func NewEagerAddressSpace(exe Executable, mem *PhysicalMemory, frames *CoreMap, tlb *Tlb) (*AddressSpace, error) {
	as := newAddressSpace(exe, mem, frames, tlb, false, nil, "")
	if frames.CountClear() < as.numPages {
		return nil, fmt.Errorf("vm: not enough physical frames for eager load")
	}
	for vpn := 0; vpn < as.numPages; vpn++ {
		as.LoadPage(vpn)
	}
	return as, nil
}

// NewDemandAddressSpace builds an address space whose pages are loaded
// on first fault (GetTranslationEntry) and evicted by frames as needed,
// but never written anywhere durable — an evicted page is simply
// reconstructed from the executable/zero-fill again.
func NewDemandAddressSpace(exe Executable, mem *PhysicalMemory, frames *CoreMap, tlb *Tlb) *AddressSpace {
	return newAddressSpace(exe, mem, frames, tlb, false, nil, "")
}

// NewSwapAddressSpace builds a demand-paged address space backed by a
// per-process swap file, created via fsys under name swapName (e.g.
// "SWAP.<pid>"). Evicted dirty pages, and every page evicted for the
// first time, are preserved across faults by writing them to the swap
// file; WriteToSwap implements vm.Evictable so CoreMap can call it
// directly.
func NewSwapAddressSpace(exe Executable, mem *PhysicalMemory, frames *CoreMap, tlb *Tlb, fsys *fs.FileSystem, swapName string) (*AddressSpace, error) {
	as := newAddressSpace(exe, mem, frames, tlb, true, fsys, swapName)
	if errno := fsys.Create(swapName, as.numPages*defs.PageSize, false); errno != defs.OK {
		return nil, fmt.Errorf("vm: create swap file %s: %s", swapName, errno)
	}
	sf, errno := fsys.Open(swapName)
	if errno != defs.OK {
		return nil, fmt.Errorf("vm: open swap file %s: %s", swapName, errno)
	}
	as.swapFile = sf
	as.inSwap = fs.NewBitmap(as.numPages)
	return as, nil
}

func newAddressSpace(exe Executable, mem *PhysicalMemory, frames *CoreMap, tlb *Tlb, swap bool, fsys *fs.FileSystem, swapName string) *AddressSpace {
	numPages := pageCount(exe)
	return &AddressSpace{
		exe:          exe,
		mem:          mem,
		frames:       frames,
		tlb:          tlb,
		numPages:     numPages,
		codeAddr:     exe.CodeAddr(),
		codeSize:     exe.CodeSize(),
		initDataAddr: exe.InitDataAddr(),
		initDataSize: exe.InitDataSize(),
		pageTable:    make([]TranslationEntry, numPages),
		swap:         swap,
		fsys:         fsys,
		swapName:     swapName,
	}
}

// NumPages returns the address space's page table length.
func (as *AddressSpace) NumPages() int { return as.numPages }

// regionAt classifies the byte at virtual address addr as belonging to
// the code segment, the initialized-data segment, or zero-fill (BSS,
// stack, and any alignment gap between segments), and reports how many
// further bytes from addr remain in that same region.
func (as *AddressSpace) regionAt(addr int) (kind string, remaining int) {
	switch {
	case addr < as.codeAddr:
		return "zero", as.codeAddr - addr
	case addr < as.codeAddr+as.codeSize:
		return "code", as.codeAddr + as.codeSize - addr
	case addr < as.initDataAddr:
		return "zero", as.initDataAddr - addr
	case addr < as.initDataAddr+as.initDataSize:
		return "data", as.initDataAddr + as.initDataSize - addr
	default:
		return "zero", as.numPages*defs.PageSize - addr
	}
}

// LoadPage brings vpn in from the executable image (code/data) or
// zero-fills it (BSS/stack), claiming a physical frame via frames
// (which may itself evict another page first). A page built entirely
// from code bytes is marked read-only, matching the original's
// readOnly assignment in AddressSpace's constructor loop.
func (as *AddressSpace) LoadPage(vpn int) {
	frame := as.frames.Find(vpn, as)
	dst := as.mem.Frame(frame)
	virtualAddr := vpn * defs.PageSize

	pos := 0
	sawCode, sawOther := false, false
	for pos < defs.PageSize {
		kind, remaining := as.regionAt(virtualAddr + pos)
		chunk := remaining
		if chunk > defs.PageSize-pos {
			chunk = defs.PageSize - pos
		}
		switch kind {
		case "code":
			as.exe.ReadCodeBlock(dst[pos:pos+chunk], chunk, virtualAddr+pos-as.codeAddr)
			sawCode = true
		case "data":
			as.exe.ReadDataBlock(dst[pos:pos+chunk], chunk, virtualAddr+pos-as.initDataAddr)
			sawOther = true
		default:
			for i := 0; i < chunk; i++ {
				dst[pos+i] = 0
			}
			sawOther = true
		}
		pos += chunk
	}

	as.pageTable[vpn] = TranslationEntry{
		VirtualPage:  vpn,
		PhysicalPage: frame,
		Valid:        true,
		ReadOnly:     sawCode && !sawOther,
	}
}

// ReadFromSwap brings vpn in from the swap file, claiming a physical
// frame via frames. Grounded on address_space.cc's ReadFromSwap.
func (as *AddressSpace) ReadFromSwap(vpn int) {
	frame := as.frames.Find(vpn, as)
	dst := as.mem.Frame(frame)
	if _, err := as.swapFile.ReadAt(dst, vpn*defs.PageSize); err != nil {
		panic(fmt.Sprintf("vm: ReadFromSwap(%d): %v", vpn, err))
	}
	as.inSwap.Clear(vpn)
	as.pageTable[vpn] = TranslationEntry{
		VirtualPage:  vpn,
		PhysicalPage: frame,
		Valid:        true,
	}
}

// WriteToSwap implements vm.Evictable: called by CoreMap.Find, without
// its lock held, when vpn's frame has been chosen as an eviction
// victim. If the frame is dirty, or this is its first eviction, its
// bytes are written to swap; a clean page already on swap is left
// untouched, since the swap copy is still accurate. Grounded on
// address_space.cc's WriteToSwap and spec §4.8's WriteToSwap wording.
func (as *AddressSpace) WriteToSwap(vpn int) {
	as.tlb.SaveAndInvalidate(vpn, as.pageTable)

	entry := &as.pageTable[vpn]
	if as.swap && (entry.Dirty || !as.inSwap.Test(vpn)) {
		data := as.mem.Frame(entry.PhysicalPage)
		if _, err := as.swapFile.WriteAt(data, vpn*defs.PageSize); err != nil {
			panic(fmt.Sprintf("vm: WriteToSwap(%d): %v", vpn, err))
		}
		as.inSwap.Mark(vpn)
	}

	entry.Valid = false
	entry.PhysicalPage = -1
}

// GetTranslationEntry returns vpn's page-table entry, faulting it in
// (from swap if it was ever written there, otherwise from the
// executable/zero-fill) if it is not currently valid. Grounded on
// address_space.cc's page-fault handling path.
func (as *AddressSpace) GetTranslationEntry(vpn int) *TranslationEntry {
	entry := &as.pageTable[vpn]
	if !entry.Valid {
		if as.swap && as.inSwap.Test(vpn) {
			as.ReadFromSwap(vpn)
		} else {
			as.LoadPage(vpn)
		}
	}
	as.frames.PageUsed(entry.PhysicalPage)
	return entry
}

// SaveState flushes every valid TLB entry back into the page table —
// called on context-switch out, before another address space's
// RestoreState runs.
func (as *AddressSpace) SaveState() {
	as.tlb.SaveState(as.pageTable)
}

// RestoreState invalidates the TLB — called on context-switch in, so
// the next address space starts with no stale translations cached.
func (as *AddressSpace) RestoreState() {
	as.tlb.InvalidateTLB()
}

// Close releases every frame this address space still holds and
// removes its swap file, if any. Must be called once the owning
// process has exited.
func (as *AddressSpace) Close() {
	for vpn := range as.pageTable {
		if as.pageTable[vpn].Valid {
			as.frames.Clear(as.pageTable[vpn].PhysicalPage)
			as.pageTable[vpn].Valid = false
		}
	}
	if as.swapFile != nil {
		as.swapFile.Close()
		as.fsys.Remove(as.swapName)
	}
}
