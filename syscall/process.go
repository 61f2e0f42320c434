// Package syscall translates the kernel's system call surface (spec §6)
// into calls against fs and vm. The MIPS register file and the trap
// shell that decodes a syscall id and its arguments out of registers
// are out of scope per spec §1; UserMemory stands in for the former as
// a small interface, and common.Console for the raw console device,
// grounded on the shape (not the x86/ELF content) of mit-pdos-biscuit's
// kernel/syscall.go dispatch table.
package syscall

import (
	"errors"
	"sync"

	"github.com/TomasCastroRojas/nachos/common"
	"github.com/TomasCastroRojas/nachos/defs"
	"github.com/TomasCastroRojas/nachos/fs"
)

// ErrPageFault is returned by a UserMemory method when the access
// faulted and should be retried after the underlying page is brought
// in. Spec §7: user-mode memory accesses retry up to a bounded number
// of times (3 under virtual memory, 1 otherwise) before the syscall
// aborts.
var ErrPageFault = errors.New("syscall: user memory page fault")

// UserMemory is the per-process view of user address space that
// syscalls read arguments from and write results into. Implementations
// translate addresses through vm.AddressSpace (faulting pages in as
// needed) or, for a no-VM build, directly index a flat buffer.
type UserMemory interface {
	ReadString(addr int, maxLen int) (string, error)
	ReadBuf(addr int, size int) ([]byte, error)
	WriteBuf(addr int, data []byte) error
}

// Process is the per-caller context a Dispatcher operates against: its
// user-memory view, its console, and its open-file table (fids >= 2).
// Reshaped from original_source's per-AddrSpace OpenFileList-handle
// array into a map, matching fs's own registry shape.
type Process struct {
	SpaceID int
	Mem     UserMemory
	Console common.Console
	HasVM   bool

	mu      sync.Mutex
	fids    map[int]*fs.OpenFile
	nextFid int
}

// NewProcess creates a process context. hasVM selects the retry budget
// for faulting memory accesses (spec §7: 3 retries with virtual
// memory, 1 without).
func NewProcess(spaceID int, mem UserMemory, console common.Console, hasVM bool) *Process {
	return &Process{
		SpaceID: spaceID,
		Mem:     mem,
		Console: console,
		HasVM:   hasVM,
		fids:    make(map[int]*fs.OpenFile),
		nextFid: defs.FirstUserFid,
	}
}

func (p *Process) allocFid(of *fs.OpenFile) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	fid := p.nextFid
	p.nextFid++
	p.fids[fid] = of
	return fid
}

func (p *Process) fileFor(fid int) (*fs.OpenFile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	of, ok := p.fids[fid]
	return of, ok
}

func (p *Process) closeFid(fid int) (*fs.OpenFile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	of, ok := p.fids[fid]
	if ok {
		delete(p.fids, fid)
	}
	return of, ok
}

func (p *Process) retries() int {
	if p.HasVM {
		return 3
	}
	return 1
}

func (p *Process) readString(addr, maxLen int) (string, error) {
	var s string
	err := p.withRetry(func() error {
		var e error
		s, e = p.Mem.ReadString(addr, maxLen)
		return e
	})
	return s, err
}

func (p *Process) readBuf(addr, size int) ([]byte, error) {
	var buf []byte
	err := p.withRetry(func() error {
		var e error
		buf, e = p.Mem.ReadBuf(addr, size)
		return e
	})
	return buf, err
}

func (p *Process) writeBuf(addr int, data []byte) error {
	return p.withRetry(func() error {
		return p.Mem.WriteBuf(addr, data)
	})
}

// readFromConsole fills buf one character at a time from the console
// device, stopping early if the console has nothing more buffered.
func (p *Process) readFromConsole(buf []byte) (int, error) {
	for i := range buf {
		b, ok := p.Console.GetChar()
		if !ok {
			return i, nil
		}
		buf[i] = b
	}
	return len(buf), nil
}

// writeToConsole emits every byte of data to the console device.
func (p *Process) writeToConsole(data []byte) (int, error) {
	for _, b := range data {
		p.Console.PutChar(b)
	}
	return len(data), nil
}

func (p *Process) withRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < p.retries(); attempt++ {
		err = op()
		if !errors.Is(err, ErrPageFault) {
			return err
		}
	}
	return err
}
