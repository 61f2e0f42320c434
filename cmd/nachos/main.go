// Command nachos boots the kernel simulator: it wires a disk, the file
// system, and the virtual-memory manager together and optionally runs
// a small self-check. Mirrors the shape (not the interrupt/CPU-attach
// content) of mit-pdos-biscuit's kernel/main.go: parse boot
// configuration, bring up the file system, run one demonstration
// workload.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/TomasCastroRojas/nachos/defs"
	"github.com/TomasCastroRojas/nachos/disk"
	"github.com/TomasCastroRojas/nachos/fs"
	"github.com/TomasCastroRojas/nachos/syscall"
	"github.com/TomasCastroRojas/nachos/vm"
)

func main() {
	numSectors := flag.Int("sectors", defs.DefaultNumSectors, "disk geometry, in sectors")
	format := flag.Bool("format", true, "format the disk on startup")
	demo := flag.Bool("demo", false, "run the Create/Write/Read/Remove self-check workload")
	flag.Parse()

	fmt.Printf("              nachos\n")
	fmt.Printf("  %d sectors, %d bytes/sector\n", *numSectors, defs.SectorSize)

	d := disk.NewMemDisk(*numSectors)
	sd := disk.NewSynchDisk(d)
	fsys, err := fs.NewFileSystem(sd, *numSectors, *format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nachos: file system init failed: %v\n", err)
		os.Exit(1)
	}

	frames := vm.NewCoreMap(defs.NumPhysPages, vm.LRU)
	fmt.Printf("  %d physical frames, %d free\n", frames.NumFrames(), frames.CountClear())
	runAddressSpaceSmokeTest(frames)
	fmt.Printf("  %d frame evictions\n", frames.Evictions())

	if *demo {
		runDemo(fsys)
	}

	if !fsys.Check() {
		fmt.Fprintf(os.Stderr, "nachos: file system consistency check failed\n")
		os.Exit(1)
	}
	fmt.Printf("file system consistency check passed\n")
}

// runAddressSpaceSmokeTest demand-loads a tiny synthetic executable
// into a handful of frames of the real core map, exercising the vm
// package the way a just-booted kernel would before any real process
// exists to fault pages in.
func runAddressSpaceSmokeTest(frames *vm.CoreMap) {
	code := make([]byte, defs.PageSize)
	exe := vm.NewMemExecutable(0, code, len(code), make([]byte, defs.PageSize/2))
	mem := vm.NewPhysicalMemory(frames.NumFrames())
	tlb := vm.NewTlb()

	as := vm.NewDemandAddressSpace(exe, mem, frames, tlb)
	for vpn := 0; vpn < as.NumPages(); vpn++ {
		as.GetTranslationEntry(vpn)
	}
	as.SaveState()
	as.Close()
}

// runDemo exercises the syscall dispatcher end to end against the
// console and the newly formatted file system, standing in for the
// original's exec("bin/init") boot step (a real userland loader is out
// of scope per spec §1).
func runDemo(fsys *fs.FileSystem) {
	disp := syscall.NewDispatcher(fsys, &noProcessTable{})
	mem := newStdMemory()
	proc := syscall.NewProcess(1, mem, newStdConsole(), false)

	mem.putString(0, "greeting")
	disp.Syscall(proc, defs.SysCreate, 0, 0, 0, 0)
	fid := disp.Syscall(proc, defs.SysOpen, 0, 0, 0, 0)

	mem.putString(100, "hello, nachos\n")
	disp.Syscall(proc, defs.SysWrite, 100, 14, fid, 0)
	disp.Syscall(proc, defs.SysClose, fid, 0, 0, 0)

	fid = disp.Syscall(proc, defs.SysOpen, 0, 0, 0, 0)
	n := disp.Syscall(proc, defs.SysRead, 200, 14, fid, 0)
	disp.Syscall(proc, defs.SysWrite, 200, n, defs.ConsoleOutput, 0)
	disp.Syscall(proc, defs.SysClose, fid, 0, 0, 0)
	disp.Syscall(proc, defs.SysRemove, 0, 0, 0, 0)
}

// stdMemory is a flat-buffer UserMemory standing in for a real
// vm.AddressSpace-backed one, sufficient for the self-check demo
// workload which never faults.
type stdMemory struct {
	bytes []byte
}

func newStdMemory() *stdMemory {
	return &stdMemory{bytes: make([]byte, 4096)}
}

func (m *stdMemory) putString(addr int, s string) {
	copy(m.bytes[addr:], s)
	m.bytes[addr+len(s)] = 0
}

func (m *stdMemory) ReadString(addr int, maxLen int) (string, error) {
	end := addr
	for end < len(m.bytes) && end-addr < maxLen && m.bytes[end] != 0 {
		end++
	}
	return string(m.bytes[addr:end]), nil
}

func (m *stdMemory) ReadBuf(addr int, size int) ([]byte, error) {
	out := make([]byte, size)
	copy(out, m.bytes[addr:addr+size])
	return out, nil
}

func (m *stdMemory) WriteBuf(addr int, data []byte) error {
	copy(m.bytes[addr:], data)
	return nil
}

// stdConsole backs fids 0/1 with the process's real stdin/stdout,
// implementing common.Console one character at a time.
type stdConsole struct {
	in *bufio.Reader
}

func newStdConsole() *stdConsole {
	return &stdConsole{in: bufio.NewReader(os.Stdin)}
}

func (c *stdConsole) GetChar() (byte, bool) {
	b, err := c.in.ReadByte()
	if err != nil {
		return 0, false
	}
	return b, true
}

func (c *stdConsole) PutChar(b byte) {
	os.Stdout.Write([]byte{b})
}

// noProcessTable rejects Exec/Join, since process and thread lifecycle
// wiring beyond the one-shot demo workload is out of scope per spec §1.
type noProcessTable struct{}

func (noProcessTable) Exec(name string, joinable bool, argv []string) (int, bool) { return 0, false }
func (noProcessTable) Join(spaceID int) (int, bool)                               { return 0, false }
func (noProcessTable) Exit(p *syscall.Process, status int)                        {}
func (noProcessTable) Halt()                                                      { os.Exit(0) }
