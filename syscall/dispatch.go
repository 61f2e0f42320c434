package syscall

import (
	"github.com/TomasCastroRojas/nachos/defs"
	"github.com/TomasCastroRojas/nachos/fs"
)

// ProcessTable models the process-lifecycle side of the syscall
// surface (Exec/Join/Exit) that this repo's Non-goals keep out of the
// fs/vm packages proper: spawning a new address space and thread,
// waiting for one to finish, and tearing one down. A real
// implementation wires this to threads.Fork and vm.AddressSpace
// construction; Dispatcher only needs the contract.
type ProcessTable interface {
	Exec(name string, joinable bool, argv []string) (spaceID int, ok bool)
	Join(spaceID int) (status int, ok bool)
	Exit(p *Process, status int)
	Halt()
}

// Dispatcher is the id-indexed syscall handler, grounded on the shape
// of mit-pdos-biscuit's kernel/syscall.go Syscall method (switch over
// a syscall id, one small handler method per case) without any of its
// x86/ELF-specific argument plumbing, which does not apply to a
// simulated MIPS machine.
type Dispatcher struct {
	fsys  *fs.FileSystem
	procs ProcessTable
}

// NewDispatcher builds a Dispatcher over fsys and procs.
func NewDispatcher(fsys *fs.FileSystem, procs ProcessTable) *Dispatcher {
	return &Dispatcher{fsys: fsys, procs: procs}
}

// Syscall dispatches one syscall for p, mirroring the wire shape in
// spec §6 (id, up to four word args, one word result). Halt and Exit
// do not return to the caller under their own contract; Dispatcher
// still returns a value so every Go code path has one, but callers
// must not rely on it for those two ids.
func (d *Dispatcher) Syscall(p *Process, id defs.SyscallID, a1, a2, a3, a4 int) int {
	switch id {
	case defs.SysHalt:
		d.procs.Halt()
		return 0
	case defs.SysCreate:
		return d.sysCreate(p, a1)
	case defs.SysRemove:
		return d.sysRemove(p, a1)
	case defs.SysExit:
		d.procs.Exit(p, a1)
		return 0
	case defs.SysOpen:
		return d.sysOpen(p, a1)
	case defs.SysClose:
		return d.sysClose(p, a1)
	case defs.SysRead:
		return d.sysRead(p, a1, a2, a3)
	case defs.SysWrite:
		return d.sysWrite(p, a1, a2, a3)
	case defs.SysJoin:
		return d.sysJoin(p, a1)
	case defs.SysExec:
		return d.sysExec(p, a1, a2, a3)
	default:
		return -1
	}
}

func (d *Dispatcher) sysCreate(p *Process, nameAddr int) int {
	name, err := p.readString(nameAddr, defs.FileNameMaxLen+1)
	if err != nil {
		return -1
	}
	if errno := d.fsys.Create(name, 0, false); errno != defs.OK {
		return -1
	}
	return 0
}

func (d *Dispatcher) sysRemove(p *Process, nameAddr int) int {
	name, err := p.readString(nameAddr, defs.FileNameMaxLen+1)
	if err != nil {
		return -1
	}
	if errno := d.fsys.Remove(name); errno != defs.OK {
		return -1
	}
	return 0
}

func (d *Dispatcher) sysOpen(p *Process, nameAddr int) int {
	name, err := p.readString(nameAddr, defs.FileNameMaxLen+1)
	if err != nil {
		return -1
	}
	of, errno := d.fsys.Open(name)
	if errno != defs.OK {
		return -1
	}
	return p.allocFid(of)
}

func (d *Dispatcher) sysClose(p *Process, fid int) int {
	of, ok := p.closeFid(fid)
	if !ok {
		return -1
	}
	of.Close()
	return 1
}

// sysRead fills size bytes for fid (console input or an open file)
// and copies them into the caller's buffer at bufAddr. Reading from
// CONSOLE_OUTPUT is a BadArgument per spec §7.
func (d *Dispatcher) sysRead(p *Process, bufAddr, size, fid int) int {
	if size < 0 || fid == defs.ConsoleOutput {
		return -1
	}
	buf := make([]byte, size)
	var n int
	var err error
	if fid == defs.ConsoleInput {
		n, err = p.readFromConsole(buf)
	} else {
		of, ok := p.fileFor(fid)
		if !ok {
			return -1
		}
		n, err = of.Read(buf)
	}
	if err != nil {
		return -1
	}
	if err := p.writeBuf(bufAddr, buf[:n]); err != nil {
		return -1
	}
	return n
}

// sysWrite copies size bytes from the caller's buffer and delivers
// them to fid (console output or an open file). Writing to
// CONSOLE_INPUT is a BadArgument per spec §7.
func (d *Dispatcher) sysWrite(p *Process, bufAddr, size, fid int) int {
	if size < 0 || fid == defs.ConsoleInput {
		return -1
	}
	data, err := p.readBuf(bufAddr, size)
	if err != nil {
		return -1
	}
	var n int
	if fid == defs.ConsoleOutput {
		n, err = p.writeToConsole(data)
	} else {
		of, ok := p.fileFor(fid)
		if !ok {
			return -1
		}
		n, err = of.Write(data)
	}
	if err != nil {
		return -1
	}
	return n
}

func (d *Dispatcher) sysJoin(p *Process, spaceID int) int {
	status, ok := d.procs.Join(spaceID)
	if !ok {
		return -1
	}
	return status
}

// sysExec reads the executable name and a NUL-terminated, pointer-per-
// word argv out of user memory and hands them to ProcessTable.Exec.
// argvAddr may be 0 (no arguments), matching the original's allowance
// for a null argv.
func (d *Dispatcher) sysExec(p *Process, nameAddr, joinable, argvAddr int) int {
	name, err := p.readString(nameAddr, defs.FileNameMaxLen+1)
	if err != nil {
		return -1
	}
	argv, err := d.readArgv(p, argvAddr)
	if err != nil {
		return -1
	}
	spaceID, ok := d.procs.Exec(name, joinable != 0, argv)
	if !ok {
		return -1
	}
	return spaceID
}

// readArgv reads a sequence of user-memory string pointers, one per
// defs.PointerSize-sized word starting at argvAddr, until a 0 pointer
// terminates the array.
func (d *Dispatcher) readArgv(p *Process, argvAddr int) ([]string, error) {
	if argvAddr == 0 {
		return nil, nil
	}
	var argv []string
	for i := 0; ; i++ {
		word, err := p.readBuf(argvAddr+i*defs.PointerSize, defs.PointerSize)
		if err != nil {
			return nil, err
		}
		ptr := decodePointer(word)
		if ptr == 0 {
			break
		}
		s, err := p.readString(ptr, defs.MaxArgLen)
		if err != nil {
			return nil, err
		}
		argv = append(argv, s)
	}
	return argv, nil
}

func decodePointer(word []byte) int {
	v := 0
	for i := len(word) - 1; i >= 0; i-- {
		v = v<<8 | int(word[i])
	}
	return v
}
