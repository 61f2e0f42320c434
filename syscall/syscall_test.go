package syscall

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomasCastroRojas/nachos/defs"
	"github.com/TomasCastroRojas/nachos/disk"
	"github.com/TomasCastroRojas/nachos/fs"
)

// fakeMemory is a flat byte-slice UserMemory with no faults, used to
// drive the dispatcher end to end without a real vm.AddressSpace.
type fakeMemory struct {
	bytes []byte
}

func newFakeMemory(size int) *fakeMemory {
	return &fakeMemory{bytes: make([]byte, size)}
}

func (m *fakeMemory) putString(addr int, s string) {
	copy(m.bytes[addr:], s)
	m.bytes[addr+len(s)] = 0
}

func (m *fakeMemory) putPointer(addr, value int) {
	binary.LittleEndian.PutUint32(m.bytes[addr:], uint32(value))
}

func (m *fakeMemory) ReadString(addr int, maxLen int) (string, error) {
	end := addr
	for end < len(m.bytes) && end-addr < maxLen && m.bytes[end] != 0 {
		end++
	}
	return string(m.bytes[addr:end]), nil
}

func (m *fakeMemory) ReadBuf(addr int, size int) ([]byte, error) {
	out := make([]byte, size)
	copy(out, m.bytes[addr:addr+size])
	return out, nil
}

func (m *fakeMemory) WriteBuf(addr int, data []byte) error {
	copy(m.bytes[addr:], data)
	return nil
}

// faultOnceMemory wraps fakeMemory and returns ErrPageFault on the
// first call to each operation kind, succeeding on retry — exercising
// spec §7's bounded-retry policy.
type faultOnceMemory struct {
	*fakeMemory
	faulted map[string]bool
}

func newFaultOnceMemory(size int) *faultOnceMemory {
	return &faultOnceMemory{fakeMemory: newFakeMemory(size), faulted: make(map[string]bool)}
}

func (m *faultOnceMemory) ReadBuf(addr, size int) ([]byte, error) {
	if !m.faulted["read"] {
		m.faulted["read"] = true
		return nil, ErrPageFault
	}
	return m.fakeMemory.ReadBuf(addr, size)
}

type fakeConsole struct {
	unread  []byte
	written []byte
}

func newFakeConsole(buffered string) *fakeConsole {
	return &fakeConsole{unread: []byte(buffered)}
}

func (c *fakeConsole) GetChar() (byte, bool) {
	if len(c.unread) == 0 {
		return 0, false
	}
	b := c.unread[0]
	c.unread = c.unread[1:]
	return b, true
}

func (c *fakeConsole) PutChar(b byte) {
	c.written = append(c.written, b)
}

type fakeProcessTable struct {
	halted bool
}

func (f *fakeProcessTable) Exec(name string, joinable bool, argv []string) (int, bool) { return 1, true }
func (f *fakeProcessTable) Join(spaceID int) (int, bool)                               { return 0, true }
func (f *fakeProcessTable) Exit(p *Process, status int)                                {}
func (f *fakeProcessTable) Halt()                                                      { f.halted = true }

func newTestDispatcher(t *testing.T) (*Dispatcher, *Process, *fakeMemory) {
	t.Helper()
	d := disk.NewMemDisk(defs.DefaultNumSectors)
	sd := disk.NewSynchDisk(d)
	fsys, err := fs.NewFileSystem(sd, defs.DefaultNumSectors, true)
	require.NoError(t, err)

	disp := NewDispatcher(fsys, &fakeProcessTable{})
	mem := newFakeMemory(4096)
	proc := NewProcess(1, mem, newFakeConsole(""), false)
	return disp, proc, mem
}

func TestCreateOpenWriteReadSyscallRoundTrip(t *testing.T) {
	d, p, mem := newTestDispatcher(t)

	mem.putString(0, "greeting")
	require.Equal(t, 0, d.Syscall(p, defs.SysCreate, 0, 0, 0, 0))

	fid := d.Syscall(p, defs.SysOpen, 0, 0, 0, 0)
	require.GreaterOrEqual(t, fid, defs.FirstUserFid)

	mem.putString(100, "hello world")
	n := d.Syscall(p, defs.SysWrite, 100, 11, fid, 0)
	assert.Equal(t, 11, n)
	assert.Equal(t, 1, d.Syscall(p, defs.SysClose, fid, 0, 0, 0))

	fid2 := d.Syscall(p, defs.SysOpen, 0, 0, 0, 0)
	require.GreaterOrEqual(t, fid2, defs.FirstUserFid)
	n = d.Syscall(p, defs.SysRead, 200, 11, fid2, 0)
	assert.Equal(t, 11, n)
	got, _ := mem.ReadString(200, 11)
	assert.Equal(t, "hello world", got)

	assert.Equal(t, 1, d.Syscall(p, defs.SysClose, fid2, 0, 0, 0))
}

func TestOpenMissingFileReturnsNegativeOne(t *testing.T) {
	d, p, mem := newTestDispatcher(t)
	mem.putString(0, "nope")
	assert.Equal(t, -1, d.Syscall(p, defs.SysOpen, 0, 0, 0, 0))
}

func TestWriteToConsoleInputIsBadArgument(t *testing.T) {
	d, p, mem := newTestDispatcher(t)
	mem.putString(100, "x")
	assert.Equal(t, -1, d.Syscall(p, defs.SysWrite, 100, 1, defs.ConsoleInput, 0))
}

func TestReadFromConsoleOutputIsBadArgument(t *testing.T) {
	d, p, _ := newTestDispatcher(t)
	assert.Equal(t, -1, d.Syscall(p, defs.SysRead, 200, 1, defs.ConsoleOutput, 0))
}

func TestConsoleWriteRoundTrip(t *testing.T) {
	d, p, mem := newTestDispatcher(t)
	mem.putString(100, "echo")
	n := d.Syscall(p, defs.SysWrite, 100, 4, defs.ConsoleOutput, 0)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("echo"), p.Console.(*fakeConsole).written)
}

func TestHaltInvokesProcessTable(t *testing.T) {
	pt := &fakeProcessTable{}
	d := NewDispatcher(nil, pt)
	p := NewProcess(1, newFakeMemory(16), newFakeConsole(""), false)
	d.Syscall(p, defs.SysHalt, 0, 0, 0, 0)
	assert.True(t, pt.halted)
}

func TestExecReadsNameAndArgv(t *testing.T) {
	d, p, mem := newTestDispatcher(t)
	mem.putString(0, "prog")
	mem.putString(500, "arg0")
	mem.putPointer(1000, 500)
	mem.putPointer(1004, 0)

	spaceID := d.Syscall(p, defs.SysExec, 0, 1, 1000, 0)
	assert.Equal(t, 1, spaceID)
}

// Testable-retry behavior: a single page fault on a buffer read is
// transparently retried, per spec §7's bounded retry policy.
func TestReadRetriesOncePastAPageFault(t *testing.T) {
	d_ := disk.NewMemDisk(defs.DefaultNumSectors)
	sd := disk.NewSynchDisk(d_)
	fsys, err := fs.NewFileSystem(sd, defs.DefaultNumSectors, true)
	require.NoError(t, err)

	disp := NewDispatcher(fsys, &fakeProcessTable{})
	mem := newFaultOnceMemory(4096)
	mem.putString(0, "faultfile")
	proc := NewProcess(1, mem, newFakeConsole(""), true)

	require.Equal(t, 0, disp.Syscall(proc, defs.SysCreate, 0, 0, 0, 0))
	fid := disp.Syscall(proc, defs.SysOpen, 0, 0, 0, 0)
	require.GreaterOrEqual(t, fid, defs.FirstUserFid)

	mem.putString(100, "data")
	n := disp.Syscall(proc, defs.SysWrite, 100, 4, fid, 0)
	assert.Equal(t, 4, n)
}
