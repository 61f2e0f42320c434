package vm

// Executable is the demand-loading source for a process's code and
// initialized-data segments: the in-scope slice of what
// original_source/code/userprog/executable.cc (a Noff-format reader)
// exposes to AddressSpace. Parsing the on-disk executable container
// format is out of scope per spec §1 (the MIPS instruction simulator
// and its surrounding toolchain); callers hand AddressSpace a ready
// Executable instead.
type Executable interface {
	CodeSize() int
	CodeAddr() int
	InitDataSize() int
	InitDataAddr() int
	// ReadCodeBlock copies n bytes of the code segment starting at
	// offset into dst.
	ReadCodeBlock(dst []byte, n int, offset int)
	// ReadDataBlock copies n bytes of the initialized-data segment
	// starting at offset into dst.
	ReadDataBlock(dst []byte, n int, offset int)
}

// MemExecutable is an in-memory Executable backed directly by code and
// data byte slices, used by tests and by cmd/nachos in place of a real
// on-disk Noff loader.
type MemExecutable struct {
	codeAddr int
	code     []byte
	dataAddr int
	data     []byte
}

// NewMemExecutable builds an Executable whose code segment starts at
// codeAddr and whose initialized-data segment starts at dataAddr.
func NewMemExecutable(codeAddr int, code []byte, dataAddr int, data []byte) *MemExecutable {
	return &MemExecutable{codeAddr: codeAddr, code: code, dataAddr: dataAddr, data: data}
}

func (e *MemExecutable) CodeSize() int     { return len(e.code) }
func (e *MemExecutable) CodeAddr() int     { return e.codeAddr }
func (e *MemExecutable) InitDataSize() int { return len(e.data) }
func (e *MemExecutable) InitDataAddr() int { return e.dataAddr }

func (e *MemExecutable) ReadCodeBlock(dst []byte, n int, offset int) {
	copy(dst[:n], e.code[offset:offset+n])
}

func (e *MemExecutable) ReadDataBlock(dst []byte, n int, offset int) {
	copy(dst[:n], e.data[offset:offset+n])
}
