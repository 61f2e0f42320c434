package fs

import (
	"sync"

	"github.com/TomasCastroRojas/nachos/defs"
	"github.com/TomasCastroRojas/nachos/disk"
	"github.com/TomasCastroRojas/nachos/threads"
)

// extendFunc grows the backing file by extra bytes, persisting both the
// header and the free map. Supplied by FileSystem at Open/Create time so
// OpenFile never has to reach for the free-map lock itself. Grounded on
// original_source/code/filesys/openfile.cc's WriteAt, which in the
// distilled original silently drops writes past end-of-file; this repo
// extends writes past EOF via FileSystem's Extend plumbing instead
// (spec §4.3 Extend, exercised by Testable Property / scenario E3).
type extendFunc func(extra int) defs.Err

// OpenFile is a per-open handle onto a file's header sector, shared
// concurrently by every reader and serialized against writers through a
// threads.ReadWriteController obtained from the OpenFileList registry.
// Grounded on original_source/code/filesys/openfile.cc.
type OpenFile struct {
	mu       sync.Mutex
	sector   int
	header   *FileHeader
	sd       *disk.SynchDisk
	rwc      *threads.ReadWriteController
	seekPos  int
	extend   extendFunc
	onClose  func()
}

// NewOpenFile binds an OpenFile to sector, using header as its current
// in-memory file header. extend is invoked to grow the file past its
// current allocation; onClose (optional) runs when Close is called.
func NewOpenFile(sector int, header *FileHeader, sd *disk.SynchDisk, rwc *threads.ReadWriteController, extend extendFunc, onClose func()) *OpenFile {
	return &OpenFile{sector: sector, header: header, sd: sd, rwc: rwc, extend: extend, onClose: onClose}
}

// Sector returns the file header's sector number.
func (of *OpenFile) Sector() int {
	return of.sector
}

// Length returns the file's current length in bytes.
func (of *OpenFile) Length() int {
	of.mu.Lock()
	defer of.mu.Unlock()
	return of.header.FileLength()
}

// Seek repositions the handle's implicit sequential offset.
func (of *OpenFile) Seek(pos int) {
	of.mu.Lock()
	defer of.mu.Unlock()
	of.seekPos = pos
}

// Read reads into buf from the handle's current sequential offset,
// advancing it by the number of bytes read.
func (of *OpenFile) Read(buf []byte) (int, error) {
	of.mu.Lock()
	pos := of.seekPos
	of.mu.Unlock()

	n, err := of.ReadAt(buf, pos)
	of.mu.Lock()
	of.seekPos += n
	of.mu.Unlock()
	return n, err
}

// Write writes buf at the handle's current sequential offset, advancing
// it by the number of bytes written.
func (of *OpenFile) Write(buf []byte) (int, error) {
	of.mu.Lock()
	pos := of.seekPos
	of.mu.Unlock()

	n, err := of.WriteAt(buf, pos)
	of.mu.Lock()
	of.seekPos += n
	of.mu.Unlock()
	return n, err
}

// ReadAt reads into buf starting at byte offset, clamped to the file's
// current length, guarded by the read side of the controller so
// concurrent readers proceed while any writer is excluded.
func (of *OpenFile) ReadAt(buf []byte, offset int) (int, error) {
	of.rwc.AcquireRead()
	defer of.rwc.ReleaseRead()

	of.mu.Lock()
	length := of.header.FileLength()
	header := of.header
	of.mu.Unlock()

	if offset >= length {
		return 0, nil
	}
	want := len(buf)
	if offset+want > length {
		want = length - offset
	}

	read := 0
	for read < want {
		sector, errno := header.ByteToSector(offset + read)
		if errno != defs.OK {
			return read, errFromErrno(errno)
		}
		sectorOff := (offset + read) % defs.SectorSize
		chunk := defs.SectorSize - sectorOff
		if chunk > want-read {
			chunk = want - read
		}

		sectorBuf := make([]byte, defs.SectorSize)
		if err := of.sd.ReadSector(sector, sectorBuf); err != nil {
			return read, err
		}
		copy(buf[read:read+chunk], sectorBuf[sectorOff:sectorOff+chunk])
		read += chunk
	}
	return read, nil
}

// WriteAt writes buf at byte offset, extending the file (via extend)
// when the write runs past the current length, guarded by the write
// side of the controller for exclusive access.
func (of *OpenFile) WriteAt(buf []byte, offset int) (int, error) {
	of.rwc.AcquireWrite()
	defer of.rwc.ReleaseWrite()

	of.mu.Lock()
	length := of.header.FileLength()
	of.mu.Unlock()

	need := offset + len(buf)
	if need > length {
		extra := need - length
		if of.extend == nil {
			return 0, errFromErrno(defs.NoSpace)
		}
		if errno := of.extend(extra); errno != defs.OK {
			return 0, errFromErrno(errno)
		}
	}

	of.mu.Lock()
	header := of.header
	of.mu.Unlock()

	written := 0
	for written < len(buf) {
		sector, errno := header.ByteToSector(offset + written)
		if errno != defs.OK {
			return written, errFromErrno(errno)
		}
		sectorOff := (offset + written) % defs.SectorSize
		chunk := defs.SectorSize - sectorOff
		if chunk > len(buf)-written {
			chunk = len(buf) - written
		}

		sectorBuf := make([]byte, defs.SectorSize)
		if sectorOff != 0 || chunk != defs.SectorSize {
			if err := of.sd.ReadSector(sector, sectorBuf); err != nil {
				return written, err
			}
		}
		copy(sectorBuf[sectorOff:sectorOff+chunk], buf[written:written+chunk])
		if err := of.sd.WriteSector(sector, sectorBuf); err != nil {
			return written, err
		}
		written += chunk
	}
	return written, nil
}

// SetHeader replaces the in-memory header. FileSystem's extendFunc
// does not call it: it grows the shared header object in place.
func (of *OpenFile) SetHeader(h *FileHeader) {
	of.mu.Lock()
	defer of.mu.Unlock()
	of.header = h
}

// Header returns the file's current in-memory header.
func (of *OpenFile) Header() *FileHeader {
	of.mu.Lock()
	defer of.mu.Unlock()
	return of.header
}

// Close releases the handle, invoking the registry-supplied close hook.
func (of *OpenFile) Close() {
	if of.onClose != nil {
		of.onClose()
	}
}

type fsError struct {
	errno defs.Err
}

func (e *fsError) Error() string {
	return e.errno.String()
}

func errFromErrno(errno defs.Err) error {
	if errno == defs.OK {
		return nil
	}
	return &fsError{errno: errno}
}

// ErrnoOf extracts the defs.Err carried by an error returned from this
// package: defs.OK if err is nil, defs.BadArgument if it is not one of
// ours.
func ErrnoOf(err error) defs.Err {
	if err == nil {
		return defs.OK
	}
	if fe, ok := err.(*fsError); ok {
		return fe.errno
	}
	return defs.BadArgument
}
