package fs

import (
	"encoding/binary"

	"github.com/TomasCastroRojas/nachos/defs"
)

// DirectoryEntry names one file or sub-directory, per
// original_source/code/filesys/directory.hh's DirectoryEntry (inUse,
// sector, name).
type DirectoryEntry struct {
	InUse  bool
	IsDir  bool
	Sector uint32
	Name   string
}

const direntSize = 1 + 1 + 4 + defs.FileNameMaxLen

func (e *DirectoryEntry) encode() []byte {
	buf := make([]byte, direntSize)
	if e.InUse {
		buf[0] = 1
	}
	if e.IsDir {
		buf[1] = 1
	}
	binary.LittleEndian.PutUint32(buf[2:6], e.Sector)
	copy(buf[6:], []byte(e.Name))
	return buf
}

func (e *DirectoryEntry) decode(buf []byte) {
	e.InUse = buf[0] != 0
	e.IsDir = buf[1] != 0
	e.Sector = binary.LittleEndian.Uint32(buf[2:6])
	end := 6
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	e.Name = string(buf[6:end])
}

// Directory is a fixed-capacity table of DirectoryEntry, bulk
// read/written through an OpenFile. Grounded on
// original_source/code/filesys/directory.cc.
type Directory struct {
	entries []DirectoryEntry
}

// NewDirectory creates an empty directory with capacity numEntries.
func NewDirectory(numEntries int) *Directory {
	return &Directory{entries: make([]DirectoryEntry, numEntries)}
}

// Capacity returns the directory's fixed entry count.
func (d *Directory) Capacity() int {
	return len(d.entries)
}

// FetchFrom bulk-reads the directory's entry table from an open file.
func (d *Directory) FetchFrom(of *OpenFile) error {
	buf := make([]byte, len(d.entries)*direntSize)
	n, err := of.ReadAt(buf, 0)
	if err != nil {
		return err
	}
	for i := range d.entries {
		off := i * direntSize
		if off+direntSize > n {
			d.entries[i] = DirectoryEntry{}
			continue
		}
		d.entries[i].decode(buf[off : off+direntSize])
	}
	return nil
}

// WriteBack bulk-writes the directory's entry table to an open file.
func (d *Directory) WriteBack(of *OpenFile) error {
	buf := make([]byte, len(d.entries)*direntSize)
	for i := range d.entries {
		copy(buf[i*direntSize:(i+1)*direntSize], d.entries[i].encode())
	}
	_, err := of.WriteAt(buf, 0)
	return err
}

// Find returns the index of the entry named name, or -1.
func (d *Directory) Find(name string) int {
	for i, e := range d.entries {
		if e.InUse && e.Name == name {
			return i
		}
	}
	return -1
}

// FindSector returns the sector of the entry named name, or -1.
func (d *Directory) FindSector(name string) int {
	i := d.Find(name)
	if i < 0 {
		return -1
	}
	return int(d.entries[i].Sector)
}

// Add places a new entry in the first slot with InUse == false. Returns
// ok == false if name is already present, or when every slot is
// occupied: in the latter case the caller should grow the
// backing file by one entry's worth (ExpandSlot) and retry, per spec
// §4.4's "should extend" signal.
func (d *Directory) Add(name string, sector int, isDir bool) (ok bool) {
	if d.Find(name) >= 0 {
		return false
	}
	for i := range d.entries {
		if !d.entries[i].InUse {
			d.entries[i] = DirectoryEntry{InUse: true, IsDir: isDir, Sector: uint32(sector), Name: name}
			return true
		}
	}
	return false
}

// ExpandSlot appends one empty slot to the directory's capacity, for
// use after Add reports it could not find room.
func (d *Directory) ExpandSlot() {
	d.entries = append(d.entries, DirectoryEntry{})
}

// Remove marks the entry named name as free. Reports whether an entry
// was found.
func (d *Directory) Remove(name string) bool {
	i := d.Find(name)
	if i < 0 {
		return false
	}
	d.entries[i] = DirectoryEntry{}
	return true
}

// List returns every in-use entry, for diagnostics.
func (d *Directory) List() []DirectoryEntry {
	var out []DirectoryEntry
	for _, e := range d.entries {
		if e.InUse {
			out = append(out, e)
		}
	}
	return out
}

// IsEmpty reports whether the directory has no in-use entries.
func (d *Directory) IsEmpty() bool {
	for _, e := range d.entries {
		if e.InUse {
			return false
		}
	}
	return true
}
