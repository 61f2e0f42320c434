package fs

import (
	"sync"

	"github.com/TomasCastroRojas/nachos/threads"
)

// fileMetaData is the shared state behind every OpenFile bound to the
// same header sector: a reference count and the controller that
// arbitrates concurrent readers against a single writer. Reshaped from
// original_source's OpenFileList linked list into a map keyed by
// sector, grounded on the teacher's cache_t pattern (map + mutex +
// refcount) in _examples/mit-pdos-biscuit/biscuit/src/fs/fs.go, per
// spec §9 Design Notes.
type fileMetaData struct {
	rwc           *threads.ReadWriteController
	openInstances int
	pendingRemove bool
}

// OpenFileList is the process-wide registry of currently-open files,
// keyed by header sector. Grounded on spec §4.6 and original_source's
// OpenFileList (openfile.cc), reshaped per spec §9.
type OpenFileList struct {
	mu      sync.Mutex
	entries map[int]*fileMetaData
}

// NewOpenFileList creates an empty registry.
func NewOpenFileList() *OpenFileList {
	return &OpenFileList{entries: make(map[int]*fileMetaData)}
}

// AddOpenFile registers a new open instance of sector, returning the
// file's shared ReadWriteController, or nil if the file has a pending
// removal and new opens are no longer permitted.
func (l *OpenFileList) AddOpenFile(sector int) *threads.ReadWriteController {
	l.mu.Lock()
	defer l.mu.Unlock()

	md, ok := l.entries[sector]
	if !ok {
		md = &fileMetaData{rwc: threads.NewReadWriteController()}
		l.entries[sector] = md
	}
	if md.pendingRemove {
		return nil
	}
	md.openInstances++
	return md.rwc
}

// CloseOpenFile decrements sector's open-instance count. Returns
// whether the entry's pending-removal flag was set and this was the
// last close — in which case the caller is responsible for deallocating
// the file on disk.
func (l *OpenFileList) CloseOpenFile(sector int) (shouldDelete bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	md, ok := l.entries[sector]
	if !ok {
		return false
	}
	md.openInstances--
	if md.openInstances <= 0 {
		delete(l.entries, sector)
		return md.pendingRemove
	}
	return false
}

// SetUpRemoval marks sector for removal once every open handle closes.
// Returns whether anyone currently has the file open (dictating whether
// the caller must defer physical deletion or may proceed immediately).
func (l *OpenFileList) SetUpRemoval(sector int) (stillOpen bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	md, ok := l.entries[sector]
	if !ok {
		return false
	}
	md.pendingRemove = true
	return md.openInstances > 0
}

// dirListEntry is the per-directory lock shared by every reference to
// a given directory sector.
type dirListEntry struct {
	lock     *threads.Lock
	openRefs int
}

// DirectoryList is the process-wide registry of currently-open
// directories, keyed by header sector, serializing structural updates
// (create/remove of children) per directory. Grounded on spec §4.6 and
// reshaped per spec §9 the same way as OpenFileList.
type DirectoryList struct {
	mu          sync.Mutex
	entries     map[int]*dirListEntry
	registryLock *threads.Lock
}

// NewDirectoryList creates an empty registry.
func NewDirectoryList() *DirectoryList {
	return &DirectoryList{
		entries:      make(map[int]*dirListEntry),
		registryLock: threads.NewLock("directory registry"),
	}
}

// AcquireRegistry acquires the directory-registry lock: the outer lock
// FileSystem holds across a FindPath resolution and the matching
// OpenDirectory call, per the fixed lock order in spec §5 (directory
// registry → per-directory → free map → open-file registry). Distinct
// from the registry's internal mutex, which only protects the map.
func (l *DirectoryList) AcquireRegistry() {
	l.registryLock.Acquire()
}

// ReleaseRegistry releases the directory-registry lock.
func (l *DirectoryList) ReleaseRegistry() {
	l.registryLock.Release()
}

// OpenDirectory returns sector's per-directory lock, creating the entry
// on first use, and bumps its reference count.
func (l *DirectoryList) OpenDirectory(sector int) *threads.Lock {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[sector]
	if !ok {
		e = &dirListEntry{lock: threads.NewLock("directory")}
		l.entries[sector] = e
	}
	e.openRefs++
	return e.lock
}

// CloseDirectory decrements sector's reference count, removing the
// entry once it reaches zero.
func (l *DirectoryList) CloseDirectory(sector int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[sector]
	if !ok {
		return
	}
	e.openRefs--
	if e.openRefs <= 0 {
		delete(l.entries, sector)
	}
}

// CanRemove reports whether sector is currently referenced by anyone.
func (l *DirectoryList) CanRemove(sector int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[sector]
	if !ok {
		return true
	}
	return e.openRefs == 0
}
