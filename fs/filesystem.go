package fs

import (
	"fmt"

	"github.com/TomasCastroRojas/nachos/defs"
	"github.com/TomasCastroRojas/nachos/disk"
	"github.com/TomasCastroRojas/nachos/threads"
)

// noSector is the sentinel returned by findPath when a path component
// cannot be resolved, mirroring original_source's __UINT32_MAX__.
const noSector = int(^uint32(0))

// pathEntry is the resolved (sector, isDir) pair for a path, or the
// noSector sentinel if resolution failed.
type pathEntry struct {
	sector int
	isDir  bool
}

func missingEntry() pathEntry { return pathEntry{sector: noSector} }

// FileSystem is the façade tying together the free-map bitmap, the
// hierarchical directory tree, and the open-file/directory registries.
// Grounded on original_source/code/filesys/file_system.cc, reshaped per
// spec §9 (map-backed registries) and §5 (the fixed lock order:
// directory-registry lock → per-directory lock → free-map lock →
// open-file-registry lock).
type FileSystem struct {
	sd            *disk.SynchDisk
	numSectors    int
	openFiles     *OpenFileList
	dirList       *DirectoryList
	freeMapLock   *threads.Lock
	freeMapFile   *OpenFile
	directoryFile *OpenFile
}

// NewFileSystem opens the file system backed by sd. When format is
// true, the disk is reinitialized with an empty root directory and a
// bitmap that marks as in-use only the two well-known header sectors
// and the data sectors of the free-map and root-directory files; other
// sectors are not zeroed.
func NewFileSystem(sd *disk.SynchDisk, numSectors int, format bool) (*FileSystem, error) {
	fsys := &FileSystem{
		sd:          sd,
		numSectors:  numSectors,
		openFiles:   NewOpenFileList(),
		dirList:     NewDirectoryList(),
		freeMapLock: threads.NewLock("file system free map lock"),
	}

	if format {
		if err := fsys.format(); err != nil {
			return nil, err
		}
	}

	freeMapFile, err := fsys.openRaw(defs.FreeMapSector)
	if err != nil {
		return nil, err
	}
	dirFile, err := fsys.openRaw(defs.RootDirSector)
	if err != nil {
		return nil, err
	}
	fsys.freeMapFile = freeMapFile
	fsys.directoryFile = dirFile
	return fsys, nil
}

func (fsys *FileSystem) format() error {
	freeMap := NewBitmap(fsys.numSectors)
	freeMap.Mark(defs.FreeMapSector)
	freeMap.Mark(defs.RootDirSector)

	mapH := NewFileHeader()
	if errno := mapH.Allocate(freeMap, ByteSize(fsys.numSectors)); errno != defs.OK {
		return errFromErrno(errno)
	}
	dirH := NewFileHeader()
	if errno := dirH.Allocate(freeMap, defs.NumDirEntries*direntSize); errno != defs.OK {
		return errFromErrno(errno)
	}

	if err := mapH.WriteBack(fsys.sd, defs.FreeMapSector); err != nil {
		return err
	}
	if err := dirH.WriteBack(fsys.sd, defs.RootDirSector); err != nil {
		return err
	}

	freeMapFile, err := fsys.openRaw(defs.FreeMapSector)
	if err != nil {
		return err
	}
	dirFile, err := fsys.openRaw(defs.RootDirSector)
	if err != nil {
		return err
	}

	if err := freeMap.WriteBack(freeMapFile); err != nil {
		return err
	}
	dir := NewDirectory(defs.NumDirEntries)
	if err := dir.WriteBack(dirFile); err != nil {
		return err
	}
	return nil
}

// openRaw binds an internal OpenFile directly to sector, bypassing the
// open-file registry: used for the always-open free-map and directory
// files, and for transient directory traversal during path resolution.
func (fsys *FileSystem) openRaw(sector int) (*OpenFile, error) {
	h := NewFileHeader()
	if err := h.FetchFrom(fsys.sd, sector); err != nil {
		return nil, err
	}
	rwc := threads.NewReadWriteController()
	extend := func(extra int) defs.Err {
		return fsys.extendHeaderAt(sector, h, extra)
	}
	return NewOpenFile(sector, h, fsys.sd, rwc, extend, nil), nil
}

// extendHeaderAt grows the header at sector by extra bytes under the
// free-map lock, persisting both the header and the free map.
func (fsys *FileSystem) extendHeaderAt(sector int, h *FileHeader, extra int) defs.Err {
	fsys.freeMapLock.Acquire()
	defer fsys.freeMapLock.Release()

	freeMap := NewBitmap(fsys.numSectors)
	if err := freeMap.FetchFrom(fsys.freeMapFile); err != nil {
		return defs.BadArgument
	}
	if errno := h.Extend(freeMap, extra); errno != defs.OK {
		return errno
	}
	if err := h.WriteBack(fsys.sd, sector); err != nil {
		return defs.BadArgument
	}
	if err := freeMap.WriteBack(fsys.freeMapFile); err != nil {
		return defs.BadArgument
	}
	return defs.OK
}

// findPath walks from the root directory (sector 1), resolving each
// component of path in turn. Must be called with the directory-registry
// lock held.
func (fsys *FileSystem) findPath(path FilePath) pathEntry {
	entry := pathEntry{sector: defs.RootDirSector, isDir: true}
	for _, part := range path.List() {
		dirFile, err := fsys.openRaw(entry.sector)
		if err != nil {
			return missingEntry()
		}
		dir := NewDirectory(0)
		fsys.fetchDirectory(dirFile, dir)
		i := dir.Find(part)
		if i < 0 {
			return missingEntry()
		}
		e := dir.entries[i]
		entry = pathEntry{sector: int(e.Sector), isDir: e.IsDir}
	}
	return entry
}

// findInDir looks up name directly within the directory at dirSector,
// avoiding a second root-to-leaf walk once the parent is already known
// (the "resolve parent once" fix recorded in DESIGN.md's Open Questions
// for the dual path resolution the original's Remove performed).
func (fsys *FileSystem) findInDir(dirSector int, name string) pathEntry {
	dirFile, err := fsys.openRaw(dirSector)
	if err != nil {
		return missingEntry()
	}
	dir := NewDirectory(0)
	if err := fsys.fetchDirectory(dirFile, dir); err != nil {
		return missingEntry()
	}
	i := dir.Find(name)
	if i < 0 {
		return missingEntry()
	}
	e := dir.entries[i]
	return pathEntry{sector: int(e.Sector), isDir: e.IsDir}
}

// fetchDirectory resizes dir to the file's actual entry count and reads
// its table. The directory's capacity is derived from the file's
// length, since every directory file is a whole number of entries.
func (fsys *FileSystem) fetchDirectory(of *OpenFile, dir *Directory) error {
	capacity := of.Length() / direntSize
	dir.entries = make([]DirectoryEntry, capacity)
	return dir.FetchFrom(of)
}

// Create makes a new file or directory named by path, of size bytes.
// Fails if the name already exists in its parent, there is no free
// header sector, the parent directory is full and cannot be extended,
// or there is insufficient free space for the data blocks.
func (fsys *FileSystem) Create(path string, size int, isDir bool) defs.Err {
	if size > defs.IndirMaxFileSize {
		return defs.NoSpace
	}
	fp := RootPath().Merge(path)
	name, parentPath := fp.Split()
	if name == "" || len(name) > defs.FileNameMaxLen {
		return defs.BadArgument
	}

	fsys.dirList.AcquireRegistry()
	parent := fsys.findPath(parentPath)
	if parent.sector == noSector || !parent.isDir {
		fsys.dirList.ReleaseRegistry()
		return defs.NotFound
	}
	dirLock := fsys.dirList.OpenDirectory(parent.sector)
	fsys.dirList.ReleaseRegistry()

	dirLock.Acquire()
	defer func() {
		fsys.dirList.AcquireRegistry()
		dirLock.Release()
		fsys.dirList.CloseDirectory(parent.sector)
		fsys.dirList.ReleaseRegistry()
	}()

	dirFile, err := fsys.openRaw(parent.sector)
	if err != nil {
		return defs.BadArgument
	}
	dir := NewDirectory(0)
	if err := fsys.fetchDirectory(dirFile, dir); err != nil {
		return defs.BadArgument
	}

	if dir.Find(name) >= 0 {
		return defs.AlreadyExists
	}

	fsys.freeMapLock.Acquire()
	freeMap := NewBitmap(fsys.numSectors)
	if err := freeMap.FetchFrom(fsys.freeMapFile); err != nil {
		fsys.freeMapLock.Release()
		return defs.BadArgument
	}

	sector := freeMap.Find()
	if sector < 0 {
		fsys.freeMapLock.Release()
		return defs.NoSpace
	}

	if !dir.Add(name, sector, isDir) {
		dir.ExpandSlot()
		dir.Add(name, sector, isDir)
		dirHeader := dirFile.Header()
		if errno := dirHeader.Extend(freeMap, direntSize); errno != defs.OK {
			freeMap.Clear(sector)
			fsys.freeMapLock.Release()
			return errno
		}
	}

	h := NewFileHeader()
	if errno := h.Allocate(freeMap, size); errno != defs.OK {
		freeMap.Clear(sector)
		fsys.freeMapLock.Release()
		return errno
	}

	if err := dirFile.Header().WriteBack(fsys.sd, parent.sector); err != nil {
		fsys.freeMapLock.Release()
		return defs.BadArgument
	}
	if err := h.WriteBack(fsys.sd, sector); err != nil {
		fsys.freeMapLock.Release()
		return defs.BadArgument
	}
	if err := dir.WriteBack(dirFile); err != nil {
		fsys.freeMapLock.Release()
		return defs.BadArgument
	}
	if err := freeMap.WriteBack(fsys.freeMapFile); err != nil {
		fsys.freeMapLock.Release()
		return defs.BadArgument
	}
	fsys.freeMapLock.Release()

	if isDir {
		newDirFile, err := fsys.openRaw(sector)
		if err != nil {
			return defs.BadArgument
		}
		newDir := NewDirectory(size / direntSize)
		if err := newDir.WriteBack(newDirFile); err != nil {
			return defs.BadArgument
		}
	}
	return defs.OK
}

// Open opens an existing file for reading and writing, returning an
// OpenFile handle bound to a registry-shared ReadWriteController so
// concurrent opens interleave safely. Fails if the entry is missing or
// names a directory.
func (fsys *FileSystem) Open(path string) (*OpenFile, defs.Err) {
	fp := RootPath().Merge(path)
	name, parentPath := fp.Split()
	if name == "" {
		return nil, defs.BadArgument
	}

	fsys.dirList.AcquireRegistry()
	parent := fsys.findPath(parentPath)
	if parent.sector == noSector || !parent.isDir {
		fsys.dirList.ReleaseRegistry()
		return nil, defs.NotFound
	}
	entry := fsys.findInDir(parent.sector, name)
	if entry.sector == noSector || entry.isDir {
		fsys.dirList.ReleaseRegistry()
		return nil, defs.NotFound
	}
	dirLock := fsys.dirList.OpenDirectory(parent.sector)
	fsys.dirList.ReleaseRegistry()

	dirLock.Acquire()
	defer func() {
		fsys.dirList.AcquireRegistry()
		dirLock.Release()
		fsys.dirList.CloseDirectory(parent.sector)
		fsys.dirList.ReleaseRegistry()
	}()

	rwc := fsys.openFiles.AddOpenFile(entry.sector)
	if rwc == nil {
		return nil, defs.InUse
	}

	h := NewFileHeader()
	if err := h.FetchFrom(fsys.sd, entry.sector); err != nil {
		fsys.openFiles.CloseOpenFile(entry.sector)
		return nil, defs.BadArgument
	}

	sector := entry.sector
	extend := func(extra int) defs.Err {
		return fsys.extendHeaderAt(sector, h, extra)
	}
	onClose := func() {
		shouldDelete := fsys.openFiles.CloseOpenFile(sector)
		if shouldDelete {
			fsys.deleteFromDisk(sector)
		}
	}
	return NewOpenFile(sector, h, fsys.sd, rwc, extend, onClose), defs.OK
}

// Remove deletes the file or directory named by path. For a file, marks
// it for removal: if not currently open, deallocation happens
// immediately; otherwise the last Close performs it. For a directory,
// refuses unless the directory is empty and no one else has it open.
func (fsys *FileSystem) Remove(path string) defs.Err {
	fp := RootPath().Merge(path)
	name, parentPath := fp.Split()

	fsys.dirList.AcquireRegistry()
	parent := fsys.findPath(parentPath)
	if parent.sector == noSector || !parent.isDir {
		fsys.dirList.ReleaseRegistry()
		return defs.NotFound
	}
	entry := fsys.findInDir(parent.sector, name)
	if entry.sector == noSector {
		fsys.dirList.ReleaseRegistry()
		return defs.NotFound
	}
	dirLock := fsys.dirList.OpenDirectory(parent.sector)
	fsys.dirList.ReleaseRegistry()

	dirLock.Acquire()
	defer func() {
		fsys.dirList.AcquireRegistry()
		dirLock.Release()
		fsys.dirList.CloseDirectory(parent.sector)
		fsys.dirList.ReleaseRegistry()
	}()

	if entry.isDir {
		fsys.dirList.AcquireRegistry()
		toDeleteLock := fsys.dirList.OpenDirectory(entry.sector)
		fsys.dirList.ReleaseRegistry()

		toDeleteLock.Acquire()
		toRemoveFile, err := fsys.openRaw(entry.sector)
		if err != nil {
			toDeleteLock.Release()
			return defs.BadArgument
		}
		dirToRemove := NewDirectory(0)
		fsys.fetchDirectory(toRemoveFile, dirToRemove)
		empty := dirToRemove.IsEmpty()
		toDeleteLock.Release()

		fsys.dirList.AcquireRegistry()
		fsys.dirList.CloseDirectory(entry.sector)
		canRemove := fsys.dirList.CanRemove(entry.sector)
		fsys.dirList.ReleaseRegistry()

		if !empty || !canRemove {
			return defs.InUse
		}
		fsys.removeFromParent(parent.sector, fp)
		fsys.deleteFromDisk(entry.sector)
		return defs.OK
	}

	stillOpen := fsys.openFiles.SetUpRemoval(entry.sector)
	fsys.removeFromParent(parent.sector, fp)
	if !stillOpen {
		fsys.deleteFromDisk(entry.sector)
	}
	return defs.OK
}

func (fsys *FileSystem) removeFromParent(parentSector int, fp FilePath) {
	name, _ := fp.Split()
	dirFile, err := fsys.openRaw(parentSector)
	if err != nil {
		return
	}
	dir := NewDirectory(0)
	fsys.fetchDirectory(dirFile, dir)
	if dir.Remove(name) {
		dir.WriteBack(dirFile)
	}
}

// deleteFromDisk deallocates sector's header and every data sector it
// reaches, then reclaims the header sector itself.
func (fsys *FileSystem) deleteFromDisk(sector int) error {
	h := NewFileHeader()

	fsys.freeMapLock.Acquire()
	defer fsys.freeMapLock.Release()

	if err := h.FetchFrom(fsys.sd, sector); err != nil {
		return err
	}
	freeMap := NewBitmap(fsys.numSectors)
	if err := freeMap.FetchFrom(fsys.freeMapFile); err != nil {
		return err
	}
	h.Deallocate(freeMap)
	freeMap.Clear(sector)
	return freeMap.WriteBack(fsys.freeMapFile)
}

// List returns every in-use entry in the directory named by path.
func (fsys *FileSystem) List(path string) ([]DirectoryEntry, defs.Err) {
	fp := RootPath().Merge(path)

	fsys.dirList.AcquireRegistry()
	entry := fsys.findPath(fp)
	if entry.sector == noSector || !entry.isDir {
		fsys.dirList.ReleaseRegistry()
		return nil, defs.NotFound
	}
	dirLock := fsys.dirList.OpenDirectory(entry.sector)
	fsys.dirList.ReleaseRegistry()

	dirLock.Acquire()
	defer func() {
		fsys.dirList.AcquireRegistry()
		dirLock.Release()
		fsys.dirList.CloseDirectory(entry.sector)
		fsys.dirList.ReleaseRegistry()
	}()

	dirFile, err := fsys.openRaw(entry.sector)
	if err != nil {
		return nil, defs.BadArgument
	}
	dir := NewDirectory(0)
	if err := fsys.fetchDirectory(dirFile, dir); err != nil {
		return nil, defs.BadArgument
	}
	return dir.List(), defs.OK
}

// AcquireFreeMap checks out the free map under the free-map lock,
// fetching its current contents from disk. Pairs with ReleaseFreeMap.
// Grounded on original_source's FileSystem::AcquireFreeMap/ReleaseFreeMap.
func (fsys *FileSystem) AcquireFreeMap() (*Bitmap, error) {
	fsys.freeMapLock.Acquire()
	freeMap := NewBitmap(fsys.numSectors)
	if err := freeMap.FetchFrom(fsys.freeMapFile); err != nil {
		fsys.freeMapLock.Release()
		return nil, err
	}
	return freeMap, nil
}

// ReleaseFreeMap flushes freeMap back to disk and releases the
// free-map lock acquired by AcquireFreeMap.
func (fsys *FileSystem) ReleaseFreeMap(freeMap *Bitmap) error {
	defer fsys.freeMapLock.Release()
	return freeMap.WriteBack(fsys.freeMapFile)
}

// Check performs a full consistency check: it rebuilds a shadow bitmap
// by walking every reachable file header from the root directory down,
// then compares it against the on-disk free map. Returns true if no
// inconsistency was found. Grounded on
// original_source/code/filesys/file_system.cc's Check/CheckBitmaps/
// CheckDirectory/CheckFileHeader, which this repo's spec §8 Testable
// Property 1 exercises directly.
func (fsys *FileSystem) Check() bool {
	shadow := NewBitmap(fsys.numSectors)
	shadow.Mark(defs.FreeMapSector)
	shadow.Mark(defs.RootDirSector)

	ok := fsys.checkFileHeader(defs.FreeMapSector, shadow)
	ok = fsys.checkFileHeader(defs.RootDirSector, shadow) && ok
	ok = fsys.checkDirectoryTree(defs.RootDirSector, shadow) && ok

	freeMap := NewBitmap(fsys.numSectors)
	if err := freeMap.FetchFrom(fsys.freeMapFile); err != nil {
		return false
	}
	for i := 0; i < fsys.numSectors; i++ {
		if freeMap.Test(i) != shadow.Test(i) {
			ok = false
		}
	}
	return ok
}

func (fsys *FileSystem) checkSector(sector int, shadow *Bitmap) bool {
	if sector < 0 || sector >= fsys.numSectors {
		return false
	}
	if shadow.Test(sector) {
		return false
	}
	shadow.Mark(sector)
	return true
}

func (fsys *FileSystem) checkFileHeader(sector int, shadow *Bitmap) bool {
	h := NewFileHeader()
	if err := h.FetchFrom(fsys.sd, sector); err != nil {
		return false
	}
	return fsys.checkHeaderSectors(h, shadow)
}

func (fsys *FileSystem) checkHeaderSectors(h *FileHeader, shadow *Bitmap) bool {
	ok := true
	if h.indirect {
		for _, childSector := range h.raw.DataSectors[:len(h.children)] {
			if !fsys.checkSector(int(childSector), shadow) {
				ok = false
			}
		}
		for _, child := range h.children {
			if !fsys.checkHeaderSectors(child, shadow) {
				ok = false
			}
		}
		return ok
	}
	for i := 0; i < int(h.raw.NumSectors); i++ {
		if !fsys.checkSector(int(h.raw.DataSectors[i]), shadow) {
			ok = false
		}
	}
	return ok
}

func (fsys *FileSystem) checkDirectoryTree(sector int, shadow *Bitmap) bool {
	dirFile, err := fsys.openRaw(sector)
	if err != nil {
		return false
	}
	dir := NewDirectory(0)
	if err := fsys.fetchDirectory(dirFile, dir); err != nil {
		return false
	}

	ok := true
	seen := map[string]bool{}
	for _, e := range dir.entries {
		if !e.InUse {
			continue
		}
		if seen[e.Name] {
			ok = false
		}
		seen[e.Name] = true

		if !fsys.checkSector(int(e.Sector), shadow) {
			ok = false
		}
		if !fsys.checkFileHeader(int(e.Sector), shadow) {
			ok = false
		}
		if e.IsDir {
			if !fsys.checkDirectoryTree(int(e.Sector), shadow) {
				ok = false
			}
		}
	}
	return ok
}

// Print writes a human-readable dump of the bitmap and the directory
// tree to stdout.
func (fsys *FileSystem) Print() {
	freeMap := NewBitmap(fsys.numSectors)
	freeMap.FetchFrom(fsys.freeMapFile)
	fmt.Println("--------------------------------")
	fmt.Printf("Bitmap: %d/%d sectors free\n", freeMap.CountClear(), freeMap.NumBits())
	fmt.Println("--------------------------------")
	fsys.printDirectoryTree(defs.RootDirSector, "/")
	fmt.Println("--------------------------------")
}

func (fsys *FileSystem) printDirectoryTree(sector int, prefix string) {
	dirFile, err := fsys.openRaw(sector)
	if err != nil {
		return
	}
	dir := NewDirectory(0)
	if err := fsys.fetchDirectory(dirFile, dir); err != nil {
		return
	}
	for _, e := range dir.List() {
		kind := "file"
		if e.IsDir {
			kind = "dir"
		}
		fmt.Printf("%s%s\t[%s, sector %d]\n", prefix, e.Name, kind, e.Sector)
		if e.IsDir {
			fsys.printDirectoryTree(int(e.Sector), prefix+e.Name+"/")
		}
	}
}
