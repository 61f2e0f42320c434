package fs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomasCastroRojas/nachos/defs"
	"github.com/TomasCastroRojas/nachos/disk"
	"github.com/TomasCastroRojas/nachos/threads"
)

func newTestFS(t *testing.T, numSectors int) *FileSystem {
	t.Helper()
	d := disk.NewMemDisk(numSectors)
	sd := disk.NewSynchDisk(d)
	fsys, err := NewFileSystem(sd, numSectors, true)
	require.NoError(t, err)
	return fsys
}

// E1: format a fresh 256-sector disk, list the root directory.
func TestFormatAndListEmpty(t *testing.T) {
	fsys := newTestFS(t, defs.DefaultNumSectors)
	entries, errno := fsys.List("/")
	require.Equal(t, defs.OK, errno)
	assert.Empty(t, entries)
}

// E2: create, open, write, close, reopen, read back.
func TestCreateOpenWriteReadRoundTrip(t *testing.T) {
	fsys := newTestFS(t, defs.DefaultNumSectors)

	require.Equal(t, defs.OK, fsys.Create("foo", 8, false))

	of, errno := fsys.Open("foo")
	require.Equal(t, defs.OK, errno)

	n, err := of.WriteAt([]byte("ABCDEFGH"), 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	of.Close()

	of2, errno := fsys.Open("foo")
	require.Equal(t, defs.OK, errno)
	buf := make([]byte, 8)
	n, err = of2.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "ABCDEFGH", string(buf))
	of2.Close()
}

// E3: create a file at MAX_FILE_SIZE, then write past its end, forcing
// Extend to convert it to indirect; re-read the extended region and
// Check the file system.
func TestExtendAcrossIndirection(t *testing.T) {
	fsys := newTestFS(t, 2000)

	require.Equal(t, defs.OK, fsys.Create("big", defs.MaxFileSize, false))
	of, errno := fsys.Open("big")
	require.Equal(t, defs.OK, errno)

	pattern := make([]byte, 500)
	for i := range pattern {
		pattern[i] = byte(i)
	}
	_, err := of.WriteAt(pattern, defs.MaxFileSize-100)
	require.NoError(t, err)

	buf := make([]byte, 500)
	n, err := of.ReadAt(buf, defs.MaxFileSize-100)
	require.NoError(t, err)
	assert.Equal(t, 500, n)
	assert.Equal(t, pattern, buf)
	assert.True(t, fsys.Check())
	of.Close()
}

// E4: T1 opens "x"; T2 removes it (success, not yet freed); T1 closes,
// freeing the sectors; a subsequent Check reports no leak.
func TestRemoveWhileOpenDefersDeletion(t *testing.T) {
	fsys := newTestFS(t, defs.DefaultNumSectors)
	require.Equal(t, defs.OK, fsys.Create("x", 16, false))

	of, errno := fsys.Open("x")
	require.Equal(t, defs.OK, errno)

	require.Equal(t, defs.OK, fsys.Remove("x"))

	_, stillListed := fsys.List("/")
	assert.Equal(t, defs.OK, stillListed)

	of.Close()
	assert.True(t, fsys.Check())

	entries, errno := fsys.List("/")
	require.Equal(t, defs.OK, errno)
	assert.Empty(t, entries)
}

func TestCreateDuplicateNameFails(t *testing.T) {
	fsys := newTestFS(t, defs.DefaultNumSectors)
	require.Equal(t, defs.OK, fsys.Create("dup", 8, false))
	assert.Equal(t, defs.AlreadyExists, fsys.Create("dup", 8, false))
}

func TestOpenMissingFails(t *testing.T) {
	fsys := newTestFS(t, defs.DefaultNumSectors)
	_, errno := fsys.Open("nope")
	assert.Equal(t, defs.NotFound, errno)
}

func TestNestedDirectories(t *testing.T) {
	fsys := newTestFS(t, defs.DefaultNumSectors)
	require.Equal(t, defs.OK, fsys.Create("sub", defs.NumDirEntries*direntSize, true))
	require.Equal(t, defs.OK, fsys.Create("/sub/inner", 10, false))

	entries, errno := fsys.List("/sub")
	require.Equal(t, defs.OK, errno)
	require.Len(t, entries, 1)
	assert.Equal(t, "inner", entries[0].Name)
}

func TestRemoveNonEmptyDirectoryFails(t *testing.T) {
	fsys := newTestFS(t, defs.DefaultNumSectors)
	require.Equal(t, defs.OK, fsys.Create("sub", defs.NumDirEntries*direntSize, true))
	require.Equal(t, defs.OK, fsys.Create("/sub/inner", 10, false))
	assert.Equal(t, defs.InUse, fsys.Remove("sub"))
}

// Testable Property 2: round-trip header.
func TestFileHeaderRoundTrip(t *testing.T) {
	numSectors := 200
	d := disk.NewMemDisk(numSectors)
	sd := disk.NewSynchDisk(d)
	freeMap := NewBitmap(numSectors)

	h := NewFileHeader()
	require.Equal(t, defs.OK, h.Allocate(freeMap, 1000))
	require.NoError(t, h.WriteBack(sd, 5))

	h2 := NewFileHeader()
	require.NoError(t, h2.FetchFrom(sd, 5))
	assert.Equal(t, h.raw, h2.raw)

	for off := 0; off < 1000; off += 37 {
		s1, e1 := h.ByteToSector(off)
		s2, e2 := h2.ByteToSector(off)
		require.Equal(t, defs.OK, e1)
		require.Equal(t, defs.OK, e2)
		assert.Equal(t, s1, s2)
	}
}

// Testable Property 3: path normalization.
func TestPathNormalization(t *testing.T) {
	p := RootPath().Merge("/a/b").Merge("c/../d")
	assert.Equal(t, "/a/b/d", p.String())

	assert.Equal(t, "/", RootPath().Merge("/").String())

	fromA := FilePath{Components: []string{"a"}}
	assert.Equal(t, "/x", fromA.Merge("../../x").String())
}

// Testable Property 1: bitmap consistency after Create/Remove.
func TestCheckReportsConsistentBitmapAfterChurn(t *testing.T) {
	fsys := newTestFS(t, defs.DefaultNumSectors)
	require.Equal(t, defs.OK, fsys.Create("a", 100, false))
	require.Equal(t, defs.OK, fsys.Create("b", 200, false))
	require.Equal(t, defs.OK, fsys.Remove("a"))
	require.Equal(t, defs.OK, fsys.Create("c", 50, false))
	assert.True(t, fsys.Check())
}

// Testable Property 8: at-most-one concurrent removal sees exactly one
// disk deletion.
func TestAtMostOneDeletionOnConcurrentClose(t *testing.T) {
	fsys := newTestFS(t, defs.DefaultNumSectors)
	require.Equal(t, defs.OK, fsys.Create("shared", 32, false))

	const openers = 4
	handles := make([]*OpenFile, openers)
	for i := 0; i < openers; i++ {
		of, errno := fsys.Open("shared")
		require.Equal(t, defs.OK, errno)
		handles[i] = of
	}

	require.Equal(t, defs.OK, fsys.Remove("shared"))

	var wg sync.WaitGroup
	for _, of := range handles {
		wg.Add(1)
		of := of
		threads.Fork("closer", 0, func(any) {
			defer wg.Done()
			of.Close()
		}, nil)
	}
	wg.Wait()

	assert.True(t, fsys.Check())
}
