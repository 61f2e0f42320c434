package disk

import (
	"fmt"
	"sync"

	"github.com/TomasCastroRojas/nachos/defs"
)

// MemDisk is an in-memory stand-in for the out-of-scope raw simulated
// disk device (common.Disk), used by every fs/vm test in this module.
// The teacher backs its equivalent tests with a real disk image file
// (fs/fs_test.go's diskimg); we use a byte slice instead since no image
// file ships with this repo.
type MemDisk struct {
	mu      sync.Mutex
	sectors [][]byte
}

// NewMemDisk creates a zeroed disk of numSectors sectors, each
// defs.SectorSize bytes.
func NewMemDisk(numSectors int) *MemDisk {
	sectors := make([][]byte, numSectors)
	for i := range sectors {
		sectors[i] = make([]byte, defs.SectorSize)
	}
	return &MemDisk{sectors: sectors}
}

func (d *MemDisk) checkBounds(sector int, data []byte) error {
	if sector < 0 || sector >= len(d.sectors) {
		return fmt.Errorf("disk: sector %d out of range [0,%d)", sector, len(d.sectors))
	}
	if len(data) != defs.SectorSize {
		return fmt.Errorf("disk: buffer size %d != sector size %d", len(data), defs.SectorSize)
	}
	return nil
}

// ReadSector copies the sector's contents into data.
func (d *MemDisk) ReadSector(sector int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkBounds(sector, data); err != nil {
		return err
	}
	copy(data, d.sectors[sector])
	return nil
}

// WriteSector overwrites the sector's contents with data.
func (d *MemDisk) WriteSector(sector int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkBounds(sector, data); err != nil {
		return err
	}
	copy(d.sectors[sector], data)
	return nil
}

// NumSectors returns the disk's sector count.
func (d *MemDisk) NumSectors() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sectors)
}
