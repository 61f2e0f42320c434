// Package disk synchronizes sector I/O against the out-of-scope raw
// simulated disk device (common.Disk) and provides an in-memory fake of
// that device for tests.
package disk

import (
	"github.com/TomasCastroRojas/nachos/common"
	"github.com/TomasCastroRojas/nachos/threads"
)

// SynchDisk wraps a common.Disk with a semaphore so that ReadSector and
// WriteSector block the calling thread until the operation completes,
// the "synch disk" contract original Nachos provides on top of the raw
// (interrupt-driven) disk device. Grounded on the teacher's
// request/ack-channel pattern in fs/bdev.go, collapsed here to a direct
// synchronous call since common.Disk is itself synchronous — there is no
// interrupt controller to simulate in this module.
type SynchDisk struct {
	disk common.Disk
	sem  *threads.Semaphore
}

// NewSynchDisk wraps disk for synchronized access.
func NewSynchDisk(disk common.Disk) *SynchDisk {
	return &SynchDisk{disk: disk, sem: threads.NewSemaphore("synch disk", 1)}
}

// ReadSector reads exactly len(data) bytes from sector into data.
func (sd *SynchDisk) ReadSector(sector int, data []byte) error {
	sd.sem.P()
	defer sd.sem.V()
	return sd.disk.ReadSector(sector, data)
}

// WriteSector writes data to sector.
func (sd *SynchDisk) WriteSector(sector int, data []byte) error {
	sd.sem.P()
	defer sd.sem.V()
	return sd.disk.WriteSector(sector, data)
}

// NumSectors returns the disk's sector count.
func (sd *SynchDisk) NumSectors() int {
	return sd.disk.NumSectors()
}
