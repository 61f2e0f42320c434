package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomasCastroRojas/nachos/defs"
)

func TestMemDiskRoundTrip(t *testing.T) {
	d := NewMemDisk(4)
	sd := NewSynchDisk(d)

	out := make([]byte, defs.SectorSize)
	for i := range out {
		out[i] = byte(i)
	}
	require.NoError(t, sd.WriteSector(2, out))

	in := make([]byte, defs.SectorSize)
	require.NoError(t, sd.ReadSector(2, in))
	assert.Equal(t, out, in)
}

func TestMemDiskOutOfRange(t *testing.T) {
	d := NewMemDisk(4)
	sd := NewSynchDisk(d)
	buf := make([]byte, defs.SectorSize)
	assert.Error(t, sd.ReadSector(10, buf))
	assert.Error(t, sd.WriteSector(-1, buf))
}
