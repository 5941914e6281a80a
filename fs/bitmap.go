// Package fs implements the on-disk filesystem: file headers with two-level
// indirect blocks, a free-sector bitmap, flat directory files, path
// resolution, and a shared open-file table with deferred delete-on-last-close
// (spec.md §4.5–§4.7).
package fs

import (
	"encoding/binary"

	"github.com/Gastonm123/nachos-go/machine"
)

// BitmapFileSize is the byte size of the free-map file's content: one bit
// per disk sector.
const BitmapFileSize = machine.NumSectors / 8

// Bitmap tracks which of machine.NumSectors sectors are in use. It is kept
// entirely in memory while the filesystem is mounted; FileSystem reads and
// writes it through the free-map file's own FileHeader like any other
// file's bytes.
type Bitmap struct {
	bits []byte // machine.NumSectors bits, packed 8 per byte
}

// NewBitmap returns an all-clear bitmap of the right size for the disk
// geometry.
func NewBitmap() *Bitmap {
	return &Bitmap{bits: make([]byte, BitmapFileSize)}
}

// BitmapFromBytes decodes a bitmap previously produced by Bytes.
func BitmapFromBytes(buf []byte) *Bitmap {
	b := NewBitmap()
	copy(b.bits, buf)
	return b
}

// Bytes returns the packed on-disk representation of b.
func (b *Bitmap) Bytes() []byte {
	out := make([]byte, BitmapFileSize)
	copy(out, b.bits)
	return out
}

// Test reports whether sector is marked in-use.
func (b *Bitmap) Test(sector int) bool {
	return b.bits[sector/8]&(1<<uint(sector%8)) != 0
}

// Mark marks sector in-use.
func (b *Bitmap) Mark(sector int) {
	b.bits[sector/8] |= 1 << uint(sector%8)
}

// Clear marks sector free.
func (b *Bitmap) Clear(sector int) {
	b.bits[sector/8] &^= 1 << uint(sector%8)
}

// NumClear returns the count of free sectors.
func (b *Bitmap) NumClear() int {
	n := 0
	for s := 0; s < machine.NumSectors; s++ {
		if !b.Test(s) {
			n++
		}
	}
	return n
}

// Find returns the lowest-numbered free sector, marking it in use, or -1 if
// none remain.
func (b *Bitmap) Find() int {
	for s := 0; s < machine.NumSectors; s++ {
		if !b.Test(s) {
			b.Mark(s)
			return s
		}
	}
	return -1
}

// readSectorInts/writeSectorInts marshal a fixed array of little-endian
// int32 sector numbers into/out of a SectorSize byte buffer; used by
// FileHeader to move its on-disk record through disk.SynchDisk's
// byte-slice sectors.
func readSectorInts(buf []byte, out []int32) {
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
}

func writeSectorInts(buf []byte, in []int32) {
	for i, v := range in {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
}
