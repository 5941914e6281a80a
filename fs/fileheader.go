package fs

import (
	"errors"

	"github.com/Gastonm123/nachos-go/disk"
	"github.com/Gastonm123/nachos-go/machine"
)

// NumDirect is the count of direct sector pointers a FileHeader carries.
// NumDataPtr is how many sector numbers fit in one indirect sector.
// Chosen, like machine.SectorSize, so a FileHeader occupies exactly one
// sector: 3 int32 scalar fields + NumDirect direct pointers + one indirect
// pointer + one double-indirect pointer, all as little-endian int32s.
const (
	NumDirect  = 24
	NumDataPtr = machine.SectorSize / 4
)

// MaxFileSize is the largest file representable by NumDirect direct
// sectors, NumDataPtr sectors reachable through the single indirect
// sector, and NumDataPtr*NumDataPtr sectors reachable through the
// double-indirect sector.
const MaxFileSize = (NumDirect + NumDataPtr + NumDataPtr*NumDataPtr) * machine.SectorSize

var ErrFileTooBig = errors.New("fs: file exceeds MaxFileSize")
var ErrDiskFull = errors.New("fs: not enough free sectors")

// FileHeader is the on-disk inode: size, sector count, a directory flag,
// and the three-tier direct/indirect/double-indirect block map
// (spec.md §4.5).
type FileHeader struct {
	NumBytes    int32
	NumSectors  int32
	Directory   bool
	Direct      [NumDirect]int32
	Indirect    int32 // sector of the single-indirect block, 0 if unused
	DoubleIndir int32 // sector of the double-indirect block, 0 if unused
}

// FetchHeader reads the FileHeader stored at sector.
func FetchHeader(d *disk.SynchDisk, sector int) *FileHeader {
	buf := make([]byte, machine.SectorSize)
	d.ReadSector(sector, buf)
	h := &FileHeader{}
	h.NumBytes = int32(le32(buf[0:]))
	h.NumSectors = int32(le32(buf[4:]))
	h.Directory = buf[8] != 0
	ints := make([]int32, NumDirect+2)
	readSectorInts(buf[12:], ints)
	copy(h.Direct[:], ints[:NumDirect])
	h.Indirect = ints[NumDirect]
	h.DoubleIndir = ints[NumDirect+1]
	return h
}

// WriteBack flushes h to sector.
func (h *FileHeader) WriteBack(d *disk.SynchDisk, sector int) {
	buf := make([]byte, machine.SectorSize)
	putLe32(buf[0:], uint32(h.NumBytes))
	putLe32(buf[4:], uint32(h.NumSectors))
	if h.Directory {
		buf[8] = 1
	}
	ints := make([]int32, NumDirect+2)
	copy(ints, h.Direct[:])
	ints[NumDirect] = h.Indirect
	ints[NumDirect+1] = h.DoubleIndir
	writeSectorInts(buf[12:], ints)
	d.WriteSector(sector, buf)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLe32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// directPlusIndirectCapacity returns the number of data sectors addressed
// directly or via the single indirect sector (everything short of the
// double-indirect range).
func directPlusIndirectCapacity() int32 {
	return NumDirect + NumDataPtr
}

// indirectSectorsNeeded returns how many additional indirect-structure
// sectors (single and/or double indirect) are required to hold numSectors
// total data sectors, per spec.md §4.5.
func indirectSectorsNeeded(numSectors int32) int32 {
	if numSectors <= NumDirect {
		return 0
	}
	if numSectors <= directPlusIndirectCapacity() {
		return 1 // the single indirect sector itself
	}
	extra := numSectors - directPlusIndirectCapacity()
	numSingleIndirects := (extra + NumDataPtr - 1) / NumDataPtr
	return 2 + numSingleIndirects // single indirect + double-indirect sector + its single-indirect children
}

// sectorAt resolves the dataSector-th sector of the file (0-based),
// reading through the indirect/double-indirect structures as needed.
// Returns -1 if dataSector is beyond NumSectors.
func (h *FileHeader) sectorAt(d *disk.SynchDisk, dataSector int32) int32 {
	if dataSector < NumDirect {
		return h.Direct[dataSector]
	}
	dataSector -= NumDirect
	if dataSector < NumDataPtr {
		return readIndirectEntry(d, h.Indirect, dataSector)
	}
	dataSector -= NumDataPtr
	diIndex := dataSector / NumDataPtr
	within := dataSector % NumDataPtr
	singleIndirectSector := readIndirectEntry(d, h.DoubleIndir, diIndex)
	return readIndirectEntry(d, singleIndirectSector, within)
}

func readIndirectEntry(d *disk.SynchDisk, sector int32, index int32) int32 {
	if sector == 0 {
		return 0
	}
	buf := make([]byte, machine.SectorSize)
	d.ReadSector(int(sector), buf)
	return int32(le32(buf[index*4:]))
}

func writeIndirectEntry(d *disk.SynchDisk, sector int32, index int32, value int32) {
	buf := make([]byte, machine.SectorSize)
	d.ReadSector(int(sector), buf)
	putLe32(buf[index*4:], uint32(value))
	d.WriteSector(int(sector), buf)
}

// Allocate reserves enough sectors from bm to hold a file of size bytes,
// populating h's direct/indirect/double-indirect structure. Fails without
// mutating bm if too few sectors are free or size exceeds MaxFileSize.
func (h *FileHeader) Allocate(d *disk.SynchDisk, bm *Bitmap, size int) error {
	if size > MaxFileSize {
		return ErrFileTooBig
	}
	numSectors := int32((size + machine.SectorSize - 1) / machine.SectorSize)
	numIndirect := indirectSectorsNeeded(numSectors)
	if int(numSectors+numIndirect) > bm.NumClear() {
		return ErrDiskFull
	}

	*h = FileHeader{NumBytes: int32(size), NumSectors: numSectors}

	// Reserve indirect-structure sectors first, per spec.md §4.5.
	if numSectors > NumDirect {
		h.Indirect = int32(bm.Find())
		zeroSector(d, h.Indirect)
	}
	if numSectors > directPlusIndirectCapacity() {
		h.DoubleIndir = int32(bm.Find())
		zeroSector(d, h.DoubleIndir)
		extra := numSectors - directPlusIndirectCapacity()
		n := (extra + NumDataPtr - 1) / NumDataPtr
		for i := int32(0); i < n; i++ {
			s := int32(bm.Find())
			zeroSector(d, s)
			writeIndirectEntry(d, h.DoubleIndir, i, s)
		}
	}

	// Then data sectors, lowest dataSector index first. Every freshly
	// allocated sector is zeroed so a reused, previously-freed sector
	// never leaks its old owner's bytes to the new file.
	for i := int32(0); i < numSectors; i++ {
		s := int32(bm.Find())
		zeroSector(d, s)
		h.setSector(d, i, s)
	}
	return nil
}

func zeroSector(d *disk.SynchDisk, sector int32) {
	d.WriteSector(int(sector), make([]byte, machine.SectorSize))
}

// setSector installs sector as the dataSector-th block. It allocates
// nothing itself: the indirect descriptors the slot lives in must already
// exist, as Allocate and Extend arrange before calling it.
func (h *FileHeader) setSector(d *disk.SynchDisk, dataSector int32, sector int32) {
	if dataSector < NumDirect {
		h.Direct[dataSector] = sector
		return
	}
	dataSector -= NumDirect
	if dataSector < NumDataPtr {
		writeIndirectEntry(d, h.Indirect, dataSector, sector)
		return
	}
	dataSector -= NumDataPtr
	diIndex := dataSector / NumDataPtr
	within := dataSector % NumDataPtr
	singleIndirectSector := readIndirectEntry(d, h.DoubleIndir, diIndex)
	writeIndirectEntry(d, singleIndirectSector, within, sector)
}

// Extend grows the file to newSize, appending one data sector at a time
// and lazily allocating the indirect/double-indirect descriptors on first
// need (spec.md §4.5).
func (h *FileHeader) Extend(d *disk.SynchDisk, bm *Bitmap, newSize int) error {
	if newSize > MaxFileSize {
		return ErrFileTooBig
	}
	if int32(newSize) <= h.NumBytes {
		h.NumBytes = int32(newSize)
		return nil
	}
	newNumSectors := int32((newSize + machine.SectorSize - 1) / machine.SectorSize)
	need := newNumSectors - h.NumSectors
	if need <= 0 {
		h.NumBytes = int32(newSize)
		return nil
	}

	reserved := []int32{}
	rollback := func() {
		for _, s := range reserved {
			bm.Clear(int(s))
		}
	}

	for next := h.NumSectors; next < newNumSectors; next++ {
		if next == NumDirect && h.Indirect == 0 {
			if bm.NumClear() < 1 {
				rollback()
				return ErrDiskFull
			}
			h.Indirect = int32(bm.Find())
			reserved = append(reserved, h.Indirect)
			zeroSector(d, h.Indirect)
		}
		if next == directPlusIndirectCapacity() && h.DoubleIndir == 0 {
			if bm.NumClear() < 1 {
				rollback()
				return ErrDiskFull
			}
			h.DoubleIndir = int32(bm.Find())
			reserved = append(reserved, h.DoubleIndir)
			zeroSector(d, h.DoubleIndir)
		}
		if next >= directPlusIndirectCapacity() {
			rel := next - directPlusIndirectCapacity()
			if rel%NumDataPtr == 0 {
				di := rel / NumDataPtr
				if readIndirectEntry(d, h.DoubleIndir, di) == 0 {
					if bm.NumClear() < 1 {
						rollback()
						return ErrDiskFull
					}
					s := int32(bm.Find())
					reserved = append(reserved, s)
					zeroSector(d, s)
					writeIndirectEntry(d, h.DoubleIndir, di, s)
				}
			}
		}
		if bm.NumClear() < 1 {
			rollback()
			return ErrDiskFull
		}
		s := int32(bm.Find())
		reserved = append(reserved, s)
		zeroSector(d, s)
		h.setSector(d, next, s)
		h.NumSectors = next + 1
	}
	h.NumBytes = int32(newSize)
	return nil
}

// Deallocate frees every sector h addresses, including indirect and
// double-indirect descriptor sectors, asserting each was actually marked.
func (h *FileHeader) Deallocate(d *disk.SynchDisk, bm *Bitmap) {
	for i := int32(0); i < h.NumSectors; i++ {
		s := h.sectorAt(d, i)
		mustClear(bm, s)
	}
	if h.Indirect != 0 {
		mustClear(bm, h.Indirect)
	}
	if h.DoubleIndir != 0 {
		n := h.NumSectors - directPlusIndirectCapacity()
		if n > 0 {
			numSingle := (n + NumDataPtr - 1) / NumDataPtr
			for i := int32(0); i < numSingle; i++ {
				s := readIndirectEntry(d, h.DoubleIndir, i)
				if s != 0 {
					mustClear(bm, s)
				}
			}
		}
		mustClear(bm, h.DoubleIndir)
	}
}

func mustClear(bm *Bitmap, sector int32) {
	if !bm.Test(int(sector)) {
		panic("fs: deallocating unmarked sector")
	}
	bm.Clear(int(sector))
}

// ReadAt copies len(p) bytes starting at byte offset off within the file
// into p, reading through whatever sectors that range spans.
func (h *FileHeader) ReadAt(d *disk.SynchDisk, p []byte, off int) {
	buf := make([]byte, machine.SectorSize)
	for n := 0; n < len(p); {
		sector := int32(off+n) / machine.SectorSize
		within := int(off+n) % machine.SectorSize
		d.ReadSector(int(h.sectorAt(d, sector)), buf)
		c := copy(p[n:], buf[within:])
		n += c
	}
}

// WriteAt writes p into the file starting at byte offset off; the caller
// must have already Extended the file to cover [off, off+len(p)).
func (h *FileHeader) WriteAt(d *disk.SynchDisk, p []byte, off int) {
	buf := make([]byte, machine.SectorSize)
	for n := 0; n < len(p); {
		sector := int32(off+n) / machine.SectorSize
		within := int(off+n) % machine.SectorSize
		s := int(h.sectorAt(d, sector))
		d.ReadSector(s, buf)
		c := copy(buf[within:], p[n:])
		d.WriteSector(s, buf)
		n += c
	}
}
