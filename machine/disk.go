package machine

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// SectorSize is the size in bytes of one disk sector, matching classic
// Nachos geometry (spec.md §6).
const SectorSize = 128

// NumSectors is the total sector count of the simulated disk: 32 sectors
// per track, 32 tracks, the classic Nachos geometry (spec.md §6).
const NumSectors = 32 * 32

// DiskSize is the size in bytes of the whole simulated disk image.
const DiskSize = NumSectors * SectorSize

// Disk is the asynchronous block device interface: a request returns
// immediately and the caller-supplied done callback fires on completion,
// standing in for the simulated device's "disk done" interrupt (spec.md
// §6). Exactly one request is ever outstanding; disk.SynchDisk enforces
// that serialization.
type Disk interface {
	ReadRequest(sector int, out []byte, done func())
	WriteRequest(sector int, in []byte, done func())
}

func checkSector(sector int) {
	if sector < 0 || sector >= NumSectors {
		panic(fmt.Sprintf("machine: sector %d out of range [0,%d)", sector, NumSectors))
	}
}

// latency is the simulated seek+rotate delay before a request's done
// callback fires, standing in for the real device's interrupt timing.
const latency = time.Microsecond

// InMemoryDisk is a Disk backed by a flat byte slice, for fast unit tests
// that don't need a persistent image.
type InMemoryDisk struct {
	data [DiskSize]byte
}

// NewInMemoryDisk returns a zeroed InMemoryDisk.
func NewInMemoryDisk() *InMemoryDisk { return &InMemoryDisk{} }

func (d *InMemoryDisk) ReadRequest(sector int, out []byte, done func()) {
	checkSector(sector)
	copy(out, d.data[sector*SectorSize:(sector+1)*SectorSize])
	go func() {
		time.Sleep(latency)
		done()
	}()
}

func (d *InMemoryDisk) WriteRequest(sector int, in []byte, done func()) {
	checkSector(sector)
	copy(d.data[sector*SectorSize:(sector+1)*SectorSize], in)
	go func() {
		time.Sleep(latency)
		done()
	}()
}

// FileDisk is a Disk backed by a single host file (spec.md §6's "a single
// host file representing the disk image"), grounded on cdfmlr-sham's
// dev.go pattern of wrapping os/bufio around a host-filesystem resource for
// a simulated device.
type FileDisk struct {
	f *os.File
}

// OpenFileDisk opens (creating and zero-extending if necessary) the disk
// image at path.
func OpenFileDisk(path string) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < DiskSize {
		if err := f.Truncate(DiskSize); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &FileDisk{f: f}, nil
}

func (d *FileDisk) Close() error { return d.f.Close() }

func (d *FileDisk) ReadRequest(sector int, out []byte, done func()) {
	checkSector(sector)
	go func() {
		if _, err := d.f.ReadAt(out[:SectorSize], int64(sector)*SectorSize); err != nil {
			log.WithError(err).WithField("sector", sector).Error("machine: disk read failed")
		}
		time.Sleep(latency)
		done()
	}()
}

func (d *FileDisk) WriteRequest(sector int, in []byte, done func()) {
	checkSector(sector)
	go func() {
		if _, err := d.f.WriteAt(in[:SectorSize], int64(sector)*SectorSize); err != nil {
			log.WithError(err).WithField("sector", sector).Error("machine: disk write failed")
		}
		time.Sleep(latency)
		done()
	}()
}
