package disk

import (
	"bytes"
	"testing"

	"github.com/Gastonm123/nachos-go/kthread"
	"github.com/Gastonm123/nachos-go/machine"
	"github.com/Gastonm123/nachos-go/synch"
)

func newTestDisk() (*SynchDisk, machine.Disk) {
	in := synch.NewInterrupts()
	sched := kthread.NewScheduler(in)
	dev := machine.NewInMemoryDisk()
	return NewSynchDisk(dev, in, sched), dev
}

func TestWriteThenReadSameSector(t *testing.T) {
	d, _ := newTestDisk()
	in := bytes.Repeat([]byte{0x7a}, machine.SectorSize)
	d.WriteSector(3, in)

	out := make([]byte, machine.SectorSize)
	d.ReadSector(3, out)
	if !bytes.Equal(in, out) {
		t.Fatalf("ReadSector after WriteSector did not return the written bytes")
	}
}

func TestReadPopulatesReadAheadNeighbor(t *testing.T) {
	d, dev := newTestDisk()
	raw := dev.(*machine.InMemoryDisk)
	payload := bytes.Repeat([]byte{0x11}, machine.SectorSize)
	done := make(chan struct{})
	raw.WriteRequest(6, payload, func() { close(done) })
	<-done

	out := make([]byte, machine.SectorSize)
	d.ReadSector(5, out) // triggers a read-ahead of sector 6

	d.cacheLock.Acquire()
	_, cached := d.index[6]
	d.cacheLock.Release()
	if !cached {
		t.Fatalf("sector 6 was not read-ahead-cached after reading sector 5")
	}
}

func TestReclaimEvictsWhenCacheFull(t *testing.T) {
	d, _ := newTestDisk()
	buf := make([]byte, machine.SectorSize)
	for s := 0; s < CacheSize+4; s++ {
		d.WriteSector(s, buf)
	}

	d.cacheLock.Acquire()
	n := len(d.index)
	d.cacheLock.Release()
	if n > CacheSize {
		t.Fatalf("cache holds %d entries, want at most %d", n, CacheSize)
	}
}

func TestFlushWritesDirtyEntriesBack(t *testing.T) {
	d, dev := newTestDisk()
	in := bytes.Repeat([]byte{0x99}, machine.SectorSize)
	d.WriteSector(2, in)
	d.Flush()

	out := make([]byte, machine.SectorSize)
	done := make(chan struct{})
	dev.ReadRequest(2, out, func() { close(done) })
	<-done
	if !bytes.Equal(in, out) {
		t.Fatalf("Flush did not write the dirty entry to the underlying device")
	}
}

func TestWriteOrderPreservedForSameSector(t *testing.T) {
	d, _ := newTestDisk()
	first := bytes.Repeat([]byte{0x01}, machine.SectorSize)
	second := bytes.Repeat([]byte{0x02}, machine.SectorSize)
	d.WriteSector(9, first)
	d.WriteSector(9, second)
	d.Flush()

	out := make([]byte, machine.SectorSize)
	d.ReadSector(9, out)
	if !bytes.Equal(second, out) {
		t.Fatalf("ReadSector after two writes returned stale data, want the last write")
	}
}
