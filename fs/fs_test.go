package fs

import (
	"bytes"
	"testing"

	"github.com/Gastonm123/nachos-go/disk"
	"github.com/Gastonm123/nachos-go/kthread"
	"github.com/Gastonm123/nachos-go/machine"
	"github.com/Gastonm123/nachos-go/synch"
)

func newTestFS(t *testing.T) *FileSystem {
	t.Helper()
	in := synch.NewInterrupts()
	sched := kthread.NewScheduler(in)
	d := disk.NewSynchDisk(machine.NewInMemoryDisk(), in, sched)
	return Format(d, in, sched)
}

func TestCreateOpenReadWrite(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.Create("hello.txt", 0, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	sf, err := fs.Open("hello.txt", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	payload := []byte("hello, nachos")
	if err := sf.Header.Extend(fs.d, fs.bitmap, len(payload)); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	sf.Header.WriteAt(fs.d, payload, 0)
	sf.Header.WriteBack(fs.d, sf.Sector)

	out := make([]byte, len(payload))
	sf.Header.ReadAt(fs.d, out, 0)
	if !bytes.Equal(out, payload) {
		t.Fatalf("ReadAt = %q, want %q", out, payload)
	}
	fs.Files.Close(sf.Sector)
}

func TestCreateDuplicateNameFails(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.Create("dup", 0, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := fs.Create("dup", 0, 0); err != ErrExists {
		t.Fatalf("Create duplicate = %v, want ErrExists", err)
	}
}

func TestRemoveUnusedFreesSpace(t *testing.T) {
	fs := newTestFS(t)
	free0 := fs.bitmap.NumClear()
	if err := fs.Create("gone", machine.SectorSize*3, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	afterCreate := fs.bitmap.NumClear()
	if afterCreate >= free0 {
		t.Fatalf("Create did not consume free sectors")
	}
	if err := fs.Remove("gone", 0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if fs.bitmap.NumClear() != free0 {
		t.Fatalf("Remove did not return sectors to the bitmap: got %d free, want %d", fs.bitmap.NumClear(), free0)
	}
}

func TestRemoveOpenFileDefersFreeUntilLastClose(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.Create("busy", machine.SectorSize, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	sf, err := fs.Open("busy", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	free0 := fs.bitmap.NumClear()

	if err := fs.Remove("busy", 0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := fs.Open("busy", 0); err != ErrNotFound {
		t.Fatalf("Open after Remove = %v, want ErrNotFound", err)
	}
	if fs.bitmap.NumClear() != free0 {
		t.Fatalf("blocks were freed before last close")
	}

	fs.Files.Close(sf.Sector)
	if fs.bitmap.NumClear() <= free0 {
		t.Fatalf("blocks were not freed on last close")
	}
}

func TestMakeAndRemoveDirectory(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.MakeDirectory("sub", 0); err != nil {
		t.Fatalf("MakeDirectory: %v", err)
	}
	sub, err := fs.ChangeDirectory("sub", 0)
	if err != nil {
		t.Fatalf("ChangeDirectory: %v", err)
	}
	if err := fs.Create("inner", 0, sub); err != nil {
		t.Fatalf("Create inside subdirectory: %v", err)
	}
	if err := fs.RemoveDirectory("sub", 0); err != ErrDirectoryNotEmpty {
		t.Fatalf("RemoveDirectory on non-empty dir = %v, want ErrDirectoryNotEmpty", err)
	}
	if err := fs.Remove("inner", sub); err != nil {
		t.Fatalf("Remove inner: %v", err)
	}
	if err := fs.RemoveDirectory("sub", 0); err != nil {
		t.Fatalf("RemoveDirectory: %v", err)
	}
}

func TestCheckAfterCreateRemoveExtend(t *testing.T) {
	fs := newTestFS(t)
	if !fs.Check() {
		t.Fatalf("Check failed on a freshly formatted filesystem")
	}

	if err := fs.Create("pepe", 20, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !fs.Check() {
		t.Fatalf("Check failed after Create")
	}

	sf, err := fs.Open("pepe", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := fs.WriteFile(sf, bytes.Repeat([]byte{'x'}, 1024), 0); err != nil {
		t.Fatalf("WriteFile (extend): %v", err)
	}
	if !fs.Check() {
		t.Fatalf("Check failed after Extend")
	}
	fs.Files.Close(sf.Sector)

	if err := fs.MakeDirectory("sub", 0); err != nil {
		t.Fatalf("MakeDirectory: %v", err)
	}
	if !fs.Check() {
		t.Fatalf("Check failed after MakeDirectory")
	}

	if err := fs.Remove("pepe", 0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := fs.RemoveDirectory("sub", 0); err != nil {
		t.Fatalf("RemoveDirectory: %v", err)
	}
	if !fs.Check() {
		t.Fatalf("Check failed after Remove/RemoveDirectory")
	}
}

func TestChangeDirectoryEmptyPathIsBadPath(t *testing.T) {
	fs := newTestFS(t)
	if sector, err := fs.ChangeDirectory("/", 0); err != nil || sector != RootDirSector {
		t.Fatalf("ChangeDirectory(\"/\") = %d,%v, want %d,nil", sector, err, RootDirSector)
	}
	if _, err := fs.ChangeDirectory("", 0); err != ErrBadPath {
		t.Fatalf("ChangeDirectory(\"\") = %v, want ErrBadPath", err)
	}
}

func TestRootHoldsTenSubdirectories(t *testing.T) {
	fs := newTestFS(t)
	for i := 0; i < 10; i++ {
		if err := fs.MakeDirectory(spamName(i), 0); err != nil {
			t.Fatalf("MakeDirectory(%s): %v", spamName(i), err)
		}
	}
	names, err := fs.ListDirectory("/", 0)
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(names) != 10 {
		t.Fatalf("ListDirectory returned %d entries, want 10", len(names))
	}
}

func spamName(i int) string {
	return "spam" + string(rune('0'+i))
}

func TestExtendZeroFillsNewSectors(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.Create("pepe", machine.SectorSize, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	sf, err := fs.Open("pepe", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fs.Files.Close(sf.Sector)

	buf := make([]byte, machine.SectorSize)
	sf.Header.ReadAt(fs.d, buf, 0)
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("newly allocated sector is not zero-filled")
		}
	}

	if err := sf.Header.Extend(fs.d, fs.bitmap, machine.SectorSize+1); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	second := make([]byte, machine.SectorSize)
	sf.Header.ReadAt(fs.d, second, machine.SectorSize)
	for _, b := range second {
		if b != 0 {
			t.Fatalf("extended sector leaks prior-owner data")
		}
	}
}
