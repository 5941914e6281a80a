package testprogs

import (
	"testing"

	"github.com/Gastonm123/nachos-go/disk"
	"github.com/Gastonm123/nachos-go/fs"
	"github.com/Gastonm123/nachos-go/kthread"
	"github.com/Gastonm123/nachos-go/machine"
	"github.com/Gastonm123/nachos-go/synch"
	"github.com/Gastonm123/nachos-go/syscalls"
)

func newTestFS() (*synch.Interrupts, *kthread.Scheduler, *fs.FileSystem) {
	in := synch.NewInterrupts()
	sched := kthread.NewScheduler(in)
	d := disk.NewSynchDisk(machine.NewInMemoryDisk(), in, sched)
	return in, sched, fs.Format(d, in, sched)
}

// TestExtensibleFile mirrors spec.md §8 scenario 5: "pepe" is created
// empty, written with 'a'..'t' (growing it to 20 bytes), read back
// unchanged, then grown to 1024
// bytes with a repeating alphabet pattern, and a 20-byte window at offset
// 1004 must read back the pattern's tail exactly. Driven through
// syscalls.FDTable, the same path a user program's Create/Write/Read
// syscalls would take.
func TestExtensibleFile(t *testing.T) {
	_, _, fsys := newTestFS()
	fds := syscalls.NewFDTable(fsys)

	if err := fds.Create("pepe"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	fd, err := fds.Open("pepe", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	first := make([]byte, 20)
	for i := range first {
		first[i] = 'a' + byte(i)
	}
	if n, err := fds.Write(fd, first); err != nil || n != len(first) {
		t.Fatalf("Write = %d,%v, want %d,nil", n, err, len(first))
	}

	if err := fds.Close(fd); err != nil {
		t.Fatalf("Close: %v", err)
	}
	fd, err = fds.Open("pepe", 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	readBack := make([]byte, 20)
	if n, err := fds.Read(fd, readBack); err != nil || n != 20 {
		t.Fatalf("Read = %d,%v, want 20,nil", n, err)
	}
	for i, b := range readBack {
		if b != first[i] {
			t.Fatalf("initial read-back[%d] = %q, want %q", i, b, first[i])
		}
	}
	if err := fds.Close(fd); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fd, err = fds.Open("pepe", 0)
	if err != nil {
		t.Fatalf("reopen for extend: %v", err)
	}
	extended := make([]byte, 1024)
	for i := range extended {
		extended[i] = 'a' + byte(i%26)
	}
	if n, err := fds.Write(fd, extended); err != nil || n != len(extended) {
		t.Fatalf("extend Write = %d,%v, want %d,nil", n, err, len(extended))
	}
	if err := fds.Close(fd); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fd, err = fds.Open("pepe", 0)
	if err != nil {
		t.Fatalf("reopen for tail read: %v", err)
	}
	tail := make([]byte, 20)
	full := make([]byte, 1024)
	if _, err := fds.Read(fd, full); err != nil {
		t.Fatalf("full read: %v", err)
	}
	copy(tail, full[1004:1024])
	for i := range tail {
		want := byte('a' + (1004+i)%26)
		if tail[i] != want {
			t.Fatalf("tail[%d] = %q, want %q", i, tail[i], want)
		}
	}
	fds.Close(fd)
}

// TestSecurityOnExtend mirrors spec.md §8 scenario 7: a file's sectors are
// never exposed with a prior owner's bytes. A freshly created sector
// reads back all zero, and the sector newly allocated by extending past
// it does too.
func TestSecurityOnExtend(t *testing.T) {
	_, _, fsys := newTestFS()
	fds := syscalls.NewFDTable(fsys)

	if err := fds.Create("secure"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	fd, err := fds.Open("secure", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if n, err := fds.Write(fd, make([]byte, machine.SectorSize)); err != nil || n != machine.SectorSize {
		t.Fatalf("Write = %d,%v", n, err)
	}

	buf := make([]byte, machine.SectorSize)
	// The descriptor's offset is now past what was just written; FDTable
	// has no explicit Seek, so reopen to read from the start.
	fds.Close(fd)

	fd, err = fds.Open("secure", 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if n, err := fds.Read(fd, buf); err != nil || n != machine.SectorSize {
		t.Fatalf("Read = %d,%v, want %d,nil", n, err, machine.SectorSize)
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("freshly created sector is not zero-filled")
		}
	}
	fds.Close(fd)

	fd, err = fds.Open("secure", 0)
	if err != nil {
		t.Fatalf("reopen to extend: %v", err)
	}
	if n, err := fds.Write(fd, make([]byte, machine.SectorSize+1)); err != nil || n != machine.SectorSize+1 {
		t.Fatalf("extend Write = %d,%v", n, err)
	}
	fds.Close(fd)

	fd, err = fds.Open("secure", 0)
	if err != nil {
		t.Fatalf("reopen for tail: %v", err)
	}
	full := make([]byte, machine.SectorSize*2)
	fds.Read(fd, full)
	for _, b := range full[machine.SectorSize : machine.SectorSize*2] {
		if b != 0 {
			t.Fatalf("newly allocated extend sector leaks prior-owner data")
		}
	}
	fds.Close(fd)
}

// TestConcurrentDirectoryStress mirrors spec.md §8 scenario 6: two real
// kernel threads each create then remove files a0..a9 and b0..b9 in the root
// directory concurrently, sharing the root directory's lock. Both must
// join successfully, the final listing must show none of the twenty
// names, and fs.FileSystem.Check must report the free-bitmap consistent
// with what's actually reachable from the root directory.
func TestConcurrentDirectoryStress(t *testing.T) {
	_, sched, fsys := newTestFS()

	if !fsys.Check() {
		t.Fatalf("Check failed on a freshly formatted filesystem")
	}

	spam := func(prefix string) func(arg any) {
		return func(arg any) {
			for i := 0; i < 10; i++ {
				name := prefix + string(rune('0'+i))
				if err := fsys.Create(name, 0, 0); err != nil {
					t.Errorf("Create(%s): %v", name, err)
					return
				}
			}
			for i := 0; i < 10; i++ {
				name := prefix + string(rune('0'+i))
				if err := fsys.Remove(name, 0); err != nil {
					t.Errorf("Remove(%s): %v", name, err)
					return
				}
			}
		}
	}

	t1, err := sched.Fork("spam-a", spam("a"), nil, true)
	if err != nil {
		t.Fatalf("Fork spam-a: %v", err)
	}
	t2, err := sched.Fork("spam-b", spam("b"), nil, true)
	if err != nil {
		t.Fatalf("Fork spam-b: %v", err)
	}

	sched.Join(t1)
	sched.Join(t2)

	names, err := fsys.ListDirectory("/", 0)
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("root directory still has entries after cleanup: %v", names)
	}

	if !fsys.Check() {
		t.Fatalf("Check failed after concurrent create/remove cleanup")
	}

	if err := fsys.Create("a0", 0, 0); err != nil {
		t.Fatalf("Create after cleanup did not reclaim space/name: %v", err)
	}
}
