package syscalls

import (
	"errors"

	"github.com/Gastonm123/nachos-go/fs"
)

// ConsoleInFd and ConsoleOutFd are the two reserved descriptors every
// thread starts with (spec.md §4.9); all other descriptors index FDTable.
const (
	ConsoleInFd  = 0
	ConsoleOutFd = 1
)

// MaxOpenFiles bounds the per-thread open-file table (spec.md §7 stratum
// 2: "file descriptor full" is an expected, typed failure, not a panic).
const MaxOpenFiles = 16

var ErrTooManyOpenFiles = errors.New("syscalls: file descriptor table is full")
var ErrBadFD = errors.New("syscalls: no open file at that descriptor")

type openFile struct {
	sf     *fs.SharedFile
	offset int
}

// FDTable is a thread's private, bounded view onto the shared
// filesystem's open files, descriptors 2.. (0 and 1 are console and never
// stored here). Implements kthread.FileTable.
type FDTable struct {
	fsys  *fs.FileSystem
	files [MaxOpenFiles]*openFile
}

// NewFDTable returns an empty table backed by fsys.
func NewFDTable(fsys *fs.FileSystem) *FDTable {
	return &FDTable{fsys: fsys}
}

// Create creates an empty file at path under the filesystem root.
func (t *FDTable) Create(path string) error {
	return t.fsys.Create(path, 0, 0)
}

// Remove unlinks path, deferring block reclamation if it is presently
// open (fs.FileSystem's own semantics).
func (t *FDTable) Remove(path string) error {
	return t.fsys.Remove(path, 0)
}

// Open opens path (relative to cwd) and installs it in the first free
// slot, returning its descriptor or ErrTooManyOpenFiles.
func (t *FDTable) Open(path string, cwd int) (int, error) {
	sf, err := t.fsys.Open(path, cwd)
	if err != nil {
		return -1, err
	}
	for i := range t.files {
		if t.files[i] == nil {
			t.files[i] = &openFile{sf: sf}
			return i + 2, nil
		}
	}
	t.fsys.Files.Close(sf.Sector)
	return -1, ErrTooManyOpenFiles
}

// Close releases fd's FileTable reference and frees its slot.
func (t *FDTable) Close(fd int) error {
	f, i, ok := t.lookup(fd)
	if !ok {
		return ErrBadFD
	}
	t.fsys.Files.Close(f.sf.Sector)
	t.files[i] = nil
	return nil
}

// Read copies up to len(p) bytes from fd's current offset, advancing it,
// and returns the count actually read.
func (t *FDTable) Read(fd int, p []byte) (int, error) {
	f, _, ok := t.lookup(fd)
	if !ok {
		return 0, ErrBadFD
	}
	n := int(f.sf.Header.NumBytes) - f.offset
	if n <= 0 {
		return 0, nil
	}
	if n > len(p) {
		n = len(p)
	}
	t.fsys.ReadFile(f.sf, p[:n], f.offset)
	f.offset += n
	return n, nil
}

// Write copies p to fd's current offset, extending the file as needed,
// and advances the offset.
func (t *FDTable) Write(fd int, p []byte) (int, error) {
	f, _, ok := t.lookup(fd)
	if !ok {
		return 0, ErrBadFD
	}
	if err := t.fsys.WriteFile(f.sf, p, f.offset); err != nil {
		return 0, err
	}
	f.offset += len(p)
	return len(p), nil
}

func (t *FDTable) lookup(fd int) (*openFile, int, bool) {
	i := fd - 2
	if i < 0 || i >= len(t.files) || t.files[i] == nil {
		return nil, 0, false
	}
	return t.files[i], i, true
}

// CloseAll releases every still-open descriptor. Implements
// kthread.FileTable, invoked by the scheduler when reclaiming a finished
// thread's resources.
func (t *FDTable) CloseAll() {
	for i, f := range t.files {
		if f != nil {
			t.fsys.Files.Close(f.sf.Sector)
			t.files[i] = nil
		}
	}
}
