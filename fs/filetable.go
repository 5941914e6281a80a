package fs

import (
	log "github.com/sirupsen/logrus"

	"github.com/Gastonm123/nachos-go/disk"
	"github.com/Gastonm123/nachos-go/synch"
)

// SharedFile is the global table's entry for one open header sector: the
// header itself, a reference count of how many file descriptors across
// every process currently have it open, a removeOnDelete flag set by a
// Remove that couldn't free the file immediately, and a per-file lock
// serializing readers and writers of that one file (spec.md §4.7).
type SharedFile struct {
	Header         *FileHeader
	Sector         int
	UserCount      int
	RemoveOnDelete bool
	Lock           *synch.Lock
}

// FileTable is the system-wide open-file table, keyed by header sector.
// Multiple files proceed in parallel: only the bookkeeping map itself is
// serialized by tableLock, not the I/O each SharedFile's own Lock guards.
type FileTable struct {
	d     *disk.SynchDisk
	in    *synch.Interrupts
	sched synch.SchedulerHooks

	tableLock *synch.Lock
	entries   map[int]*SharedFile

	// freeSectors deallocates a removed file's blocks and clears its
	// header sector; wired in by FileSystem after both it and the
	// bitmap it closes over exist (see newFileSystem's SetFreeSectors call).
	freeSectors func(header *FileHeader, sector int)
}

// NewFileTable constructs an empty FileTable. Callers must call
// SetFreeSectors before any Close can actually reclaim a removeOnDelete
// file.
func NewFileTable(d *disk.SynchDisk, in *synch.Interrupts, sched synch.SchedulerHooks) *FileTable {
	return &FileTable{
		d:         d,
		in:        in,
		sched:     sched,
		tableLock: synch.NewLock("filetable", in, sched, false),
		entries:   make(map[int]*SharedFile),
	}
}

// SetFreeSectors wires the callback used to reclaim a file's blocks once
// its last close finds removeOnDelete set.
func (ft *FileTable) SetFreeSectors(fn func(header *FileHeader, sector int)) {
	ft.freeSectors = fn
}

// Open returns the SharedFile for sector, creating it (and reading its
// FileHeader from disk) on first open, and incrementing UserCount either
// way.
func (ft *FileTable) Open(sector int) *SharedFile {
	ft.tableLock.Acquire()
	defer ft.tableLock.Release()

	if sf, ok := ft.entries[sector]; ok {
		sf.UserCount++
		return sf
	}
	sf := &SharedFile{
		Header:    FetchHeader(ft.d, sector),
		Sector:    sector,
		UserCount: 1,
		Lock:      synch.NewLock("file", ft.in, ft.sched, false),
	}
	ft.entries[sector] = sf
	return sf
}

// Close decrements sector's UserCount; at zero, if the entry was marked
// removeOnDelete, its blocks are freed and its header sector cleared
// before the entry is dropped from the table.
func (ft *FileTable) Close(sector int) {
	ft.tableLock.Acquire()
	defer ft.tableLock.Release()

	sf, ok := ft.entries[sector]
	if !ok {
		return
	}
	sf.UserCount--
	if sf.UserCount > 0 {
		return
	}
	if sf.RemoveOnDelete && ft.freeSectors != nil {
		ft.freeSectors(sf.Header, sf.Sector)
		log.WithField("sector", sector).Debug("fs: deferred delete freed on last close")
	}
	delete(ft.entries, sector)
}

// MarkForRemove flips removeOnDelete for an already-open sector. Returns
// false if sector isn't open.
func (ft *FileTable) MarkForRemove(sector int) bool {
	ft.tableLock.Acquire()
	defer ft.tableLock.Release()
	sf, ok := ft.entries[sector]
	if !ok {
		return false
	}
	sf.RemoveOnDelete = true
	return true
}

// Used reports whether sector is currently open by anyone.
func (ft *FileTable) Used(sector int) bool {
	ft.tableLock.Acquire()
	defer ft.tableLock.Release()
	_, ok := ft.entries[sector]
	return ok
}
