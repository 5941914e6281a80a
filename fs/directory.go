package fs

import (
	"errors"

	"github.com/Gastonm123/nachos-go/disk"
)

// FileNameMaxLen bounds a single path component, classic Nachos sizing.
const FileNameMaxLen = 9

// NumDirEntries is the fixed capacity of every directory file.
const NumDirEntries = 10

// dirEntrySize is the on-disk record size: one inUse byte, the name
// (padded to FileNameMaxLen), and a 4-byte sector number.
const dirEntrySize = 1 + FileNameMaxLen + 4

// DirectoryFileSize is the fixed size every directory's FileHeader is
// Allocate'd with.
const DirectoryFileSize = NumDirEntries * dirEntrySize

var ErrNotFound = errors.New("fs: file not found")
var ErrExists = errors.New("fs: file already exists")
var ErrDirectoryFull = errors.New("fs: directory full")
var ErrNameTooLong = errors.New("fs: name exceeds FileNameMaxLen")

// DirEntry is one record of a Directory.
type DirEntry struct {
	InUse  bool
	Name   string
	Sector int32
}

// Directory is a flat, fixed-size array of entries stored as the data of
// an ordinary file (spec.md §4.5/§4.6). Names are unique within one
// Directory.
type Directory struct {
	Entries [NumDirEntries]DirEntry
}

// FetchDirectory reads the directory file addressed by header.
func FetchDirectory(d *disk.SynchDisk, header *FileHeader) *Directory {
	buf := make([]byte, DirectoryFileSize)
	header.ReadAt(d, buf, 0)
	dir := &Directory{}
	for i := range dir.Entries {
		rec := buf[i*dirEntrySize : (i+1)*dirEntrySize]
		dir.Entries[i].InUse = rec[0] != 0
		end := 1
		for end < 1+FileNameMaxLen && rec[end] != 0 {
			end++
		}
		dir.Entries[i].Name = string(rec[1:end])
		dir.Entries[i].Sector = int32(le32(rec[1+FileNameMaxLen:]))
	}
	return dir
}

// WriteBack flushes dir through header's sectors.
func (dir *Directory) WriteBack(d *disk.SynchDisk, header *FileHeader) {
	buf := make([]byte, DirectoryFileSize)
	for i, e := range dir.Entries {
		rec := buf[i*dirEntrySize : (i+1)*dirEntrySize]
		if e.InUse {
			rec[0] = 1
		}
		copy(rec[1:1+FileNameMaxLen], e.Name)
		putLe32(rec[1+FileNameMaxLen:], uint32(e.Sector))
	}
	header.WriteAt(d, buf, 0)
}

// Find returns the sector of name, or -1 if absent.
func (dir *Directory) Find(name string) int32 {
	for _, e := range dir.Entries {
		if e.InUse && e.Name == name {
			return e.Sector
		}
	}
	return -1
}

// Add inserts a new entry for name -> sector into the first free slot.
func (dir *Directory) Add(name string, sector int32) error {
	if len(name) > FileNameMaxLen {
		return ErrNameTooLong
	}
	if dir.Find(name) != -1 {
		return ErrExists
	}
	for i := range dir.Entries {
		if !dir.Entries[i].InUse {
			dir.Entries[i] = DirEntry{InUse: true, Name: name, Sector: sector}
			return nil
		}
	}
	return ErrDirectoryFull
}

// Remove clears the entry for name. Returns ErrNotFound if absent.
func (dir *Directory) Remove(name string) error {
	for i := range dir.Entries {
		if dir.Entries[i].InUse && dir.Entries[i].Name == name {
			dir.Entries[i] = DirEntry{}
			return nil
		}
	}
	return ErrNotFound
}

// IsEmpty reports whether every slot is unused, used by RemoveDirectory.
func (dir *Directory) IsEmpty() bool {
	for _, e := range dir.Entries {
		if e.InUse {
			return false
		}
	}
	return true
}

// List returns the in-use entry names, in slot order.
func (dir *Directory) List() []string {
	var names []string
	for _, e := range dir.Entries {
		if e.InUse {
			names = append(names, e.Name)
		}
	}
	return names
}
