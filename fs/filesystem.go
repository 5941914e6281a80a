package fs

import (
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Gastonm123/nachos-go/disk"
	"github.com/Gastonm123/nachos-go/machine"
	"github.com/Gastonm123/nachos-go/synch"
)

// FreeMapSector and RootDirSector are the two well-known header sectors a
// Format lays down; a Boot without format simply reopens them
// (spec.md §4.6).
const (
	FreeMapSector = 0
	RootDirSector = 1
)

var ErrNotADirectory = errors.New("fs: not a directory")
var ErrIsADirectory = errors.New("fs: is a directory, use the directory operations")
var ErrDirectoryBusy = errors.New("fs: directory is open elsewhere")
var ErrDirectoryNotEmpty = errors.New("fs: directory is not empty")
var ErrBadPath = errors.New("fs: path has no leaf component")

// FileSystem ties the free-map, the root directory, and the shared
// FileTable together. The free-map and root-directory files are kept open
// for the life of the system as ordinary (permanently refcounted)
// FileTable entries, the same object every other lookup of sector 0 or 1
// would get back — there is never a second, independently-mutated copy of
// either header floating around.
type FileSystem struct {
	d     *disk.SynchDisk
	in    *synch.Interrupts
	sched synch.SchedulerHooks

	freeMapLock *synch.Lock
	freeMap     *SharedFile
	bitmap      *Bitmap

	root *SharedFile

	Files *FileTable
}

// Format lays down a fresh free-map and root directory on d, then opens
// them for the returned FileSystem.
func Format(d *disk.SynchDisk, in *synch.Interrupts, sched synch.SchedulerHooks) *FileSystem {
	bm := NewBitmap()
	bm.Mark(FreeMapSector)
	bm.Mark(RootDirSector)

	freeMapHeader := &FileHeader{}
	if err := freeMapHeader.Allocate(d, bm, BitmapFileSize); err != nil {
		panic("fs: format could not allocate the free-map file: " + err.Error())
	}
	rootHeader := &FileHeader{Directory: true}
	if err := rootHeader.Allocate(d, bm, DirectoryFileSize); err != nil {
		panic("fs: format could not allocate the root directory: " + err.Error())
	}

	freeMapHeader.WriteAt(d, bm.Bytes(), 0)
	(&Directory{}).WriteBack(d, rootHeader)
	freeMapHeader.WriteBack(d, FreeMapSector)
	rootHeader.WriteBack(d, RootDirSector)

	log.Info("fs: formatted")
	return newFileSystem(d, in, sched, bm)
}

// Boot reopens the free-map and root directory a prior Format laid down.
func Boot(d *disk.SynchDisk, in *synch.Interrupts, sched synch.SchedulerHooks) *FileSystem {
	freeMapHeader := FetchHeader(d, FreeMapSector)
	buf := make([]byte, BitmapFileSize)
	freeMapHeader.ReadAt(d, buf, 0)
	bm := BitmapFromBytes(buf)
	return newFileSystem(d, in, sched, bm)
}

func newFileSystem(d *disk.SynchDisk, in *synch.Interrupts, sched synch.SchedulerHooks, bm *Bitmap) *FileSystem {
	files := NewFileTable(d, in, sched)
	fs := &FileSystem{
		d:           d,
		in:          in,
		sched:       sched,
		freeMapLock: synch.NewLock("freemap", in, sched, false),
		bitmap:      bm,
		Files:       files,
		freeMap:     files.Open(FreeMapSector),
		root:        files.Open(RootDirSector),
	}
	fs.Files.SetFreeSectors(fs.freeSectors)
	return fs
}

// freeSectors is the FileTable's deferred-delete callback: it deallocates
// header's blocks and the header's own sector under the free-map lock.
func (fs *FileSystem) freeSectors(header *FileHeader, sector int) {
	fs.freeMapLock.Acquire()
	defer fs.freeMapLock.Release()
	header.Deallocate(fs.d, fs.bitmap)
	mustClear(fs.bitmap, int32(sector))
	fs.flushBitmapLocked()
}

func (fs *FileSystem) flushBitmapLocked() {
	fs.freeMap.Header.WriteAt(fs.d, fs.bitmap.Bytes(), 0)
}

func resolveStart(path string, cwd int) (start int, rest string) {
	if strings.HasPrefix(path, "/") {
		return RootDirSector, strings.TrimPrefix(path, "/")
	}
	if cwd == 0 {
		return RootDirSector, path
	}
	return cwd, path
}

// FindFile walks path's intermediate components starting from root (if
// path begins with "/") or cwd, returning the SharedFile of the directory
// that would contain the leaf and the leaf name itself. A trailing "/"
// names the directory reached with no leaf. The returned directory is left
// open (in fs.Files) and locked; the caller must Release its Lock and
// Files.Close its Sector when done (spec.md §4.6).
func (fs *FileSystem) FindFile(path string, cwd int) (*SharedFile, string, error) {
	start, rest := resolveStart(path, cwd)
	trailingSlash := strings.HasSuffix(rest, "/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		parts = nil
	}

	cur := fs.Files.Open(start)
	cur.Lock.Acquire()

	leaf := ""
	walk := parts
	if !trailingSlash && len(parts) > 0 {
		walk = parts[:len(parts)-1]
		leaf = parts[len(parts)-1]
	}

	for _, name := range walk {
		dir := FetchDirectory(fs.d, cur.Header)
		next := dir.Find(name)
		if next == -1 {
			cur.Lock.Release()
			fs.Files.Close(cur.Sector)
			return nil, "", ErrNotFound
		}
		if !FetchHeader(fs.d, int(next)).Directory {
			cur.Lock.Release()
			fs.Files.Close(cur.Sector)
			return nil, "", ErrNotADirectory
		}
		cur.Lock.Release()
		fs.Files.Close(cur.Sector)
		cur = fs.Files.Open(int(next))
		cur.Lock.Acquire()
	}
	return cur, leaf, nil
}

func (fs *FileSystem) releaseDir(dirSF *SharedFile) {
	dirSF.Lock.Release()
	fs.Files.Close(dirSF.Sector)
}

// Create allocates a new, empty file of size bytes named by path.
func (fs *FileSystem) Create(path string, size int, cwd int) error {
	dirSF, leaf, err := fs.FindFile(path, cwd)
	if err != nil {
		return err
	}
	defer fs.releaseDir(dirSF)
	if leaf == "" {
		return ErrBadPath
	}

	dir := FetchDirectory(fs.d, dirSF.Header)
	if dir.Find(leaf) != -1 {
		return ErrExists
	}

	fs.freeMapLock.Acquire()
	defer fs.freeMapLock.Release()

	headerSector := fs.bitmap.Find()
	if headerSector == -1 {
		return ErrDiskFull
	}
	header := &FileHeader{}
	if err := header.Allocate(fs.d, fs.bitmap, size); err != nil {
		fs.bitmap.Clear(headerSector)
		return err
	}
	if err := dir.Add(leaf, int32(headerSector)); err != nil {
		header.Deallocate(fs.d, fs.bitmap)
		fs.bitmap.Clear(headerSector)
		return err
	}

	header.WriteBack(fs.d, headerSector)
	dir.WriteBack(fs.d, dirSF.Header)
	fs.flushBitmapLocked()
	log.WithField("path", path).Debug("fs: created")
	return nil
}

// Open resolves path to a file and returns its shared, refcounted entry.
// The caller must eventually Files.Close(sf.Sector).
func (fs *FileSystem) Open(path string, cwd int) (*SharedFile, error) {
	dirSF, leaf, err := fs.FindFile(path, cwd)
	if err != nil {
		return nil, err
	}
	defer fs.releaseDir(dirSF)
	if leaf == "" {
		return fs.Files.Open(dirSF.Sector), nil
	}

	dir := FetchDirectory(fs.d, dirSF.Header)
	sector := dir.Find(leaf)
	if sector == -1 {
		return nil, ErrNotFound
	}
	return fs.Files.Open(int(sector)), nil
}

// ReadFile copies len(p) bytes from sf at byte offset off. The caller
// holds sf open (and, if multiple threads share it, should hold sf.Lock).
func (fs *FileSystem) ReadFile(sf *SharedFile, p []byte, off int) {
	sf.Header.ReadAt(fs.d, p, off)
}

// WriteFile writes p into sf at byte offset off, extending (and
// zero-filling any gap in) the file first if the write runs past its
// current size.
func (fs *FileSystem) WriteFile(sf *SharedFile, p []byte, off int) error {
	need := off + len(p)
	if int32(need) > sf.Header.NumBytes {
		fs.freeMapLock.Acquire()
		err := sf.Header.Extend(fs.d, fs.bitmap, need)
		if err == nil {
			fs.flushBitmapLocked()
		}
		fs.freeMapLock.Release()
		if err != nil {
			return err
		}
		sf.Header.WriteBack(fs.d, sf.Sector)
	}
	sf.Header.WriteAt(fs.d, p, off)
	return nil
}

// Disk exposes the underlying disk for components (e.g. vm.Swap) that
// must size their own raw I/O against it without duplicating the
// filesystem's own locking.
func (fs *FileSystem) Disk() *disk.SynchDisk { return fs.d }

// Remove unlinks path's leaf. If it is currently open elsewhere, its
// blocks are liberated only once the last FileTable.Close drops its
// refcount to zero; otherwise they are freed immediately.
func (fs *FileSystem) Remove(path string, cwd int) error {
	dirSF, leaf, err := fs.FindFile(path, cwd)
	if err != nil {
		return err
	}
	defer fs.releaseDir(dirSF)
	if leaf == "" {
		return ErrBadPath
	}

	dir := FetchDirectory(fs.d, dirSF.Header)
	sector := dir.Find(leaf)
	if sector == -1 {
		return ErrNotFound
	}
	header := FetchHeader(fs.d, int(sector))
	if header.Directory {
		return ErrIsADirectory
	}

	if fs.Files.Used(int(sector)) {
		fs.Files.MarkForRemove(int(sector))
	} else {
		fs.freeMapLock.Acquire()
		header.Deallocate(fs.d, fs.bitmap)
		mustClear(fs.bitmap, sector)
		fs.flushBitmapLocked()
		fs.freeMapLock.Release()
	}

	dir.Remove(leaf)
	dir.WriteBack(fs.d, dirSF.Header)
	log.WithField("path", path).Debug("fs: removed")
	return nil
}

// Check walks every FileHeader reachable from the free-map and root
// directory sectors and reports whether the set of sectors it visits
// (each header's own sector plus its direct/indirect/double-indirect
// blocks) is exactly the set the free-map bitmap has marked in-use: no
// reachable sector left unmarked, no marked sector left unreachable
// (spec.md §4.6's filesystem invariant, checkable after any sequence of
// Create/Remove/Extend once no file is left open elsewhere).
func (fs *FileSystem) Check() bool {
	reachable := NewBitmap()
	reachable.Mark(FreeMapSector)
	reachable.Mark(RootDirSector)

	markHeaderSectors(fs.d, reachable, FetchHeader(fs.d, FreeMapSector))
	fs.checkDirectory(reachable, RootDirSector)

	for s := 0; s < machine.NumSectors; s++ {
		if reachable.Test(s) != fs.bitmap.Test(s) {
			return false
		}
	}
	return true
}

// checkDirectory marks sector's own header sectors reachable, then walks
// every in-use entry, recursing into subdirectories.
func (fs *FileSystem) checkDirectory(reachable *Bitmap, sector int) {
	header := FetchHeader(fs.d, sector)
	markHeaderSectors(fs.d, reachable, header)

	dir := FetchDirectory(fs.d, header)
	for _, e := range dir.Entries {
		if !e.InUse {
			continue
		}
		reachable.Mark(int(e.Sector))
		child := FetchHeader(fs.d, int(e.Sector))
		markHeaderSectors(fs.d, reachable, child)
		if child.Directory {
			fs.checkDirectory(reachable, int(e.Sector))
		}
	}
}

// markHeaderSectors marks every sector header addresses directly: its data
// sectors and its indirect/double-indirect descriptor sectors, mirroring
// FileHeader.Deallocate's own walk of the same structure.
func markHeaderSectors(d *disk.SynchDisk, reachable *Bitmap, header *FileHeader) {
	for i := int32(0); i < header.NumSectors; i++ {
		reachable.Mark(int(header.sectorAt(d, i)))
	}
	if header.Indirect != 0 {
		reachable.Mark(int(header.Indirect))
	}
	if header.DoubleIndir != 0 {
		reachable.Mark(int(header.DoubleIndir))
		n := header.NumSectors - directPlusIndirectCapacity()
		if n > 0 {
			numSingle := (n + NumDataPtr - 1) / NumDataPtr
			for i := int32(0); i < numSingle; i++ {
				s := readIndirectEntry(d, header.DoubleIndir, i)
				if s != 0 {
					reachable.Mark(int(s))
				}
			}
		}
	}
}

// MakeDirectory creates an empty subdirectory named by path.
func (fs *FileSystem) MakeDirectory(path string, cwd int) error {
	dirSF, leaf, err := fs.FindFile(path, cwd)
	if err != nil {
		return err
	}
	defer fs.releaseDir(dirSF)
	if leaf == "" {
		return ErrBadPath
	}

	dir := FetchDirectory(fs.d, dirSF.Header)
	if dir.Find(leaf) != -1 {
		return ErrExists
	}

	fs.freeMapLock.Acquire()
	defer fs.freeMapLock.Release()

	headerSector := fs.bitmap.Find()
	if headerSector == -1 {
		return ErrDiskFull
	}
	header := &FileHeader{Directory: true}
	if err := header.Allocate(fs.d, fs.bitmap, DirectoryFileSize); err != nil {
		fs.bitmap.Clear(headerSector)
		return err
	}
	if err := dir.Add(leaf, int32(headerSector)); err != nil {
		header.Deallocate(fs.d, fs.bitmap)
		fs.bitmap.Clear(headerSector)
		return err
	}

	(&Directory{}).WriteBack(fs.d, header)
	header.WriteBack(fs.d, headerSector)
	dir.WriteBack(fs.d, dirSF.Header)
	fs.flushBitmapLocked()
	log.WithField("path", path).Debug("fs: mkdir")
	return nil
}

// resolveDirectory resolves path to the header sector of the directory it
// names (which may be path itself via a trailing "/", or its leaf
// component).
func (fs *FileSystem) resolveDirectory(path string, cwd int) (int, error) {
	dirSF, leaf, err := fs.FindFile(path, cwd)
	if err != nil {
		return 0, err
	}
	defer fs.releaseDir(dirSF)
	if leaf == "" {
		return dirSF.Sector, nil
	}
	dir := FetchDirectory(fs.d, dirSF.Header)
	sector := dir.Find(leaf)
	if sector == -1 {
		return 0, ErrNotFound
	}
	if !FetchHeader(fs.d, int(sector)).Directory {
		return 0, ErrNotADirectory
	}
	return int(sector), nil
}

// ChangeDirectory resolves path to a directory's header sector, for the
// caller (the per-thread current-directory field) to adopt. A bare "/"
// resolves to root; an empty path has no leaf component to speak of and is
// always ErrBadPath, distinctly from "/" even though resolveStart/FindFile
// would otherwise normalize both to the same (start, leaf="") pair when
// cwd is root.
func (fs *FileSystem) ChangeDirectory(path string, cwd int) (int, error) {
	if path == "" {
		return 0, ErrBadPath
	}
	return fs.resolveDirectory(path, cwd)
}

// ListDirectory returns the names contained in the directory path names.
func (fs *FileSystem) ListDirectory(path string, cwd int) ([]string, error) {
	sector, err := fs.resolveDirectory(path, cwd)
	if err != nil {
		return nil, err
	}
	sf := fs.Files.Open(sector)
	defer fs.Files.Close(sector)
	dir := FetchDirectory(fs.d, sf.Header)
	return dir.List(), nil
}

// RemoveDirectory removes an empty, unopened subdirectory named by path.
func (fs *FileSystem) RemoveDirectory(path string, cwd int) error {
	dirSF, leaf, err := fs.FindFile(path, cwd)
	if err != nil {
		return err
	}
	defer fs.releaseDir(dirSF)
	if leaf == "" {
		return ErrBadPath
	}

	dir := FetchDirectory(fs.d, dirSF.Header)
	sector := dir.Find(leaf)
	if sector == -1 {
		return ErrNotFound
	}
	header := FetchHeader(fs.d, int(sector))
	if !header.Directory {
		return ErrNotADirectory
	}
	if fs.Files.Used(int(sector)) {
		return ErrDirectoryBusy
	}
	subdir := FetchDirectory(fs.d, header)
	if !subdir.IsEmpty() {
		return ErrDirectoryNotEmpty
	}

	fs.freeMapLock.Acquire()
	header.Deallocate(fs.d, fs.bitmap)
	mustClear(fs.bitmap, sector)
	fs.flushBitmapLocked()
	fs.freeMapLock.Release()

	dir.Remove(leaf)
	dir.WriteBack(fs.d, dirSF.Header)
	log.WithField("path", path).Debug("fs: rmdir")
	return nil
}
