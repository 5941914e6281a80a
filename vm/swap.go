package vm

import (
	"strconv"

	"github.com/Gastonm123/nachos-go/fs"
)

// Swap is a per-address-space backing store file, "swap.<asid>", removed
// on teardown (spec.md §4.8). It is not created at address-space init:
// AddressSpace creates it on the first eviction of a dirty page.
type Swap struct {
	fsys *fs.FileSystem
	sf   *fs.SharedFile
	name string
}

// NewSwap creates (or, if one already exists from a prior crash, reopens)
// the swap file for asid under the filesystem's root.
func NewSwap(fsys *fs.FileSystem, asid int) (*Swap, error) {
	name := "swap." + strconv.Itoa(asid)
	if err := fsys.Create(name, 0, 0); err != nil && err != fs.ErrExists {
		return nil, err
	}
	sf, err := fsys.Open(name, 0)
	if err != nil {
		return nil, err
	}
	return &Swap{fsys: fsys, sf: sf, name: name}, nil
}

// WriteSwap copies a page's worth of bytes into the swap file at the
// offset for vpn.
func (s *Swap) WriteSwap(vpn int, data *[PageSize]byte) error {
	return s.fsys.WriteFile(s.sf, data[:], vpn*PageSize)
}

// PullSwap copies the page stored for vpn back into data.
func (s *Swap) PullSwap(vpn int, data *[PageSize]byte) {
	s.fsys.ReadFile(s.sf, data[:], vpn*PageSize)
}

// Close unlinks the swap file and drops its FileTable reference; called on
// address-space teardown. Unlink runs first, matching the usual close-then-
// unlink order inverted only because Remove on a still-open file just marks
// it for deferred deallocation (fs.FileSystem.Remove) rather than freeing it
// immediately, so the actual reclamation still happens at the Close below.
func (s *Swap) Close() {
	s.fsys.Remove(s.name, 0)
	s.fsys.Files.Close(s.sf.Sector)
}
