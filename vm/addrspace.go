package vm

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/Gastonm123/nachos-go/machine"
)

// UserStackPages is the fixed number of pages reserved for the user stack
// at the top of every address space.
const UserStackPages = 8

var ErrBadVirtualPage = errors.New("vm: virtual page out of range")

// AddressSpace is one process's view of memory: a page table, a reference
// to the executable it was created from, and (created lazily, on first
// need) a Swap file (spec.md §4.8).
type AddressSpace struct {
	ID int // equals the owning thread's tid

	exe       machine.Executable
	pageTable []PageTableEntry
	coreMap   *CoreMap
	swap      *Swap
	newSwap   func() (*Swap, error) // deferred: most processes never page out
}

// NewAddressSpace parses exe's layout, sizes the page table to
// numPages = ceil((code+initData+uninitData)/PageSize) + UserStackPages,
// and either leaves every entry invalid (demand-paged) or immediately
// populates every frame from exe (eager).
func NewAddressSpace(asid int, exe machine.Executable, eager bool, coreMap *CoreMap, newSwap func() (*Swap, error)) (*AddressSpace, error) {
	dataBytes := int(exe.CodeSize()) + int(exe.InitDataSize()) + int(exe.UninitDataSize())
	numPages := (dataBytes + PageSize - 1) / PageSize
	numPages += UserStackPages

	as := &AddressSpace{
		ID:        asid,
		exe:       exe,
		pageTable: make([]PageTableEntry, numPages),
		coreMap:   coreMap,
		newSwap:   newSwap,
	}

	if eager {
		for vpn := range as.pageTable {
			if err := as.populate(vpn); err != nil {
				return nil, err
			}
		}
	}
	return as, nil
}

// NumPages returns the address space's page count.
func (as *AddressSpace) NumPages() int { return len(as.pageTable) }

func (as *AddressSpace) entry(vpn int) *PageTableEntry {
	return &as.pageTable[vpn]
}

// GetTranslationEntry resolves vpn, populating it on first touch (from
// swap if resident there, otherwise from the executable image), and
// allocating a fresh physical frame via CoreMap as needed (spec.md §4.8).
func (as *AddressSpace) GetTranslationEntry(vpn int) (*PageTableEntry, error) {
	if vpn < 0 || vpn >= len(as.pageTable) {
		return nil, ErrBadVirtualPage
	}
	e := &as.pageTable[vpn]
	if e.Valid {
		return e, nil
	}
	if e.InSwap {
		ppn := as.coreMap.FindPhysPage(as, vpn)
		as.coreMap.Frame(ppn)
		s, err := as.ensureSwap()
		if err != nil {
			return nil, err
		}
		s.PullSwap(vpn, as.coreMap.Frame(ppn))
		e.PhysicalPage = ppn
		e.Valid = true
		e.InSwap = false
		log.WithFields(log.Fields{"asid": as.ID, "vpn": vpn, "ppn": ppn}).Debug("vm: pulled from swap")
		return e, nil
	}
	if err := as.populate(vpn); err != nil {
		return nil, err
	}
	return e, nil
}

// populate allocates a frame for vpn and fills it from exe's code,
// init-data, or uninit-data segments (zero-fill for uninit and any
// portion beyond the executable's data, which also covers the stack).
func (as *AddressSpace) populate(vpn int) error {
	ppn := as.coreMap.FindPhysPage(as, vpn)
	buf := as.coreMap.Frame(ppn)
	for i := range buf {
		buf[i] = 0
	}

	start := vpn * PageSize
	end := start + PageSize
	readOnly := false

	codeEnd := int(as.exe.CodeSize())
	if start < codeEnd {
		n := min(end, codeEnd) - start
		block, err := as.exe.ReadCodeBlock(start, n)
		if err == nil {
			copy(buf[:n], block)
		}
		readOnly = true
	}
	dataStart := int(as.exe.InitDataAddr())
	dataEnd := dataStart + int(as.exe.InitDataSize())
	if end > dataStart && start < dataEnd {
		lo := max(start, dataStart)
		hi := min(end, dataEnd)
		block, err := as.exe.ReadDataBlock(lo-dataStart, hi-lo)
		if err == nil {
			copy(buf[lo-start:hi-start], block)
		}
	}

	as.pageTable[vpn] = PageTableEntry{PhysicalPage: ppn, Valid: true, ReadOnly: readOnly}
	return nil
}

func (as *AddressSpace) ensureSwap() (*Swap, error) {
	if as.swap != nil {
		return as.swap, nil
	}
	s, err := as.newSwap()
	if err != nil {
		return nil, err
	}
	as.swap = s
	return s, nil
}

// evict is CoreMap's callback when this address space's vpn is chosen as
// an eviction victim: the page table entry is marked invalid, and if it
// was dirty and not read-only, its bytes are written to swap first
// (spec.md §4.8).
func (as *AddressSpace) evict(vpn int, bytes *[PageSize]byte) {
	e := &as.pageTable[vpn]
	dirty := e.Dirty
	readOnly := e.ReadOnly
	*e = PageTableEntry{InSwap: e.InSwap}
	if dirty && !readOnly {
		s, err := as.ensureSwap()
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"asid": as.ID, "vpn": vpn}).Error("vm: could not open swap file for eviction")
			return
		}
		if err := s.WriteSwap(vpn, bytes); err != nil {
			log.WithError(err).WithFields(log.Fields{"asid": as.ID, "vpn": vpn}).Error("vm: swap write failed")
			return
		}
		e.InSwap = true
	}
}

// SyncFromTLB walks m's TLB entries, propagating their Use/Dirty bits
// back into the entries they shadow and invalidating them — the software
// side of a context switch's TLB eviction (spec.md §4.8 SaveState).
func (as *AddressSpace) SyncFromTLB(m machine.Machine) {
	tlb := m.TLB()
	for i := range tlb {
		t := &tlb[i]
		if !t.Valid {
			continue
		}
		if int(t.VirtualPage) < len(as.pageTable) {
			e := &as.pageTable[t.VirtualPage]
			e.Use = e.Use || t.Use
			e.Dirty = e.Dirty || t.Dirty
		}
		m.SetTLBEntry(i, machine.TLBEntry{})
	}
}

// RestoreState invalidates every TLB entry so the next memory reference
// faults through GetTranslationEntry under this address space's table
// (spec.md §4.8).
func (as *AddressSpace) RestoreState(m machine.Machine) {
	for i := 0; i < machine.TLBSize; i++ {
		m.SetTLBEntry(i, machine.TLBEntry{})
	}
}

// Destroy releases as's swap file, if one was ever created. Implements
// kthread.AddrSpace, invoked by the scheduler when reclaiming a finished
// thread.
func (as *AddressSpace) Destroy() {
	if as.swap != nil {
		as.swap.Close()
	}
}
