// Package machine defines the external, simulated-hardware surface the
// rest of the kernel is built against: the MIPS register file and MMU, the
// async disk, the executable loader format, and the console. None of these
// are implemented here as a real interpreter/controller — spec.md §6 calls
// the interpreter, disk device, console driver, and loader out of scope —
// only the interfaces and the minimal deterministic fakes the kernel's own
// tests drive.
package machine

import log "github.com/sirupsen/logrus"

// Register identifiers, matching the MIPS register file Nachos exposes to
// the kernel (original_source/Trunk/code/machine/machine.hh's enum).
const (
	RegPC = iota
	RegNextPC
	RegPrevPC
	RegStack
	RegResult
	// RegGeneral0 is the first of 32 general-purpose MIPS registers; the
	// syscall argument bank (registers 4-7 per spec.md §4.9) lives among
	// these.
	RegGeneral0
	NumRegisters = RegGeneral0 + 32
)

// ExceptionType is the reason the simulated CPU trapped into the kernel
// (spec.md §6).
type ExceptionType int

const (
	NoException ExceptionType = iota
	SyscallException
	PageFaultException
	ReadOnlyException
	BusErrorException
	AddressErrorException
	OverflowException
	IllegalInstrException
)

func (e ExceptionType) String() string {
	switch e {
	case NoException:
		return "None"
	case SyscallException:
		return "Syscall"
	case PageFaultException:
		return "PageFault"
	case ReadOnlyException:
		return "ReadOnly"
	case BusErrorException:
		return "BusError"
	case AddressErrorException:
		return "AddressError"
	case OverflowException:
		return "Overflow"
	case IllegalInstrException:
		return "IllegalInstr"
	default:
		return "Unknown"
	}
}

// TLBSize is the number of software TLB entries, matching classic Nachos
// params (original_source's params.h was not part of the retrieved source,
// so this follows the well-known Nachos default of 4).
const TLBSize = 4

// PageSize is the MMU page size in bytes; equal to SectorSize, matching
// classic Nachos so a page transfers in exactly one disk sector.
const PageSize = SectorSize

// TLBEntry mirrors the fields spec.md §6 names for software-TLB bookkeeping.
type TLBEntry struct {
	VirtualPage  int
	PhysicalPage int
	Valid        bool
	Use          bool
	Dirty        bool
	ReadOnly     bool
}

// Machine is the simulated CPU/MMU surface: register file, byte-addressed
// memory with retryable access (so the kernel can drive a software-TLB
// miss/page-fault path), exception handler registration, and a fixed-size
// TLB.
type Machine interface {
	ReadRegister(reg int) uint32
	WriteRegister(reg int, value uint32)

	// ReadMem/WriteMem return ok=false on a translation failure (no valid
	// TLB entry maps the address), letting the kernel retry once after
	// servicing the fault, per spec.md §4.9.
	ReadMem(addr uint32, size int) (value uint32, ok bool)
	WriteMem(addr uint32, size int, value uint32) (ok bool)

	// SetHandler installs the kernel callback invoked whenever the
	// simulated CPU raises exc.
	SetHandler(exc ExceptionType, handler func())
	RaiseException(exc ExceptionType)

	// TLB returns the live TLB entry slice (len == TLBSize); mutated
	// in place by SetTLBEntry.
	TLB() []TLBEntry
	SetTLBEntry(i int, e TLBEntry)
}

// fakeMachine is a deterministic Machine used only by the kernel's own
// tests: memory is a flat byte slice, the TLB is a plain slice, and
// exception handlers are invoked synchronously by RaiseException.
type fakeMachine struct {
	regs     [NumRegisters]uint32
	mem      []byte
	tlb      [TLBSize]TLBEntry
	handlers map[ExceptionType]func()
}

// NewFakeMachine returns a Machine backed by memSize bytes of flat memory,
// for use in package tests that need something implementing Machine
// without a real interpreter.
func NewFakeMachine(memSize int) Machine {
	return &fakeMachine{
		mem:      make([]byte, memSize),
		handlers: make(map[ExceptionType]func()),
	}
}

func (m *fakeMachine) ReadRegister(reg int) uint32 { return m.regs[reg] }
func (m *fakeMachine) WriteRegister(reg int, v uint32) {
	m.regs[reg] = v
}

func (m *fakeMachine) ReadMem(addr uint32, size int) (uint32, bool) {
	if int(addr)+size > len(m.mem) {
		return 0, false
	}
	var v uint32
	for i := 0; i < size; i++ {
		v |= uint32(m.mem[int(addr)+i]) << uint(8*i)
	}
	return v, true
}

func (m *fakeMachine) WriteMem(addr uint32, size int, value uint32) bool {
	if int(addr)+size > len(m.mem) {
		return false
	}
	for i := 0; i < size; i++ {
		m.mem[int(addr)+i] = byte(value >> uint(8*i))
	}
	return true
}

func (m *fakeMachine) SetHandler(exc ExceptionType, h func()) {
	m.handlers[exc] = h
}

func (m *fakeMachine) RaiseException(exc ExceptionType) {
	h := m.handlers[exc]
	if h == nil {
		log.WithField("exception", exc.String()).Warn("machine: unhandled exception")
		return
	}
	h()
}

func (m *fakeMachine) TLB() []TLBEntry { return m.tlb[:] }
func (m *fakeMachine) SetTLBEntry(i int, e TLBEntry) {
	m.tlb[i] = e
}
