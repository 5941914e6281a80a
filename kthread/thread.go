// Package kthread implements the thread kernel: TCBs, cooperative
// scheduling over a 140-level priority array, and the one-slot "thread to
// be destroyed" handoff (spec.md §4.1/§4.2). Grounded on cdfmlr-sham's
// goroutine-per-thread model (cpu.go, process.go, os.go), generalized from
// a flat ready slice to priority.Array and from a single always-resident
// process table to Fork/Join/Finish semantics matching Nachos.
package kthread

import (
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/Gastonm123/nachos-go/machine"
	"github.com/Gastonm123/nachos-go/synch"
)

// Status is a thread's scheduling state (spec.md §3).
type Status int

const (
	JustCreated Status = iota
	Ready
	Running
	Blocked
)

func (s Status) String() string {
	switch s {
	case JustCreated:
		return "JustCreated"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Blocked:
		return "Blocked"
	default:
		return "Unknown"
	}
}

// DefaultPriority is the priority assigned to a thread with nice 0
// (spec.md §3).
const DefaultPriority = 120

// AddrSpace is the minimal view kthread needs of a process's address
// space, so this package does not need to import vm.
// SyncFromTLB/RestoreState are called by the scheduler around every
// context switch involving a thread that owns one (spec.md §4.8's
// SaveState/RestoreState), the software side of a TLB flush.
type AddrSpace interface {
	Destroy()
	SyncFromTLB(m machine.Machine)
	RestoreState(m machine.Machine)
}

// FileTable is the minimal view kthread needs of a per-process open-file
// table, for the same layering reason.
type FileTable interface {
	CloseAll()
}

// Thread is a TCB: a name, a goroutine standing in for the saved machine
// state + execution stack, a status, a priority, an optional join channel,
// and optionally an owned address space and file table.
type Thread struct {
	tid      int
	name     string
	status   Status
	priority int
	nice     int

	joinable bool
	joinCh   *synch.Channel
	joined   bool

	as   AddrSpace
	ft   FileTable
	mach machine.Machine

	// resume is the "stack switch" stand-in: the scheduler sends on it to
	// unpark this thread's goroutine when it is chosen to run.
	resume chan struct{}
	// exitCode is latched by Exit/Finish before the join channel send.
	exitCode int
}

func (t *Thread) ID() string    { return fmt.Sprintf("tid%d:%s", t.tid, t.name) }
func (t *Thread) Tid() int      { return t.tid }
func (t *Thread) Name() string  { return t.name }
func (t *Thread) Status() Status { return t.status }

// Priority implements synch.Waiter.
func (t *Thread) Priority() int { return t.priority }

// SetPriority implements synch.Waiter; used directly only by priority
// donation (synch.Lock) and Nice.
func (t *Thread) SetPriority(p int) { t.priority = p }

// Nice sets the thread's priority to DefaultPriority+n, n in [-20,20).
func (t *Thread) Nice(n int) {
	if n < -20 || n >= 20 {
		panic("kthread: nice value out of range [-20,20)")
	}
	t.nice = n
	t.priority = DefaultPriority + n
}

// SetAddrSpace / AddrSpaceIface let syscalls/vm attach a process's address
// space to the thread that owns it without kthread importing vm.
func (t *Thread) SetAddrSpace(as AddrSpace) { t.as = as }
func (t *Thread) AddrSpaceIface() AddrSpace { return t.as }

func (t *Thread) SetFileTable(ft FileTable) { t.ft = ft }
func (t *Thread) FileTableIface() FileTable { return t.ft }

// SetMachine / MachineIface attach the simulated machine a user thread
// runs against, so the scheduler can drive its AddrSpace's TLB
// sync/restore around a context switch without this package importing
// vm or syscalls.
func (t *Thread) SetMachine(m machine.Machine) { t.mach = m }
func (t *Thread) MachineIface() machine.Machine { return t.mach }

var tidCounter int64

func nextTid() int {
	return int(atomic.AddInt64(&tidCounter, 1))
}

func newThread(name string) *Thread {
	return &Thread{
		tid:      nextTid(),
		name:     name,
		status:   JustCreated,
		priority: DefaultPriority,
		resume:   make(chan struct{}, 1),
	}
}

func (t *Thread) logFields() log.Fields {
	return log.Fields{"tid": t.tid, "name": t.name, "status": t.status.String(), "priority": t.priority}
}
