package syscalls

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Gastonm123/nachos-go/kthread"
	"github.com/Gastonm123/nachos-go/machine"
)

// Syscall identifiers, passed in machine.RegResult (see Dispatch). The ordering
// follows spec.md's own listing, not any particular original_source
// numbering (that header was not part of the retrieved sources).
const (
	SysHalt = iota
	SysCreate
	SysRemove
	SysOpen
	SysClose
	SysRead
	SysWrite
	SysExec
	SysJoin
	SysExit
	SysPs
)

// ProcessLauncher is the kernel-level callback Exec delegates to: load
// path as an executable, build a fresh address space and file table, and
// fork a thread running it. Kept as an interface so this package does not
// need to import vm (which would own the executable loader and the
// AddressSpace construction).
type ProcessLauncher interface {
	Exec(path string, argv []string) (*kthread.Thread, error)
}

// Handler is the syscall dispatcher for one simulated machine: it owns
// the console, the per-process launcher, and the scheduler, and looks up
// the calling thread's own FDTable for each fd-bearing call (spec.md §4.9).
type Handler struct {
	m       machine.Machine
	console machine.Console
	sched   *kthread.Scheduler
	launch  ProcessLauncher

	mu        sync.Mutex
	processes map[int]*kthread.Thread
}

// NewHandler wires a Handler to m. Each thread's FDTable is found through
// its Thread.FileTableIface() (set via SetFileTable when the thread was
// forked); a thread with no file table attached cannot make fd-bearing
// syscalls, which is a kernel wiring bug, not a user error, so fdTableOf
// panics rather than returning an error.
func NewHandler(m machine.Machine, console machine.Console, sched *kthread.Scheduler, launch ProcessLauncher) *Handler {
	return &Handler{
		m:         m,
		console:   console,
		sched:     sched,
		launch:    launch,
		processes: make(map[int]*kthread.Thread),
	}
}

func fdTableOf(t *kthread.Thread) *FDTable {
	ft, ok := t.FileTableIface().(*FDTable)
	if !ok {
		panic("syscalls: current thread has no FDTable attached")
	}
	return ft
}

// Dispatch reads the syscall id from machine.RegResult and its arguments
// from general registers 4-7 (RegGeneral0+4 through RegGeneral0+7), runs
// it, and writes the result back to machine.RegResult. General register 2
// is neither read nor written. Callers invoke Dispatch directly; nothing
// installs it as the machine.SyscallException handler.
func (h *Handler) Dispatch(onFault func()) {
	id := int(h.m.ReadRegister(machine.RegResult))
	var args [4]uint32
	for i := range args {
		args[i] = h.m.ReadRegister(machine.RegGeneral0 + 4 + i)
	}
	tr := NewTransfer(h.m, onFault)
	result, halted := h.handle(id, args, tr)
	if halted {
		return
	}
	h.m.WriteRegister(machine.RegResult, result)
	h.advancePC()
}

func (h *Handler) advancePC() {
	pc := h.m.ReadRegister(machine.RegNextPC)
	h.m.WriteRegister(machine.RegPC, pc)
	h.m.WriteRegister(machine.RegNextPC, pc+4)
}

// handle runs one syscall by id, returning its result register value and
// whether the machine halted (Halt never returns to the caller).
func (h *Handler) handle(id int, args [4]uint32, tr *Transfer) (result uint32, halted bool) {
	cur := h.sched.CurrentThread()
	fds := fdTableOf(cur)

	switch id {
	case SysHalt:
		log.Info("syscalls: halt")
		return 0, true

	case SysCreate:
		path, _ := tr.ReadStringFromUser(args[0], maxPathLen)
		return okOrNeg1(fds.Create(path)), false

	case SysRemove:
		path, _ := tr.ReadStringFromUser(args[0], maxPathLen)
		return okOrNeg1(fds.Remove(path)), false

	case SysOpen:
		path, _ := tr.ReadStringFromUser(args[0], maxPathLen)
		fd, err := fds.Open(path, 0)
		if err != nil {
			return uint32(0xffffffff), false
		}
		return uint32(fd), false

	case SysClose:
		fd := int(int32(args[0]))
		if fd == ConsoleInFd || fd == ConsoleOutFd {
			return 0, false
		}
		if err := fds.Close(fd); err != nil {
			return uint32(0xffffffff), false
		}
		return 0, false

	case SysRead:
		buf := int(int32(args[0]))
		n := int(int32(args[1]))
		fd := int(int32(args[2]))
		return uint32(h.sysRead(tr, buf, n, fd, fds)), false

	case SysWrite:
		buf := int(int32(args[0]))
		n := int(int32(args[1]))
		fd := int(int32(args[2]))
		return uint32(h.sysWrite(tr, buf, n, fd, fds)), false

	case SysExec:
		path, _ := tr.ReadStringFromUser(args[0], maxPathLen)
		t, err := h.launch.Exec(path, nil)
		if err != nil {
			return uint32(0xffffffff), false
		}
		h.mu.Lock()
		h.processes[t.Tid()] = t
		h.mu.Unlock()
		return uint32(t.Tid()), false

	case SysJoin:
		tid := int(int32(args[0]))
		h.mu.Lock()
		t, ok := h.processes[tid]
		if ok {
			delete(h.processes, tid)
		}
		h.mu.Unlock()
		if !ok {
			return uint32(0xffffffff), false
		}
		return uint32(int32(h.sched.Join(t))), false

	case SysExit:
		status := int(int32(args[0]))
		h.sched.Exit(status)
		return 0, false // unreachable: Exit never returns

	case SysPs:
		log.WithField("tid", cur.Tid()).Info("syscalls: ps")
		return 0, false

	default:
		log.WithField("id", id).Warn("syscalls: unknown syscall id")
		return uint32(0xffffffff), false
	}
}

const maxPathLen = 256

func (h *Handler) sysRead(tr *Transfer, buf, n, fd int, fds *FDTable) int {
	if n <= 0 {
		return 0
	}
	if fd == ConsoleInFd {
		out := make([]byte, 0, n)
		for len(out) < n {
			b, ok := h.console.ReadByte()
			if !ok {
				break
			}
			out = append(out, b)
		}
		tr.WriteBufferToUser(uint32(buf), out)
		return len(out)
	}
	p := make([]byte, n)
	read, err := fds.Read(fd, p)
	if err != nil {
		return -1
	}
	tr.WriteBufferToUser(uint32(buf), p[:read])
	return read
}

func (h *Handler) sysWrite(tr *Transfer, buf, n, fd int, fds *FDTable) int {
	if n <= 0 {
		return 0
	}
	p := tr.ReadBufferFromUser(uint32(buf), n)
	if fd == ConsoleOutFd {
		for _, b := range p {
			h.console.WriteByte(b)
		}
		return len(p)
	}
	written, err := fds.Write(fd, p)
	if err != nil {
		return -1
	}
	return written
}

func okOrNeg1(err error) uint32 {
	if err != nil {
		return uint32(0xffffffff)
	}
	return 0
}
