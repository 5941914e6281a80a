package kernel

import (
	"errors"

	"github.com/Gastonm123/nachos-go/kthread"
	"github.com/Gastonm123/nachos-go/machine"
	"github.com/Gastonm123/nachos-go/syscalls"
	"github.com/Gastonm123/nachos-go/vm"
)

// ErrUnknownProgram is returned by Launcher.Exec for a path with no
// registered Program (spec.md §7 stratum 2: an expected, typed failure).
var ErrUnknownProgram = errors.New("kernel: no program registered at that path")

// defaultUserMemSize sizes each forked program's private fake machine;
// spec.md leaves the real MIPS interpreter out of scope (§6: "None of
// these are implemented here as a real interpreter"), so Program.Run
// stands in for fetch-decode-execute against this flat memory.
const defaultUserMemSize = 64 * 1024

// Program is a registered executable: its image, which sizes and
// demand-pages its AddressSpace, and the closure standing in for running
// its code against a simulated machine. Run is handed its own private
// machine.Machine and a syscalls.Handler already wired to the forked
// thread, the way a loader would hand off to the CPU after setting up
// the initial register state.
type Program struct {
	Image machine.Executable
	Run   func(m machine.Machine, h *syscalls.Handler, argv []string)
}

// Launcher implements syscalls.ProcessLauncher: Exec looks up path in a
// registry of Programs, builds a fresh AddressSpace, FDTable, and private
// machine for it, and forks a thread running it (spec.md §4.9: "Exec
// forks a new thread").
type Launcher struct {
	sys      *System
	programs map[string]Program
}

// NewLauncher returns an empty registry bound to sys.
func NewLauncher(sys *System) *Launcher {
	return &Launcher{sys: sys, programs: make(map[string]Program)}
}

// Register adds path to the set Exec can launch.
func (l *Launcher) Register(path string, p Program) {
	l.programs[path] = p
}

// Exec implements syscalls.ProcessLauncher.
func (l *Launcher) Exec(path string, argv []string) (*kthread.Thread, error) {
	p, ok := l.programs[path]
	if !ok {
		return nil, ErrUnknownProgram
	}

	var thread *kthread.Thread
	t, err := l.sys.Scheduler.Fork(path, func(arg any) {
		asid := thread.Tid()
		as, err := vm.NewAddressSpace(asid, p.Image, l.sys.Config.Eager, l.sys.CoreMap, func() (*vm.Swap, error) {
			return vm.NewSwap(l.sys.FS, asid)
		})
		if err != nil {
			l.sys.Scheduler.Exit(-1)
			return
		}
		thread.SetAddrSpace(as)
		thread.SetFileTable(syscalls.NewFDTable(l.sys.FS))

		m := machine.NewFakeMachine(defaultUserMemSize)
		thread.SetMachine(m)
		h := syscalls.NewHandler(m, l.sys.Console, l.sys.Scheduler, l)
		p.Run(m, h, argv)
	}, nil, true)
	if err != nil {
		return nil, err
	}
	thread = t
	return t, nil
}
