// Package kernel ties the simulated machine, disk, filesystem, thread
// scheduler, and virtual-memory core map into one explicit system
// context, and owns boot/halt and debug-flag wiring (spec.md §6 CLI
// surface, §9 Design Notes). Grounded on cdfmlr-sham's OS struct
// (os.go), which already bundles CPU/Mem/Devs/Scheduler as one explicit
// context rather than free-floating singletons, generalized from a flat
// process table to this kernel's scheduler/filesystem/vm singletons, and
// init.go's logrus setup.
package kernel

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Gastonm123/nachos-go/disk"
	"github.com/Gastonm123/nachos-go/fs"
	"github.com/Gastonm123/nachos-go/kthread"
	"github.com/Gastonm123/nachos-go/machine"
	"github.com/Gastonm123/nachos-go/synch"
	"github.com/Gastonm123/nachos-go/vm"
)

// DebugFlags enables per-subsystem trace logging (spec.md §6: "debug-flag
// string enabling per-subsystem traces: 't' threads, 'a' address spaces,
// 'f' filesystem, 'e' syscalls, 'x' vm").
type DebugFlags struct {
	Threads      bool
	AddressSpace bool
	Filesystem   bool
	Syscalls     bool
	VM           bool
}

// ParseDebugFlags turns a flag string like "tf" into a DebugFlags.
func ParseDebugFlags(s string) DebugFlags {
	var f DebugFlags
	for _, c := range s {
		switch c {
		case 't':
			f.Threads = true
		case 'a':
			f.AddressSpace = true
		case 'f':
			f.Filesystem = true
		case 'e':
			f.Syscalls = true
		case 'x':
			f.VM = true
		}
	}
	return f
}

func (f DebugFlags) any() bool {
	return f.Threads || f.AddressSpace || f.Filesystem || f.Syscalls || f.VM
}

func (f DebugFlags) String() string {
	var b strings.Builder
	if f.Threads {
		b.WriteByte('t')
	}
	if f.AddressSpace {
		b.WriteByte('a')
	}
	if f.Filesystem {
		b.WriteByte('f')
	}
	if f.Syscalls {
		b.WriteByte('e')
	}
	if f.VM {
		b.WriteByte('x')
	}
	return b.String()
}

// Config is the kernel's boot-time configuration (spec.md §6 CLI
// surface): whether to format the disk image, which subsystems to trace,
// and which built-in scenario (if any) the caller intends to run.
type Config struct {
	Format   bool
	Debug    DebugFlags
	TestName string
	Eager    bool // address-space init mode: eager vs demand-paged (spec.md §4.8)
}

// System bundles every kernel singleton: the interrupt controller, the
// thread scheduler, the disk, the filesystem, the virtual-memory core
// map, and the console (spec.md Design Notes §9: "explicit system
// context struct" in place of package-level globals).
type System struct {
	Interrupts *synch.Interrupts
	Scheduler  *kthread.Scheduler
	Disk       *disk.SynchDisk
	FS         *fs.FileSystem
	CoreMap    *vm.CoreMap
	Console    machine.Console
	Config     Config
}

// Boot constructs a System over dev, formatting the disk image if
// cfg.Format is set and booting from its existing filesystem otherwise.
// console defaults to os.Stdin/os.Stdout when nil.
func Boot(dev machine.Disk, cfg Config, console machine.Console) *System {
	setupLogging(cfg.Debug)

	in := synch.NewInterrupts()
	sched := kthread.NewScheduler(in)
	d := disk.NewSynchDisk(dev, in, sched)

	var fsys *fs.FileSystem
	if cfg.Format {
		fsys = fs.Format(d, in, sched)
	} else {
		fsys = fs.Boot(d, in, sched)
	}

	if console == nil {
		console = machine.NewConsole(os.Stdin, os.Stdout)
	}

	sys := &System{
		Interrupts: in,
		Scheduler:  sched,
		Disk:       d,
		FS:         fsys,
		CoreMap:    vm.NewCoreMap(in, sched),
		Console:    console,
		Config:     cfg,
	}
	log.WithFields(log.Fields{"format": cfg.Format, "debug": cfg.Debug.String()}).Info("kernel: booted")
	return sys
}

// Halt logs the shutdown and exits with status 0 (spec.md §6: "Exit code
// 0 on clean halt").
func (s *System) Halt() {
	log.Info("kernel: halt")
	os.Exit(0)
}

func setupLogging(d DebugFlags) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if d.any() {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
