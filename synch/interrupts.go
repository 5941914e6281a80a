// Package synch implements the synchronization primitives layered, in
// strict dependency order, on top of interrupt disabling: Semaphore, then
// Lock/Condition/Channel. See spec.md §4.3.
package synch

import "sync"

// Level is the simulated interrupt level.
type Level int

const (
	// IntOff: interrupts disabled, the uniprocessor's only mutual
	// exclusion mechanism below Semaphore.
	IntOff Level = iota
	// IntOn: interrupts enabled; the running thread may be preempted.
	IntOn
)

// Interrupts is the disable/restore primitive every synchronization
// primitive in this package is built from. There is no real hardware
// interrupt line to gate in a hosted Go process: the uniprocessor
// invariant ("at most one thread's kernel code runs at a time") is
// actually enforced above this package, by the scheduler's cooperative
// wake/park protocol (see kthread.Scheduler.run). Interrupts itself is
// just the shared flag that protocol reads and writes — Disable/SetLevel
// never block and must never be held across a call that might sleep, or
// every other thread's flag flip would deadlock behind it.
type Interrupts struct {
	mu    sync.Mutex
	level Level
	// onEnable, if set, is invoked whenever interrupts transition from off
	// to on; the scheduler uses this to deliver a queued timer preemption.
	onEnable func()
}

// NewInterrupts returns an Interrupts primitive with interrupts enabled.
func NewInterrupts() *Interrupts {
	return &Interrupts{level: IntOn}
}

// SetOnEnable installs the callback run whenever interrupts are restored to
// IntOn. Intended to be called once, at scheduler init.
func (in *Interrupts) SetOnEnable(f func()) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.onEnable = f
}

// Disable sets the level to IntOff and returns the previous level, so the
// caller can restore it with SetLevel. Mirrors Nachos's
// Interrupt::SetLevel(IntOff). Does not block.
func (in *Interrupts) Disable() Level {
	in.mu.Lock()
	old := in.level
	in.level = IntOff
	in.mu.Unlock()
	return old
}

// SetLevel restores the level to old. If old is IntOn, any installed
// enable callback fires after the flag is flipped. Does not block.
func (in *Interrupts) SetLevel(old Level) {
	in.mu.Lock()
	prev := in.level
	in.level = old
	cb := in.onEnable
	in.mu.Unlock()
	if old == IntOn && prev == IntOff && cb != nil {
		cb()
	}
}

// Level reports the current interrupt level; used only for assertions
// ("must be called with interrupts disabled").
func (in *Interrupts) Level() Level {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.level
}
