package synch

import "sort"

// Condition implements the "one-semaphore-per-waiter" scheme (spec.md
// §4.3): Wait allocates a fresh binary semaphore, parks on it while
// releasing the associated lock, then reacquires the lock on wake.
// Signal/Broadcast/Wait all require the associated lock held by the
// caller.
type Condition struct {
	name  string
	lock  *Lock
	in    *Interrupts
	sched SchedulerHooks
	// waiters holds one semaphore per blocked thread, ordered by the
	// waiter's priority at the time it called Wait (spec.md §5: "Condition
	// variables wake in priority order").
	waiters []condWaiter
}

type condWaiter struct {
	sem      *Semaphore
	priority int
}

// NewCondition constructs a Condition associated with lock.
func NewCondition(name string, lock *Lock, in *Interrupts, sched SchedulerHooks) *Condition {
	return &Condition{name: name, lock: lock, in: in, sched: sched}
}

func (c *Condition) requireLockHeld() {
	if !c.lock.IsHeldByCurrent() {
		panic("synch: Condition operation requires associated lock held by caller")
	}
}

// Wait atomically releases the associated lock and blocks the caller,
// reacquiring the lock before returning.
func (c *Condition) Wait() {
	c.requireLockHeld()
	sem := NewSemaphore(c.name+".wait", 0, c.in, c.sched)
	prio := c.sched.Current().Priority()

	old := c.in.Disable()
	c.waiters = append(c.waiters, condWaiter{sem: sem, priority: prio})
	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].priority < c.waiters[j].priority
	})
	c.in.SetLevel(old)

	c.lock.Release()
	sem.P()
	c.lock.Acquire()
}

// Signal wakes the highest-priority waiter, if any.
func (c *Condition) Signal() {
	c.requireLockHeld()
	old := c.in.Disable()
	if len(c.waiters) == 0 {
		c.in.SetLevel(old)
		return
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	c.in.SetLevel(old)
	w.sem.V()
}

// Broadcast wakes every waiter, highest priority first.
func (c *Condition) Broadcast() {
	c.requireLockHeld()
	old := c.in.Disable()
	all := c.waiters
	c.waiters = nil
	c.in.SetLevel(old)
	for _, w := range all {
		w.sem.V()
	}
}

// NumWaiters reports how many threads are blocked in Wait, for tests.
func (c *Condition) NumWaiters() int {
	old := c.in.Disable()
	defer c.in.SetLevel(old)
	return len(c.waiters)
}
