package synch

import log "github.com/sirupsen/logrus"

// Lock is a binary Semaphore plus holder tracking and, optionally,
// priority-inheritance donation (spec.md §4.3). Only the holder may
// Release.
type Lock struct {
	name       string
	sem        *Semaphore
	sched      SchedulerHooks
	inherit    bool
	holder     Waiter
	savedPrio  int
	hasSaved   bool
}

// NewLock constructs a Lock. If inherit is true, Acquire donates priority
// to a lower-priority holder, restored on Release (spec.md §4.2/§4.3).
func NewLock(name string, in *Interrupts, sched SchedulerHooks, inherit bool) *Lock {
	return &Lock{
		name:    name,
		sem:     NewSemaphore(name, 1, in, sched),
		sched:   sched,
		inherit: inherit,
	}
}

// IsHeldByCurrent reports whether the calling thread holds the lock.
func (l *Lock) IsHeldByCurrent() bool {
	cur := l.sched.Current()
	return l.holder != nil && l.holder.ID() == cur.ID()
}

// Holder returns the current holder, or nil if the lock is free.
func (l *Lock) Holder() Waiter {
	return l.holder
}

// Acquire blocks until the lock is free. If priority inheritance is
// enabled and the current holder has a numerically greater (less favored)
// priority than the caller, the holder's priority is raised to the
// caller's and it is moved to its new ready-queue bucket before the
// caller waits for the semaphore.
func (l *Lock) Acquire() {
	caller := l.sched.Current()
	if l.inherit && l.holder != nil && l.holder.Priority() > caller.Priority() {
		old := l.holder.Priority()
		log.WithFields(log.Fields{
			"lock": l.name, "holder": l.holder.ID(), "from": old, "to": caller.Priority(),
		}).Info("synch: donating priority")
		l.holder.SetPriority(caller.Priority())
		l.sched.Reschedule(l.holder, old)
	}
	l.sem.P()
	l.holder = caller
	if l.inherit {
		// Nothing to save yet: a thread's "natural" priority is whatever
		// it had at acquire time, before any donation happens to IT while
		// holding this lock. Donation above already mutated caller's
		// priority only if caller was itself a *previous* holder being
		// donated to, which cannot happen (caller just became holder).
		l.savedPrio = caller.Priority()
		l.hasSaved = true
	}
}

// Release requires the calling thread to be the holder. If priority
// inheritance is enabled, the holder's pre-acquire priority is restored
// before the semaphore is released.
func (l *Lock) Release() {
	if !l.IsHeldByCurrent() {
		panic("synch: Release called by non-holder")
	}
	if l.inherit && l.hasSaved {
		cur := l.holder
		if cur.Priority() != l.savedPrio {
			log.WithFields(log.Fields{
				"lock": l.name, "thread": cur.ID(), "restore_to": l.savedPrio,
			}).Info("synch: restoring donated priority")
			cur.SetPriority(l.savedPrio)
		}
		l.hasSaved = false
	}
	l.holder = nil
	l.sem.V()
}

// MinWaiterPriority returns the lowest (most favored) priority number
// among threads currently blocked on Acquire, or -1 if none are waiting.
// Exposed for the priority-inheritance invariant test in spec.md §8.
func (l *Lock) MinWaiterPriority() int {
	waiters := l.sem.Waiters()
	if len(waiters) == 0 {
		return -1
	}
	min := waiters[0].Priority()
	for _, w := range waiters[1:] {
		if w.Priority() < min {
			min = w.Priority()
		}
	}
	return min
}
