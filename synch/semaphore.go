package synch

import log "github.com/sirupsen/logrus"

// Semaphore is the atomic foundation every other primitive in this package
// is built from (spec.md §4.3): a non-negative counter and a FIFO waiter
// queue, with all mutation happening under Interrupts.Disable. It never
// spins; a thread that must wait is handed to the scheduler's Sleep.
type Semaphore struct {
	name    string
	in      *Interrupts
	sched   SchedulerHooks
	count   int
	waiters []Waiter
}

// NewSemaphore constructs a Semaphore with the given initial count.
func NewSemaphore(name string, initial int, in *Interrupts, sched SchedulerHooks) *Semaphore {
	if initial < 0 {
		panic("synch: semaphore initial count must be >= 0")
	}
	return &Semaphore{name: name, in: in, sched: sched, count: initial}
}

// P (acquire, "proberen"): decrements the count if positive, otherwise
// blocks the calling thread until a matching V wakes it.
func (s *Semaphore) P() {
	old := s.in.Disable()
	if s.count > 0 {
		s.count--
		s.in.SetLevel(old)
		return
	}
	self := s.sched.Current()
	s.waiters = append(s.waiters, self)
	log.WithFields(log.Fields{"sem": s.name, "thread": self.ID()}).Debug("synch: P blocking")
	// Sleep returns once the thread is scheduled to run again; interrupts
	// are restored right after.
	s.sched.Sleep()
	s.in.SetLevel(old)
}

// V (release, "verhogen"): wakes the oldest waiter if any, else increments
// the count. Never blocks and never switches the CPU itself.
func (s *Semaphore) V() {
	old := s.in.Disable()
	defer s.in.SetLevel(old)
	if len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		log.WithFields(log.Fields{"sem": s.name, "thread": w.ID()}).Debug("synch: V waking waiter")
		s.sched.ReadyToRun(w)
		return
	}
	s.count++
}

// Count returns the current count, for tests and invariant assertions
// only — never consulted by production control flow ("count >= 0").
func (s *Semaphore) Count() int {
	old := s.in.Disable()
	defer s.in.SetLevel(old)
	return s.count
}

// NumWaiters returns the number of threads currently queued on P, for
// tests (e.g. the priority-inheritance invariant in spec.md §8).
func (s *Semaphore) NumWaiters() int {
	old := s.in.Disable()
	defer s.in.SetLevel(old)
	return len(s.waiters)
}

// Waiters returns a snapshot of the waiter queue, lowest priority-number
// first is NOT guaranteed here (FIFO order is); used by Lock to compute
// "min priority among waiters" for the priority-inheritance invariant.
func (s *Semaphore) Waiters() []Waiter {
	old := s.in.Disable()
	defer s.in.SetLevel(old)
	out := make([]Waiter, len(s.waiters))
	copy(out, s.waiters)
	return out
}
