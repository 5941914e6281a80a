package kthread

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Gastonm123/nachos-go/priority"
	"github.com/Gastonm123/nachos-go/synch"
)

// MaxThreads bounds the thread table (spec.md §3: "assigned by a bounded
// thread table").
const MaxThreads = 256

// Scheduler owns the ready queue (a priority.Array of *Thread) and drives
// every thread transition. It implements synch.SchedulerHooks so the
// synch package's primitives can block/wake threads without importing
// kthread. Grounded on cdfmlr-sham's OS (ReadyProcs/BlockedProcs slices,
// ReadyToRunning/RunningToBlocked/RunningToReady state machine in os.go),
// generalized to priority.Array.
type Scheduler struct {
	in *synch.Interrupts

	mu      sync.Mutex
	current *Thread
	array   priority.Array[*Thread]
	live    int
	// toDestroy is the one-slot handoff: a thread that finished and whose
	// stack/resources must be freed by the *next* thread to run, never by
	// itself (spec.md Design Notes: "Control-flow-sensitive stack
	// handoff").
	toDestroy *Thread
	// timerPending is set by RequestPreemption and consumed the next time
	// interrupts are re-enabled.
	timerPending bool
}

// NewScheduler constructs a Scheduler and makes the calling goroutine the
// initial "main" thread, already Running. This mirrors Nachos's boot
// sequence, where the boot code itself becomes currentThread before any
// Fork happens.
func NewScheduler(in *synch.Interrupts) *Scheduler {
	s := &Scheduler{in: in}
	main := newThread("main")
	main.status = Running
	s.current = main
	s.live = 1
	in.SetOnEnable(s.deliverPendingPreemption)
	return s
}

// CurrentThread returns the concrete *Thread for the calling goroutine.
func (s *Scheduler) CurrentThread() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Current implements synch.SchedulerHooks.
func (s *Scheduler) Current() synch.Waiter { return s.CurrentThread() }

// ReadyToRun implements synch.SchedulerHooks: require t != Running; set
// status Ready; append to bucket t.priority (spec.md §4.1).
func (s *Scheduler) ReadyToRun(w synch.Waiter) {
	t := w.(*Thread)
	s.mu.Lock()
	if t.status == Running {
		s.mu.Unlock()
		panic("kthread: ReadyToRun on the running thread")
	}
	t.status = Ready
	s.array.Push(t.priority, t)
	s.mu.Unlock()
	log.WithFields(t.logFields()).Debug("kthread: ReadyToRun")
}

// Reschedule implements synch.SchedulerHooks: when a held thread's
// priority is raised by donation, move it from its old bucket to the new
// one, if it is presently sitting on the ready queue.
func (s *Scheduler) Reschedule(w synch.Waiter, oldPriority int) {
	t := w.(*Thread)
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.status != Ready {
		return
	}
	s.array.Move(oldPriority, t.priority, func(x *Thread) bool { return x == t })
}

// SetNice changes t's nice value and, if t is presently sitting Ready on
// the ready queue, moves it to its new bucket. Nice alone (Thread.Nice)
// only mutates the field; callers that might be renicing an already
// Ready thread (as opposed to one that is JustCreated and not yet
// enqueued) should use this instead so the ready queue stays consistent.
func (s *Scheduler) SetNice(t *Thread, n int) {
	s.mu.Lock()
	old := t.priority
	status := t.status
	s.mu.Unlock()

	t.Nice(n)

	if status == Ready {
		s.mu.Lock()
		s.array.Move(old, t.priority, func(x *Thread) bool { return x == t })
		s.mu.Unlock()
	}
}

// FindNextToRun pops the oldest entry from the lowest-numbered non-empty
// bucket. ok is false if the ready queue is empty.
func (s *Scheduler) FindNextToRun() (t *Thread, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, _, ok = s.array.Pop()
	return t, ok
}

// run performs the stack switch: assumes interrupts are already disabled.
// Called by the currently-running thread's goroutine with the thread that
// should run next; blocks until this thread (prev) is itself scheduled to
// run again, unless prev == next (self-switch no-op).
func (s *Scheduler) run(next *Thread) {
	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()

	if prev == next {
		next.status = Running
		return
	}

	next.status = Running
	log.WithFields(log.Fields{"from": prev.ID(), "to": next.ID()}).Debug("kthread: context switch")
	if prev.as != nil && prev.mach != nil {
		prev.as.SyncFromTLB(prev.mach)
	}
	if next.as != nil && next.mach != nil {
		next.as.RestoreState(next.mach)
	}
	next.resume <- struct{}{}
	<-prev.resume
	s.afterSwitch()
}

// afterSwitch frees the previous "to be destroyed" thread's resources, if
// any. Called by whichever thread resumes running right after a switch —
// never by the thread being destroyed itself.
func (s *Scheduler) afterSwitch() {
	s.mu.Lock()
	dead := s.toDestroy
	s.toDestroy = nil
	s.mu.Unlock()
	if dead == nil {
		return
	}
	log.WithFields(dead.logFields()).Debug("kthread: reclaiming destroyed thread")
	if dead.as != nil {
		dead.as.Destroy()
	}
	if dead.ft != nil {
		dead.ft.CloseAll()
	}
	s.mu.Lock()
	s.live--
	s.mu.Unlock()
}

// idle is invoked when the ready queue is empty; it stands in for
// dispatching to the interrupt subsystem until an I/O interrupt runs
// (spec.md §4.2 Sleep). There is no real hardware idle loop to enter, so
// this yields the OS thread briefly to let other goroutines (disk/timer
// simulators) make progress.
func (s *Scheduler) idle() {
	time.Sleep(time.Millisecond)
}

func (s *Scheduler) switchAway() {
	next, ok := s.FindNextToRun()
	for !ok {
		s.idle()
		next, ok = s.FindNextToRun()
	}
	s.run(next)
}

// Sleep implements synch.SchedulerHooks and spec.md §4.2's self-blocking
// Sleep: it marks the calling thread Blocked (the caller, e.g. Semaphore.P,
// is only required to have already enqueued it on whatever waiter list
// will later ReadyToRun it) and switches to the next Ready thread.
func (s *Scheduler) Sleep() {
	s.CurrentThread().status = Blocked
	s.switchAway()
}

// Yield: if any other thread is Ready, put self back on the ready queue
// and switch to the most favored Ready thread (spec.md §4.2). That is the
// caller itself again when no other Ready thread has a lower priority
// number, since the caller is appended behind its own bucket's peers.
func (s *Scheduler) Yield() {
	old := s.in.Disable()
	defer s.in.SetLevel(old)

	s.mu.Lock()
	cur := s.current
	if s.array.Empty() {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	cur.status = Ready
	s.mu.Lock()
	s.array.Push(cur.priority, cur)
	next, _, _ := s.array.Pop()
	s.mu.Unlock()
	s.run(next)
}

// Fork allocates a thread running fn(arg), marks it Ready, and enqueues
// it. If joinable, its exit code can later be retrieved with Join.
// Returns ErrTooManyThreads if the bounded thread table is full.
func (s *Scheduler) Fork(name string, fn func(arg any), arg any, joinable bool) (*Thread, error) {
	s.mu.Lock()
	if s.live >= MaxThreads {
		s.mu.Unlock()
		return nil, ErrTooManyThreads
	}
	s.live++
	s.mu.Unlock()

	t := newThread(name)
	t.joinable = joinable
	if joinable {
		t.joinCh = synch.NewChannel(name+".join", s.in, s)
	}

	go func() {
		<-t.resume
		s.afterSwitch()
		// "on first resumption, enables interrupts, calls fn(arg), then
		// calls Finish" (spec.md §4.2).
		s.in.SetLevel(synch.IntOn)
		fn(arg)
		s.Finish()
	}()

	old := s.in.Disable()
	s.ReadyToRun(t)
	s.in.SetLevel(old)
	log.WithFields(t.logFields()).Info("kthread: forked")
	return t, nil
}

// Finish: if the thread was created joinable, hand its exit code to Join
// over the join channel; then mark self "to be destroyed" and Sleep
// forever.
func (s *Scheduler) Finish() {
	cur := s.CurrentThread()
	if cur.joinable {
		cur.joinCh.Send(cur.exitCode)
	}
	old := s.in.Disable()
	cur.status = Blocked
	s.mu.Lock()
	s.toDestroy = cur
	s.mu.Unlock()
	log.WithFields(cur.logFields()).Info("kthread: finished")
	s.switchAway()
	s.in.SetLevel(old) // unreachable: this thread never runs again
}

// Exit sets the calling thread's exit status and finishes it, per the Exit
// syscall (spec.md §4.9).
func (s *Scheduler) Exit(status int) {
	cur := s.CurrentThread()
	cur.exitCode = status
	s.Finish()
}

// Join blocks until target finishes, and returns its exit status. target
// must have been forked joinable; double-join is a programmer error.
func (s *Scheduler) Join(target *Thread) int {
	if !target.joinable {
		panic("kthread: Join on a non-joinable thread")
	}
	if target.joined {
		panic("kthread: double join")
	}
	target.joined = true
	return target.joinCh.Receive()
}

// deliverPendingPreemption is installed as the Interrupts onEnable hook:
// whenever interrupts are restored to on, if the simulated timer has
// queued a preemption for the running thread, it takes effect now by
// yielding. This is the closest a cooperative Go simulation gets to
// "interrupt-driven preemption" (spec.md §2 component 2) without a real
// asynchronous signal.
func (s *Scheduler) deliverPendingPreemption() {
	s.mu.Lock()
	pending := s.timerPending
	s.timerPending = false
	s.mu.Unlock()
	if pending {
		s.Yield()
	}
}

// RequestPreemption marks that the running thread should yield the next
// time interrupts are enabled, modeling the simulated timer interrupt of
// spec.md §2 component 2 ("interrupt-driven preemption").
func (s *Scheduler) RequestPreemption() {
	s.mu.Lock()
	s.timerPending = true
	s.mu.Unlock()
}
