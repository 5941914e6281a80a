package synch

// Channel is the synchronous, unbuffered rendezvous on integers from
// spec.md §4.3: Send blocks until a matching Receive completes the
// handoff. Used for thread Join as well as user-visible message passing.
type Channel struct {
	name     string
	sendLock *Lock   // serializes senders
	sendSem  *Semaphore // signaled by sender once value is deposited
	recvSem  *Semaphore // signaled by receiver once value is consumed
	buf      int
}

// NewChannel constructs an empty rendezvous channel.
func NewChannel(name string, in *Interrupts, sched SchedulerHooks) *Channel {
	return &Channel{
		name:     name,
		sendLock: NewLock(name+".sendlock", in, sched, false),
		sendSem:  NewSemaphore(name+".sendsem", 0, in, sched),
		recvSem:  NewSemaphore(name+".recvsem", 0, in, sched),
	}
}

// Send blocks until a Receive has taken v.
func (ch *Channel) Send(v int) {
	ch.sendLock.Acquire()
	ch.buf = v
	ch.sendSem.V()
	ch.recvSem.P()
	ch.sendLock.Release()
}

// Receive blocks until a Send deposits a value, then returns it.
func (ch *Channel) Receive() int {
	ch.sendSem.P()
	v := ch.buf
	ch.recvSem.V()
	return v
}
