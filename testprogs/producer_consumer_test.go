// Package testprogs drives the full thread/synchronization/filesystem
// stack together through kthread.Scheduler.Fork, the way a real Nachos
// boot would run its built-in test menu (spec.md §8's seed scenarios),
// rather than exercising each package in isolation.
package testprogs

import (
	"testing"

	"github.com/Gastonm123/nachos-go/kthread"
	"github.com/Gastonm123/nachos-go/synch"
)

func newTestScheduler() (*synch.Interrupts, *kthread.Scheduler) {
	in := synch.NewInterrupts()
	return in, kthread.NewScheduler(in)
}

// TestProducerConsumerChannel mirrors spec.md §8 scenario 1: a producer
// sends 0..9 on a Channel, a consumer receives ten values, and both join
// cleanly with the values observed in order.
func TestProducerConsumerChannel(t *testing.T) {
	in, sched := newTestScheduler()
	ch := synch.NewChannel("numbers", in, sched)

	producer, err := sched.Fork("producer", func(arg any) {
		for i := 0; i < 10; i++ {
			ch.Send(i)
		}
	}, nil, true)
	if err != nil {
		t.Fatalf("Fork producer: %v", err)
	}

	got := make([]int, 0, 10)
	consumer, err := sched.Fork("consumer", func(arg any) {
		for i := 0; i < 10; i++ {
			got = append(got, ch.Receive())
		}
	}, nil, true)
	if err != nil {
		t.Fatalf("Fork consumer: %v", err)
	}

	// main is blocked asleep inside Receive on each Join, so it needs no
	// manual Yield loop: the scheduler switches to producer/consumer
	// whenever main itself has nothing else to do.
	sched.Join(producer)
	sched.Join(consumer)

	for i, v := range got {
		if v != i {
			t.Fatalf("consumer observed %v, want 0..9 in order", got)
		}
	}
}

// boundedQueue is the shared buffer for scenario 2: a lock guards the
// slice, and a semaphore counts items available to the consumer, the
// classic bounded-buffer split between mutual exclusion and signaling
// (spec.md §4.3).
type boundedQueue struct {
	lock  *synch.Lock
	items *synch.Semaphore
	buf   []int
}

func newBoundedQueue(in *synch.Interrupts, sched synch.SchedulerHooks) *boundedQueue {
	return &boundedQueue{
		lock:  synch.NewLock("queue", in, sched, false),
		items: synch.NewSemaphore("queue.items", 0, in, sched),
	}
}

func (q *boundedQueue) push(v int) {
	q.lock.Acquire()
	q.buf = append(q.buf, v)
	q.lock.Release()
	q.items.V()
}

func (q *boundedQueue) pop() int {
	q.items.P()
	q.lock.Acquire()
	v := q.buf[0]
	q.buf = q.buf[1:]
	q.lock.Release()
	return v
}

// TestProducerConsumerLockSemaphoreQueue mirrors spec.md §8 scenario 2:
// the consumer's observed sequence must, at every instant, be a prefix of
// the producer's 0..9 sequence (values may lag behind the producer but
// can never appear out of order or be skipped).
func TestProducerConsumerLockSemaphoreQueue(t *testing.T) {
	in, sched := newTestScheduler()
	q := newBoundedQueue(in, sched)

	producer, err := sched.Fork("producer", func(arg any) {
		for i := 0; i < 10; i++ {
			q.push(i)
		}
	}, nil, true)
	if err != nil {
		t.Fatalf("Fork producer: %v", err)
	}

	got := make([]int, 0, 10)
	consumer, err := sched.Fork("consumer", func(arg any) {
		for i := 0; i < 10; i++ {
			v := q.pop()
			got = append(got, v)
			if v != i {
				t.Errorf("consumer observed %d at position %d, want monotone prefix", v, i)
			}
		}
	}, nil, true)
	if err != nil {
		t.Fatalf("Fork consumer: %v", err)
	}

	sched.Join(producer)
	sched.Join(consumer)
}
