package testprogs

import (
	"testing"

	"github.com/Gastonm123/nachos-go/kthread"
	"github.com/Gastonm123/nachos-go/synch"
)

// TestPriorityPingPong mirrors spec.md §8 scenario 3: five threads at
// nice 0,1,2,3,19 each print (here: record) ten iterations, yielding
// between each. Because Yield re-enqueues the caller in its own bucket
// and FindNextToRun always drains the lowest-numbered nonempty bucket
// first, the most-favored thread runs every one of its ten iterations
// before the next-favored thread records any of its own.
func TestPriorityPingPong(t *testing.T) {
	in := synch.NewInterrupts()
	sched := kthread.NewScheduler(in)

	nices := []int{0, 1, 2, 3, 19}
	var order []int
	threads := make([]*kthread.Thread, 0, len(nices))
	for _, n := range nices {
		nice := n
		th, err := sched.Fork("pingpong", func(arg any) {
			for i := 0; i < 10; i++ {
				order = append(order, nice)
				sched.Yield()
			}
		}, nil, true)
		if err != nil {
			t.Fatalf("Fork nice=%d: %v", nice, err)
		}
		sched.SetNice(th, nice)
		threads = append(threads, th)
	}

	for _, th := range threads {
		sched.Join(th)
	}

	if len(order) != len(nices)*10 {
		t.Fatalf("recorded %d iterations, want %d", len(order), len(nices)*10)
	}

	// Each nice value's ten entries must be contiguous, and in ascending
	// nice order overall.
	want := make([]int, 0, len(order))
	for _, n := range nices {
		for i := 0; i < 10; i++ {
			want = append(want, n)
		}
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("run order = %v, want %v", order, want)
		}
	}
}

// TestMarsPathfinderPriorityInheritance mirrors spec.md §8 scenario 4:
// low-priority "Weather" acquires a lock then yields while holding it;
// medium "Communication" and high "Data Bus" are forked afterward (nice
// -5 and -10) and both block on the same lock. Without inheritance the
// high-priority threads would starve Weather and finish out of the
// intended order; with inheritance, Weather finishes first (carrying the
// donated priority), then Data Bus (most favored waiter), then
// Communication.
func TestMarsPathfinderPriorityInheritance(t *testing.T) {
	in := synch.NewInterrupts()
	sched := kthread.NewScheduler(in)
	bus := synch.NewLock("bus", in, sched, true)
	gate := synch.NewSemaphore("gate", 0, in, sched)

	var order []string
	weather, err := sched.Fork("Weather", func(arg any) {
		bus.Acquire()
		gate.P() // park until the test lets go, still holding bus
		order = append(order, "Weather analyzed")
		bus.Release()
	}, nil, true)
	if err != nil {
		t.Fatalf("Fork Weather: %v", err)
	}
	sched.SetNice(weather, 0)

	sched.Yield() // dispatch Weather: it acquires bus, then parks on gate

	dataBus, err := sched.Fork("DataBus", func(arg any) {
		bus.Acquire()
		order = append(order, "Data bus liberated")
		bus.Release()
	}, nil, true)
	if err != nil {
		t.Fatalf("Fork DataBus: %v", err)
	}
	sched.SetNice(dataBus, -10)

	communication, err := sched.Fork("Communication", func(arg any) {
		bus.Acquire()
		order = append(order, "Communications")
		bus.Release()
	}, nil, true)
	if err != nil {
		t.Fatalf("Fork Communication: %v", err)
	}
	sched.SetNice(communication, -5)

	sched.Yield() // both block on bus, donating up to Weather's priority

	if weather.Priority() != dataBus.Priority() {
		t.Fatalf("Weather.Priority() = %d, want donated %d", weather.Priority(), dataBus.Priority())
	}

	gate.V() // let Weather finish and release bus

	sched.Join(weather)
	sched.Join(dataBus)
	sched.Join(communication)

	want := []string{"Weather analyzed", "Data bus liberated", "Communications"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
