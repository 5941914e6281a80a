package priority

import "testing"

func TestFIFOWithinBucket(t *testing.T) {
	var a Array[string]
	a.Push(50, "first")
	a.Push(50, "second")
	a.Push(50, "third")

	for _, want := range []string{"first", "second", "third"} {
		got, p, ok := a.Pop()
		if !ok || got != want || p != 50 {
			t.Fatalf("Pop() = %q, %d, %v; want %q, 50, true", got, p, ok, want)
		}
	}
	if !a.Empty() {
		t.Fatalf("expected array empty after draining bucket 50")
	}
}

func TestLowestNumberedBucketWins(t *testing.T) {
	var a Array[int]
	a.Push(120, 1)
	a.Push(5, 2)
	a.Push(60, 3)

	v, p, ok := a.Pop()
	if !ok || p != 5 || v != 2 {
		t.Fatalf("Pop() = %d, %d, %v; want 2, 5, true", v, p, ok)
	}
	v, p, ok = a.Pop()
	if !ok || p != 60 || v != 3 {
		t.Fatalf("Pop() = %d, %d, %v; want 3, 60, true", v, p, ok)
	}
}

func TestPopEmpty(t *testing.T) {
	var a Array[int]
	if _, _, ok := a.Pop(); ok {
		t.Fatalf("Pop() on empty array should report ok=false")
	}
}

func TestMoveBucketOnDonation(t *testing.T) {
	var a Array[string]
	a.Push(120, "weather")
	a.Push(110, "other")

	if !a.Move(120, 100, func(s string) bool { return s == "weather" }) {
		t.Fatalf("Move failed to find entry")
	}
	if a.Len(120) != 0 {
		t.Fatalf("old bucket should be empty after move")
	}
	v, p, ok := a.Pop()
	if !ok || p != 100 || v != "weather" {
		t.Fatalf("Pop() = %q, %d, %v; want weather, 100, true", v, p, ok)
	}
}

func TestRemoveSpecific(t *testing.T) {
	var a Array[int]
	a.Push(10, 1)
	a.Push(10, 2)
	a.Push(10, 3)
	if !a.Remove(10, func(v int) bool { return v == 2 }) {
		t.Fatalf("Remove failed to find entry")
	}
	var got []int
	for {
		v, _, ok := a.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("got %v, want [1 3]", got)
	}
}
