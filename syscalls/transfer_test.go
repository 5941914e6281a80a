package syscalls

import (
	"bytes"
	"testing"

	"github.com/Gastonm123/nachos-go/machine"
)

func TestReadWriteBufferRoundTrip(t *testing.T) {
	m := machine.NewFakeMachine(256)
	tr := NewTransfer(m, nil)

	payload := []byte("hello, user space")
	tr.WriteBufferToUser(16, payload)
	out := tr.ReadBufferFromUser(16, len(payload))
	if !bytes.Equal(out, payload) {
		t.Fatalf("ReadBufferFromUser = %q, want %q", out, payload)
	}
}

func TestReadWriteStringRoundTrip(t *testing.T) {
	m := machine.NewFakeMachine(256)
	tr := NewTransfer(m, nil)

	tr.WriteStringToUser(8, "nachos")
	s, ok := tr.ReadStringFromUser(8, 64)
	if !ok || s != "nachos" {
		t.Fatalf("ReadStringFromUser = %q,%v, want \"nachos\",true", s, ok)
	}
}

func TestReadStringFromUserTruncatesWithoutNUL(t *testing.T) {
	m := machine.NewFakeMachine(256)
	tr := NewTransfer(m, nil)

	tr.WriteBufferToUser(0, []byte("abcdef"))
	s, ok := tr.ReadStringFromUser(0, 3)
	if ok {
		t.Fatalf("ReadStringFromUser should report false when no NUL found within the limit")
	}
	if s != "abc" {
		t.Fatalf("ReadStringFromUser = %q, want \"abc\"", s)
	}
}

func TestFailedAccessRetriesOnceThroughOnFault(t *testing.T) {
	m := machine.NewFakeMachine(8) // too small: address 100 always fails
	calls := 0
	tr := NewTransfer(m, func() { calls++ })

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected a panic after the retry also failed")
		}
		if calls != 1 {
			t.Fatalf("onFault should be called exactly once, got %d", calls)
		}
	}()
	tr.ReadBufferFromUser(100, 1)
}

func TestNoFaultHandlerPanicsImmediately(t *testing.T) {
	m := machine.NewFakeMachine(8)
	tr := NewTransfer(m, nil)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected a panic with no fault handler installed")
		}
	}()
	tr.ReadBufferFromUser(100, 1)
}
