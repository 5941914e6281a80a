// Package syscalls implements the system-call boundary: byte-at-a-time
// cross-space transfer between user and kernel memory, the per-thread
// file descriptor table, and the Halt/Create/Remove/Open/Close/Read/
// Write/Exec/Join/Exit/Ps dispatcher (spec.md §4.9). Grounded on
// original_source/Trunk/code/userprog/transfer.cc for the retry-once
// fault discipline. Register use: the id and the result go through
// machine.RegResult, the arguments through general registers 4-7.
package syscalls

import "github.com/Gastonm123/nachos-go/machine"

// Transfer is the single-byte-at-a-time copy primitive every buffer or
// string syscall argument goes through. onFault, when non-nil, is called
// once after a failing access, giving the VM page-fault path a chance to
// populate the missing page before the access is retried; a second
// failure is always fatal. A nil onFault (no virtual memory configured)
// makes the first failure fatal, matching transfer.cc's non-VMEM build.
type Transfer struct {
	m       machine.Machine
	onFault func()
}

// NewTransfer wires a Transfer to m, retrying a failed access once
// through onFault.
func NewTransfer(m machine.Machine, onFault func()) *Transfer {
	return &Transfer{m: m, onFault: onFault}
}

func (tr *Transfer) readByte(addr uint32) byte {
	v, ok := tr.m.ReadMem(addr, 1)
	if ok {
		return byte(v)
	}
	if tr.onFault == nil {
		panic("syscalls: user memory read failed with no page-fault handler installed")
	}
	tr.onFault()
	v, ok = tr.m.ReadMem(addr, 1)
	if !ok {
		panic("syscalls: user memory read failed after one page-fault retry")
	}
	return byte(v)
}

func (tr *Transfer) writeByte(addr uint32, b byte) {
	if tr.m.WriteMem(addr, 1, uint32(b)) {
		return
	}
	if tr.onFault == nil {
		panic("syscalls: user memory write failed with no page-fault handler installed")
	}
	tr.onFault()
	if !tr.m.WriteMem(addr, 1, uint32(b)) {
		panic("syscalls: user memory write failed after one page-fault retry")
	}
}

// ReadBufferFromUser copies byteCount bytes starting at userAddr.
func (tr *Transfer) ReadBufferFromUser(userAddr uint32, byteCount int) []byte {
	out := make([]byte, byteCount)
	for i := range out {
		out[i] = tr.readByte(userAddr + uint32(i))
	}
	return out
}

// ReadStringFromUser copies bytes from userAddr until a NUL or
// maxByteCount bytes have been read. ok is false if no NUL was found
// within the limit, matching transfer.cc's ReadStringFromUser.
func (tr *Transfer) ReadStringFromUser(userAddr uint32, maxByteCount int) (s string, ok bool) {
	buf := make([]byte, 0, maxByteCount)
	for i := 0; i < maxByteCount; i++ {
		b := tr.readByte(userAddr + uint32(i))
		if b == 0 {
			return string(buf), true
		}
		buf = append(buf, b)
	}
	return string(buf), false
}

// WriteBufferToUser copies p to userAddr.
func (tr *Transfer) WriteBufferToUser(userAddr uint32, p []byte) {
	for i, b := range p {
		tr.writeByte(userAddr+uint32(i), b)
	}
}

// WriteStringToUser copies s to userAddr, NUL-terminated.
func (tr *Transfer) WriteStringToUser(userAddr uint32, s string) {
	tr.WriteBufferToUser(userAddr, []byte(s))
	tr.writeByte(userAddr+uint32(len(s)), 0)
}
