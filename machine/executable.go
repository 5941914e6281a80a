package machine

import (
	"encoding/binary"
	"errors"
	"io"
)

// ExecMagic identifies a valid executable image (spec.md §6).
const ExecMagic = 0x456c6946 // "FilE" as little-endian bytes, distinct from a real ELF magic

// ErrBadExecutable is returned when an image's segments violate spec.md
// §6's layout invariants (code at 0, init-data contiguous with code,
// uninit-data following init-data or code).
var ErrBadExecutable = errors.New("machine: malformed executable image")

// Executable is the loader's view of a user program image: segment
// geometry plus random-access readers for the code and initialized-data
// segments (spec.md §6). Uninitialized data has no on-disk bytes — it is
// always zero-filled by the caller.
type Executable interface {
	CodeAddr() uint32
	CodeSize() uint32
	InitDataAddr() uint32
	InitDataSize() uint32
	UninitDataSize() uint32
	Magic() uint32

	// ReadCodeBlock/ReadDataBlock read size bytes starting at offset bytes
	// into the code/init-data segment respectively.
	ReadCodeBlock(offset, size int) ([]byte, error)
	ReadDataBlock(offset, size int) ([]byte, error)
}

// header is the fixed on-disk layout of an image's geometry, written
// before the code and init-data bytes.
type header struct {
	Magic          uint32
	CodeAddr       uint32
	CodeSize       uint32
	InitDataAddr   uint32
	InitDataSize   uint32
	UninitDataSize uint32
}

const headerSize = 6 * 4

// memExecutable is an Executable backed by in-memory code/data slices, used
// by testprogs and tests that build a synthetic image rather than loading
// one from disk.
type memExecutable struct {
	hdr  header
	code []byte
	data []byte
}

// NewMemExecutable builds an Executable directly from segment bytes,
// validating the layout invariants spec.md §6 requires.
func NewMemExecutable(code, data []byte, uninitSize uint32) (Executable, error) {
	hdr := header{
		Magic:          ExecMagic,
		CodeAddr:       0,
		CodeSize:       uint32(len(code)),
		InitDataAddr:   uint32(len(code)),
		InitDataSize:   uint32(len(data)),
		UninitDataSize: uninitSize,
	}
	if hdr.CodeAddr != 0 {
		return nil, ErrBadExecutable
	}
	if hdr.InitDataAddr != hdr.CodeAddr+hdr.CodeSize {
		return nil, ErrBadExecutable
	}
	return &memExecutable{hdr: hdr, code: code, data: data}, nil
}

func (e *memExecutable) CodeAddr() uint32       { return e.hdr.CodeAddr }
func (e *memExecutable) CodeSize() uint32       { return e.hdr.CodeSize }
func (e *memExecutable) InitDataAddr() uint32   { return e.hdr.InitDataAddr }
func (e *memExecutable) InitDataSize() uint32   { return e.hdr.InitDataSize }
func (e *memExecutable) UninitDataSize() uint32 { return e.hdr.UninitDataSize }
func (e *memExecutable) Magic() uint32          { return e.hdr.Magic }

func (e *memExecutable) ReadCodeBlock(offset, size int) ([]byte, error) {
	return readBlock(e.code, offset, size)
}

func (e *memExecutable) ReadDataBlock(offset, size int) ([]byte, error) {
	return readBlock(e.data, offset, size)
}

func readBlock(seg []byte, offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > len(seg) {
		return nil, io.ErrUnexpectedEOF
	}
	out := make([]byte, size)
	copy(out, seg[offset:offset+size])
	return out, nil
}

// writeExecHeader serializes h to w in the fixed little-endian header
// layout. This package has no matching reader for that layout.
func writeExecHeader(w io.Writer, h header) error {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.CodeAddr)
	binary.LittleEndian.PutUint32(buf[8:12], h.CodeSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.InitDataAddr)
	binary.LittleEndian.PutUint32(buf[16:20], h.InitDataSize)
	binary.LittleEndian.PutUint32(buf[20:24], h.UninitDataSize)
	_, err := w.Write(buf)
	return err
}
