package machine

import (
	"bufio"
	"io"
)

// Console is the fd-0/fd-1 device syscalls.Handler reads and writes
// through (spec.md §4.9: "Descriptor 0 is reserved as console-input, 1 as
// console-output"). Grounded on cdfmlr-sham's StdIn/StdOut device pair
// (dev.go): a line-buffered reader feeding single bytes in, and a sink
// collecting bytes out.
type Console interface {
	ReadByte() (b byte, ok bool)
	WriteByte(b byte)
}

// streamConsole is a Console over an arbitrary io.Reader/io.Writer pair,
// used to wire the real os.Stdin/os.Stdout as well as in-test buffers.
type streamConsole struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsole wraps r/w as a Console, buffering reads the way
// cdfmlr-sham's StdIn scans its backing file a line at a time.
func NewConsole(r io.Reader, w io.Writer) Console {
	return &streamConsole{in: bufio.NewReader(r), out: w}
}

func (c *streamConsole) ReadByte() (byte, bool) {
	b, err := c.in.ReadByte()
	if err != nil {
		return 0, false
	}
	return b, true
}

func (c *streamConsole) WriteByte(b byte) {
	c.out.Write([]byte{b})
}
