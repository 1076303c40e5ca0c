package packet

import (
	"bytes"
	"errors"
)

// Delim terminates every packet. It is part of the packet.
const Delim = '\n'

// ErrBufferFull is returned by Feed when the bytes of an incomplete packet
// would grow past the framer's Limit. Those bytes are discarded; complete
// packets cut from the same chunk are still returned.
var ErrBufferFull = errors.New("packet: accumulation buffer full")

// Framer accumulates the bytes of one connection and cuts them into
// newline-terminated packets.
//
// A Framer is not safe for concurrent use.
type Framer struct {
	// Limit caps the bytes of an incomplete packet. Zero or negative means
	// unbounded: a peer sending a line with no newline grows the buffer
	// without limit.
	Limit int

	buf []byte
}

// NewFramer returns a Framer with the given limit (0 for unbounded).
func NewFramer(limit int) *Framer {
	return &Framer{Limit: limit}
}

// Feed appends chunk to the retained bytes and returns every complete
// packet, in the order their newlines occur, including the newline.
// Bytes after the last newline are retained for the next call.
//
// If the retained bytes would exceed Limit, the part of chunk that would
// have been retained is dropped and ErrBufferFull is returned along with
// the complete packets. Without a newline in chunk that leaves the
// retained bytes as they were before the call.
//
// The returned slices are not modified by later calls.
func (f *Framer) Feed(chunk []byte) ([][]byte, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	prev := len(f.buf)
	f.buf = append(f.buf, chunk...)

	var packets [][]byte
	start := 0
	// only the new bytes can contain a newline
	scan := prev
	for {
		i := bytes.IndexByte(f.buf[scan:], Delim)
		if i < 0 {
			break
		}
		end := scan + i + 1
		packets = append(packets, f.buf[start:end:end])
		start = end
		scan = end
	}

	if f.Limit > 0 && len(f.buf)-start > f.Limit {
		if start == 0 {
			f.buf = f.buf[:prev]
		} else {
			f.buf = nil
		}
		return packets, ErrBufferFull
	}
	if start == 0 {
		return nil, nil
	}
	if start == len(f.buf) {
		f.buf = nil
	} else {
		f.buf = append([]byte(nil), f.buf[start:]...)
	}
	return packets, nil
}

// Buffered returns the number of retained bytes.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Pending returns the retained bytes of an incomplete packet.
func (f *Framer) Pending() []byte {
	return f.buf
}

// Reset releases the retained bytes.
func (f *Framer) Reset() {
	f.buf = nil
}
