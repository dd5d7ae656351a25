// Package framing splits a byte stream into NUL-delimited frames.
package framing

import (
	"bytes"
	"errors"
)

// Delimiter terminates every frame on the wire.
const Delimiter byte = 0

// ErrDelimiterInFrame is returned when a frame to be sent already contains
// the delimiter.
var ErrDelimiterInFrame = errors.New("framing: frame contains delimiter")

// Framer reassembles frames from chunks of arbitrary size. Bytes after the
// last delimiter are carried over to the next Feed call. A Framer is not
// safe for concurrent use; the receive loop owns it.
type Framer struct {
	buf []byte
}

// NewFramer creates an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed consumes one chunk and returns every frame it completes, in order.
// Returned frames do not alias the chunk or the internal buffer.
// Consecutive delimiters produce no empty frames.
func (f *Framer) Feed(chunk []byte) [][]byte {
	var frames [][]byte
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, Delimiter)
		if i < 0 {
			f.buf = append(f.buf, chunk...)
			break
		}
		if len(f.buf)+i > 0 {
			frame := make([]byte, 0, len(f.buf)+i)
			frame = append(frame, f.buf...)
			frame = append(frame, chunk[:i]...)
			frames = append(frames, frame)
		}
		f.buf = f.buf[:0]
		chunk = chunk[i+1:]
	}
	return frames
}

// Pending returns the number of carried-over bytes not yet terminated by a
// delimiter.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset drops carried-over bytes and returns how many were dropped.
func (f *Framer) Reset() int {
	n := len(f.buf)
	f.buf = f.buf[:0]
	return n
}

// Append appends frame and a trailing delimiter to dst.
func Append(dst, frame []byte) ([]byte, error) {
	if bytes.IndexByte(frame, Delimiter) >= 0 {
		return dst, ErrDelimiterInFrame
	}
	dst = append(dst, frame...)
	return append(dst, Delimiter), nil
}

// Frame returns a delimited copy of data ready to be written.
func Frame(data []byte) ([]byte, error) {
	return Append(make([]byte, 0, len(data)+1), data)
}
