package crypto

import (
	"errors"
	"fmt"
)

// ErrBufferOverflow is returned when an append would exceed a Builder's capacity.
var ErrBufferOverflow = errors.New("crypto: buffer overflow")

// Builder assembles byte strings in order into a buffer of fixed capacity.
// Appends that do not fit fail without modifying the contents.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty Builder that holds at most capacity bytes.
func NewBuilder(capacity int) *Builder {
	return &Builder{buf: make([]byte, 0, capacity)}
}

// Append adds each part in order. Either all parts fit or none is written.
func (b *Builder) Append(parts ...[]byte) error {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	if len(b.buf)+n > cap(b.buf) {
		return fmt.Errorf("%w: need %d bytes, %d free", ErrBufferOverflow, n, cap(b.buf)-len(b.buf))
	}
	for _, p := range parts {
		b.buf = append(b.buf, p...)
	}
	return nil
}

// Bytes returns the assembled bytes. The slice aliases the builder.
func (b *Builder) Bytes() []byte { return b.buf }

// Len returns the number of bytes written.
func (b *Builder) Len() int { return len(b.buf) }

// Wipe zeroes the contents and resets the builder.
func (b *Builder) Wipe() {
	clear(b.buf[:cap(b.buf)])
	b.buf = b.buf[:0]
}
