// Package transport carries protocol messages between two devices.
//
// The engine itself is transport agnostic: it hands the host opaque bytes per
// session. This package is one way for a host to move them. Every frame is a
// 4-byte little-endian length prefix followed by the 8-byte little-endian
// session id and the message bytes, so several sessions can share one
// connection.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// LengthPrefixSize is the size of the frame length prefix.
	LengthPrefixSize = 4

	// SessionIDSize is the size of the session id at the start of a frame.
	SessionIDSize = 8

	// MaxFrameSize bounds the frame body, session id included.
	MaxFrameSize = 16 * 1024
)

// Frame is one message for one session.
type Frame struct {
	SessionID uint64
	Data      []byte
}

// Encode returns the frame body without the length prefix.
func (f *Frame) Encode() []byte {
	b := make([]byte, SessionIDSize+len(f.Data))
	binary.LittleEndian.PutUint64(b, f.SessionID)
	copy(b[SessionIDSize:], f.Data)
	return b
}

// DecodeFrame parses a frame body.
func DecodeFrame(b []byte) (*Frame, error) {
	if len(b) < SessionIDSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(b))
	}
	return &Frame{
		SessionID: binary.LittleEndian.Uint64(b),
		Data:      append([]byte(nil), b[SessionIDSize:]...),
	}, nil
}

// StreamWriter writes length-prefixed frames.
type StreamWriter struct {
	w io.Writer
}

// NewStreamWriter creates a StreamWriter on w.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// WriteFrame writes f. Prefix and body go out in a single Write so that
// packet-oriented connections see one packet per frame.
func (sw *StreamWriter) WriteFrame(f *Frame) error {
	body := SessionIDSize + len(f.Data)
	if body > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, body)
	}
	buf := make([]byte, LengthPrefixSize+body)
	binary.LittleEndian.PutUint32(buf, uint32(body))
	binary.LittleEndian.PutUint64(buf[LengthPrefixSize:], f.SessionID)
	copy(buf[LengthPrefixSize+SessionIDSize:], f.Data)
	_, err := sw.w.Write(buf)
	return err
}

// StreamReader reads length-prefixed frames.
type StreamReader struct {
	r *bufio.Reader
}

// NewStreamReader creates a StreamReader on r. Reads are buffered to a full
// frame so a packet connection never truncates one.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: bufio.NewReaderSize(r, LengthPrefixSize+MaxFrameSize)}
}

// ReadFrame reads the next frame. It returns io.EOF at a clean end of stream.
func (sr *StreamReader) ReadFrame() (*Frame, error) {
	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(sr.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(sr.r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return DecodeFrame(body)
}
