package main

import (
	"bytes"
	"io"
	"sync"
)

// lockedWriter serializes writes from several devices.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}

// prefixWriter tags each line with a device name.
type prefixWriter struct {
	w      io.Writer
	prefix []byte
}

func prefixed(w io.Writer, name string) io.Writer {
	return &prefixWriter{w: w, prefix: []byte("[" + name + "] ")}
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	for _, line := range bytes.SplitAfter(b, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		if _, err := p.w.Write(append(append([]byte(nil), p.prefix...), line...)); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}
