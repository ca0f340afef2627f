package transport

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/pion/logging"
)

// FrameHandler is called for each frame received on a link. It runs on the
// link's read goroutine; frames of one link are delivered in order.
type FrameHandler func(l *Link, f *Frame)

// LinkConfig configures a Link.
type LinkConfig struct {
	// Conn is the underlying connection. Required.
	Conn net.Conn

	// Handler receives inbound frames. Required.
	Handler FrameHandler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Link is a framed connection to one peer.
type Link struct {
	conn    net.Conn
	reader  *StreamReader
	writer  *StreamWriter
	handler FrameHandler
	log     logging.LeveledLogger

	writeMu sync.Mutex
	done    chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	err     error
}

// NewLink wraps a connection. Call Start to begin reading.
func NewLink(config LinkConfig) (*Link, error) {
	if config.Conn == nil {
		return nil, ErrNoConn
	}
	if config.Handler == nil {
		return nil, ErrNoHandler
	}
	l := &Link{
		conn:    config.Conn,
		reader:  NewStreamReader(config.Conn),
		writer:  NewStreamWriter(config.Conn),
		handler: config.Handler,
		done:    make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("transport")
	}
	return l, nil
}

// Start launches the read loop.
func (l *Link) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.started {
		return ErrAlreadyStarted
	}
	l.started = true
	go l.readLoop()
	return nil
}

func (l *Link) readLoop() {
	defer close(l.done)
	for {
		f, err := l.reader.ReadFrame()
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			if !closed && !errors.Is(err, io.EOF) {
				l.err = err
			}
			l.mu.Unlock()
			if l.log != nil && !closed {
				l.log.Debugf("link to %s ended: %v", l.conn.RemoteAddr(), err)
			}
			return
		}
		l.handler(l, f)
	}
}

// Send writes one frame for the session. It is safe for concurrent use.
func (l *Link) Send(sessionID uint64, data []byte) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.writer.WriteFrame(&Frame{SessionID: sessionID, Data: data})
}

// Done is closed when the read loop exits.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Err returns the error that ended the read loop, or nil for a clean close.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// RemoteAddr returns the peer address.
func (l *Link) RemoteAddr() net.Addr {
	return l.conn.RemoteAddr()
}

// Close closes the connection and waits for the read loop. It must not be
// called from the link's own FrameHandler.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	started := l.started
	l.mu.Unlock()

	err := l.conn.Close()
	if started {
		<-l.done
	}
	return err
}
