package transport

import (
	"context"
	"net"
	"sync"

	"github.com/pion/logging"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Listener is an optional pre-existing listener.
	// If nil, a new TCP listener is created on ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g., ":7575").
	// Ignored if Listener is provided.
	ListenAddr string

	// Handler receives the frames of every accepted link. Required.
	Handler FrameHandler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Server accepts connections and runs a Link on each.
type Server struct {
	listener      net.Listener
	handler       FrameHandler
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
	closeCh       chan struct{}
	wg            sync.WaitGroup

	linksMu sync.Mutex
	links   map[*Link]struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewServer creates a server. Call Start to begin accepting.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}
	s := &Server{
		listener:      config.Listener,
		handler:       config.Handler,
		loggerFactory: config.LoggerFactory,
		closeCh:       make(chan struct{}),
		links:         make(map[*Link]struct{}),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("transport-tcp")
	}
	if s.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		s.listener = ln
	}
	return s, nil
}

// Start begins accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	if s.log != nil {
		s.log.Infof("listening on %s", s.listener.Addr())
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			if s.log != nil {
				s.log.Warnf("accept: %v", err)
			}
			return
		}

		l, err := NewLink(LinkConfig{Conn: conn, Handler: s.handler, LoggerFactory: s.loggerFactory})
		if err != nil {
			conn.Close()
			continue
		}
		s.linksMu.Lock()
		select {
		case <-s.closeCh:
			s.linksMu.Unlock()
			conn.Close()
			return
		default:
		}
		s.links[l] = struct{}{}
		s.linksMu.Unlock()
		if s.log != nil {
			s.log.Debugf("accepted %s", conn.RemoteAddr())
		}

		l.Start()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			<-l.Done()
			s.linksMu.Lock()
			delete(s.links, l)
			s.linksMu.Unlock()
		}()
	}
}

// Stop closes the listener and every link, and waits for their goroutines.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	close(s.closeCh)
	err := s.listener.Close()

	s.linksMu.Lock()
	links := make([]*Link, 0, len(s.links))
	for l := range s.links {
		links = append(links, l)
	}
	s.linksMu.Unlock()
	for _, l := range links {
		l.Close()
	}

	s.wg.Wait()
	return err
}

// Dial connects to a server and starts a link on the connection.
func Dial(ctx context.Context, addr string, handler FrameHandler, loggerFactory logging.LoggerFactory) (*Link, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	l, err := NewLink(LinkConfig{Conn: conn, Handler: handler, LoggerFactory: loggerFactory})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := l.Start(); err != nil {
		conn.Close()
		return nil, err
	}
	return l, nil
}
