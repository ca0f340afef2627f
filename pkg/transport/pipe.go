package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"
)

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic delivery in a background goroutine.
	// Default: true
	AutoProcess bool

	// ProcessInterval is how often the auto-processor delivers packets.
	// Default: 1ms
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: 1 * time.Millisecond,
	}
}

// Pipe is an in-memory connection between two endpoints built on pion's
// test.Bridge. Each Write on one end is one packet on the other.
//
// With AutoProcess off nothing moves until Tick or Process is called, which
// gives tests full control over delivery order.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.Mutex
	closed          bool
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		bridge:          test.NewBridge(),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}
	if p.processInterval == 0 {
		p.processInterval = 1 * time.Millisecond
	}
	if p.autoProcess {
		p.startAutoProcess()
	}
	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// Conn0 returns endpoint 0.
func (p *Pipe) Conn0() net.Conn {
	return p.bridge.GetConn0()
}

// Conn1 returns endpoint 1.
func (p *Pipe) Conn1() net.Conn {
	return p.bridge.GetConn1()
}

// Tick delivers one packet in each direction, if available, and returns
// how many were delivered.
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers all queued packets.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			return count
		}
		count += n
	}
}

// Close stops auto-processing and closes both endpoints.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// LinkPair is two links joined by a Pipe.
type LinkPair struct {
	links [2]*Link
	pipe  *Pipe
}

// NewLinkPair creates two started links over a new pipe. handlers[i]
// receives the frames arriving at Link(i).
//
// Example:
//
//	pair, _ := transport.NewLinkPair(transport.DefaultPipeConfig(),
//	    [2]transport.FrameHandler{onCentre, onAccessory}, nil)
//	defer pair.Close()
//	pair.Link(0).Send(1, data) // arrives at onAccessory
func NewLinkPair(config PipeConfig, handlers [2]FrameHandler, loggerFactory logging.LoggerFactory) (*LinkPair, error) {
	pair := &LinkPair{pipe: NewPipeWithConfig(config)}
	conns := [2]net.Conn{pair.pipe.Conn0(), pair.pipe.Conn1()}
	for i := range conns {
		l, err := NewLink(LinkConfig{Conn: conns[i], Handler: handlers[i], LoggerFactory: loggerFactory})
		if err != nil {
			pair.Close()
			return nil, err
		}
		pair.links[i] = l
	}
	for _, l := range pair.links {
		if err := l.Start(); err != nil {
			pair.Close()
			return nil, err
		}
	}
	return pair, nil
}

// Link returns link 0 or 1, or nil for any other index.
func (p *LinkPair) Link(i int) *Link {
	if i < 0 || i > 1 {
		return nil
	}
	return p.links[i]
}

// Pipe returns the underlying pipe for manual delivery control.
func (p *LinkPair) Pipe() *Pipe {
	return p.pipe
}

// Close closes both links and the pipe.
func (p *LinkPair) Close() error {
	for _, l := range p.links {
		if l != nil {
			l.Close()
		}
	}
	return p.pipe.Close()
}
