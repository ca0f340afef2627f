package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func collect() (FrameHandler, <-chan *Frame) {
	ch := make(chan *Frame, 16)
	return func(_ *Link, f *Frame) { ch <- f }, ch
}

func expectFrame(t *testing.T, ch <-chan *Frame, id uint64, data string) {
	t.Helper()
	select {
	case f := <-ch:
		if f.SessionID != id || string(f.Data) != data {
			t.Fatalf("got session %d %q, want %d %q", f.SessionID, f.Data, id, data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %q", data)
	}
}

func TestLinkPair(t *testing.T) {
	h0, ch0 := collect()
	h1, ch1 := collect()
	pair, err := NewLinkPair(DefaultPipeConfig(), [2]FrameHandler{h0, h1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer pair.Close()

	if err := pair.Link(0).Send(3, []byte("to one")); err != nil {
		t.Fatal(err)
	}
	if err := pair.Link(1).Send(4, []byte("to zero")); err != nil {
		t.Fatal(err)
	}
	expectFrame(t, ch1, 3, "to one")
	expectFrame(t, ch0, 4, "to zero")

	if pair.Link(2) != nil {
		t.Fatal("Link(2) should be nil")
	}
}

func TestLinkPairManualProcess(t *testing.T) {
	h0, _ := collect()
	h1, ch1 := collect()
	pair, err := NewLinkPair(PipeConfig{AutoProcess: false}, [2]FrameHandler{h0, h1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer pair.Close()

	for i := uint64(1); i <= 3; i++ {
		if err := pair.Link(0).Send(i, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case f := <-ch1:
		t.Fatalf("frame %d delivered before Process", f.SessionID)
	case <-time.After(20 * time.Millisecond):
	}

	if n := pair.Pipe().Process(); n != 3 {
		t.Fatalf("Process delivered %d packets, want 3", n)
	}
	for i := uint64(1); i <= 3; i++ {
		expectFrame(t, ch1, i, "x")
	}
}

func TestLinkClosed(t *testing.T) {
	h, _ := collect()
	pair, err := NewLinkPair(DefaultPipeConfig(), [2]FrameHandler{h, h}, nil)
	if err != nil {
		t.Fatal(err)
	}
	l := pair.Link(0)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Send(1, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close: %v", err)
	}
	if err := l.Start(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start after Close: %v", err)
	}
	pair.Close()
}

func TestNewLinkValidation(t *testing.T) {
	if _, err := NewLink(LinkConfig{}); !errors.Is(err, ErrNoConn) {
		t.Fatalf("got %v, want ErrNoConn", err)
	}
	p := NewPipe()
	defer p.Close()
	if _, err := NewLink(LinkConfig{Conn: p.Conn0()}); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("got %v, want ErrNoHandler", err)
	}
}

func TestServerDial(t *testing.T) {
	echo := func(l *Link, f *Frame) {
		l.Send(f.SessionID, append([]byte("echo:"), f.Data...))
	}
	srv, err := NewServer(ServerConfig{ListenAddr: "127.0.0.1:0", Handler: echo})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	defer srv.Stop()

	h, ch := collect()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l, err := Dial(ctx, srv.Addr().String(), h, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if err := l.Send(9, []byte("ping")); err != nil {
		t.Fatal(err)
	}
	expectFrame(t, ch, 9, "echo:ping")

	if err := srv.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start: %v", err)
	}
}

func TestServerStopClosesLinks(t *testing.T) {
	h, _ := collect()
	srv, err := NewServer(ServerConfig{ListenAddr: "127.0.0.1:0", Handler: h})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}

	l, err := Dial(context.Background(), srv.Addr().String(), h, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	// Make sure the server side exists before stopping.
	if err := l.Send(1, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := srv.Stop(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client link still open after server stop")
	}
	if err := srv.Stop(); !errors.Is(err, ErrClosed) {
		t.Fatalf("second Stop: %v", err)
	}
}
