package testutil

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/tracekit/internal/protocol"
)

// Received is one message as seen by the fake agent
type Received struct {
	Kind    string
	Payload []byte
	Conn    int
}

// FakeAgent is an agent stand-in listening on a real Unix socket. It decodes
// frames with the production codec, records every message kind in arrival
// order and acknowledges each one with success.
type FakeAgent struct {
	// Version is returned for CoreAgentVersion
	Version string
	// Delay, when set, postpones every reply
	Delay time.Duration
	// Respond, when set, overrides the reply; returning nil drops it
	Respond func(kind string) protocol.Response

	path     string
	listener net.Listener

	mu       sync.Mutex
	received []Received
	conns    []net.Conn
	accepted int
	closed   bool
	wg       sync.WaitGroup
}

// NewFakeAgent starts a fake agent in a fresh temporary directory. The path is
// kept short since Unix socket paths are length limited.
func NewFakeAgent(t testing.TB) *FakeAgent {
	t.Helper()

	a := NewIdleFakeAgent(t)
	if err := a.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	return a
}

// NewIdleFakeAgent prepares a fake agent without listening; call Listen to
// open the socket.
func NewIdleFakeAgent(t testing.TB) *FakeAgent {
	t.Helper()

	dir, err := os.MkdirTemp("", "tk")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	a := &FakeAgent{Version: "1.4.0", path: filepath.Join(dir, "agent.sock")}
	t.Cleanup(a.Close)
	return a
}

// Path returns the socket path
func (a *FakeAgent) Path() string { return a.path }

// URI returns the socket as a unix:// URI
func (a *FakeAgent) URI() string { return "unix://" + a.path }

// Listen starts accepting connections on the socket path
func (a *FakeAgent) Listen() error {
	l, err := net.Listen("unix", a.path)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.listener = l
	a.closed = false
	a.mu.Unlock()

	a.wg.Add(1)
	go a.acceptLoop(l)
	return nil
}

func (a *FakeAgent) acceptLoop(l net.Listener) {
	defer a.wg.Done()
	for {
		nc, err := l.Accept()
		if err != nil {
			return
		}

		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			_ = nc.Close()
			return
		}
		a.accepted++
		n := a.accepted
		a.conns = append(a.conns, nc)
		a.mu.Unlock()

		a.wg.Add(1)
		go a.serve(nc, n)
	}
}

func (a *FakeAgent) serve(nc net.Conn, n int) {
	defer a.wg.Done()
	defer nc.Close()

	var dec protocol.Decoder
	buf := make([]byte, 4096)
	for {
		read, err := nc.Read(buf)
		if read > 0 {
			frames, ferr := dec.Feed(buf[:read])
			for _, f := range frames {
				if f.Err != nil {
					continue
				}
				kind := f.Response.Kind()
				a.record(Received{Kind: kind, Payload: append([]byte(nil), f.Payload...), Conn: n})
				if err := a.reply(nc, kind); err != nil {
					return
				}
			}
			if ferr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (a *FakeAgent) reply(nc net.Conn, kind string) error {
	if a.Delay > 0 {
		time.Sleep(a.Delay)
	}

	var resp protocol.Response
	switch {
	case a.Respond != nil:
		resp = a.Respond(kind)
		if resp == nil {
			return nil
		}
	case kind == protocol.KindCoreAgentVersion:
		resp = &protocol.VersionResponse{Version: a.Version, Result: protocol.Success()}
	default:
		resp = protocol.NewAck(kind, protocol.Success())
	}

	frame, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}
	_, err = nc.Write(frame)
	return err
}

// Push writes a frame to every open connection, unprompted
func (a *FakeAgent) Push(resp protocol.Response) error {
	frame, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}
	a.mu.Lock()
	conns := append([]net.Conn(nil), a.conns...)
	a.mu.Unlock()

	var errs []error
	for _, nc := range conns {
		if _, err := nc.Write(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DropConnections closes every accepted connection while still listening
func (a *FakeAgent) DropConnections() {
	a.mu.Lock()
	conns := a.conns
	a.conns = nil
	a.mu.Unlock()
	for _, nc := range conns {
		_ = nc.Close()
	}
}

func (a *FakeAgent) record(r Received) {
	a.mu.Lock()
	a.received = append(a.received, r)
	a.mu.Unlock()
}

// Messages returns everything received so far
func (a *FakeAgent) Messages() []Received {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Received(nil), a.received...)
}

// Kinds returns the kinds received so far in order
func (a *FakeAgent) Kinds() []string {
	got := a.Messages()
	kinds := make([]string, len(got))
	for i, r := range got {
		kinds[i] = r.Kind
	}
	return kinds
}

// Count returns how many messages of kind were received
func (a *FakeAgent) Count(kind string) int {
	n := 0
	for _, r := range a.Messages() {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// Accepted returns the number of connections accepted
func (a *FakeAgent) Accepted() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accepted
}

// WaitFor polls until at least n messages have arrived or the timeout passes
func (a *FakeAgent) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(a.Messages()) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return len(a.Messages()) >= n
}

// Close stops listening and closes every connection
func (a *FakeAgent) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	l := a.listener
	a.mu.Unlock()

	if l != nil {
		_ = l.Close()
	}
	a.DropConnections()
	a.wg.Wait()
}
