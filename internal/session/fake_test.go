package session_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/omochice/wsterm/internal/session"
	"github.com/omochice/wsterm/pkg/protocol"
)

var errSendOnClosed = errors.New("fake: send on closed connection")

// fakeConn is an in-memory session.Conn. Close completes the handshake
// immediately with a normal closure unless the peer already closed.
type fakeConn struct {
	messages chan protocol.Message

	mu        sync.Mutex
	sent      []string
	status    protocol.CloseStatus
	statusSet bool
	closed    bool

	closeCalls atomic.Int32
	// onClose runs at the start of every Close call.
	onClose func()
}

func newFakeConn(buffer int) *fakeConn {
	return &fakeConn{messages: make(chan protocol.Message, buffer)}
}

func (f *fakeConn) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errSendOnClosed
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeConn) Messages() <-chan protocol.Message {
	return f.messages
}

func (f *fakeConn) Close() error {
	f.closeCalls.Add(1)
	if f.onClose != nil {
		f.onClose()
	}
	f.terminate(protocol.CloseStatus{Code: protocol.StatusNormalClosure})
	return nil
}

func (f *fakeConn) CloseStatus() (protocol.CloseStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusSet
}

// remoteClose simulates the peer completing a close handshake.
func (f *fakeConn) remoteClose(code protocol.StatusCode, reason string) {
	f.terminate(protocol.CloseStatus{Code: code, Reason: reason})
}

func (f *fakeConn) terminate(status protocol.CloseStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.status = status
	f.statusSet = true
	close(f.messages)
}

func (f *fakeConn) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// brokenConn never reports a close status.
type brokenConn struct {
	*fakeConn
}

func (b brokenConn) CloseStatus() (protocol.CloseStatus, bool) {
	return protocol.CloseStatus{}, false
}

// recordingPrinter captures printer calls in order.
type recordingPrinter struct {
	mu       sync.Mutex
	prompts  int
	inserted []string
	replaced []string
}

func (p *recordingPrinter) Prompt(string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts++
	return nil
}

func (p *recordingPrinter) InsertAbovePrompt(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inserted = append(p.inserted, text)
	return nil
}

func (p *recordingPrinter) ReplacePrompt(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replaced = append(p.replaced, text)
	return nil
}

func (p *recordingPrinter) Inserted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.inserted...)
}

func (p *recordingPrinter) Replaced() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.replaced...)
}

// scriptedInput returns the given lines, then blocks until ctx is done
// when hold is set, or returns io.EOF otherwise.
type scriptedInput struct {
	lines []string
	hold  bool
	err   error
}

func (s *scriptedInput) ReadLine(ctx context.Context) (string, error) {
	if len(s.lines) > 0 {
		line := s.lines[0]
		s.lines = s.lines[1:]
		return line, nil
	}
	if s.err != nil {
		return "", s.err
	}
	if s.hold {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "", io.EOF
}

var (
	_ session.Conn       = (*fakeConn)(nil)
	_ session.Printer    = (*recordingPrinter)(nil)
	_ session.LineReader = (*scriptedInput)(nil)
)
