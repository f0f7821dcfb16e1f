// Package ws provides the WebSocket client connection driven by a session.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/omochice/wsterm/pkg/protocol"
)

// ErrClosed is returned by Send once the closing handshake has started.
var ErrClosed = errors.New("ws: connection closed")

var errPeerClosed = errors.New("ws: close frame received")

// Options configures Dial.
type Options struct {
	// Header holds extra headers sent with the opening handshake.
	Header http.Header
	// Protocols lists the subprotocols offered to the server.
	Protocols []string
	// DialTimeout bounds the TCP connect and the opening handshake.
	// Zero means no timeout.
	DialTimeout time.Duration
	// CloseTimeout bounds how long Close waits for the peer's close frame
	// before dropping the connection. Zero means wait indefinitely.
	CloseTimeout time.Duration
	Logger       *zerolog.Logger
}

// Conn is a client-side WebSocket connection.
// Incoming data frames are delivered on Messages until the connection ends.
type Conn struct {
	conn         net.Conn
	messages     chan protocol.Message
	done         chan struct{}
	abandon      chan struct{}
	closeOnce    sync.Once
	closeTimeout time.Duration
	logger       zerolog.Logger

	wmu       sync.Mutex
	closeSent bool

	mu        sync.Mutex
	status    protocol.CloseStatus
	statusSet bool
}

// Dial opens a WebSocket connection to uri.
func Dial(ctx context.Context, uri string, opts Options) (*Conn, error) {
	d := ws.Dialer{
		Timeout:   opts.DialTimeout,
		Protocols: opts.Protocols,
	}
	if len(opts.Header) > 0 {
		d.Header = ws.HandshakeHeaderHTTP(opts.Header)
	}

	conn, br, _, err := d.Dial(ctx, uri)
	if err != nil {
		return nil, err
	}

	var src io.Reader = conn
	if br != nil {
		src = br
	}
	return newConn(conn, src, opts), nil
}

func newConn(conn net.Conn, src io.Reader, opts Options) *Conn {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	c := &Conn{
		conn:         conn,
		messages:     make(chan protocol.Message, 16),
		done:         make(chan struct{}),
		abandon:      make(chan struct{}),
		closeTimeout: opts.CloseTimeout,
		logger:       logger.With().Str("remote", conn.RemoteAddr().String()).Logger(),
	}
	go c.readLoop(src)
	return c
}

// Send writes text as a single text frame.
func (c *Conn) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.writeData(ws.OpText, []byte(text)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Messages returns the channel of incoming messages. It is closed when the
// connection terminates, either by a completed close handshake or by a
// transport failure. It must be drained for the connection to make progress.
func (c *Conn) Messages() <-chan protocol.Message {
	return c.messages
}

// Close performs the closing handshake and waits for it to complete.
// It is safe to call more than once and from several goroutines.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		select {
		case <-c.done:
			return
		default:
		}

		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		if _, werr := c.writeClose(body); werr != nil {
			c.logger.Debug().Err(werr).Msg("Failed to send close frame")
			err = c.conn.Close()
			return
		}

		var timeout <-chan time.Time
		if c.closeTimeout > 0 {
			t := time.NewTimer(c.closeTimeout)
			defer t.Stop()
			timeout = t.C
		}

		select {
		case <-c.done:
		case <-timeout:
			c.logger.Warn().Dur("timeout", c.closeTimeout).Msg("Peer did not answer close frame")
			close(c.abandon)
			err = c.conn.Close()
		}
	})
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// CloseStatus returns the close code and reason once the connection has
// terminated. The second result is false while the connection is open.
func (c *Conn) CloseStatus() (protocol.CloseStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.statusSet
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) readLoop(src io.Reader) {
	defer close(c.done)
	defer close(c.messages)
	defer c.conn.Close()

	rd := &wsutil.Reader{
		Source:         src,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: c.handleControl,
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			c.fail(err)
			return
		}

		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, rd); err != nil {
				c.fail(err)
				return
			}
			continue
		}

		data, err := io.ReadAll(rd)
		if err != nil {
			c.fail(err)
			return
		}

		msg := protocol.Message{Kind: protocol.KindText, Data: data}
		if hdr.OpCode == ws.OpBinary {
			msg.Kind = protocol.KindBinary
		}
		c.logger.Debug().Stringer("kind", msg.Kind).Int("size", len(data)).Msg("Received message")

		select {
		case c.messages <- msg:
		case <-c.abandon:
			c.fail(ErrClosed)
			return
		}
	}
}

func (c *Conn) handleControl(hdr ws.Header, r io.Reader) error {
	payload := make([]byte, hdr.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}

	switch hdr.OpCode {
	case ws.OpPing:
		if err := c.writeData(ws.OpPong, payload); err != nil && !errors.Is(err, ErrClosed) {
			return err
		}
		return nil
	case ws.OpPong:
		return nil
	case ws.OpClose:
		status := protocol.CloseStatus{Code: protocol.StatusNoStatusRcvd}
		var reply []byte
		if len(payload) >= 2 {
			code, reason := ws.ParseCloseFrameData(payload)
			status = protocol.CloseStatus{Code: protocol.StatusCode(code), Reason: reason}
			reply = ws.NewCloseFrameBody(code, "")
		}
		c.setStatus(status)
		if sent, err := c.writeClose(reply); sent && err != nil {
			c.logger.Debug().Err(err).Msg("Failed to answer close frame")
		}
		return errPeerClosed
	}
	return nil
}

// writeData writes a data or pong frame unless a close frame has been sent.
func (c *Conn) writeData(op ws.OpCode, p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.closeSent {
		return ErrClosed
	}
	return wsutil.WriteClientMessage(c.conn, op, p)
}

// writeClose sends a close frame at most once per connection.
func (c *Conn) writeClose(body []byte) (bool, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.closeSent {
		return false, nil
	}
	c.closeSent = true
	return true, wsutil.WriteClientMessage(c.conn, ws.OpClose, body)
}

func (c *Conn) fail(err error) {
	if !errors.Is(err, errPeerClosed) {
		c.logger.Debug().Err(err).Msg("Connection lost")
	}
	c.setStatus(protocol.CloseStatus{Code: protocol.StatusAbnormalClosure})
}

// setStatus records the first close status observed.
func (c *Conn) setStatus(s protocol.CloseStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.statusSet {
		return
	}
	c.status = s
	c.statusSet = true
}
