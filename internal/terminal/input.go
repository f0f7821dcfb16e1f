package terminal

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/muesli/cancelreader"
)

// ErrInterrupted is returned by ReadLine when the read was cancelled
// before a complete line arrived.
var ErrInterrupted = errors.New("terminal: read interrupted")

// LineReader reads newline terminated lines from an input stream.
// A pending ReadLine returns as soon as its context is done.
type LineReader struct {
	cr       cancelreader.CancelReader
	lines    chan string
	stop     chan struct{}
	once     sync.Once
	stopOnce sync.Once
	err      error
}

// NewLineReader wraps r. When r is a file that supports readiness polling
// (a terminal or pipe), a blocked read is released by Cancel. Other readers
// are wrapped too, but a read already in progress keeps blocking until
// data or EOF arrives; ReadLine still returns on cancellation.
func NewLineReader(r io.Reader) *LineReader {
	cr, err := cancelreader.NewReader(r)
	if err != nil {
		// Regular files cannot be polled; hide the file so the
		// fallback reader is used.
		cr, _ = cancelreader.NewReader(struct{ io.Reader }{r})
	}
	return &LineReader{
		cr:    cr,
		lines: make(chan string),
		stop:  make(chan struct{}),
	}
}

// ReadLine returns the next line without its line terminator. It returns
// io.EOF at end of input and ErrInterrupted when ctx is done or the reader
// was cancelled. A final line without a terminator is returned before io.EOF.
func (l *LineReader) ReadLine(ctx context.Context) (string, error) {
	l.once.Do(func() { go l.readLoop() })

	select {
	case <-ctx.Done():
		return "", ErrInterrupted
	case <-l.stop:
		return "", ErrInterrupted
	case line, ok := <-l.lines:
		if !ok {
			if errors.Is(l.err, cancelreader.ErrCanceled) || errors.Is(l.err, ErrInterrupted) {
				return "", ErrInterrupted
			}
			return "", l.err
		}
		return line, nil
	}
}

// Cancel releases a read blocked on the underlying input, if the platform
// allows it. Subsequent ReadLine calls return ErrInterrupted.
func (l *LineReader) Cancel() bool {
	l.stopOnce.Do(func() { close(l.stop) })
	return l.cr.Cancel()
}

func (l *LineReader) readLoop() {
	defer close(l.lines)

	br := bufio.NewReader(l.cr)
	for {
		line, err := br.ReadString('\n')
		if line != "" && (err == nil || errors.Is(err, io.EOF)) {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			select {
			case l.lines <- line:
			case <-l.stop:
				l.err = ErrInterrupted
				return
			}
		}
		if err != nil {
			l.err = err
			return
		}
	}
}
