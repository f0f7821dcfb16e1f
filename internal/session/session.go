// Package session drives an interactive exchange over an open connection.
//
// Two goroutines run for the lifetime of a session. The receiver loop
// prints every incoming message above the prompt. The input loop, which
// runs on the caller's goroutine, reads lines and sends them. Whichever
// side ends first drives the other to a stop:
//
//   - a local interrupt or end of input makes the input loop begin
//     shutdown and close the connection, which ends the receiver loop;
//   - a remote close or transport failure ends the receiver loop, which
//     cancels the input loop's pending read.
//
// The input loop always performs the final cleanup: it prints the close
// status and waits for the receiver loop before Run returns.
package session

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/omochice/wsterm/internal/terminal"
	"github.com/omochice/wsterm/pkg/protocol"
)

// ErrRemoteClosed is the cancellation cause used when the peer ends the
// connection while the session is still running.
var ErrRemoteClosed = errors.New("session: connection closed by peer")

// Conn is the connection a session drives.
type Conn interface {
	// Send transmits one text message.
	Send(ctx context.Context, text string) error
	// Messages yields incoming messages and is closed when the connection
	// terminates for any reason.
	Messages() <-chan protocol.Message
	// Close performs the closing handshake. It must be idempotent and
	// return only once the close status is known.
	Close() error
	// CloseStatus reports the status after Close returned or Messages closed.
	CloseStatus() (protocol.CloseStatus, bool)
}

// LineReader supplies input lines.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
}

// Printer renders output without disturbing the line being typed.
type Printer interface {
	Prompt(prompt string) error
	InsertAbovePrompt(text string) error
	ReplacePrompt(text string) error
}

// Trigger identifies what ended a session.
type Trigger int

const (
	TriggerInterrupt Trigger = iota
	TriggerEOF
	TriggerRemoteClose
	TriggerSendFailed
	TriggerInputError
)

// String returns the string representation of Trigger
func (t Trigger) String() string {
	switch t {
	case TriggerInterrupt:
		return "interrupt"
	case TriggerEOF:
		return "eof"
	case TriggerRemoteClose:
		return "remote_close"
	case TriggerSendFailed:
		return "send_failed"
	case TriggerInputError:
		return "input_error"
	default:
		return "unknown"
	}
}

// Result describes how a session ended.
type Result struct {
	Status  protocol.CloseStatus
	Trigger Trigger
	// Err holds the send or input error for TriggerSendFailed and
	// TriggerInputError.
	Err error
}

// Session couples a connection to a terminal.
type Session struct {
	conn     Conn
	input    LineReader
	printer  Printer
	prompt   string
	logger   zerolog.Logger
	shutdown Shutdown
	wg       sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithPrompt sets the prompt drawn before each line is read.
func WithPrompt(prompt string) Option {
	return func(s *Session) {
		s.prompt = prompt
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New creates a Session. The connection must already be open.
func New(conn Conn, input LineReader, printer Printer, opts ...Option) *Session {
	s := &Session{
		conn:    conn,
		input:   input,
		printer: printer,
		prompt:  "> ",
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the shutdown state.
func (s *Session) State() State {
	return s.shutdown.State()
}

// Run executes the session until it terminates and returns how it ended.
// Cancelling ctx acts as a local interrupt. Run must be called only once.
func (s *Session) Run(ctx context.Context) Result {
	ctx, interrupt := context.WithCancelCause(ctx)
	defer interrupt(nil)

	s.wg.Add(1)
	go s.receive(interrupt)

	res := s.inputLoop(ctx)

	// The flag must be visible before Close so the receiver loop treats
	// the end of Messages as a local shutdown.
	s.shutdown.Begin()
	ev := s.logger.Info().Stringer("trigger", res.Trigger)
	if res.Err != nil {
		ev = ev.Err(res.Err)
	}
	ev.Msg("Shutting down")

	if err := s.conn.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to close connection cleanly")
	}
	status, ok := s.conn.CloseStatus()
	if !ok {
		panic("session: close status unset after Close returned")
	}
	res.Status = status

	if err := s.printer.ReplacePrompt(status.ClosedLine()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to print close status")
	}

	s.wg.Wait()
	s.shutdown.Finish()
	s.logger.Info().Str("status", status.Describe()).Msg("Session ended")
	return res
}

func (s *Session) inputLoop(ctx context.Context) Result {
	for {
		if err := s.printer.Prompt(s.prompt); err != nil {
			s.logger.Error().Err(err).Msg("Failed to draw prompt")
		}

		line, err := s.input.ReadLine(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil || errors.Is(err, terminal.ErrInterrupted):
				return interrupted(ctx)
			case errors.Is(err, io.EOF):
				return Result{Trigger: TriggerEOF}
			default:
				return Result{Trigger: TriggerInputError, Err: err}
			}
		}

		if err := s.conn.Send(ctx, line); err != nil {
			// A send racing a remote close fails; report the close instead.
			if ctx.Err() != nil {
				return interrupted(ctx)
			}
			return Result{Trigger: TriggerSendFailed, Err: err}
		}
		s.logger.Debug().Int("size", len(line)).Msg("Sent message")
	}
}

func interrupted(ctx context.Context) Result {
	if errors.Is(context.Cause(ctx), ErrRemoteClosed) {
		return Result{Trigger: TriggerRemoteClose}
	}
	return Result{Trigger: TriggerInterrupt}
}

func (s *Session) receive(interrupt context.CancelCauseFunc) {
	defer s.wg.Done()

	for msg := range s.conn.Messages() {
		if err := s.printer.InsertAbovePrompt(msg.Incoming()); err != nil {
			s.logger.Error().Err(err).Msg("Failed to print message")
		}
	}

	if s.shutdown.Stopping() {
		return
	}
	s.logger.Info().Msg("Connection closed by peer")
	interrupt(ErrRemoteClosed)
}
