// Package terminal renders session output around an in-progress input line
// and reads input lines in a way that can be cancelled.
package terminal

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

type flusher interface {
	Flush() error
}

// Printer writes to a terminal shared by the input and receiver loops.
// Every operation is emitted as a single write under a mutex so escape
// sequences from concurrent callers never interleave.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	plain bool
}

// NewPrinter creates a Printer that emits ANSI escape sequences.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// NewPlainPrinter creates a Printer for non-terminal output. Lines are
// written one after another and no prompt is drawn.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w, plain: true}
}

// ForWriter picks NewPrinter when w is a terminal and NewPlainPrinter otherwise.
func ForWriter(w io.Writer) *Printer {
	if IsTerminal(w) {
		return NewPrinter(w)
	}
	return NewPlainPrinter(w)
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Plain reports whether the printer writes without escape sequences.
func (p *Printer) Plain() bool {
	return p.plain
}

// InsertAbovePrompt shows text on a new line directly above the line being
// typed. The input line and the cursor position within it are preserved.
func (p *Printer) InsertAbovePrompt(text string) error {
	if p.plain {
		return p.emit(text + "\n")
	}
	var b strings.Builder
	b.WriteString(ansi.SaveCursor)
	b.WriteString("\n")
	b.WriteString(ansi.CursorUp(1))
	b.WriteString(ansi.InsertLine(1))
	b.WriteString(text)
	b.WriteString("\n")
	b.WriteString(ansi.RestoreCursor)
	b.WriteString(ansi.CursorDown(1))
	return p.emit(b.String())
}

// ReplacePrompt clears the current line and writes text in its place.
// It is used once input has stopped.
func (p *Printer) ReplacePrompt(text string) error {
	if p.plain {
		return p.emit(text + "\n")
	}
	return p.emit("\r" + ansi.EraseEntireLine + text + "\n")
}

// Prompt draws the input prompt without a trailing newline.
func (p *Printer) Prompt(prompt string) error {
	if p.plain || prompt == "" {
		return nil
	}
	return p.emit(prompt)
}

// Println writes text followed by a newline.
func (p *Printer) Println(text string) error {
	return p.emit(text + "\n")
}

func (p *Printer) emit(s string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := io.WriteString(p.w, s); err != nil {
		return err
	}
	if f, ok := p.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
