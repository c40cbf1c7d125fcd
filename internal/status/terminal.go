package status

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/roach88/texstack/internal/errs"
)

var (
	noteColor    = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	causeColor   = color.New(color.Bold)
)

// Terminal renders messages for humans. Errors print their full cause
// chain in the same layout as errs.Dump:
//
//	error: while opening input foo.tex
//	caused by: open foo.tex: permission denied
type Terminal struct {
	mu       sync.Mutex
	w        io.Writer
	useColor bool
}

// NewTerminal creates a terminal backend writing to w.
func NewTerminal(w io.Writer, useColor bool) *Terminal {
	return &Terminal{w: w, useColor: useColor}
}

// Report implements Backend.
func (t *Terminal) Report(kind Kind, msg string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.w, "%s %s\n", t.paint(prefixColor(kind), kind.String()+":"), msg)
	if err == nil {
		return
	}
	for _, cause := range errs.Chain(err) {
		fmt.Fprintf(t.w, "%s %s\n", t.paint(causeColor, "caused by:"), cause)
	}
}

// ReportError renders err alone: its first message takes the "error:"
// prefix and each cause follows.
func (t *Terminal) ReportError(err error) {
	chain := errs.Chain(err)
	if len(chain) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.w, "%s %s\n", t.paint(errorColor, "error:"), chain[0])
	for _, cause := range chain[1:] {
		fmt.Fprintf(t.w, "%s %s\n", t.paint(causeColor, "caused by:"), cause)
	}
}

func (t *Terminal) paint(c *color.Color, s string) string {
	if !t.useColor {
		return s
	}
	c.EnableColor()
	return c.Sprint(s)
}

func prefixColor(kind Kind) *color.Color {
	switch kind {
	case KindWarning:
		return warningColor
	case KindError:
		return errorColor
	default:
		return noteColor
	}
}
