package status

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/texstack/internal/errs"
)

func TestCollector_RecordsInOrder(t *testing.T) {
	c := NewCollector()

	Notef(c, "downloading %s", "plain.tex")
	Warnf(c, "falling back to %s", "bundle")
	Errorf(c, errors.New("eof"), "cannot read %s", "x.sty")

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, KindNote, msgs[0].Kind)
	assert.Equal(t, "downloading plain.tex", msgs[0].Text)
	assert.Equal(t, "warning", msgs[1].Level)
	assert.Equal(t, "eof", msgs[2].Cause)

	assert.Equal(t, 1, c.Count(KindWarning))
	assert.Equal(t, 0, NewCollector().Count(KindError))
}

func TestCollector_MessagesIsCopy(t *testing.T) {
	c := NewCollector()
	Notef(c, "one")

	msgs := c.Messages()
	msgs[0].Text = "mutated"
	assert.Equal(t, "one", c.Messages()[0].Text)
}

func TestTerminal_PlainChain(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, false)

	cause := errs.Wrap(errs.PathForbidden("../secret"), "while opening input ../secret")
	term.Report(KindError, "pass 1 failed", cause)

	assert.Equal(t,
		"error: pass 1 failed\n"+
			"caused by: while opening input ../secret\n"+
			"caused by: access to the path ../secret is forbidden\n",
		buf.String())
}

func TestTerminal_ReportError(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, false)

	term.ReportError(errs.Wrap(errs.NotSizeable(), "while sizing x"))

	assert.Equal(t,
		"error: while sizing x\n"+
			"caused by: the size of this stream cannot be determined\n",
		buf.String())
}

func TestTerminal_Warning(t *testing.T) {
	var buf bytes.Buffer
	NewTerminal(&buf, false).Report(KindWarning, "did not converge", nil)
	assert.Equal(t, "warning: did not converge\n", buf.String())
}

func TestTerminal_Color(t *testing.T) {
	var buf bytes.Buffer
	NewTerminal(&buf, true).Report(KindNote, "hello", nil)
	assert.Contains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "hello")
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	b := NewLogger(logger)

	Warnf(b, "slow network")
	Errorf(b, errs.Wrap(errors.New("reset"), "fetching x"), "fetch failed")

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "slow network")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "fetching x; reset")
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "note", KindNote.String())
	assert.Equal(t, "kind(7)", Kind(7).String())
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Errorf(Discard, errors.New("x"), "ignored") })
}
