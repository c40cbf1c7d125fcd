package stdio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

// closeTracker records whether the stream was closed.
type closeTracker struct {
	bytes.Buffer
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestStdout_DoesNotCloseProcessStream(t *testing.T) {
	out := &closeTracker{}
	p := New(out)

	r := p.OutputOpenStdout()
	require.True(t, r.IsSuccess())
	h := r.Handle()
	_, err := h.Write([]byte("Output written on main.pdf"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	assert.Equal(t, "Output written on main.pdf", out.String())
	assert.False(t, out.closed)
	assert.Equal(t, "stdout", h.Origin())
}

func TestStdout_Absent(t *testing.T) {
	assert.True(t, New(nil).OutputOpenStdout().IsNotAvailable())
}

func TestPrimary_FromStdinIsRereadable(t *testing.T) {
	p := New(io.Discard, WithStdin(strings.NewReader("\\relax")), WithPrimaryName("doc.tex"))

	for range 2 {
		h, err := provider.OpenPrimary(p, status.Discard)
		require.NoError(t, err)
		data, err := io.ReadAll(h)
		require.NoError(t, err)
		require.NoError(t, h.Close())
		assert.Equal(t, "\\relax", string(data))
		assert.Equal(t, "doc.tex", h.Name())
	}
}

func TestPrimary_ReadFailure(t *testing.T) {
	p := New(io.Discard, WithStdin(iotest.ErrReader(errors.New("broken pipe"))))

	r := p.InputOpenPrimary(status.Discard)
	require.True(t, r.IsError())
	assert.Equal(t, errs.KindIO, errs.KindOf(r.Err()))
	assert.Equal(t, []string{"reading standard input", "broken pipe"}, errs.Chain(r.Err()))
}

func TestContractAnswers(t *testing.T) {
	p := New(io.Discard)

	assert.True(t, p.InputOpenPrimary(status.Discard).IsNotAvailable(), "no stdin configured")
	assert.True(t, p.InputOpenName("main.tex", status.Discard).IsNotAvailable())
	assert.True(t, p.InputOpenFormat("latex.fmt", status.Discard).IsNotAvailable())
	assert.True(t, p.OutputOpenName("main.log").IsNotAvailable())
}
