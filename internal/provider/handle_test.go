package provider_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/provider"
)

// streamOnly hides every method but Read.
type streamOnly struct{ r io.Reader }

func (s streamOnly) Read(p []byte) (int, error) { return s.r.Read(p) }

type closeCounter struct {
	io.Reader
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func observeInput(h *provider.InputHandle) *provider.Fingerprint {
	var fp provider.Fingerprint
	h.Observe(func(got provider.Fingerprint, err error) {
		if err == nil {
			fp = got
		}
	})
	return &fp
}

func TestInputHandle_FingerprintFullRead(t *testing.T) {
	h := provider.NewInputHandle("a.aux", strings.NewReader("hello world"))
	fp := observeInput(h)

	_, err := io.ReadAll(h)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	assert.True(t, fp.Equal(provider.FingerprintBytes([]byte("hello world"))))
	assert.Equal(t, int64(11), fp.Size)
}

func TestInputHandle_FingerprintPartialRead(t *testing.T) {
	h := provider.NewInputHandle("a.aux", streamOnly{strings.NewReader("hello world")})
	fp := observeInput(h)

	buf := make([]byte, 5)
	_, err := io.ReadFull(h, buf)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	assert.True(t, fp.Equal(provider.FingerprintBytes([]byte("hello world"))),
		"unread remainder must be included in the fingerprint")
}

func TestInputHandle_FingerprintAfterSeek(t *testing.T) {
	h := provider.NewInputHandle("a.aux", strings.NewReader("hello world"))
	fp := observeInput(h)

	_, err := h.Seek(6, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "world", string(rest))
	require.NoError(t, h.Close())

	assert.True(t, fp.Equal(provider.FingerprintBytes([]byte("hello world"))))
}

func TestInputHandle_TellDoesNotDisturbHash(t *testing.T) {
	h := provider.NewInputHandle("a", strings.NewReader("abc"))
	fp := observeInput(h)

	pos, err := h.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)
	_, err = io.ReadAll(h)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.True(t, fp.Equal(provider.FingerprintBytes([]byte("abc"))))
}

func TestInputHandle_NotSeekable(t *testing.T) {
	h := provider.NewInputHandle("pipe", streamOnly{strings.NewReader("x")})
	defer h.Close()

	_, err := h.Seek(0, io.SeekStart)
	require.Error(t, err)
	assert.True(t, errs.IsNotSeekable(err))
}

func TestInputHandle_Size(t *testing.T) {
	t.Run("size method", func(t *testing.T) {
		h := provider.NewInputHandle("a", strings.NewReader("12345"))
		defer h.Close()
		n, err := h.Size()
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	})

	t.Run("os file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "f.tex")
		require.NoError(t, os.WriteFile(path, []byte("1234"), 0o644))
		f, err := os.Open(path)
		require.NoError(t, err)

		h := provider.NewInputHandle("f.tex", f)
		defer h.Close()
		n, err := h.Size()
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})

	t.Run("declared", func(t *testing.T) {
		h := provider.NewInputHandle("a", streamOnly{strings.NewReader("xy")}, provider.WithSize(2))
		defer h.Close()
		n, err := h.Size()
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("unknown", func(t *testing.T) {
		h := provider.NewInputHandle("pipe", streamOnly{strings.NewReader("xy")})
		defer h.Close()
		_, err := h.Size()
		require.Error(t, err)
		assert.True(t, errs.IsNotSizeable(err))
	})
}

func TestInputHandle_ReadExact(t *testing.T) {
	h := provider.NewInputHandle("fmt", strings.NewReader("abcd"))
	defer h.Close()

	got, err := h.ReadExact(2)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(got))

	_, err = h.ReadExact(8)
	require.Error(t, err)
	assert.True(t, errs.IsBadLength(err))
	assert.Contains(t, err.Error(), "expected length 8; found 2")
}

func TestInputHandle_CloseIdempotent(t *testing.T) {
	inner := &closeCounter{Reader: strings.NewReader("x")}
	h := provider.NewInputHandle("a", inner, provider.WithOrigin("stub"))

	calls := 0
	h.Observe(func(provider.Fingerprint, error) { calls++ })

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Equal(t, 1, inner.closed)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "stub", h.Origin())

	_, err := h.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestOutputHandle_Fingerprint(t *testing.T) {
	var buf bytes.Buffer
	h := provider.NewOutputHandle("toc.aux", &buf)

	var fp provider.Fingerprint
	h.Observe(func(got provider.Fingerprint, err error) {
		require.NoError(t, err)
		fp = got
	})

	_, err := io.WriteString(h, "\\contentsline")
	require.NoError(t, err)
	assert.Equal(t, int64(13), h.Written())
	require.NoError(t, h.Close())

	assert.Equal(t, "\\contentsline", buf.String())
	assert.True(t, fp.Equal(provider.FingerprintBytes([]byte("\\contentsline"))))

	_, err = h.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestOutputHandle_ClosesUnderlying(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	f, err := os.Create(path)
	require.NoError(t, err)

	h := provider.NewOutputHandle("out.log", f)
	_, err = h.Write([]byte("done"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	// The file descriptor is released.
	_, err = f.Write([]byte("x"))
	assert.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "done", string(data))
}

func TestFingerprint_Equality(t *testing.T) {
	a := provider.FingerprintBytes([]byte("C1"))
	b := provider.FingerprintBytes([]byte("C1"))
	c := provider.FingerprintBytes([]byte("C2"))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(provider.Absent()))
	assert.True(t, provider.Absent().Equal(provider.Absent()))
	assert.Equal(t, "absent", provider.Absent().String())
	assert.Len(t, a.String(), 12)
	assert.Len(t, a.Hex(), 64)

	restored := provider.NewFingerprint(a.Digest, a.Size)
	assert.True(t, restored.Equal(a))

	fromReader, err := provider.FingerprintReader(strings.NewReader("C1"))
	require.NoError(t, err)
	assert.True(t, fromReader.Equal(a))
}
