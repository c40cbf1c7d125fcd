package bundle

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

func buildBundle(t *testing.T, add func(w *Writer)) *Bundle {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	add(w)
	require.NoError(t, w.Close())

	b, err := NewFromReader("test-bundle", bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return b
}

func readName(t *testing.T, p provider.Provider, name string) string {
	t.Helper()
	data, err := provider.ReadInput(p, name, status.Discard)
	require.NoError(t, err)
	return string(data)
}

func TestBundle_PlainAndCompressedEntries(t *testing.T) {
	b := buildBundle(t, func(w *Writer) {
		require.NoError(t, w.Add("tex/latex/article.cls", []byte("\\ProvidesClass{article}"), false))
		require.NoError(t, w.Add("tex/latex/hyperref.sty", []byte("\\ProvidesPackage{hyperref}"), true))
	})

	assert.Equal(t, "\\ProvidesClass{article}", readName(t, b, "tex/latex/article.cls"))
	assert.Equal(t, "\\ProvidesPackage{hyperref}", readName(t, b, "tex/latex/hyperref.sty"))
	assert.Equal(t, []string{"tex/latex/article.cls", "tex/latex/hyperref.sty"}, b.Names())
}

func TestBundle_HandlesAreSeekableAndSized(t *testing.T) {
	b := buildBundle(t, func(w *Writer) {
		require.NoError(t, w.Add("a.sty", []byte("0123456789"), true))
	})

	h, err := provider.OpenInput(b, "a.sty", status.Discard)
	require.NoError(t, err)
	defer h.Close()

	n, err := h.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	_, err = h.Seek(5, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "56789", string(rest))
	assert.Equal(t, "test-bundle", h.Origin())
}

func TestBundle_Formats(t *testing.T) {
	b := buildBundle(t, func(w *Writer) {
		require.NoError(t, w.AddFormat("latex.fmt", []byte("FMT"), true))
	})

	h, err := provider.OpenFormat(b, "latex.fmt", status.Discard)
	require.NoError(t, err)
	data, err := io.ReadAll(h)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.Equal(t, "FMT", string(data))

	assert.True(t, b.InputOpenName("latex.fmt", status.Discard).IsNotAvailable(), "formats are a separate namespace")
	assert.Empty(t, b.Names())
}

func TestBundle_ContractAnswers(t *testing.T) {
	b := buildBundle(t, func(w *Writer) {})

	assert.True(t, b.InputOpenName("missing.sty", status.Discard).IsNotAvailable())
	assert.True(t, b.InputOpenPrimary(status.Discard).IsNotAvailable())
	assert.True(t, b.OutputOpenName("out.pdf").IsNotAvailable())
	assert.True(t, b.OutputOpenStdout().IsNotAvailable())

	r := b.InputOpenName("../x", status.Discard)
	require.True(t, r.IsError())
	assert.True(t, errs.IsPathForbidden(r.Err()))
	assert.NoError(t, b.Close())
}

func TestBundle_CorruptEntryIsArchiveError(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	fw, err := w.zw.CreateHeader(&zip.FileHeader{Name: "payload.txt", Method: zip.Store})
	require.NoError(t, err)
	_, err = fw.Write([]byte("PAYLOAD-PAYLOAD"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	raw := buf.Bytes()
	i := bytes.Index(raw, []byte("PAYLOAD-PAYLOAD"))
	require.GreaterOrEqual(t, i, 0)
	raw[i] = 'X'

	b, err := NewFromReader("corrupt", bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	r := b.InputOpenName("payload.txt", status.Discard)
	require.True(t, r.IsError())
	assert.Equal(t, errs.KindArchive, errs.KindOf(r.Err()))
	assert.Contains(t, errs.Chain(r.Err())[0], "extracting payload.txt")
}

func TestOpen_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := Open(path)
	require.Error(t, err)
	assert.Equal(t, errs.KindArchive, errs.KindOf(err))
}

func TestPack(t *testing.T) {
	src := fstest.MapFS{
		"tex/plain.tex":     {Data: []byte("\\bye")},
		"formats/plain.fmt": {Data: []byte("FMT")},
	}
	path := filepath.Join(t.TempDir(), "bundle.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	n, err := Pack(f, src, true)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, 2, n)

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "\\bye", readName(t, b, "tex/plain.tex"))
	h, err := provider.OpenFormat(b, "plain.fmt", status.Discard)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.Equal(t, "bundle:"+path, provider.Describe(b))
}
