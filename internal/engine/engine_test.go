package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/texstack/internal/backend/fmtcache"
	"github.com/roach88/texstack/internal/backend/memfs"
	"github.com/roach88/texstack/internal/backend/stdio"
	"github.com/roach88/texstack/internal/passes"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
	"github.com/roach88/texstack/internal/testutil"
)

const mainTex = `\section{Intro}\label{sec:intro}
See \ref{sec:more}.
\input{chap}`

const chapTex = `\section{More}\label{sec:more} back to \ref{sec:intro}`

func newDocument() *memfs.FS {
	fs := memfs.New(memfs.WithPrimary("main.tex"))
	fs.PutString("main.tex", mainTex)
	fs.PutString("chap.tex", chapTex)
	return fs
}

func newDriver(eng passes.Engine, opts ...passes.Option) *passes.Driver {
	opts = append([]passes.Option{passes.WithRunIDs(testutil.NewFixedRunIDs("run"))}, opts...)
	return passes.New(eng, opts...)
}

func get(t *testing.T, fs *memfs.FS, name string) string {
	t.Helper()
	data, ok := fs.Get(name)
	require.True(t, ok, "%s was not written", name)
	return string(data)
}

func TestEngine_CrossReferencesTakeTwoPasses(t *testing.T) {
	fs := newDocument()
	var stdout bytes.Buffer

	res, err := newDriver(New()).Run(context.Background(), fs, stdio.New(&stdout))
	require.NoError(t, err)

	assert.Equal(t, passes.Converged, res.Verdict)
	assert.Equal(t, 2, res.Passes)
	assert.Equal(t, "\\relax\n\\newlabel{sec:intro}{1}\n\\newlabel{sec:more}{2}\n", get(t, fs, "main.aux"))
	assert.Equal(t, "1 Intro\nSee 2.\n2 More back to 1\n\n", get(t, fs, "main.out"))
	assert.Contains(t, get(t, fs, "main.log"), "pass 2")
	assert.NotContains(t, get(t, fs, "main.log"), "undefined")
	assert.Equal(t, "Output written on main.out (35 bytes).\nOutput written on main.out (33 bytes).\n", stdout.String())

	first := res.Reports[0]
	assert.Equal(t, passes.NeedsAnotherPass, first.Verdict)
	require.Len(t, first.Divergences, 1)
	assert.Equal(t, "main.aux", first.Divergences[0].Name)
	assert.Equal(t, passes.ReasonRewritten, first.Divergences[0].Reason)
}

func TestEngine_Outcome(t *testing.T) {
	sink := status.NewCollector()
	out, err := New().Run(context.Background(), 1, newDocument(), sink)
	require.NoError(t, err)

	assert.Equal(t, "main", out.Job)
	assert.Equal(t, []string{"main.tex", "chap.tex"}, out.Files)
	assert.Equal(t, 2, out.Labels)
	assert.Equal(t, []string{"sec:more", "sec:intro"}, out.Undefined)

	assert.Equal(t, 2, sink.Count(status.KindWarning))
	assert.Equal(t, "main.tex:2: reference `sec:more' undefined", sink.Messages()[0].Text)
}

func TestEngine_DuplicateLabelWarns(t *testing.T) {
	fs := memfs.New(memfs.WithPrimary("main.tex"))
	fs.PutString("main.tex", "\\label{a}\n\\label{a}\n")
	sink := status.NewCollector()

	out, err := New().Run(context.Background(), 1, fs, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Labels)
	require.Equal(t, 1, sink.Count(status.KindWarning))
	assert.Equal(t, "main.tex:2: label `a' multiply defined", sink.Messages()[0].Text)
}

func TestEngine_OptionalInput(t *testing.T) {
	fs := memfs.New(memfs.WithPrimary("main.tex"))
	fs.PutString("main.tex", "\\InputIfFileExists{extra}done")

	res, err := newDriver(New()).Run(context.Background(), fs)
	require.NoError(t, err)
	assert.Equal(t, passes.Converged, res.Verdict)
	assert.Contains(t, res.Reports[0].Reads, "extra.tex", "a missing optional input is still a read")
	assert.Equal(t, "done\n", get(t, fs, "main.out"))
}

func TestEngine_MissingInputIsFatal(t *testing.T) {
	fs := memfs.New(memfs.WithPrimary("main.tex"))
	fs.PutString("main.tex", "first line\n\\input{missing}")

	_, err := newDriver(New()).Run(context.Background(), fs)
	require.Error(t, err)
	assert.True(t, IsFileNotFound(err))
	assert.Contains(t, err.Error(), "main.tex:2: FILE_NOT_FOUND: file missing.tex not found")
}

func TestEngine_RecursiveInputHitsDepthLimit(t *testing.T) {
	fs := memfs.New(memfs.WithPrimary("loop.tex"))
	fs.PutString("loop.tex", "\\input{loop}")

	_, err := New(WithMaxDepth(4)).Run(context.Background(), 1, fs, status.Discard)
	require.Error(t, err)
	assert.True(t, IsDepthExceeded(err))
	assert.Contains(t, err.Error(), "inputs nested deeper than 4 ([loop.tex loop.tex loop.tex] ...)")
}

func TestEngine_NoPrimary(t *testing.T) {
	_, err := New().Run(context.Background(), 1, memfs.New(), status.Discard)
	require.Error(t, err)
	assert.Equal(t, "NO_PRIMARY: no provider supplies the primary input", err.Error())
}

func TestEngine_ProviderErrorIsIOError(t *testing.T) {
	stub := &testutil.StubProvider{
		Primary: "main.tex",
		Files:   map[string]string{"main.tex": "\\input{locked}"},
		Errors:  map[string]error{"locked.tex": assert.AnError},
	}
	_, err := New().Run(context.Background(), 1, stub, status.Discard)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "main.tex:1: IO: opening locked.tex")
}

func TestEngine_CancelledBetweenFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Run(ctx, 1, newDocument(), status.Discard)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_DumpedFormatAddsAPass(t *testing.T) {
	cache, err := fmtcache.New(t.TempDir(), fmtcache.CodecZstd)
	require.NoError(t, err)
	fs := newDocument()
	sink := status.NewCollector()

	res, err := newDriver(New(WithFormat("latex.fmt")), passes.WithStatus(sink)).Run(context.Background(), cache, fs)
	require.NoError(t, err)

	assert.Equal(t, passes.Converged, res.Verdict)
	assert.Equal(t, 3, res.Passes, "the format appears after pass 1 and is read from pass 2 on")

	second := res.Reports[1]
	require.Len(t, second.Divergences, 1)
	assert.Equal(t, passes.FormatPrefix+"latex.fmt", second.Divergences[0].Name)
	assert.Equal(t, passes.ReasonChanged, second.Divergences[0].Reason)

	h, err := provider.OpenFormat(cache, "latex.fmt", status.Discard)
	require.NoError(t, err)
	require.NoError(t, h.Close())
}

func TestEngine_FormatWithoutWritableLayerWarns(t *testing.T) {
	fs := memfs.New(memfs.WithPrimary("main.tex"), memfs.ReadOnly())
	fs.PutString("main.tex", "x")
	sink := status.NewCollector()

	_, err := New(WithFormat("latex.fmt")).Run(context.Background(), 1, fs, sink)
	require.Error(t, err, "outputs have nowhere to go either")
	assert.Equal(t, 1, sink.Count(status.KindWarning))
}
