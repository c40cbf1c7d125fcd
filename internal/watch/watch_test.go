package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/texstack/internal/backend/memfs"
	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/passes"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
	"github.com/roach88/texstack/internal/testutil"
)

func TestStale(t *testing.T) {
	fs := memfs.New()
	fs.PutString("main.tex", "\\input{intro}")
	fs.PutString("intro.tex", "v2")
	fs.PutFormat("latex.fmt", []byte("FMT"))

	st := passes.NewState("job")
	st.Known["main.tex"] = provider.FingerprintBytes([]byte("\\input{intro}"))
	st.Known["intro.tex"] = provider.FingerprintBytes([]byte("v1"))
	st.Known["missing.bib"] = provider.Absent()
	st.Known["gone.aux"] = provider.FingerprintBytes([]byte("x"))
	st.Known[passes.FormatPrefix+"latex.fmt"] = provider.FingerprintBytes([]byte("FMT"))

	changes := Stale(st, fs, status.Discard)

	require.Len(t, changes, 2)
	assert.Equal(t, "gone.aux", changes[0].Name)
	assert.False(t, changes[0].Current.Present())
	assert.Equal(t, "intro.tex", changes[1].Name)
	assert.True(t, changes[1].Current.Equal(provider.FingerprintBytes([]byte("v2"))))
	assert.NoError(t, changes[1].Err)
}

func TestStale_OpenFailureCountsAsChange(t *testing.T) {
	stub := &testutil.StubProvider{Errors: map[string]error{"locked.tex": errs.New("permission denied")}}
	st := passes.NewState("job")
	st.Known["locked.tex"] = provider.FingerprintBytes([]byte("x"))

	changes := Stale(st, stub, status.Discard)
	require.Len(t, changes, 1)
	assert.EqualError(t, changes[0].Err, "permission denied")
}

func TestStale_NothingTracked(t *testing.T) {
	assert.Empty(t, Stale(passes.NewState("job"), memfs.New(), status.Discard))
}

func startWatcher(t *testing.T, w *Watcher, onChange func(context.Context) error) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, onChange) }()
	t.Cleanup(cancel)
	// Give the watcher time to register its directories.
	time.Sleep(100 * time.Millisecond)
	return cancel, done
}

func TestWatcher_CallsBackAfterWrite(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "chapters"), 0o755))

	calls := make(chan struct{}, 10)
	w := New([]string{root}, WithDebounce(20*time.Millisecond))
	cancel, done := startWatcher(t, w, func(context.Context) error {
		calls <- struct{}{}
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(root, "chapters", "intro.tex"), []byte("x"), 0o644))

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("no callback after a write")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_CallbackErrorStops(t *testing.T) {
	root := t.TempDir()
	stop := errors.New("stop")

	w := New([]string{root}, WithDebounce(10*time.Millisecond))
	_, done := startWatcher(t, w, func(context.Context) error { return stop })

	require.NoError(t, os.WriteFile(filepath.Join(root, "main.tex"), []byte("x"), 0o644))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, stop)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingRoot(t *testing.T) {
	w := New([]string{filepath.Join(t.TempDir(), "missing")})
	err := w.Run(context.Background(), func(context.Context) error { return nil })
	assert.Equal(t, errs.KindIO, errs.KindOf(err))
}

func TestRelevant(t *testing.T) {
	assert.False(t, hidden("/job/main.tex"))
	assert.True(t, hidden("/job/.texstack"))
	assert.True(t, hidden("/job/.pending-123"))
}
