package errs

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func permissionDenied(name string) error {
	return &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
}

func TestConstructors_Messages(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
		msg  string
	}{
		{"bad length", BadLength(10, 4), KindBadLength, "expected length 10; found 4"},
		{"not seekable", NotSeekable(), KindNotSeekable, "this stream is not seekable"},
		{"not sizeable", NotSizeable(), KindNotSizeable, "the size of this stream cannot be determined"},
		{"path forbidden", PathForbidden("../secret"), KindPathForbidden, "access to the path ../secret is forbidden"},
		{"message", New("boom"), KindMsg, "boom"},
		{"formatted", Newf("pass %d failed", 3), KindMsg, "pass 3 failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind())
			assert.Equal(t, tt.msg, tt.err.Error())
		})
	}
}

func TestBadLength_Fields(t *testing.T) {
	err := BadLength(8, 3)
	assert.Equal(t, 8, err.Expected)
	assert.Equal(t, 3, err.Observed)
}

func TestPathForbidden_Path(t *testing.T) {
	err := PathForbidden("/etc/passwd")
	assert.Equal(t, "/etc/passwd", err.Path)
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "while opening %s", "x"))
	assert.NoError(t, Foreign(KindIO, nil))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := permissionDenied("foo.tex")
	err := Wrap(Foreign(KindIO, cause), "while opening input %s", "foo.tex")

	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Equal(t, "while opening input foo.tex: open foo.tex: permission denied", err.Error())
	assert.Equal(t, KindIO, KindOf(err))
}

func TestKindOf(t *testing.T) {
	_, numErr := strconv.Atoi("x")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"message", New("plain"), KindMsg},
		{"wrapped forbidden", Wrap(PathForbidden("/x"), "ctx"), KindPathForbidden},
		{"path error", permissionDenied("a"), KindIO},
		{"num error", numErr, KindParse},
		{"foreign archive", Foreign(KindArchive, errors.New("zip: not a valid zip file")), KindArchive},
		{"fmt wrapped", fmt.Errorf("outer: %w", NotSeekable()), KindNotSeekable},
		{"unknown", errors.New("who knows"), KindMsg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsHelpers_Wrapped(t *testing.T) {
	err := Wrap(Wrap(PathForbidden("../x"), "inner"), "outer")
	assert.True(t, IsPathForbidden(err))
	assert.False(t, IsNotSeekable(err))

	assert.True(t, IsNotSizeable(fmt.Errorf("ctx: %w", NotSizeable())))
	assert.True(t, IsBadLength(Wrap(BadLength(1, 0), "reading header")))
	assert.True(t, IsNotSeekable(NotSeekable()))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "path-forbidden", KindPathForbidden.String())
	assert.Equal(t, "network", KindNetwork.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestChain_ContextThenCause(t *testing.T) {
	err := Wrap(Foreign(KindIO, permissionDenied("foo.tex")), "while opening input foo.tex")

	chain := Chain(err)
	require.Len(t, chain, 2)
	assert.Contains(t, chain[0], "while opening input foo.tex")
	assert.Contains(t, chain[1], "permission denied")
}

func TestChain_FmtWrappedError(t *testing.T) {
	err := fmt.Errorf("loading job: %w", Wrap(New("root"), "middle"))
	assert.Equal(t, []string{"loading job", "middle", "root"}, Chain(err))
}

func TestChain_Nil(t *testing.T) {
	assert.Empty(t, Chain(nil))
}

func TestFdump_Prefixes(t *testing.T) {
	t.Setenv(BacktraceEnv, "")
	err := Wrap(Foreign(KindIO, permissionDenied("foo.tex")), "while opening input foo.tex")

	var buf bytes.Buffer
	Fdump(&buf, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[0], "error: "))
	assert.Contains(t, lines[0], "while opening input foo.tex")
	assert.True(t, strings.HasPrefix(lines[1], "caused by: "))
	assert.Contains(t, lines[1], "permission denied")
}

func TestFdump_Golden(t *testing.T) {
	t.Setenv(BacktraceEnv, "")
	err := Wrap(Wrap(BadLength(16, 9), "reading format header"), "while opening format plain.fmt")

	var buf bytes.Buffer
	Fdump(&buf, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "dump_bad_length", buf.Bytes())
}

func TestFdump_Backtrace(t *testing.T) {
	t.Setenv(BacktraceEnv, "1")
	err := New("with frames")
	require.NotNil(t, err.Backtrace())

	var buf bytes.Buffer
	Fdump(&buf, err)
	assert.Contains(t, buf.String(), "error: with frames\n")
	assert.Contains(t, buf.String(), "debugging: backtrace follows:")
	assert.Contains(t, buf.String(), "TestFdump_Backtrace")
}

func TestFdump_NoBacktraceByDefault(t *testing.T) {
	t.Setenv(BacktraceEnv, "")
	err := New("no frames")
	assert.Nil(t, err.Backtrace())

	var buf bytes.Buffer
	Fdump(&buf, err)
	assert.Equal(t, "error: no frames\n", buf.String())
}

func TestDefinitelySame(t *testing.T) {
	tests := []struct {
		name string
		a, b error
		want bool
	}{
		{"same message", New("boom"), New("boom"), true},
		{"different message", New("boom"), New("bang"), false},
		{"causes ignored", Wrap(errors.New("x"), "ctx"), Wrap(errors.New("y"), "ctx"), true},
		{"non-message kinds", NotSeekable(), NotSeekable(), false},
		{"foreign errors", errors.New("boom"), errors.New("boom"), false},
		{"mixed", New("boom"), errors.New("boom"), false},
		{"nil", nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefinitelySame(tt.a, tt.b))
		})
	}
}

func TestSameOutcome(t *testing.T) {
	assert.True(t, SameOutcome(1, nil, 1, nil))
	assert.False(t, SameOutcome(1, nil, 2, nil))
	assert.True(t, SameOutcome(0, New("boom"), 0, New("boom")))

	// An error and a success are never the same.
	assert.False(t, SameOutcome(0, New("boom"), 0, nil))
	assert.False(t, SameOutcome("", nil, "", New("boom")))
}
