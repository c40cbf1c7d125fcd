package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"runtime"
	"strconv"
)

// Kind categorizes failures raised anywhere in texstack.
type Kind int

const (
	// KindMsg is a plain message-style error, typically context added by Wrap.
	KindMsg Kind = iota

	// KindBadLength indicates an item was not the expected length.
	KindBadLength

	// KindNotSeekable indicates random access was requested on a stream
	// that cannot seek.
	KindNotSeekable

	// KindNotSizeable indicates the length of a stream cannot be determined.
	KindNotSizeable

	// KindPathForbidden indicates a name escaped the provider's sandbox.
	KindPathForbidden

	// Externally sourced kinds. These wrap a foreign error unchanged.
	KindIO
	KindParse
	KindEncoding
	KindNetwork
	KindArchive
	KindConfig
)

var kindNames = map[Kind]string{
	KindMsg:           "msg",
	KindBadLength:     "bad-length",
	KindNotSeekable:   "not-seekable",
	KindNotSizeable:   "not-sizeable",
	KindPathForbidden: "path-forbidden",
	KindIO:            "io",
	KindParse:         "parse",
	KindEncoding:      "encoding",
	KindNetwork:       "network",
	KindArchive:       "archive",
	KindConfig:        "config",
}

// String returns the short name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// BacktraceEnv enables backtrace capture when set to "1".
const BacktraceEnv = "TEXSTACK_BACKTRACE"

// Error is the unified error type. It carries a kind, its own message and
// an optional chained cause.
//
// Error() follows the Go convention and includes the cause text; Message()
// returns only this layer, which is what Chain and Dump render.
type Error struct {
	kind  Kind
	msg   string
	cause error

	// Expected and Observed are set for KindBadLength.
	Expected int
	Observed int

	// Path is set for KindPathForbidden.
	Path string

	pcs []uintptr
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause == nil {
		return e.msg
	}
	if e.msg == "" {
		return e.cause.Error()
	}
	return e.msg + ": " + e.cause.Error()
}

// Unwrap returns the chained cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error's category.
func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns this layer's message without the cause.
func (e *Error) Message() string {
	if e.msg == "" && e.cause != nil {
		return e.cause.Error()
	}
	return e.msg
}

// Backtrace returns the frames captured when the error was created, or nil
// when capture was disabled.
func (e *Error) Backtrace() *runtime.Frames {
	if len(e.pcs) == 0 {
		return nil
	}
	return runtime.CallersFrames(e.pcs)
}

func newError(kind Kind, msg string, cause error) *Error {
	e := &Error{kind: kind, msg: msg, cause: cause}
	if os.Getenv(BacktraceEnv) == "1" {
		pcs := make([]uintptr, 32)
		n := runtime.Callers(3, pcs)
		e.pcs = pcs[:n]
	}
	return e
}

// New creates a message-style error.
func New(msg string) *Error {
	return newError(KindMsg, msg, nil)
}

// Newf creates a message-style error from a format string.
func Newf(format string, args ...any) *Error {
	return newError(KindMsg, fmt.Sprintf(format, args...), nil)
}

// BadLength reports an item whose length differs from what was expected.
func BadLength(expected, observed int) *Error {
	e := newError(KindBadLength, fmt.Sprintf("expected length %d; found %d", expected, observed), nil)
	e.Expected = expected
	e.Observed = observed
	return e
}

// NotSeekable reports a seek on a stream that cannot seek.
func NotSeekable() *Error {
	return newError(KindNotSeekable, "this stream is not seekable", nil)
}

// NotSizeable reports a stream whose size cannot be determined.
func NotSizeable() *Error {
	return newError(KindNotSizeable, "the size of this stream cannot be determined", nil)
}

// PathForbidden reports a name that escapes the allowed sandbox.
func PathForbidden(path string) *Error {
	e := newError(KindPathForbidden, fmt.Sprintf("access to the path %s is forbidden", path), nil)
	e.Path = path
	return e
}

// Foreign classifies an error that came from outside texstack. The foreign
// error is kept as the cause and rendered unchanged. Returns nil for nil.
func Foreign(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return newError(kind, "", err)
}

// Wrap attaches a context message to err, keeping err as the cause.
// Returns nil when err is nil, so call sites can wrap unconditionally:
//
//	return errs.Wrap(f.Close(), "while closing %s", name)
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return newError(KindMsg, fmt.Sprintf(format, args...), err)
}

// KindOf returns the kind of the outermost classified error in the chain.
// Unclassified standard library errors are mapped to the closest kind;
// anything else is KindMsg.
func KindOf(err error) Kind {
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if e, ok := cur.(*Error); ok && e.kind != KindMsg {
			return e.kind
		}
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return KindIO
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return KindParse
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return KindParse
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindMsg
}

// Is reports whether any error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if e, ok := cur.(*Error); ok && e.kind == kind {
			return true
		}
	}
	return false
}

// IsPathForbidden returns true if the chain contains a path-forbidden error.
func IsPathForbidden(err error) bool {
	return Is(err, KindPathForbidden)
}

// IsNotSeekable returns true if the chain contains a not-seekable error.
func IsNotSeekable(err error) bool {
	return Is(err, KindNotSeekable)
}

// IsNotSizeable returns true if the chain contains a not-sizeable error.
func IsNotSizeable(err error) bool {
	return Is(err, KindNotSizeable)
}

// IsBadLength returns true if the chain contains a bad-length error.
func IsBadLength(err error) bool {
	return Is(err, KindBadLength)
}
