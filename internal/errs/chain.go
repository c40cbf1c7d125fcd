package errs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Chain returns the message of err followed by the message of each cause,
// one entry per layer. Transparent Foreign wrappers contribute no entry of
// their own. A foreign error is a leaf and is rendered whole, unless it
// wraps an *Error further down, in which case only its own prefix is kept.
func Chain(err error) []string {
	var out []string
	for cur := err; cur != nil; {
		next := errors.Unwrap(cur)
		if e, ok := cur.(*Error); ok {
			if e.msg != "" {
				out = append(out, e.msg)
			}
			cur = next
			continue
		}

		var inner *Error
		if next == nil || !errors.As(next, &inner) {
			out = append(out, cur.Error())
			break
		}
		out = append(out, strings.TrimSuffix(cur.Error(), ": "+next.Error()))
		cur = next
	}
	return out
}

// Fdump writes err and its causes to w:
//
//	error: while opening input foo.tex
//	caused by: open foo.tex: permission denied
//
// If the outermost error captured a backtrace, it follows the chain.
func Fdump(w io.Writer, err error) {
	if err == nil {
		return
	}
	prefix := "error:"
	for _, msg := range Chain(err) {
		fmt.Fprintf(w, "%s %s\n", prefix, msg)
		prefix = "caused by:"
	}

	var e *Error
	if !errors.As(err, &e) {
		return
	}
	frames := e.Backtrace()
	if frames == nil {
		return
	}
	fmt.Fprintln(w, "debugging: backtrace follows:")
	for {
		frame, more := frames.Next()
		fmt.Fprintf(w, "  %s\n      %s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
}

// Dump writes err to standard error in plain text.
//
// This is the fallback renderer for use before a status backend exists;
// once one is available, report through it instead.
func Dump(err error) {
	Fdump(os.Stderr, err)
}
