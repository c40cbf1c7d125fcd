package provider

import "github.com/roach88/texstack/internal/errs"

type resultState uint8

const (
	stateNotAvailable resultState = iota
	stateSuccess
	stateError
)

// OpenResult is the outcome of an open attempt. Exactly one of the
// following holds:
//   - Success: a handle was acquired and ownership passes to the caller
//   - NotAvailable: the provider has no opinion; the next one is tried
//   - Error: a definitive failure that must not be masked by later providers
//
// NotAvailable is not an error. The zero value is NotAvailable.
type OpenResult[H any] struct {
	state  resultState
	handle H
	err    error
}

// Success wraps an acquired handle.
func Success[H any](h H) OpenResult[H] {
	return OpenResult[H]{state: stateSuccess, handle: h}
}

// NotAvailable is the "not mine" answer.
func NotAvailable[H any]() OpenResult[H] {
	return OpenResult[H]{}
}

// Failed wraps a definitive failure. Panics on a nil error: a provider
// without a failure must answer NotAvailable instead.
func Failed[H any](err error) OpenResult[H] {
	if err == nil {
		panic("provider.Failed: nil error")
	}
	return OpenResult[H]{state: stateError, err: err}
}

// IsSuccess reports whether a handle was acquired.
func (r OpenResult[H]) IsSuccess() bool { return r.state == stateSuccess }

// IsNotAvailable reports whether the provider declined.
func (r OpenResult[H]) IsNotAvailable() bool { return r.state == stateNotAvailable }

// IsError reports whether the open failed definitively.
func (r OpenResult[H]) IsError() bool { return r.state == stateError }

// Handle returns the acquired handle, or the zero H when not successful.
func (r OpenResult[H]) Handle() H { return r.handle }

// Err returns the failure, or nil when not an error.
func (r OpenResult[H]) Err() error { return r.err }

// String names the outcome for logs.
func (r OpenResult[H]) String() string {
	switch r.state {
	case stateSuccess:
		return "success"
	case stateError:
		return "error: " + r.err.Error()
	default:
		return "not-available"
	}
}

// DefinitelySame is the weak equivalence used in tests. Two NotAvailable
// results are the same; two errors are compared with errs.DefinitelySame;
// two successes are the same only if they carry the same handle.
func (r OpenResult[H]) DefinitelySame(o OpenResult[H]) bool {
	if r.state != o.state {
		return false
	}
	switch r.state {
	case stateNotAvailable:
		return true
	case stateError:
		return errs.DefinitelySame(r.err, o.err)
	default:
		return any(r.handle) == any(o.handle)
	}
}
