package provider

import (
	"github.com/roach88/texstack/internal/status"
)

// Provider is the capability every backing store implements.
//
// Contract for every operation:
//   - NotAvailable when the provider does not recognize the request
//     ("not my file"). Never return an error for this case.
//   - Failed when the provider recognizes the request but cannot fulfil it
//     correctly: the path is forbidden, the storage is corrupt, the
//     underlying I/O failed.
//   - Success with a handle whose ownership passes to the caller.
//
// Input operations receive the caller's status sink for diagnostics such
// as cache misses; providers never construct or retain it.
type Provider interface {
	// OutputOpenName opens a writable handle for a named output artifact.
	OutputOpenName(name string) OpenResult[*OutputHandle]

	// OutputOpenStdout opens a writable handle bound to standard output.
	OutputOpenStdout() OpenResult[*OutputHandle]

	// InputOpenName opens a readable handle for a named input.
	InputOpenName(name string, sink status.Backend) OpenResult[*InputHandle]

	// InputOpenPrimary opens whichever input the provider considers the
	// main document.
	InputOpenPrimary(sink status.Backend) OpenResult[*InputHandle]

	// InputOpenFormat opens a precompiled format resource. Formats live in
	// their own namespace, distinct from ordinary named inputs.
	InputOpenFormat(name string, sink status.Backend) OpenResult[*InputHandle]
}

// Describer is implemented by providers that can label themselves for
// diagnostics, e.g. "local:/home/me/thesis".
type Describer interface {
	Describe() string
}

// Describe returns p's label, or its Go type when it has none.
func Describe(p Provider) string {
	if d, ok := p.(Describer); ok {
		return d.Describe()
	}
	return typeName(p)
}

// Unavailable answers NotAvailable to every operation. Embed it to
// implement only a subset of the capability:
//
//	type stdoutOnly struct{ provider.Unavailable }
//
//	func (stdoutOnly) OutputOpenStdout() provider.OpenResult[*provider.OutputHandle] { ... }
type Unavailable struct{}

func (Unavailable) OutputOpenName(string) OpenResult[*OutputHandle] {
	return NotAvailable[*OutputHandle]()
}

func (Unavailable) OutputOpenStdout() OpenResult[*OutputHandle] {
	return NotAvailable[*OutputHandle]()
}

func (Unavailable) InputOpenName(string, status.Backend) OpenResult[*InputHandle] {
	return NotAvailable[*InputHandle]()
}

func (Unavailable) InputOpenPrimary(status.Backend) OpenResult[*InputHandle] {
	return NotAvailable[*InputHandle]()
}

func (Unavailable) InputOpenFormat(string, status.Backend) OpenResult[*InputHandle] {
	return NotAvailable[*InputHandle]()
}
