// Package stdio implements a provider over the process's standard streams:
// stdout as the stdout output, and optionally stdin as the primary input.
package stdio

import (
	"bytes"
	"io"
	"sync"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

// DefaultPrimaryName names a primary input read from stdin.
const DefaultPrimaryName = "texput.tex"

// Option configures a Provider.
type Option func(*Provider)

// WithStdin serves r as the primary input. r is read to the end on first
// use and kept in memory, so every pass sees the same document.
func WithStdin(r io.Reader) Option {
	return func(p *Provider) { p.stdin = r }
}

// WithPrimaryName sets the name the stdin document is opened under.
func WithPrimaryName(name string) Option {
	return func(p *Provider) { p.primaryName = name }
}

// Provider serves the standard streams.
//
// Thread-safety: safe for concurrent use, though concurrent writes to
// stdout interleave.
type Provider struct {
	stdout      io.Writer
	stdin       io.Reader
	primaryName string

	loadStdin func() ([]byte, error)
}

// New creates a provider writing to stdout.
func New(stdout io.Writer, opts ...Option) *Provider {
	p := &Provider{stdout: stdout, primaryName: DefaultPrimaryName}
	for _, opt := range opts {
		opt(p)
	}
	p.loadStdin = sync.OnceValues(func() ([]byte, error) {
		data, err := io.ReadAll(p.stdin)
		return data, errs.Wrap(errs.Foreign(errs.KindIO, err), "reading standard input")
	})
	return p
}

// Describe implements provider.Describer.
func (p *Provider) Describe() string { return "stdio" }

// OutputOpenStdout implements provider.Provider. Closing the handle does not
// close the process stream.
func (p *Provider) OutputOpenStdout() provider.OpenResult[*provider.OutputHandle] {
	if p.stdout == nil {
		return provider.NotAvailable[*provider.OutputHandle]()
	}
	return provider.Success(provider.NewOutputHandle("", writeOnly{p.stdout}, provider.WithOrigin("stdout")))
}

// InputOpenPrimary implements provider.Provider.
func (p *Provider) InputOpenPrimary(status.Backend) provider.OpenResult[*provider.InputHandle] {
	if p.stdin == nil {
		return provider.NotAvailable[*provider.InputHandle]()
	}
	data, err := p.loadStdin()
	if err != nil {
		return provider.Failed[*provider.InputHandle](err)
	}
	return provider.Success(provider.NewInputHandle(p.primaryName, bytes.NewReader(data), provider.WithOrigin("stdin")))
}

// OutputOpenName implements provider.Provider.
func (p *Provider) OutputOpenName(string) provider.OpenResult[*provider.OutputHandle] {
	return provider.NotAvailable[*provider.OutputHandle]()
}

// InputOpenName implements provider.Provider.
func (p *Provider) InputOpenName(string, status.Backend) provider.OpenResult[*provider.InputHandle] {
	return provider.NotAvailable[*provider.InputHandle]()
}

// InputOpenFormat implements provider.Provider.
func (p *Provider) InputOpenFormat(string, status.Backend) provider.OpenResult[*provider.InputHandle] {
	return provider.NotAvailable[*provider.InputHandle]()
}

// writeOnly hides any Close method of the wrapped writer.
type writeOnly struct{ w io.Writer }

func (w writeOnly) Write(p []byte) (int, error) { return w.w.Write(p) }

var _ provider.Provider = (*Provider)(nil)
