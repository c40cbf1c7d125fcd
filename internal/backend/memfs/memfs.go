// Package memfs implements an in-memory provider: a synthetic store for
// generated resources and tests. Outputs become readable once their handle
// is closed.
package memfs

import (
	"bytes"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

// FS is an in-memory provider. Ordinary names and format names live in
// separate namespaces.
//
// Thread-safety: FS is safe for concurrent use.
type FS struct {
	mu       sync.Mutex
	label    string
	files    map[string][]byte
	formats  map[string][]byte
	primary  string
	readOnly bool
	commits  int
}

// Option configures an FS.
type Option func(*FS)

// WithLabel sets the name used in diagnostics. Default "memfs".
func WithLabel(label string) Option {
	return func(f *FS) { f.label = label }
}

// WithPrimary makes name the file returned by InputOpenPrimary.
func WithPrimary(name string) Option {
	return func(f *FS) { f.primary = provider.NormalizeName(name) }
}

// ReadOnly makes every output open answer NotAvailable.
func ReadOnly() Option {
	return func(f *FS) { f.readOnly = true }
}

// New creates an empty FS.
func New(opts ...Option) *FS {
	f := &FS{
		label:   "memfs",
		files:   make(map[string][]byte),
		formats: make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Describe implements provider.Describer.
func (f *FS) Describe() string { return f.label }

// Put stores a copy of data under name.
func (f *FS) Put(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[provider.NormalizeName(name)] = bytes.Clone(data)
}

// PutString is Put for string content.
func (f *FS) PutString(name, data string) {
	f.Put(name, []byte(data))
}

// PutFormat stores a format resource.
func (f *FS) PutFormat(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formats[provider.NormalizeName(name)] = bytes.Clone(data)
}

// Get returns a copy of the content stored under name.
func (f *FS) Get(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[provider.NormalizeName(name)]
	return bytes.Clone(data), ok
}

// Remove deletes name. Removing a missing name is a no-op.
func (f *FS) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, provider.NormalizeName(name))
}

// Names returns every stored (non-format) name, sorted.
func (f *FS) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(maps.Keys(f.files))
}

// Commits returns how many outputs have been closed into the store.
func (f *FS) Commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

func (f *FS) open(table map[string][]byte, name string) provider.OpenResult[*provider.InputHandle] {
	if err := provider.CheckName(name, false); err != nil {
		return provider.Failed[*provider.InputHandle](err)
	}
	key := provider.NormalizeName(name)

	f.mu.Lock()
	data, ok := table[key]
	f.mu.Unlock()
	if !ok {
		return provider.NotAvailable[*provider.InputHandle]()
	}
	return provider.Success(provider.NewInputHandle(key, bytes.NewReader(data), provider.WithOrigin(f.label)))
}

// InputOpenName implements provider.Provider.
func (f *FS) InputOpenName(name string, _ status.Backend) provider.OpenResult[*provider.InputHandle] {
	return f.open(f.files, name)
}

// InputOpenFormat implements provider.Provider.
func (f *FS) InputOpenFormat(name string, _ status.Backend) provider.OpenResult[*provider.InputHandle] {
	return f.open(f.formats, name)
}

// InputOpenPrimary implements provider.Provider.
func (f *FS) InputOpenPrimary(_ status.Backend) provider.OpenResult[*provider.InputHandle] {
	if f.primary == "" {
		return provider.NotAvailable[*provider.InputHandle]()
	}
	return f.open(f.files, f.primary)
}

// OutputOpenName implements provider.Provider. The content replaces any
// previous file of that name when the handle is closed.
func (f *FS) OutputOpenName(name string) provider.OpenResult[*provider.OutputHandle] {
	if f.readOnly {
		return provider.NotAvailable[*provider.OutputHandle]()
	}
	if err := provider.CheckName(name, false); err != nil {
		return provider.Failed[*provider.OutputHandle](err)
	}
	w := &pending{fs: f, name: provider.NormalizeName(name)}
	return provider.Success(provider.NewOutputHandle(w.name, w, provider.WithOrigin(f.label)))
}

// OutputOpenStdout implements provider.Provider. An FS has no stdout.
func (f *FS) OutputOpenStdout() provider.OpenResult[*provider.OutputHandle] {
	return provider.NotAvailable[*provider.OutputHandle]()
}

// pending buffers an output until Close commits it.
type pending struct {
	fs   *FS
	name string
	buf  bytes.Buffer
}

func (p *pending) Write(b []byte) (int, error) { return p.buf.Write(b) }

func (p *pending) Close() error {
	p.fs.mu.Lock()
	defer p.fs.mu.Unlock()
	p.fs.files[p.name] = p.buf.Bytes()
	p.fs.commits++
	return nil
}

var _ provider.Provider = (*FS)(nil)
