// Package bundle implements a read-only provider backed by a zip archive of
// support files, the usual home of the bundled defaults that sit at the
// bottom of a provider stack.
//
// Layout:
//
//	NAME            served as NAME
//	NAME.zst        served as NAME, zstd-decompressed on open
//	formats/NAME    served as format NAME (also with .zst)
package bundle

import (
	"bytes"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

const (
	zstdSuffix   = ".zst"
	formatPrefix = "formats/"
)

// Bundle serves files from a zip archive.
//
// Thread-safety: Bundle is safe for concurrent use.
type Bundle struct {
	mu      sync.Mutex
	label   string
	closer  io.Closer
	entries map[string]*zip.File
}

// Open opens the archive at path.
func Open(path string) (*Bundle, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindArchive, err), "opening bundle %s", path)
	}
	b := newBundle("bundle:"+path, &zr.Reader)
	b.closer = zr
	return b, nil
}

// NewFromReader reads an archive of the given size from r.
func NewFromReader(label string, r io.ReaderAt, size int64) (*Bundle, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindArchive, err), "reading bundle %s", label)
	}
	return newBundle(label, zr), nil
}

func newBundle(label string, zr *zip.Reader) *Bundle {
	b := &Bundle{label: label, entries: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		b.entries[provider.NormalizeName(f.Name)] = f
	}
	return b
}

// Close releases the archive file, if the bundle owns one.
func (b *Bundle) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// Describe implements provider.Describer.
func (b *Bundle) Describe() string { return b.label }

// Names lists the names the bundle serves as ordinary inputs, sorted, with
// compression suffixes removed.
func (b *Bundle) Names() []string {
	seen := make(map[string]struct{}, len(b.entries))
	for name := range b.entries {
		if strings.HasPrefix(name, formatPrefix) {
			continue
		}
		seen[strings.TrimSuffix(name, zstdSuffix)] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// lookup finds the entry for key, preferring the uncompressed form.
func (b *Bundle) lookup(key string) (*zip.File, bool, bool) {
	if f, ok := b.entries[key]; ok {
		return f, false, true
	}
	if f, ok := b.entries[key+zstdSuffix]; ok {
		return f, true, true
	}
	return nil, false, false
}

func (b *Bundle) open(prefix, name string) provider.OpenResult[*provider.InputHandle] {
	if err := provider.CheckName(name, false); err != nil {
		return provider.Failed[*provider.InputHandle](err)
	}
	key := provider.NormalizeName(name)

	f, compressed, ok := b.lookup(prefix + key)
	if !ok {
		return provider.NotAvailable[*provider.InputHandle]()
	}

	data, err := b.extract(f, compressed)
	if err != nil {
		return provider.Failed[*provider.InputHandle](errs.Wrap(err, "extracting %s from %s", f.Name, b.label))
	}
	return provider.Success(provider.NewInputHandle(key, bytes.NewReader(data), provider.WithOrigin(b.label)))
}

// extract reads a whole entry. Entries are small support files; holding
// them in memory gives handles that can seek and report their size.
func (b *Bundle) extract(f *zip.File, compressed bool) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rc, err := f.Open()
	if err != nil {
		return nil, errs.Foreign(errs.KindArchive, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, errs.Foreign(errs.KindArchive, err)
	}
	if uint64(len(raw)) != f.UncompressedSize64 {
		return nil, errs.BadLength(int(f.UncompressedSize64), len(raw))
	}
	if !compressed {
		return raw, nil
	}

	dec, err := decoder()
	if err != nil {
		return nil, errs.Foreign(errs.KindArchive, err)
	}
	out, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, errs.Foreign(errs.KindArchive, err)
	}
	return out, nil
}

// decoder is shared; zstd.Decoder.DecodeAll is safe for concurrent use.
var decoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil)
})

// InputOpenName implements provider.Provider.
func (b *Bundle) InputOpenName(name string, _ status.Backend) provider.OpenResult[*provider.InputHandle] {
	return b.open("", name)
}

// InputOpenFormat implements provider.Provider.
func (b *Bundle) InputOpenFormat(name string, _ status.Backend) provider.OpenResult[*provider.InputHandle] {
	return b.open(formatPrefix, name)
}

// InputOpenPrimary implements provider.Provider. A bundle never holds the
// main document.
func (b *Bundle) InputOpenPrimary(_ status.Backend) provider.OpenResult[*provider.InputHandle] {
	return provider.NotAvailable[*provider.InputHandle]()
}

// OutputOpenName implements provider.Provider. Bundles are read-only.
func (b *Bundle) OutputOpenName(string) provider.OpenResult[*provider.OutputHandle] {
	return provider.NotAvailable[*provider.OutputHandle]()
}

// OutputOpenStdout implements provider.Provider.
func (b *Bundle) OutputOpenStdout() provider.OpenResult[*provider.OutputHandle] {
	return provider.NotAvailable[*provider.OutputHandle]()
}

var _ provider.Provider = (*Bundle)(nil)
