// Package fmtcache implements an on-disk cache of generated format files.
//
// A format written as "latex.fmt" is stored compressed as
// "latex.fmt.zst" or "latex.fmt.lz4" and served back, decompressed, to
// format requests. Ordinary inputs are never served from the cache.
package fmtcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

// Codec selects the compression of stored formats.
type Codec uint8

const (
	// CodecZstd favours ratio. Default.
	CodecZstd Codec = iota
	// CodecLZ4 favours load speed.
	CodecLZ4
)

// String returns the codec name, which is also its file suffix.
func (c Codec) String() string {
	switch c {
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCodec parses a codec name. The empty string selects the default.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return 0, errs.Foreign(errs.KindConfig, fmt.Errorf("unknown format codec %q", name))
	}
}

func (c Codec) suffix() string {
	if c == CodecLZ4 {
		return ".lz4"
	}
	return ".zst"
}

// magic is the little-endian frame magic number of each codec.
func (c Codec) magic() uint32 {
	if c == CodecLZ4 {
		return 0x184D2204
	}
	return 0xFD2FB528
}

// Cache stores formats under a directory.
type Cache struct {
	dir   string
	codec Codec
	label string
}

// New creates a cache in dir, creating the directory if needed.
func New(dir string, codec Codec) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "creating format cache %s", dir)
	}
	return &Cache{dir: dir, codec: codec, label: "fmtcache:" + dir}, nil
}

// Describe implements provider.Describer.
func (c *Cache) Describe() string { return c.label }

// Codec returns the codec used for new entries.
func (c *Cache) Codec() Codec { return c.codec }

func isFormatName(name string) bool {
	return strings.HasSuffix(name, ".fmt")
}

// InputOpenFormat implements provider.Provider. Entries written with
// either codec are served; the configured codec is tried first.
func (c *Cache) InputOpenFormat(name string, _ status.Backend) provider.OpenResult[*provider.InputHandle] {
	if err := provider.CheckName(name, false); err != nil {
		return provider.Failed[*provider.InputHandle](err)
	}
	key := provider.NormalizeName(name)
	base := filepath.Join(c.dir, filepath.FromSlash(key))

	other := CodecLZ4
	if c.codec == CodecLZ4 {
		other = CodecZstd
	}
	for _, codec := range []Codec{c.codec, other} {
		f, err := os.Open(base + codec.suffix())
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return provider.Failed[*provider.InputHandle](errs.Foreign(errs.KindIO, err))
		}
		r, err := newDecoder(f, codec)
		if err != nil {
			f.Close()
			return provider.Failed[*provider.InputHandle](errs.Wrap(err, "reading cached format %s", key))
		}
		return provider.Success(provider.NewInputHandle(key, r, provider.WithOrigin(c.label)))
	}
	return provider.NotAvailable[*provider.InputHandle]()
}

// InputOpenName implements provider.Provider. The cache serves formats only.
func (c *Cache) InputOpenName(string, status.Backend) provider.OpenResult[*provider.InputHandle] {
	return provider.NotAvailable[*provider.InputHandle]()
}

// InputOpenPrimary implements provider.Provider.
func (c *Cache) InputOpenPrimary(status.Backend) provider.OpenResult[*provider.InputHandle] {
	return provider.NotAvailable[*provider.InputHandle]()
}

// OutputOpenName implements provider.Provider. Only names ending in ".fmt"
// are accepted; the entry replaces any cached version atomically when the
// handle is closed.
func (c *Cache) OutputOpenName(name string) provider.OpenResult[*provider.OutputHandle] {
	if !isFormatName(name) {
		return provider.NotAvailable[*provider.OutputHandle]()
	}
	if err := provider.CheckName(name, false); err != nil {
		return provider.Failed[*provider.OutputHandle](err)
	}
	key := provider.NormalizeName(name)
	final := filepath.Join(c.dir, filepath.FromSlash(key)) + c.codec.suffix()

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return provider.Failed[*provider.OutputHandle](errs.Foreign(errs.KindIO, err))
	}
	tmp, err := os.CreateTemp(filepath.Dir(final), ".pending-*")
	if err != nil {
		return provider.Failed[*provider.OutputHandle](errs.Foreign(errs.KindIO, err))
	}
	w, err := newEncoder(tmp, c.codec)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return provider.Failed[*provider.OutputHandle](err)
	}
	return provider.Success(provider.NewOutputHandle(key, &entryWriter{tmp: tmp, enc: w, final: final}, provider.WithOrigin(c.label)))
}

// OutputOpenStdout implements provider.Provider.
func (c *Cache) OutputOpenStdout() provider.OpenResult[*provider.OutputHandle] {
	return provider.NotAvailable[*provider.OutputHandle]()
}

// entryWriter compresses into a temp file and renames it into place.
type entryWriter struct {
	tmp   *os.File
	enc   io.WriteCloser
	final string
}

func (w *entryWriter) Write(p []byte) (int, error) { return w.enc.Write(p) }

func (w *entryWriter) Close() error {
	err := w.enc.Close()
	if cerr := w.tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(w.tmp.Name(), w.final)
	}
	if err != nil {
		os.Remove(w.tmp.Name())
		return errs.Wrap(errs.Foreign(errs.KindIO, err), "storing %s", filepath.Base(w.final))
	}
	return nil
}

func newEncoder(w io.Writer, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case CodecLZ4:
		return lz4.NewWriter(w), nil
	default:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, errs.Foreign(errs.KindArchive, err)
		}
		return enc, nil
	}
}

// decoder streams a compressed cache entry. It cannot seek.
type decoder struct {
	r     io.Reader
	f     *os.File
	close func()
}

func (d *decoder) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && err != io.EOF {
		err = errs.Foreign(errs.KindArchive, err)
	}
	return n, err
}

func (d *decoder) Close() error {
	if d.close != nil {
		d.close()
	}
	return d.f.Close()
}

func newDecoder(f *os.File, codec Codec) (*decoder, error) {
	var head [4]byte
	if _, err := io.ReadFull(f, head[:]); err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindArchive, err), "truncated %s stream", codec)
	}
	if binary.LittleEndian.Uint32(head[:]) != codec.magic() {
		return nil, errs.Foreign(errs.KindArchive, fmt.Errorf("not a %s stream", codec))
	}
	src := io.MultiReader(bytes.NewReader(head[:]), f)

	switch codec {
	case CodecLZ4:
		return &decoder{r: lz4.NewReader(src), f: f}, nil
	default:
		dec, err := zstd.NewReader(src)
		if err != nil {
			return nil, errs.Foreign(errs.KindArchive, err)
		}
		return &decoder{r: dec, f: f, close: dec.Close}, nil
	}
}

var _ provider.Provider = (*Cache)(nil)
