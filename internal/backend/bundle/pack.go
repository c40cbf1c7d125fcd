package bundle

import (
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/provider"
)

// Writer builds a bundle archive.
type Writer struct {
	zw  *zip.Writer
	enc *zstd.Encoder
}

// NewWriter starts an archive on w. Call Close to finish it.
func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w)}
}

// Add stores data under name. With compress set the entry is stored as
// NAME.zst, zstd-compressed.
func (w *Writer) Add(name string, data []byte, compress bool) error {
	if err := provider.CheckName(name, false); err != nil {
		return err
	}
	name = provider.NormalizeName(name)
	if compress {
		if w.enc == nil {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
			if err != nil {
				return errs.Foreign(errs.KindArchive, err)
			}
			w.enc = enc
		}
		data = w.enc.EncodeAll(data, nil)
		name += zstdSuffix
	}

	// zstd output does not deflate further.
	method := zip.Deflate
	if compress {
		method = zip.Store
	}
	fw, err := w.zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return errs.Wrap(errs.Foreign(errs.KindArchive, err), "adding %s", name)
	}
	if _, err := fw.Write(data); err != nil {
		return errs.Wrap(errs.Foreign(errs.KindArchive, err), "adding %s", name)
	}
	return nil
}

// AddFormat stores a format resource.
func (w *Writer) AddFormat(name string, data []byte, compress bool) error {
	if err := provider.CheckName(name, false); err != nil {
		return err
	}
	return w.Add(formatPrefix+name, data, compress)
}

// Close finishes the archive. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.enc != nil {
		w.enc.Close()
	}
	return errs.Foreign(errs.KindArchive, w.zw.Close())
}

// Pack writes every regular file of fsys into an archive on out. Files
// ending in ".fmt" are stored as formats.
func Pack(out io.Writer, fsys fs.FS, compress bool) (int, error) {
	w := NewWriter(out)
	count := 0
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return errs.Foreign(errs.KindIO, err)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return errs.Foreign(errs.KindIO, err)
		}
		count++
		if strings.HasSuffix(p, ".fmt") {
			return w.AddFormat(path.Base(p), data, compress)
		}
		return w.Add(p, data, compress)
	})
	if err != nil {
		return count, errs.Wrap(err, "packing bundle")
	}
	return count, w.Close()
}
