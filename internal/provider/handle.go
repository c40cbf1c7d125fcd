package provider

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/zeebo/blake3"

	"github.com/roach88/texstack/internal/errs"
)

// CloseObserver is notified once when a handle is closed, with the
// fingerprint of the handle's full content. err is non-nil when the
// fingerprint could not be determined or the close itself failed.
type CloseObserver func(fp Fingerprint, err error)

// HandleOption configures a handle at construction.
type HandleOption func(*handleOptions)

type handleOptions struct {
	origin string
	size   int64
}

// WithOrigin labels the handle with the provider that produced it.
func WithOrigin(origin string) HandleOption {
	return func(o *handleOptions) { o.origin = origin }
}

// WithSize declares the stream length when the reader cannot report it.
func WithSize(n int64) HandleOption {
	return func(o *handleOptions) { o.size = n }
}

func applyOptions(opts []HandleOption) handleOptions {
	o := handleOptions{size: -1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// InputHandle is an exclusively owned readable stream bound to one provider.
// The caller must Close it on every path; Close is idempotent.
//
// The handle hashes what passes through it so that observers receive the
// fingerprint of the whole file on Close, even if the caller read only
// part of it or seeked around.
//
// Not safe for concurrent use.
type InputHandle struct {
	name      string
	origin    string
	r         io.Reader
	closer    io.Closer
	size      int64
	hasher    *blake3.Hasher
	consumed  int64
	eof       bool
	seeked    bool
	closed    bool
	observers []CloseObserver
}

// NewInputHandle wraps r. If r is an io.Closer it is closed with the handle;
// if it is an io.Seeker the handle supports Seek. The size is taken from
// WithSize, a Stat method (as on *os.File) or a Size method (as on
// *bytes.Reader), whichever is available first.
func NewInputHandle(name string, r io.Reader, opts ...HandleOption) *InputHandle {
	o := applyOptions(opts)
	h := &InputHandle{
		name:   name,
		origin: o.origin,
		r:      r,
		size:   o.size,
		hasher: blake3.New(),
	}
	if c, ok := r.(io.Closer); ok {
		h.closer = c
	}
	if h.size < 0 {
		h.size = detectSize(r)
	}
	return h
}

func detectSize(r io.Reader) int64 {
	switch v := r.(type) {
	case interface{ Stat() (fs.FileInfo, error) }:
		if fi, err := v.Stat(); err == nil && fi.Mode().IsRegular() {
			return fi.Size()
		}
	case interface{ Size() int64 }:
		return v.Size()
	}
	return -1
}

// Name returns the name the handle was opened under.
func (h *InputHandle) Name() string { return h.name }

// Origin returns the label of the provider that produced the handle.
func (h *InputHandle) Origin() string { return h.origin }

// Read implements io.Reader.
func (h *InputHandle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, os.ErrClosed
	}
	n, err := h.r.Read(p)
	if n > 0 && !h.seeked {
		h.hasher.Write(p[:n])
		h.consumed += int64(n)
	}
	if errors.Is(err, io.EOF) {
		h.eof = true
	}
	return n, err
}

// ReadExact reads exactly n bytes. A short stream yields a bad-length error
// reporting how many bytes were actually available.
func (h *InputHandle) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := io.ReadFull(h, buf)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, errs.Wrap(errs.BadLength(n, got), "reading %s", h.name)
	default:
		return nil, errs.Foreign(errs.KindIO, err)
	}
}

// Seek implements io.Seeker when the underlying stream supports it;
// otherwise it fails with a not-seekable error. Querying the current
// position (offset 0 from io.SeekCurrent) does not disturb hashing.
func (h *InputHandle) Seek(offset int64, whence int) (int64, error) {
	if h.closed {
		return 0, os.ErrClosed
	}
	s, ok := h.r.(io.Seeker)
	if !ok {
		return 0, errs.NotSeekable()
	}
	if !(offset == 0 && whence == io.SeekCurrent) {
		h.seeked = true
		h.eof = false
	}
	pos, err := s.Seek(offset, whence)
	if err != nil {
		return pos, errs.Foreign(errs.KindIO, err)
	}
	return pos, nil
}

// Size returns the total length of the stream, or a not-sizeable error when
// it cannot be determined.
func (h *InputHandle) Size() (int64, error) {
	if h.size >= 0 {
		return h.size, nil
	}
	s, ok := h.r.(io.Seeker)
	if !ok {
		return 0, errs.NotSizeable()
	}
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errs.Wrap(errs.NotSizeable(), "%v", err)
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errs.Wrap(errs.NotSizeable(), "%v", err)
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return 0, errs.Foreign(errs.KindIO, err)
	}
	h.size = end
	return end, nil
}

// Observe registers fn to run when the handle closes. Must be called before
// Close; observers added later are never invoked.
func (h *InputHandle) Observe(fn CloseObserver) {
	if h.closed {
		return
	}
	h.observers = append(h.observers, fn)
}

// Close releases the underlying stream and notifies observers.
func (h *InputHandle) Close() error {
	if h.closed {
		return nil
	}

	var fp Fingerprint
	var fpErr error
	if len(h.observers) > 0 {
		fp, fpErr = h.finish()
	}
	h.closed = true

	var closeErr error
	if h.closer != nil {
		closeErr = h.closer.Close()
	}

	for _, obs := range h.observers {
		obs(fp, fpErr)
	}
	h.observers = nil
	return errs.Foreign(errs.KindIO, closeErr)
}

// finish computes the fingerprint of the whole stream: if the caller
// seeked, the stream is rehashed from the start, otherwise the unread
// remainder is drained into the running hash.
func (h *InputHandle) finish() (Fingerprint, error) {
	if h.seeked {
		s := h.r.(io.Seeker)
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return Fingerprint{}, errs.Foreign(errs.KindIO, err)
		}
		return FingerprintReader(h.r)
	}
	if !h.eof {
		n, err := io.Copy(h.hasher, h.r)
		if err != nil {
			return Fingerprint{}, errs.Foreign(errs.KindIO, err)
		}
		h.consumed += n
	}
	return sumOf(h.hasher, h.consumed), nil
}

// OutputHandle is an exclusively owned writable stream bound to one
// provider. The caller must Close it; observers then receive the
// fingerprint of everything written.
//
// Not safe for concurrent use.
type OutputHandle struct {
	name      string
	origin    string
	w         io.Writer
	closer    io.Closer
	hasher    *blake3.Hasher
	written   int64
	closed    bool
	observers []CloseObserver
}

// NewOutputHandle wraps w. If w is an io.Closer it is closed with the
// handle; pass a writer without a Close method for shared process streams.
func NewOutputHandle(name string, w io.Writer, opts ...HandleOption) *OutputHandle {
	o := applyOptions(opts)
	h := &OutputHandle{
		name:   name,
		origin: o.origin,
		w:      w,
		hasher: blake3.New(),
	}
	if c, ok := w.(io.Closer); ok {
		h.closer = c
	}
	return h
}

// Name returns the name the handle was opened under.
func (h *OutputHandle) Name() string { return h.name }

// Origin returns the label of the provider that produced the handle.
func (h *OutputHandle) Origin() string { return h.origin }

// Write implements io.Writer.
func (h *OutputHandle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, os.ErrClosed
	}
	n, err := h.w.Write(p)
	if n > 0 {
		h.hasher.Write(p[:n])
		h.written += int64(n)
	}
	return n, err
}

// Written returns the number of bytes written so far.
func (h *OutputHandle) Written() int64 { return h.written }

// Observe registers fn to run when the handle closes.
func (h *OutputHandle) Observe(fn CloseObserver) {
	if h.closed {
		return
	}
	h.observers = append(h.observers, fn)
}

// Close flushes and releases the underlying stream and notifies observers.
func (h *OutputHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	var closeErr error
	if h.closer != nil {
		closeErr = errs.Foreign(errs.KindIO, h.closer.Close())
	}

	fp := sumOf(h.hasher, h.written)
	for _, obs := range h.observers {
		obs(fp, closeErr)
	}
	h.observers = nil
	return closeErr
}
