// Package local implements a provider backed by a directory on disk.
package local

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

// Dir serves files from a root directory. Requested names are resolved
// relative to the root and may not escape it.
//
// Policy:
//   - a missing file is NotAvailable, so a later provider can supply it
//   - a name that escapes the root is a path-forbidden error, including
//     one that leaves it through a symbolic link or names a dangling link
//   - any other failure to open (permissions, a directory where a file was
//     expected) is an I/O error
type Dir struct {
	root     string
	resolved string // root with symbolic links resolved
	primary  string
	writable bool
	formats  string
	label    string
}

// Option configures a Dir.
type Option func(*Dir)

// WithPrimary names the file InputOpenPrimary returns.
func WithPrimary(name string) Option {
	return func(d *Dir) { d.primary = name }
}

// Writable lets the provider create outputs under the root.
func Writable() Option {
	return func(d *Dir) { d.writable = true }
}

// WithFormatDir serves format inputs from a subdirectory of the root.
// Without it, format requests are NotAvailable.
func WithFormatDir(sub string) Option {
	return func(d *Dir) { d.formats = sub }
}

// New creates a Dir rooted at root. The root must exist.
func New(root string, opts ...Option) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.Foreign(errs.KindIO, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "opening directory %s", root)
	}
	if !fi.IsDir() {
		return nil, errs.Newf("%s is not a directory", root)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "opening directory %s", root)
	}

	d := &Dir{root: abs, resolved: resolved, label: "local:" + root}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Describe implements provider.Describer.
func (d *Dir) Describe() string { return d.label }

// Root returns the absolute root directory.
func (d *Dir) Root() string { return d.root }

// resolve turns a checked, normalised name into a filesystem path.
func (d *Dir) resolve(base, name string) (string, error) {
	if err := provider.CheckName(name, false); err != nil {
		return "", err
	}
	path := filepath.Join(d.root, base, filepath.FromSlash(provider.NormalizeName(name)))
	if !d.contains(path) {
		return "", errs.PathForbidden(name)
	}
	return path, nil
}

// contains reports whether path, with every symbolic link along it
// resolved, stays under the root. Components that do not exist yet are
// taken literally; a dangling link is never contained.
func (d *Dir) contains(path string) bool {
	p, rest := path, ""
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			rel, err := filepath.Rel(d.resolved, filepath.Join(resolved, rest))
			return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
		}
		if fi, err := os.Lstat(p); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
			return false
		}
		parent := filepath.Dir(p)
		if parent == p {
			return false
		}
		rest = filepath.Join(filepath.Base(p), rest)
		p = parent
	}
}

func (d *Dir) openInput(base, name string) provider.OpenResult[*provider.InputHandle] {
	path, err := d.resolve(base, name)
	if err != nil {
		return provider.Failed[*provider.InputHandle](err)
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return provider.NotAvailable[*provider.InputHandle]()
	}
	if err != nil {
		return provider.Failed[*provider.InputHandle](errs.Foreign(errs.KindIO, err))
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return provider.Failed[*provider.InputHandle](errs.Foreign(errs.KindIO, err))
	}
	if fi.IsDir() {
		f.Close()
		return provider.Failed[*provider.InputHandle](errs.Newf("%s is a directory", name))
	}

	return provider.Success(provider.NewInputHandle(provider.NormalizeName(name), f, provider.WithOrigin(d.label)))
}

// InputOpenName implements provider.Provider.
func (d *Dir) InputOpenName(name string, _ status.Backend) provider.OpenResult[*provider.InputHandle] {
	return d.openInput("", name)
}

// InputOpenPrimary implements provider.Provider.
func (d *Dir) InputOpenPrimary(_ status.Backend) provider.OpenResult[*provider.InputHandle] {
	if d.primary == "" {
		return provider.NotAvailable[*provider.InputHandle]()
	}
	return d.openInput("", d.primary)
}

// InputOpenFormat implements provider.Provider.
func (d *Dir) InputOpenFormat(name string, _ status.Backend) provider.OpenResult[*provider.InputHandle] {
	if d.formats == "" {
		return provider.NotAvailable[*provider.InputHandle]()
	}
	return d.openInput(d.formats, name)
}

// OutputOpenName implements provider.Provider. Parent directories are
// created as needed and an existing file is truncated.
func (d *Dir) OutputOpenName(name string) provider.OpenResult[*provider.OutputHandle] {
	if !d.writable {
		return provider.NotAvailable[*provider.OutputHandle]()
	}
	path, err := d.resolve("", name)
	if err != nil {
		return provider.Failed[*provider.OutputHandle](err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return provider.Failed[*provider.OutputHandle](errs.Foreign(errs.KindIO, err))
	}
	f, err := os.Create(path)
	if err != nil {
		return provider.Failed[*provider.OutputHandle](errs.Foreign(errs.KindIO, err))
	}
	return provider.Success(provider.NewOutputHandle(provider.NormalizeName(name), f, provider.WithOrigin(d.label)))
}

// OutputOpenStdout implements provider.Provider. A directory has no stdout.
func (d *Dir) OutputOpenStdout() provider.OpenResult[*provider.OutputHandle] {
	return provider.NotAvailable[*provider.OutputHandle]()
}

var _ provider.Provider = (*Dir)(nil)
