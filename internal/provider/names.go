package provider

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/texstack/internal/errs"
)

// NormalizeName puts a requested name into the canonical form used for
// lookups and access tracking: Unicode NFC, forward slashes, no "." or
// duplicate separators. ".." elements are preserved so CheckName can
// reject them.
func NormalizeName(name string) string {
	name = norm.NFC.String(name)
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" {
		return ""
	}

	abs := strings.HasPrefix(name, "/")
	var parts []string
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." {
			continue
		}
		parts = append(parts, part)
	}
	out := strings.Join(parts, "/")
	if abs {
		return "/" + out
	}
	if out == "" {
		return "."
	}
	return out
}

// CheckName rejects names that escape a provider's sandbox: empty names,
// NUL bytes, any ".." element, and absolute paths unless allowAbsolute.
func CheckName(name string, allowAbsolute bool) error {
	if name == "" || name == "." || strings.ContainsRune(name, 0) {
		return errs.PathForbidden(name)
	}
	if !allowAbsolute && (path.IsAbs(name) || filepath.IsAbs(name)) {
		return errs.PathForbidden(name)
	}
	for _, part := range strings.FieldsFunc(name, isSeparator) {
		if part == ".." {
			return errs.PathForbidden(name)
		}
	}
	return nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
