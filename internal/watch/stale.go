// Package watch re-checks a job when its sources change on disk.
//
// File events only say that something happened. Whether the job actually
// needs another pass is decided by comparing what the provider stack
// serves now against the fingerprints stored after the last completed
// pass, so a job's own writes never retrigger it.
package watch

import (
	"strings"

	"github.com/roach88/texstack/internal/passes"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

// Change is a tracked file whose content differs from the stored state.
type Change struct {
	Name    string
	Known   provider.Fingerprint
	Current provider.Fingerprint
	// Err is set when the file could not be read; Current is then Absent.
	Err error
}

// Stale lists the tracked files of st whose content, as served by p, no
// longer matches. A file that could not be opened counts as changed.
func Stale(st *passes.State, p provider.Provider, sink status.Backend) []Change {
	var changes []Change
	for _, key := range st.Names() {
		known := st.Known[key]
		current, err := fingerprint(p, key, sink)
		if err == nil && current.Equal(known) {
			continue
		}
		changes = append(changes, Change{Name: key, Known: known, Current: current, Err: err})
	}
	return changes
}

func fingerprint(p provider.Provider, key string, sink status.Backend) (provider.Fingerprint, error) {
	var r provider.OpenResult[*provider.InputHandle]
	if name, ok := strings.CutPrefix(key, passes.FormatPrefix); ok {
		r = p.InputOpenFormat(name, sink)
	} else {
		r = p.InputOpenName(key, sink)
	}
	switch {
	case r.IsNotAvailable():
		return provider.Absent(), nil
	case r.IsError():
		return provider.Absent(), r.Err()
	}

	h := r.Handle()
	defer h.Close()
	return provider.FingerprintReader(h)
}
