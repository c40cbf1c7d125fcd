package passes

import (
	"maps"
	"slices"

	"github.com/roach88/texstack/internal/provider"
)

// FormatPrefix keys format inputs apart from ordinary names, since the two
// namespaces may legitimately share a name.
const FormatPrefix = "format:"

// WriteRecord is one entry of a file's write history.
type WriteRecord struct {
	Pass        int
	Fingerprint provider.Fingerprint
}

// State is everything the detector carries from one pass to the next.
//
// Known holds, for every file the job has touched, the fingerprint it had
// at the end of the last completed pass: what was written if the file was
// written, otherwise what was read (possibly Absent). WriteHistory keeps
// every final write per pass, oldest first.
//
// State is created at the start of a job and, for incremental and watch
// workflows, persisted between jobs under the job id.
type State struct {
	JobID        string
	Pass         int
	Known        map[string]provider.Fingerprint
	WriteHistory map[string][]WriteRecord
}

// NewState returns the empty state of a job that has never run.
func NewState(jobID string) *State {
	return &State{
		JobID:        jobID,
		Known:        make(map[string]provider.Fingerprint),
		WriteHistory: make(map[string][]WriteRecord),
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := &State{
		JobID:        s.JobID,
		Pass:         s.Pass,
		Known:        maps.Clone(s.Known),
		WriteHistory: make(map[string][]WriteRecord, len(s.WriteHistory)),
	}
	if c.Known == nil {
		c.Known = make(map[string]provider.Fingerprint)
	}
	for name, hist := range s.WriteHistory {
		c.WriteHistory[name] = slices.Clone(hist)
	}
	return c
}

// LastWrite returns the most recent recorded write of name.
func (s *State) LastWrite(name string) (WriteRecord, bool) {
	hist := s.WriteHistory[name]
	if len(hist) == 0 {
		return WriteRecord{}, false
	}
	return hist[len(hist)-1], true
}

// Names returns every tracked name in sorted order.
func (s *State) Names() []string {
	return slices.Sorted(maps.Keys(s.Known))
}
