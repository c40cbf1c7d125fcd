package harness

import (
	"fmt"

	"github.com/roach88/texstack/internal/passes"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Verdict is the job verdict; a failed job counts as inconclusive.
	Verdict string `json:"verdict"`

	// Passes is the number of passes run; zero for a failed job.
	Passes int `json:"passes"`

	// JobError is the job error, if the job failed.
	JobError string `json:"job_error,omitempty"`

	// Reports are the pass reports in run order.
	Reports []passes.Report `json:"-"`

	// Messages are the status messages in report order.
	Messages []status.Message `json:"messages,omitempty"`

	// Stdout is what the engine printed.
	Stdout string `json:"stdout,omitempty"`

	// Files holds the final content of every file in the scenario's store.
	Files map[string]string `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Files:  make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// report returns the report of pass n (1-based), or nil.
func (r *Result) report(n int) *passes.Report {
	if n < 1 || n > len(r.Reports) {
		return nil
	}
	return &r.Reports[n-1]
}

// Snapshot is the golden form of a result: everything that should not
// change between runs, with fingerprints reduced to sizes.
type Snapshot struct {
	Scenario string         `json:"scenario"`
	Verdict  string         `json:"verdict"`
	Passes   int            `json:"passes"`
	Error    string         `json:"error,omitempty"`
	Reports  []PassSnapshot `json:"reports,omitempty"`
	Messages []string       `json:"messages,omitempty"`
	Stdout   string         `json:"stdout,omitempty"`
}

// PassSnapshot is the golden form of one pass report.
type PassSnapshot struct {
	Pass        int      `json:"pass"`
	Verdict     string   `json:"verdict"`
	Reason      string   `json:"reason,omitempty"`
	Reads       []string `json:"reads,omitempty"`
	Writes      []string `json:"writes,omitempty"`
	Divergences []string `json:"divergences,omitempty"`
	Changed     []string `json:"changed,omitempty"`
}

// NewSnapshot builds the snapshot of a result.
func NewSnapshot(name string, r *Result) Snapshot {
	s := Snapshot{
		Scenario: name,
		Verdict:  r.Verdict,
		Passes:   r.Passes,
		Error:    r.JobError,
		Stdout:   r.Stdout,
	}
	for _, rep := range r.Reports {
		ps := PassSnapshot{
			Pass:    rep.Pass,
			Verdict: rep.Verdict.String(),
			Reason:  rep.Reason,
			Reads:   rep.Reads,
			Writes:  rep.Writes,
			Changed: rep.Changed,
		}
		for _, d := range rep.Divergences {
			ps.Divergences = append(ps.Divergences,
				fmt.Sprintf("%s %s (%s -> %s)", d.Name, d.Reason, size(d.Before), size(d.After)))
		}
		s.Reports = append(s.Reports, ps)
	}
	for _, m := range r.Messages {
		s.Messages = append(s.Messages, m.Level+": "+m.Text)
	}
	return s
}

func size(fp provider.Fingerprint) string {
	if !fp.Present() {
		return "absent"
	}
	return fmt.Sprintf("%d bytes", fp.Size)
}
