package passes

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

// AccessKind distinguishes reads from writes.
type AccessKind int

const (
	Read AccessKind = iota
	Write
)

func (k AccessKind) String() string {
	if k == Write {
		return "write"
	}
	return "read"
}

// AccessRecord is one observed open. Seq orders records by the time the
// open was issued; Fingerprint is filled in when the handle closes, and is
// Absent for inputs that no provider could supply.
type AccessRecord struct {
	Name        string
	Kind        AccessKind
	Pass        int
	Seq         int64
	Fingerprint provider.Fingerprint
}

// Verdict is the detector's answer at the end of a pass.
type Verdict int

const (
	// Converged means another pass would read exactly what this one read.
	Converged Verdict = iota
	// NeedsAnotherPass means at least one file read in this pass has changed.
	NeedsAnotherPass
	// Inconclusive means the pass record cannot support either conclusion:
	// the pass was aborted, handles were left open, or the pass ceiling was hit.
	Inconclusive
)

func (v Verdict) String() string {
	switch v {
	case Converged:
		return "converged"
	case NeedsAnotherPass:
		return "needs-another-pass"
	case Inconclusive:
		return "inconclusive"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// ParseVerdict is the inverse of Verdict.String.
func ParseVerdict(s string) (Verdict, error) {
	for _, v := range []Verdict{Converged, NeedsAnotherPass, Inconclusive} {
		if v.String() == s {
			return v, nil
		}
	}
	return Inconclusive, errs.Newf("unknown verdict %q", s)
}

// Divergence reasons.
const (
	ReasonRewritten      = "rewritten"
	ReasonRewrittenPrior = "rewritten in previous pass"
	ReasonChanged        = "changed since previous pass"
)

// Divergence names a file whose content the next pass would see differently.
type Divergence struct {
	Name   string
	Reason string
	Before provider.Fingerprint
	After  provider.Fingerprint
}

func (d Divergence) String() string {
	return fmt.Sprintf("%s %s (%s -> %s)", d.Name, d.Reason, d.Before, d.After)
}

// Report summarises one pass.
type Report struct {
	Pass        int
	Verdict     Verdict
	Reason      string // why the pass is Inconclusive
	Divergences []Divergence
	Reads       []string
	Writes      []string
	// Changed lists outputs whose content differs from their previous write.
	// Informational: a changed output that nobody reads does not diverge.
	Changed []string
	Records []AccessRecord
}

// Detector watches the opens of one job, pass by pass, and decides whether
// another pass is needed.
//
// Usage:
//
//	d := NewDetector(state)
//	io := d.Observe(stack)
//	d.BeginPass()
//	engine.RunPass(ctx, n, io, sink)
//	report := d.EndPass()
//
// Passes never overlap. Opens issued outside a pass pass through unrecorded.
//
// Thread-safety: all methods are safe for concurrent use, but updates are
// applied in the order opens are observed, so callers that need a
// deterministic record must issue opens from one goroutine.
type Detector struct {
	mu    sync.Mutex
	clock *Clock
	state *State

	active   bool
	gen      uint64 // bumped per pass; late closes from older passes are ignored
	pass     int
	records  []AccessRecord
	reads    map[string]provider.Fingerprint
	readSeen map[string]bool
	writes   map[string]provider.Fingerprint
	open     int
	faults   []string
}

// NewDetector creates a detector continuing from state. A nil state starts
// a fresh job with an empty id.
func NewDetector(state *State) *Detector {
	if state == nil {
		state = NewState("")
	}
	return &Detector{
		clock: NewClock(),
		state: state.Clone(),
	}
}

// State returns a copy of the state as of the last completed pass.
func (d *Detector) State() *State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Clone()
}

// Active reports whether a pass is in progress.
func (d *Detector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// BeginPass starts recording a new pass. A pass still in progress is
// discarded as if aborted.
func (d *Detector) BeginPass() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.active = true
	d.gen++
	d.pass = d.state.Pass + 1
	d.records = nil
	d.reads = make(map[string]provider.Fingerprint)
	d.readSeen = make(map[string]bool)
	d.writes = make(map[string]provider.Fingerprint)
	d.open = 0
	d.faults = nil
	return d.pass
}

// AbortPass discards the pass in progress. The report is Inconclusive and
// the state is left as it was before the pass began.
func (d *Detector) AbortPass(reason string) Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.discardLocked(reason)
}

// EndPass closes the pass and computes its verdict.
//
// For every name read in the pass with read fingerprint R:
//   - if the pass also wrote it and the final write W differs from R, the
//     file was rewritten under the reader;
//   - if its last recorded write happened in the previous pass and changed
//     the content left by the write before it, the file has not settled yet;
//   - if the state knew a fingerprint K for it before the pass and K differs
//     from R, it changed since the previous pass.
//
// A file with no known fingerprint and no write history that the pass did
// not rewrite never diverges: reading a missing auxiliary file on the first
// pass is normal.
//
// Handles still open, or fingerprints that could not be computed, make the
// pass Inconclusive and its record is discarded.
func (d *Detector) EndPass() Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return Report{Pass: d.state.Pass, Verdict: Inconclusive, Reason: "no pass in progress"}
	}
	if d.open > 0 {
		return d.discardLocked(fmt.Sprintf("%d handle(s) still open at end of pass", d.open))
	}
	if len(d.faults) > 0 {
		return d.discardLocked(d.faults[0])
	}

	rep := Report{
		Pass:    d.pass,
		Reads:   slices.Sorted(maps.Keys(d.reads)),
		Writes:  slices.Sorted(maps.Keys(d.writes)),
		Records: d.records,
	}

	for _, name := range rep.Reads {
		r := d.reads[name]
		if w, ok := d.writes[name]; ok && !w.Equal(r) {
			rep.Divergences = append(rep.Divergences, Divergence{Name: name, Reason: ReasonRewritten, Before: r, After: w})
			continue
		}
		if prev, last, ok := d.priorRewrite(name); ok {
			rep.Divergences = append(rep.Divergences, Divergence{Name: name, Reason: ReasonRewrittenPrior, Before: prev, After: last})
			continue
		}
		if k, ok := d.state.Known[name]; ok && !k.Equal(r) {
			rep.Divergences = append(rep.Divergences, Divergence{Name: name, Reason: ReasonChanged, Before: k, After: r})
		}
	}
	for _, name := range rep.Writes {
		if prev, ok := d.state.LastWrite(name); ok && !prev.Fingerprint.Equal(d.writes[name]) {
			rep.Changed = append(rep.Changed, name)
		}
	}

	rep.Verdict = Converged
	if len(rep.Divergences) > 0 {
		rep.Verdict = NeedsAnotherPass
	}

	for name, r := range d.reads {
		if _, written := d.writes[name]; !written {
			d.state.Known[name] = r
		}
	}
	for name, w := range d.writes {
		d.state.Known[name] = w
		d.state.WriteHistory[name] = append(d.state.WriteHistory[name], WriteRecord{Pass: d.pass, Fingerprint: w})
	}
	d.state.Pass = d.pass

	d.reset()
	return rep
}

// priorRewrite reports whether name was written in the pass before the
// current one with content that differs from its preceding write.
// The caller holds d.mu.
func (d *Detector) priorRewrite(name string) (prev, last provider.Fingerprint, ok bool) {
	hist := d.state.WriteHistory[name]
	if len(hist) < 2 {
		return prev, last, false
	}
	p, l := hist[len(hist)-2], hist[len(hist)-1]
	if l.Pass != d.pass-1 || l.Fingerprint.Equal(p.Fingerprint) {
		return prev, last, false
	}
	return p.Fingerprint, l.Fingerprint, true
}

func (d *Detector) discardLocked(reason string) Report {
	rep := Report{Pass: d.pass, Verdict: Inconclusive, Reason: reason, Records: d.records}
	if !d.active {
		rep.Pass = d.state.Pass
	}
	d.reset()
	return rep
}

func (d *Detector) reset() {
	d.active = false
	d.records = nil
	d.reads = nil
	d.readSeen = nil
	d.writes = nil
	d.open = 0
	d.faults = nil
}

// record appends an access record and returns its index.
// The caller holds d.mu.
func (d *Detector) record(name string, kind AccessKind, fp provider.Fingerprint) int {
	d.records = append(d.records, AccessRecord{
		Name:        name,
		Kind:        kind,
		Pass:        d.pass,
		Seq:         d.clock.Next(),
		Fingerprint: fp,
	})
	return len(d.records) - 1
}

func (d *Detector) observeInput(key string, r provider.OpenResult[*provider.InputHandle]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return
	}

	switch {
	case r.IsNotAvailable():
		d.record(key, Read, provider.Absent())
		if !d.readSeen[key] {
			d.readSeen[key] = true
			d.reads[key] = provider.Absent()
		}
	case r.IsSuccess():
		idx := d.record(key, Read, provider.Fingerprint{})
		first := !d.readSeen[key]
		d.readSeen[key] = true
		d.open++
		gen := d.gen
		r.Handle().Observe(func(fp provider.Fingerprint, err error) {
			d.mu.Lock()
			defer d.mu.Unlock()
			if !d.active || d.gen != gen {
				return
			}
			d.open--
			if err != nil {
				d.faults = append(d.faults, fmt.Sprintf("fingerprinting %s: %v", key, err))
				return
			}
			d.records[idx].Fingerprint = fp
			if first {
				d.reads[key] = fp
			}
		})
	}
}

func (d *Detector) observeOutput(key string, r provider.OpenResult[*provider.OutputHandle]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active || !r.IsSuccess() {
		return
	}

	idx := d.record(key, Write, provider.Fingerprint{})
	d.open++
	gen := d.gen
	r.Handle().Observe(func(fp provider.Fingerprint, err error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if !d.active || d.gen != gen {
			return
		}
		d.open--
		if err != nil {
			d.faults = append(d.faults, fmt.Sprintf("closing %s: %v", key, err))
			return
		}
		d.records[idx].Fingerprint = fp
		d.writes[key] = fp
	})
}

// Observe wraps p so that every open issued through it is recorded in the
// pass in progress. Results are returned unchanged.
func (d *Detector) Observe(p provider.Provider) provider.Provider {
	return &observed{d: d, inner: p}
}

type observed struct {
	d     *Detector
	inner provider.Provider
}

func (o *observed) Describe() string {
	return "observed " + provider.Describe(o.inner)
}

func (o *observed) OutputOpenName(name string) provider.OpenResult[*provider.OutputHandle] {
	r := o.inner.OutputOpenName(name)
	o.d.observeOutput(provider.NormalizeName(name), r)
	return r
}

// OutputOpenStdout is not tracked: nothing can read standard output back.
func (o *observed) OutputOpenStdout() provider.OpenResult[*provider.OutputHandle] {
	return o.inner.OutputOpenStdout()
}

func (o *observed) InputOpenName(name string, sink status.Backend) provider.OpenResult[*provider.InputHandle] {
	r := o.inner.InputOpenName(name, sink)
	o.d.observeInput(provider.NormalizeName(name), r)
	return r
}

func (o *observed) InputOpenPrimary(sink status.Backend) provider.OpenResult[*provider.InputHandle] {
	r := o.inner.InputOpenPrimary(sink)
	if r.IsSuccess() {
		o.d.observeInput(provider.NormalizeName(r.Handle().Name()), r)
	}
	return r
}

func (o *observed) InputOpenFormat(name string, sink status.Backend) provider.OpenResult[*provider.InputHandle] {
	r := o.inner.InputOpenFormat(name, sink)
	o.d.observeInput(FormatPrefix+provider.NormalizeName(name), r)
	return r
}
