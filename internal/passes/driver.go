package passes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

// DefaultMaxPasses is the pass ceiling when none is configured. Documents
// with alternating dependencies never converge; the ceiling is the only
// thing that stops them.
const DefaultMaxPasses = 6

// Engine runs one pass of the typesetting core. Every file it touches must
// go through io, and every handle it opens must be closed before it returns.
type Engine interface {
	RunPass(ctx context.Context, pass int, io provider.Provider, sink status.Backend) error
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, pass int, io provider.Provider, sink status.Backend) error

// RunPass calls f.
func (f EngineFunc) RunPass(ctx context.Context, pass int, io provider.Provider, sink status.Backend) error {
	return f(ctx, pass, io, sink)
}

// StateStore persists pass state between jobs.
// LoadState returns (nil, nil) for a job that has never been saved.
type StateStore interface {
	LoadState(ctx context.Context, jobID string) (*State, error)
	SaveState(ctx context.Context, state *State) error
}

// RunRecord is the summary of one Driver.Run kept for later inspection.
type RunRecord struct {
	RunID    string
	JobID    string
	Passes   int
	Verdict  Verdict
	Warning  string
	Error    string
	Started  time.Time
	Finished time.Time
}

// RunRecorder is implemented by stores that also keep run history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

// JobResult is what a job produced. Verdict is Converged, or Inconclusive
// with Warnings saying why; the output is usable either way.
type JobResult struct {
	RunID    string
	JobID    string
	Passes   int
	Verdict  Verdict
	Reports  []Report
	Warnings []string
	State    *State
}

// Driver re-invokes an Engine until its passes converge.
type Driver struct {
	engine    Engine
	maxPasses int
	sink      status.Backend
	logger    *slog.Logger
	store     StateStore
	jobID     string
	ids       RunIDGenerator
	now       func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithMaxPasses sets the pass ceiling. Values below 1 are ignored.
func WithMaxPasses(n int) Option {
	return func(d *Driver) {
		if n >= 1 {
			d.maxPasses = n
		}
	}
}

// WithStatus sets the sink handed to the engine and used for warnings.
func WithStatus(sink status.Backend) Option {
	return func(d *Driver) { d.sink = sink }
}

// WithLogger sets the logger for pass-level diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// WithStateStore persists state under jobID after every completed pass, and
// resumes from the stored state on the next Run. If store also implements
// RunRecorder, every Run is recorded.
func WithStateStore(store StateStore, jobID string) Option {
	return func(d *Driver) {
		d.store = store
		d.jobID = jobID
	}
}

// WithRunIDs sets the run id generator.
func WithRunIDs(gen RunIDGenerator) Option {
	return func(d *Driver) { d.ids = gen }
}

// New creates a Driver for engine.
//
// Default: DefaultMaxPasses passes, status.Discard, slog.Default(), no
// persistence, UUIDv7 run ids.
func New(engine Engine, opts ...Option) *Driver {
	d := &Driver{
		engine:    engine,
		maxPasses: DefaultMaxPasses,
		sink:      status.Discard,
		logger:    slog.Default(),
		ids:       UUIDv7RunIDs{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes passes over the stack built from providers (index 0 has the
// highest priority) until they converge.
//
// An engine failure or cancellation aborts the pass in progress, which
// leaves the stored state untouched, and is returned as an error. Reaching
// the pass ceiling is not an error: the result is Inconclusive with a
// warning.
func (d *Driver) Run(ctx context.Context, providers ...provider.Provider) (*JobResult, error) {
	started := d.now()

	state, err := d.loadState(ctx)
	if err != nil {
		return nil, err
	}

	det := NewDetector(state)
	view := det.Observe(provider.NewStack(providers...))

	res := &JobResult{
		RunID:   d.ids.Generate(),
		JobID:   state.JobID,
		Verdict: Inconclusive,
	}
	log := d.logger.With("job", res.JobID, "run", res.RunID)

	for n := 1; n <= d.maxPasses; n++ {
		pass := det.BeginPass()
		log.Debug("pass starting", "pass", n, "job_pass", pass)

		err := ctx.Err()
		if err == nil {
			err = d.engine.RunPass(ctx, n, view, d.sink)
		}
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			rep := det.AbortPass(err.Error())
			res.Reports = append(res.Reports, rep)
			res.Passes = n
			res.State = det.State()
			failure := errs.Wrap(err, "pass %d failed", n)
			log.Error("pass failed", "pass", n, "error", err)
			d.recordRun(ctx, res, started, failure)
			return nil, failure
		}

		rep := det.EndPass()
		res.Reports = append(res.Reports, rep)
		res.Passes = n
		res.Verdict = rep.Verdict
		log.Info("pass finished",
			"pass", n,
			"verdict", rep.Verdict.String(),
			"reads", len(rep.Reads),
			"writes", len(rep.Writes),
			"divergences", len(rep.Divergences),
		)

		if rep.Verdict == Inconclusive {
			d.warn(res, "pass %d was inconclusive: %s", n, rep.Reason)
			break
		}

		if err := d.saveState(ctx, det.State()); err != nil {
			return nil, err
		}

		if rep.Verdict == Converged {
			break
		}

		for _, div := range rep.Divergences {
			log.Debug("divergence", "pass", n, "file", div.Name, "reason", div.Reason)
		}
		if n == d.maxPasses {
			res.Verdict = Inconclusive
			d.warn(res, "no convergence after %d passes; %s", n, describeDivergences(rep.Divergences))
		} else {
			status.Notef(d.sink, "another pass is needed: %s", describeDivergences(rep.Divergences))
		}
	}

	res.State = det.State()
	d.recordRun(ctx, res, started, nil)
	return res, nil
}

func (d *Driver) loadState(ctx context.Context) (*State, error) {
	if d.store == nil {
		return NewState(d.jobID), nil
	}
	state, err := d.store.LoadState(ctx, d.jobID)
	if err != nil {
		return nil, errs.Wrap(err, "loading state for job %s", d.jobID)
	}
	if state == nil {
		return NewState(d.jobID), nil
	}
	return state, nil
}

func (d *Driver) saveState(ctx context.Context, state *State) error {
	if d.store == nil {
		return nil
	}
	return errs.Wrap(d.store.SaveState(ctx, state), "saving state for job %s", state.JobID)
}

// recordRun is best effort: a failure to record history is logged and the
// job result stands.
func (d *Driver) recordRun(ctx context.Context, res *JobResult, started time.Time, failure error) {
	rec, ok := d.store.(RunRecorder)
	if !ok {
		return
	}
	run := RunRecord{
		RunID:    res.RunID,
		JobID:    res.JobID,
		Passes:   res.Passes,
		Verdict:  res.Verdict,
		Warning:  strings.Join(res.Warnings, "; "),
		Started:  started,
		Finished: d.now(),
	}
	if failure != nil {
		run.Verdict = Inconclusive
		run.Error = strings.Join(errs.Chain(failure), ": ")
	}
	if err := rec.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		d.logger.Warn("recording run failed", "run", res.RunID, "error", err)
	}
}

func (d *Driver) warn(res *JobResult, format string, args ...any) {
	status.Warnf(d.sink, format, args...)
	res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
}

func describeDivergences(divs []Divergence) string {
	parts := make([]string, len(divs))
	for i, div := range divs {
		parts[i] = div.Name + " " + div.Reason
	}
	return strings.Join(parts, ", ")
}
