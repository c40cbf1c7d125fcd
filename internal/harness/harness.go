package harness

import (
	"bytes"
	"context"
	"log/slog"
	"os"

	"github.com/roach88/texstack/internal/backend/fmtcache"
	"github.com/roach88/texstack/internal/backend/memfs"
	"github.com/roach88/texstack/internal/backend/stdio"
	"github.com/roach88/texstack/internal/engine"
	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/passes"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
	"github.com/roach88/texstack/internal/testutil"
)

// DefaultRunID is the run id used when a scenario sets none.
const DefaultRunID = "scenario-run"

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh store, so scenarios are isolated from
// each other. The stack is, in priority order: a scratch format cache (only
// when the scenario names a format), the scenario's files, and a stdout
// collector.
//
// The returned error is reserved for harness failures; a job that fails or
// an outcome that differs from the scenario is reported in the Result.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	fs := memfs.New(memfs.WithLabel("scenario:"+s.Name), memfs.WithPrimary(s.Primary))
	for name, content := range s.Files {
		fs.PutString(name, content)
	}
	for name, content := range s.Formats {
		fs.PutFormat(name, []byte(content))
	}

	var stdout bytes.Buffer
	layers := []provider.Provider{fs, stdio.New(&stdout)}

	engineOpts := []engine.Option{}
	if s.Format != "" {
		dir, err := os.MkdirTemp("", "texstack-scenario-*")
		if err != nil {
			return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "creating format cache")
		}
		defer os.RemoveAll(dir)

		cache, err := fmtcache.New(dir, fmtcache.CodecZstd)
		if err != nil {
			return nil, errs.Wrap(err, "creating format cache")
		}
		layers = append([]provider.Provider{cache}, layers...)
		engineOpts = append(engineOpts, engine.WithFormat(s.Format))
	}

	runID := s.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	sink := status.NewCollector()
	quiet := slog.New(slog.DiscardHandler)
	opts := []passes.Option{
		passes.WithStatus(sink),
		passes.WithLogger(quiet),
		passes.WithRunIDs(testutil.NewFixedRunIDs(runID)),
	}
	if s.MaxPasses > 0 {
		opts = append(opts, passes.WithMaxPasses(s.MaxPasses))
	}

	job, err := passes.New(engine.New(engineOpts...), opts...).Run(ctx, layers...)

	result := NewResult()
	result.Messages = sink.Messages()
	result.Stdout = stdout.String()
	for _, name := range fs.Names() {
		data, _ := fs.Get(name)
		result.Files[name] = string(data)
	}
	if err != nil {
		result.Verdict = passes.Inconclusive.String()
		result.JobError = err.Error()
	} else {
		result.Verdict = job.Verdict.String()
		result.Passes = job.Passes
		result.Reports = job.Reports
	}

	checkExpect(result, s.Expect)
	for _, a := range s.Assertions {
		if err := evaluate(result, a); err != nil {
			result.AddError("%s", err.Error())
		}
	}
	return result, nil
}

func checkExpect(r *Result, want Expect) {
	if want.Error != "" {
		switch {
		case r.JobError == "":
			r.AddError("expected the job to fail with %q, but it finished %s", want.Error, r.Verdict)
		case !contains(r.JobError, want.Error):
			r.AddError("expected the job to fail with %q, got %q", want.Error, r.JobError)
		}
		return
	}

	if r.JobError != "" {
		r.AddError("job failed: %s", r.JobError)
		return
	}
	if r.Verdict != want.Verdict {
		r.AddError("expected verdict %s, got %s", want.Verdict, r.Verdict)
	}
	if want.Passes > 0 && r.Passes != want.Passes {
		r.AddError("expected %d passes, got %d", want.Passes, r.Passes)
	}
}
