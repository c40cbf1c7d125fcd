package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/texstack/internal/config"
	"github.com/roach88/texstack/internal/engine"
	"github.com/roach88/texstack/internal/passes"
	"github.com/roach88/texstack/internal/status"
	"github.com/roach88/texstack/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MaxPasses int
	Fresh     bool

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to passes.UUIDv7RunIDs.
	RunIDs passes.RunIDGenerator
}

// RunSummary is the outcome of one job run.
type RunSummary struct {
	Job      string        `json:"job"`
	JobID    string        `json:"job_id"`
	RunID    string        `json:"run_id"`
	Verdict  string        `json:"verdict"`
	Passes   int           `json:"passes"`
	Warnings []string      `json:"warnings,omitempty"`
	Reports  []PassSummary `json:"reports"`
}

// PassSummary is one pass of a RunSummary.
type PassSummary struct {
	Pass        int      `json:"pass"`
	Verdict     string   `json:"verdict"`
	Reads       int      `json:"reads"`
	Writes      int      `json:"writes"`
	Divergences []string `json:"divergences,omitempty"`
}

func (s RunSummary) String() string {
	var b strings.Builder
	for _, p := range s.Reports {
		fmt.Fprintf(&b, "pass %d: %s (%d read, %d written)\n", p.Pass, p.Verdict, p.Reads, p.Writes)
		for _, d := range p.Divergences {
			fmt.Fprintf(&b, "  %s\n", d)
		}
	}
	fmt.Fprintf(&b, "%s: %s after %d pass", s.Job, s.Verdict, s.Passes)
	if s.Passes != 1 {
		b.WriteString("es")
	}
	return b.String()
}

func newRunSummary(name string, res *passes.JobResult) RunSummary {
	s := RunSummary{
		Job:      name,
		JobID:    res.JobID,
		RunID:    res.RunID,
		Verdict:  res.Verdict.String(),
		Passes:   res.Passes,
		Warnings: res.Warnings,
	}
	for _, rep := range res.Reports {
		ps := PassSummary{
			Pass:    rep.Pass,
			Verdict: rep.Verdict.String(),
			Reads:   len(rep.Reads),
			Writes:  len(rep.Writes),
		}
		for _, d := range rep.Divergences {
			ps.Divergences = append(ps.Divergences, d.Name+" "+d.Reason)
		}
		s.Reports = append(s.Reports, ps)
	}
	return s
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the job until its passes converge",
		Long: `Run the job's engine over its provider stack, pass after pass, until a
pass reads exactly what the previous one left behind.

Pass state is kept in the job's state database (state_db, default
.texstack/state.db next to the job file), so a later run starts from what
the last one saw. Reaching the pass ceiling is a warning, not a failure.

Exit codes:
  0 - The job finished (converged, or stopped at the ceiling)
  1 - A pass failed
  2 - Command error (no job file, bad config, unreadable state)

Examples:
  texstack run
  texstack run --config thesis/texstack.yaml --max-passes 3
  texstack run --fresh --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.MaxPasses, "max-passes", 0, "pass ceiling (default: the job's max_passes, or 6)")
	cmd.Flags().BoolVar(&opts.Fresh, "fresh", false, "forget stored pass state before running")

	return cmd
}

func runJob(opts *RunOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	job, err := loadJob(opts.RootOptions)
	if err != nil {
		return err
	}

	st, err := openStore(job)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing state database", "error", closeErr)
		}
	}()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after the current pass", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.Fresh {
		if err := st.DeleteState(ctx, job.ID()); err != nil {
			return WrapExitError(ExitCommandError, "resetting state", err)
		}
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		out = cmd.ErrOrStderr()
	}
	built, err := buildJob(ctx, job, cmd, out, logger)
	if err != nil {
		return err
	}
	defer built.Close()

	sink := newStatus(opts.RootOptions, cmd.ErrOrStderr())
	res, err := runPasses(ctx, job, built, st, passOptions{
		maxPasses: opts.MaxPasses,
		runIDs:    opts.RunIDs,
		sink:      sink,
		logger:    logger,
	})
	if err != nil {
		sink.ReportError(err)
		return WrapExitError(ExitFailure, "job failed", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return f.Success(newRunSummary(job.Name(), res))
}

type passOptions struct {
	maxPasses int
	runIDs    passes.RunIDGenerator
	sink      status.Backend
	logger    *slog.Logger
}

// runPasses drives the job's engine over its providers once.
func runPasses(ctx context.Context, job *config.Job, built *config.Built, st *store.Store, o passOptions) (*passes.JobResult, error) {
	maxPasses := job.Passes()
	if o.maxPasses > 0 {
		maxPasses = o.maxPasses
	}

	eng := engine.New(engine.WithFormat(job.Format), engine.WithLogger(o.logger))
	driverOpts := []passes.Option{
		passes.WithMaxPasses(maxPasses),
		passes.WithStatus(o.sink),
		passes.WithLogger(o.logger),
		passes.WithStateStore(st, job.ID()),
	}
	if o.runIDs != nil {
		driverOpts = append(driverOpts, passes.WithRunIDs(o.runIDs))
	}

	o.logger.Debug("job starting", "job", job.Name(), "id", job.ID(), "providers", len(built.Providers), "max_passes", maxPasses)
	return passes.New(eng, driverOpts...).Run(ctx, built.Providers...)
}
