package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/texstack/internal/passes"
	"github.com/roach88/texstack/internal/watch"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	MaxPasses int
	Debounce  time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the job whenever its sources change",
		Long: `Run the job, then watch the directories of its local providers. After
each settled burst of file events the stored fingerprints are compared
with what the stack serves now, and the job runs again only if a tracked
file really changed. The job's own outputs never retrigger it.

A failing pass is reported and watching continues. Stop with Ctrl-C.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchJob(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.MaxPasses, "max-passes", 0, "pass ceiling (default: the job's max_passes, or 6)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", watch.DefaultDebounce, "quiet period before re-checking")

	return cmd
}

func watchJob(opts *WatchOptions, cmd *cobra.Command) error {
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

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	built, err := buildJob(ctx, job, cmd, cmd.ErrOrStderr(), logger)
	if err != nil {
		return err
	}
	defer built.Close()
	if len(built.LocalRoots) == 0 {
		return NewExitError(ExitCommandError, "job has no local provider to watch")
	}

	sink := newStatus(opts.RootOptions, cmd.ErrOrStderr())
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	po := passOptions{maxPasses: opts.MaxPasses, sink: sink, logger: logger}

	run := func(ctx context.Context) {
		res, err := runPasses(ctx, job, built, st, po)
		if err != nil {
			if ctx.Err() == nil {
				sink.ReportError(err)
			}
			return
		}
		if err := out.Success(newRunSummary(job.Name(), res)); err != nil {
			logger.Warn("writing summary", "error", err)
		}
	}

	run(ctx)

	w := watch.New(built.LocalRoots, watch.WithDebounce(opts.Debounce), watch.WithLogger(logger))
	err = w.Run(ctx, func(ctx context.Context) error {
		state, err := st.LoadState(ctx, job.ID())
		if err != nil {
			return err
		}
		if state == nil {
			state = passes.NewState(job.ID())
		}
		changes := watch.Stale(state, built.Stack(), sink)
		if len(changes) == 0 && state.Pass > 0 {
			logger.Debug("no tracked file changed")
			return nil
		}
		for _, c := range changes {
			logger.Info("changed", "name", c.Name, "was", c.Known.String(), "now", c.Current.String())
		}
		run(ctx)
		return nil
	})
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("watching %s", job.Name()), err)
	}
	return nil
}
