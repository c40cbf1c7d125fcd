package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/texstack/internal/passes"
	"github.com/roach88/texstack/internal/store"
	"github.com/roach88/texstack/internal/watch"
)

// StateOptions holds flags for the state subcommands.
type StateOptions struct {
	*RootOptions
	Stale bool // state show: also check tracked files against the stack
	Limit int  // state runs: most recent N runs
	All   bool // state runs: every job in the database
}

// NewStateCommand creates the state command and its subcommands.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset stored pass state",
		Long: `Inspect the pass state and run history kept in the job's state database.

Examples:
  texstack state show
  texstack state show --stale
  texstack state runs --limit 5
  texstack state reset
  texstack state jobs`,
	}

	show := &cobra.Command{
		Use:           "show",
		Short:         "Show the files the job tracks and their fingerprints",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stateShow(opts, cmd)
		},
	}
	show.Flags().BoolVar(&opts.Stale, "stale", false, "check tracked files against the provider stack")

	reset := &cobra.Command{
		Use:           "reset",
		Short:         "Forget the job's pass state (run history is kept)",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stateReset(opts, cmd)
		},
	}

	runs := &cobra.Command{
		Use:           "runs",
		Short:         "List recorded runs, oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stateRuns(opts, cmd)
		},
	}
	runs.Flags().IntVar(&opts.Limit, "limit", 0, "show only the most recent N runs")
	runs.Flags().BoolVar(&opts.All, "all", false, "list the runs of every job in the database")

	jobs := &cobra.Command{
		Use:           "jobs",
		Short:         "List every job stored in the state database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stateJobs(opts, cmd)
		},
	}

	cmd.AddCommand(show, reset, runs, jobs)
	return cmd
}

// StateView is the output of state show.
type StateView struct {
	Job     string      `json:"job"`
	JobID   string      `json:"job_id"`
	Pass    int         `json:"pass"`
	Files   []FileState `json:"files"`
	Checked bool        `json:"checked"`
}

// FileState is one tracked file.
type FileState struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	Size        int64  `json:"size"`
	Writes      int    `json:"writes"`
	Stale       bool   `json:"stale,omitempty"`
	Current     string `json:"current,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (v StateView) String() string {
	var b strings.Builder
	if v.Pass == 0 {
		fmt.Fprintf(&b, "%s: no stored state", v.Job)
		return b.String()
	}
	fmt.Fprintf(&b, "%s: %d passes, %d files\n", v.Job, v.Pass, len(v.Files))
	stale := 0
	for _, f := range v.Files {
		mark := " "
		if f.Stale {
			mark = "*"
			stale++
		}
		fmt.Fprintf(&b, "%s %-12s %8d  %s", mark, f.Fingerprint, f.Size, f.Name)
		if f.Writes > 0 {
			fmt.Fprintf(&b, " (written %dx)", f.Writes)
		}
		if f.Stale {
			if f.Error != "" {
				fmt.Fprintf(&b, " unreadable: %s", f.Error)
			} else {
				fmt.Fprintf(&b, " now %s", f.Current)
			}
		}
		b.WriteByte('\n')
	}
	if v.Checked {
		if stale == 0 {
			b.WriteString("up to date")
		} else {
			fmt.Fprintf(&b, "%d file(s) changed; the job needs another pass", stale)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func stateShow(opts *StateOptions, cmd *cobra.Command) error {
	job, err := loadJob(opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := openStore(job)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	state, err := st.LoadState(ctx, job.ID())
	if err != nil {
		return WrapExitError(ExitCommandError, "loading state", err)
	}
	if state == nil {
		state = passes.NewState(job.ID())
	}

	view := StateView{Job: job.Name(), JobID: job.ID(), Pass: state.Pass}
	index := make(map[string]int)
	for _, name := range state.Names() {
		fp := state.Known[name]
		index[name] = len(view.Files)
		view.Files = append(view.Files, FileState{
			Name:        name,
			Fingerprint: fp.String(),
			Size:        fp.Size,
			Writes:      len(state.WriteHistory[name]),
		})
	}

	if opts.Stale && state.Pass > 0 {
		logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
		built, err := buildJob(ctx, job, cmd, io.Discard, logger)
		if err != nil {
			return err
		}
		defer built.Close()

		view.Checked = true
		sink := newStatus(opts.RootOptions, cmd.ErrOrStderr())
		for _, c := range watch.Stale(state, built.Stack(), sink) {
			f := &view.Files[index[c.Name]]
			f.Stale = true
			f.Current = c.Current.String()
			if c.Err != nil {
				f.Error = c.Err.Error()
			}
		}
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if err := out.Success(view); err != nil {
		return err
	}
	for _, f := range view.Files {
		if f.Stale {
			return NewExitError(ExitFailure, "job is stale")
		}
	}
	return nil
}

func stateReset(opts *StateOptions, cmd *cobra.Command) error {
	job, err := loadJob(opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := openStore(job)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteState(commandContext(cmd), job.ID()); err != nil {
		return WrapExitError(ExitCommandError, "resetting state", err)
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Success(fmt.Sprintf("%s: state cleared", job.Name()))
}

// RunView is one recorded run in state runs output.
type RunView struct {
	RunID    string    `json:"run_id"`
	JobID    string    `json:"job_id"`
	Passes   int       `json:"passes"`
	Verdict  string    `json:"verdict"`
	Warning  string    `json:"warning,omitempty"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started"`
	Duration string    `json:"duration"`
}

// RunList is the output of state runs.
type RunList []RunView

func (l RunList) String() string {
	if len(l) == 0 {
		return "no runs recorded"
	}
	var b strings.Builder
	for _, r := range l {
		fmt.Fprintf(&b, "%s  %s  %-18s %d pass(es) in %s", r.Started.Local().Format(time.DateTime), r.RunID, r.Verdict, r.Passes, r.Duration)
		if r.Error != "" {
			fmt.Fprintf(&b, "\n    error: %s", r.Error)
		}
		if r.Warning != "" {
			fmt.Fprintf(&b, "\n    warning: %s", r.Warning)
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func stateRuns(opts *StateOptions, cmd *cobra.Command) error {
	job, err := loadJob(opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := openStore(job)
	if err != nil {
		return err
	}
	defer st.Close()

	jobID := job.ID()
	if opts.All {
		jobID = ""
	}
	runs, err := st.ListRuns(commandContext(cmd), jobID, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "listing runs", err)
	}

	list := make(RunList, 0, len(runs))
	for _, r := range runs {
		list = append(list, RunView{
			RunID:    r.RunID,
			JobID:    r.JobID,
			Passes:   r.Passes,
			Verdict:  r.Verdict.String(),
			Warning:  r.Warning,
			Error:    r.Error,
			Started:  r.Started,
			Duration: r.Finished.Sub(r.Started).Round(time.Millisecond).String(),
		})
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Success(list)
}

// JobList is the output of state jobs.
type JobList []store.JobSummary

func (l JobList) String() string {
	if len(l) == 0 {
		return "no jobs stored"
	}
	var b strings.Builder
	for _, j := range l {
		fmt.Fprintf(&b, "%s  %d pass(es), %d file(s), updated %s\n", j.JobID, j.Pass, j.Files, j.UpdatedAt.Local().Format(time.DateTime))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func stateJobs(opts *StateOptions, cmd *cobra.Command) error {
	job, err := loadJob(opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := openStore(job)
	if err != nil {
		return err
	}
	defer st.Close()

	jobs, err := st.Jobs(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "listing jobs", err)
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Success(JobList(jobs))
}
