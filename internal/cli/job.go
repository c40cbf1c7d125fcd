package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/texstack/internal/config"
	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/store"
)

// loadJob reads the job file named by --config, or the nearest one above
// the working directory.
func loadJob(opts *RootOptions) (*config.Job, error) {
	path := opts.Config
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "finding job file", err)
		}
		if path, err = config.Find(wd); err != nil {
			return nil, WrapExitError(ExitCommandError, "finding job file", err)
		}
	}
	job, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading job", err)
	}
	return job, nil
}

// buildJob creates the job's providers. Engine terminal output goes to
// stdout, which the caller picks so that JSON output stays parseable.
func buildJob(ctx context.Context, job *config.Job, cmd *cobra.Command, stdout io.Writer, logger *slog.Logger) (*config.Built, error) {
	built, err := job.Build(config.Env{
		Stdout:  stdout,
		Stdin:   cmd.InOrStdin(),
		Context: ctx,
		Logger:  logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "building providers", err)
	}
	return built, nil
}

// openStore opens the job's state database, creating its directory.
func openStore(job *config.Job) (*store.Store, error) {
	path := job.StatePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "opening state database",
			errs.Wrap(errs.Foreign(errs.KindIO, err), "creating %s", filepath.Dir(path)))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening state database", err)
	}
	return st, nil
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute (tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
