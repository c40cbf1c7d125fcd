package store

import (
	"context"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/passes"
)

// RecordRun appends a run to the history. Recording the same run id twice
// keeps the first record.
func (s *Store) RecordRun(ctx context.Context, run passes.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, job_id, passes, verdict, warning, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		run.RunID,
		run.JobID,
		run.Passes,
		run.Verdict.String(),
		run.Warning,
		run.Error,
		formatTime(run.Started),
		formatTime(run.Finished),
	)
	return errs.Wrap(errs.Foreign(errs.KindIO, err), "record run %s", run.RunID)
}

// ListRuns returns the runs of jobID, oldest first. An empty jobID lists
// every job's runs. limit <= 0 means no limit; otherwise the most recent
// limit runs are returned.
func (s *Store) ListRuns(ctx context.Context, jobID string, limit int) ([]passes.RunRecord, error) {
	query := `
		SELECT run_id, job_id, passes, verdict, warning, error, started_at, finished_at
		FROM runs
		WHERE (? = '' OR job_id = ?)
		ORDER BY started_at DESC, run_id COLLATE BINARY DESC
	`
	args := []any{jobID, jobID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "list runs")
	}
	defer rows.Close()

	var out []passes.RunRecord
	for rows.Next() {
		var (
			run               passes.RunRecord
			verdict           string
			started, finished string
		)
		if err := rows.Scan(&run.RunID, &run.JobID, &run.Passes, &verdict, &run.Warning, &run.Error, &started, &finished); err != nil {
			return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "list runs")
		}
		if run.Verdict, err = passes.ParseVerdict(verdict); err != nil {
			return nil, errs.Wrap(err, "list runs")
		}
		if run.Started, err = parseTime(started); err != nil {
			return nil, errs.Wrap(err, "list runs")
		}
		if run.Finished, err = parseTime(finished); err != nil {
			return nil, errs.Wrap(err, "list runs")
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "list runs")
	}

	// Newest-first for the LIMIT; callers get oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

var _ passes.RunRecorder = (*Store)(nil)
