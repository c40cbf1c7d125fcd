package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/passes"
	"github.com/roach88/texstack/internal/provider"
)

// JobSummary describes one persisted job.
type JobSummary struct {
	JobID     string    `json:"job_id"`
	Pass      int       `json:"pass"`
	Files     int       `json:"files"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoadState returns the persisted state of jobID, or (nil, nil) if the job
// has never been saved.
func (s *Store) LoadState(ctx context.Context, jobID string) (*passes.State, error) {
	st := passes.NewState(jobID)
	err := s.db.QueryRowContext(ctx, `SELECT pass FROM jobs WHERE job_id = ?`, jobID).Scan(&st.Pass)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "load state %s", jobID)
	}

	if err := s.loadKnown(ctx, st); err != nil {
		return nil, errs.Wrap(err, "load state %s", jobID)
	}
	if err := s.loadHistory(ctx, st); err != nil {
		return nil, errs.Wrap(err, "load state %s", jobID)
	}
	return st, nil
}

func (s *Store) loadKnown(ctx context.Context, st *passes.State) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, present, digest, size
		FROM known_files
		WHERE job_id = ?
		ORDER BY name COLLATE BINARY ASC
	`, st.JobID)
	if err != nil {
		return errs.Foreign(errs.KindIO, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name    string
			present bool
			digest  []byte
			size    int64
		)
		if err := rows.Scan(&name, &present, &digest, &size); err != nil {
			return errs.Foreign(errs.KindIO, err)
		}
		if !present {
			st.Known[name] = provider.Absent()
			continue
		}
		fp, err := restoreFingerprint(digest, size)
		if err != nil {
			return errs.Wrap(err, "fingerprint of %s", name)
		}
		st.Known[name] = fp
	}
	return errs.Foreign(errs.KindIO, rows.Err())
}

func (s *Store) loadHistory(ctx context.Context, st *passes.State) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, pass, digest, size
		FROM write_history
		WHERE job_id = ?
		ORDER BY name COLLATE BINARY ASC, pass ASC
	`, st.JobID)
	if err != nil {
		return errs.Foreign(errs.KindIO, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name   string
			pass   int
			digest []byte
			size   int64
		)
		if err := rows.Scan(&name, &pass, &digest, &size); err != nil {
			return errs.Foreign(errs.KindIO, err)
		}
		fp, err := restoreFingerprint(digest, size)
		if err != nil {
			return errs.Wrap(err, "write of %s in pass %d", name, pass)
		}
		st.WriteHistory[name] = append(st.WriteHistory[name], passes.WriteRecord{Pass: pass, Fingerprint: fp})
	}
	return errs.Foreign(errs.KindIO, rows.Err())
}

func restoreFingerprint(digest []byte, size int64) (provider.Fingerprint, error) {
	var d [32]byte
	if len(digest) != len(d) {
		return provider.Fingerprint{}, errs.BadLength(len(d), len(digest))
	}
	copy(d[:], digest)
	return provider.NewFingerprint(d, size), nil
}

// SaveState replaces the persisted state of st.JobID in one transaction.
func (s *Store) SaveState(ctx context.Context, st *passes.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Foreign(errs.KindIO, err), "save state %s", st.JobID)
	}
	defer tx.Rollback()

	if err := saveState(ctx, tx, st, s.now()); err != nil {
		return errs.Wrap(err, "save state %s", st.JobID)
	}
	return errs.Wrap(errs.Foreign(errs.KindIO, tx.Commit()), "save state %s", st.JobID)
}

func saveState(ctx context.Context, tx *sql.Tx, st *passes.State, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (job_id, pass, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET pass = excluded.pass, updated_at = excluded.updated_at
	`, st.JobID, st.Pass, formatTime(now)); err != nil {
		return errs.Foreign(errs.KindIO, err)
	}

	for _, table := range []string{"known_files", "write_history"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE job_id = ?`, st.JobID); err != nil {
			return errs.Foreign(errs.KindIO, err)
		}
	}

	for _, name := range st.Names() {
		fp := st.Known[name]
		var digest []byte
		if fp.Present() {
			digest = fp.Digest[:]
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO known_files (job_id, name, present, digest, size) VALUES (?, ?, ?, ?, ?)
		`, st.JobID, name, fp.Present(), digest, fp.Size); err != nil {
			return errs.Foreign(errs.KindIO, err)
		}
	}

	for name, hist := range st.WriteHistory {
		for _, w := range hist {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO write_history (job_id, name, pass, digest, size) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(job_id, name, pass) DO UPDATE SET digest = excluded.digest, size = excluded.size
			`, st.JobID, name, w.Pass, w.Fingerprint.Digest[:], w.Fingerprint.Size); err != nil {
				return errs.Foreign(errs.KindIO, err)
			}
		}
	}
	return nil
}

// DeleteState forgets jobID's state; its run history is kept. Deleting a
// job that was never saved is a no-op.
func (s *Store) DeleteState(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, jobID)
	return errs.Wrap(errs.Foreign(errs.KindIO, err), "delete state %s", jobID)
}

// Jobs lists every persisted job ordered by id.
func (s *Store) Jobs(ctx context.Context) ([]JobSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.job_id, j.pass, j.updated_at,
		       (SELECT COUNT(*) FROM known_files k WHERE k.job_id = j.job_id)
		FROM jobs j
		ORDER BY j.job_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "list jobs")
	}
	defer rows.Close()

	var out []JobSummary
	for rows.Next() {
		var (
			j       JobSummary
			updated string
		)
		if err := rows.Scan(&j.JobID, &j.Pass, &updated, &j.Files); err != nil {
			return nil, errs.Wrap(errs.Foreign(errs.KindIO, err), "list jobs")
		}
		if j.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, errs.Wrap(err, "list jobs")
		}
		out = append(out, j)
	}
	return out, errs.Wrap(errs.Foreign(errs.KindIO, rows.Err()), "list jobs")
}

// timeLayout is fixed-width so that stored timestamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	return t, errs.Foreign(errs.KindParse, err)
}

var _ passes.StateStore = (*Store)(nil)
