package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ChuLiYu/hogqueue/pkg/types"
)

// SubmitJob inserts a waiting job, capturing the submitter's cwd and full
// environment (spec.md §4.2 "submit"). Returns the assigned jobid.
func (s *Store) SubmitJob(ctx context.Context, exec, cwd, stdout, stderr string, env map[string]string) (types.JobID, error) {
	envJSON, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("submit: encode env: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (exec, cwd, stdout, stderr, env, status, heartbeat)
		VALUES (?, ?, ?, ?, ?, 'waiting', 0)`,
		exec, cwd, stdout, stderr, string(envJSON))
	if err != nil {
		return 0, fmt.Errorf("submit: insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("submit: last insert id: %w", err)
	}
	return types.JobID(id), nil
}

// CancelJob sets a waiting or running job's status to canceled. Canceling
// an already-terminal job is a no-op, never an error (spec.md §4.2
// "cancel"); an unknown jobid returns ErrNotFound.
func (s *Store) CancelJob(ctx context.Context, jobid types.JobID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'canceled'
		WHERE jobid = ? AND status NOT IN ('done','failed','canceled','outoftime','stale')`,
		jobid)
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either already terminal (no-op, per spec) or the jobid doesn't
		// exist. Distinguish only to give the CLI a useful message; never
		// surface as an error for the terminal case.
		var status string
		err := s.db.GetContext(ctx, &status, `SELECT status FROM jobs WHERE jobid = ?`, jobid)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("cancel: lookup: %w", err)
		}
	}
	return nil
}

// GetJob returns a single job's full row (spec.md §4.2 "check").
func (s *Store) GetJob(ctx context.Context, jobid types.JobID) (*types.Job, error) {
	var j types.Job
	err := s.db.GetContext(ctx, &j, `
		SELECT jobid, exec, cwd, stdout, stderr, env, status, heartbeat
		FROM jobs WHERE jobid = ?`, jobid)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// ListJobs lists jobs, optionally filtered to one or more statuses
// (spec.md §6 "show -s STATUS", repeatable).
func (s *Store) ListJobs(ctx context.Context, statuses []types.JobStatus) ([]types.Job, error) {
	query := `SELECT jobid, exec, cwd, stdout, stderr, env, status, heartbeat FROM jobs`
	args := make([]interface{}, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (`
		for i, st := range statuses {
			if i > 0 {
				query += `,`
			}
			query += `?`
			args = append(args, st)
		}
		query += `)`
	}
	query += ` ORDER BY jobid ASC`

	var jobs []types.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Cleanup deletes all job rows whose status is not waiting or running
// (spec.md §4.2 "cleanup"). The reaper never deletes rows; this is the
// only removal path.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE status NOT IN ('waiting','running')`)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return res.RowsAffected()
}

// HeartbeatJob stamps heartbeat=now on a running job (Hog reap step,
// spec.md §4.3.1: "Still alive -> stamp heartbeat=now on the job").
func (s *Store) HeartbeatJob(ctx context.Context, jobid types.JobID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET heartbeat = ? WHERE jobid = ? AND status = 'running'`,
		time.Now().Unix(), jobid)
	if err != nil {
		return fmt.Errorf("heartbeat job: %w", err)
	}
	return nil
}

// FinishJob stamps a running job with a terminal status (done, failed, or
// outoftime — all are owning-Hog transitions). It never resurrects a
// terminal row (invariant 2), so it's always a no-op if already terminal.
func (s *Store) FinishJob(ctx context.Context, jobid types.JobID, status types.JobStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("finish job: %s is not a terminal status", status)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?
		WHERE jobid = ? AND status NOT IN ('done','failed','canceled','outoftime','stale')`,
		status, jobid)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// JobStatus is a narrow read used by the Hog's reap loop to check whether
// a tracked job has been canceled or otherwise moved out from under it.
func (s *Store) JobStatus(ctx context.Context, jobid types.JobID) (types.JobStatus, error) {
	var st string
	err := s.db.GetContext(ctx, &st, `SELECT status FROM jobs WHERE jobid = ?`, jobid)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("job status: %w", err)
	}
	return types.JobStatus(st), nil
}
