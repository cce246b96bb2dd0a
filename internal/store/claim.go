package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ChuLiYu/hogqueue/pkg/types"
)

// Claim is the system's only cross-process mutex: it moves exactly one
// waiting job to running, bound to hogid, or reports the queue is empty.
// It must be serializable — optimistic concurrency is not acceptable here
// because the same job must never be spawned twice (spec.md §4.1).
//
// SQLite has no SELECT ... FOR UPDATE; the equivalent is starting the
// transaction with BEGIN IMMEDIATE, which takes the write lock up front
// instead of lazily on first write. Two hogs racing to claim both pay the
// cost of BEGIN IMMEDIATE's busy_timeout wait, but only one of them ever
// sees the row — the other retries and finds the queue one job shorter.
func (s *Store) Claim(ctx context.Context, hogid types.HogID) (*types.Job, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim: acquire conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, fmt.Errorf("claim: begin: %w", err)
	}

	job, err := claimTx(ctx, conn, hogid)
	if err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return nil, err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, fmt.Errorf("claim: commit: %w", err)
	}

	return job, nil
}

func claimTx(ctx context.Context, conn *sql.Conn, hogid types.HogID) (*types.Job, error) {
	var hogStatus string
	err := conn.QueryRowContext(ctx, `SELECT status FROM hogs WHERE hogid = ?`, hogid).Scan(&hogStatus)
	if err == sql.ErrNoRows {
		return nil, ErrHogNotRunning
	}
	if err != nil {
		return nil, fmt.Errorf("claim: check hog: %w", err)
	}
	if types.HogStatus(hogStatus) != types.HogRunning {
		return nil, ErrHogNotRunning
	}

	var job types.Job
	var envJSON string
	row := conn.QueryRowContext(ctx, `
		SELECT jobid, exec, cwd, stdout, stderr, env
		FROM jobs
		WHERE status = 'waiting'
		ORDER BY jobid ASC
		LIMIT 1`)
	if err := row.Scan(&job.JobID, &job.Exec, &job.Cwd, &job.Stdout, &job.Stderr, &envJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrQueueEmpty
		}
		return nil, fmt.Errorf("claim: select waiting job: %w", err)
	}

	now := time.Now().Unix()
	res, err := conn.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', heartbeat = ?
		WHERE jobid = ? AND status = 'waiting'`, now, job.JobID)
	if err != nil {
		return nil, fmt.Errorf("claim: update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		// Another transaction beat us to it despite BEGIN IMMEDIATE's lock
		// (shouldn't happen, but the claim must never silently succeed on
		// a row it didn't actually move).
		return nil, ErrQueueEmpty
	}

	if _, err := conn.ExecContext(ctx, `INSERT INTO alloc (jobid, hogid) VALUES (?, ?)`, job.JobID, hogid); err != nil {
		return nil, fmt.Errorf("claim: insert alloc: %w", err)
	}

	job.Status = types.JobRunning
	job.Heartbeat = now
	job.EnvJSON = envJSON
	if envJSON != "" {
		_ = json.Unmarshal([]byte(envJSON), &job.Env)
	}
	return &job, nil
}
