package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ChuLiYu/hogqueue/pkg/types"
)

// RegisterHog inserts a new hog row in the waiting state. The Monitor calls
// this before spawning the child process so the hogid is known before the
// pid is (spec.md §4.4 "launch").
func (s *Store) RegisterHog(ctx context.Context, hostname string) (types.HogID, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO hogs (pid, hostname, submittime, starttime, heartbeat, status)
		VALUES (0, ?, ?, 0, 0, 'waiting')`, hostname, now)
	if err != nil {
		return 0, fmt.Errorf("register hog: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("register hog: last insert id: %w", err)
	}
	return types.HogID(id), nil
}

// RecordHogPid stamps the batch-backend submitter wrapper's pid on a hog
// row. This is the Monitor's own bookkeeping immediately after spawning
// (spec.md §4.4.1: "Record the submitter's pid on the hog row") and does
// not by itself change the hog's status — the Hog process flips itself to
// running once it actually starts on the compute node.
func (s *Store) RecordHogPid(ctx context.Context, hogid types.HogID, pid int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE hogs SET pid = ? WHERE hogid = ?`, pid, hogid)
	if err != nil {
		return fmt.Errorf("record hog pid: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ErrNotFound
	}
	return nil
}

// EnsureRunning is the Hog process's own entry-state transition (spec.md
// §4.3: "the Hog registers as running, records hostname and starttime").
// It flips an existing waiting row to running, or — when hogid names no
// row, as in a Hog launched directly for testing without a Monitor —
// inserts one outright, so both deployment paths converge on the same
// in-store state.
func (s *Store) EnsureRunning(ctx context.Context, hogid types.HogID, hostname string) error {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE hogs SET status = 'running', hostname = ?, starttime = ?, heartbeat = ?
		WHERE hogid = ? AND status != 'running'`, hostname, now, now, hogid)
	if err != nil {
		return fmt.Errorf("ensure running: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	if _, err := s.GetHog(ctx, hogid); err == nil {
		return nil // already running
	} else if err != ErrNotFound {
		return fmt.Errorf("ensure running: lookup: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hogs (hogid, pid, hostname, submittime, starttime, heartbeat, status)
		VALUES (?, 0, ?, ?, ?, ?, 'running')`, hogid, hostname, now, now, now)
	if err != nil {
		return fmt.Errorf("ensure running: insert: %w", err)
	}
	return nil
}

// HeartbeatHog stamps heartbeat=now on a running hog (the Hog's own
// self-heartbeat step, spec.md §4.3.1).
func (s *Store) HeartbeatHog(ctx context.Context, hogid types.HogID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE hogs SET heartbeat = ? WHERE hogid = ? AND status = 'running'`,
		time.Now().Unix(), hogid)
	if err != nil {
		return fmt.Errorf("heartbeat hog: %w", err)
	}
	return nil
}

// FinishHog moves a hog to a terminal status (done or stale). Idempotent:
// finishing an already-terminal hog is a no-op.
func (s *Store) FinishHog(ctx context.Context, hogid types.HogID, status types.HogStatus) error {
	if status != types.HogDone && status != types.HogStale {
		return fmt.Errorf("finish hog: %s is not a terminal hog status", status)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE hogs SET status = ?
		WHERE hogid = ? AND status NOT IN ('done','stale')`, status, hogid)
	if err != nil {
		return fmt.Errorf("finish hog: %w", err)
	}
	return nil
}

// GetHog returns a single hog row, or ErrNotFound. EnsureRunning uses it to
// tell an already-running hog from a missing one.
func (s *Store) GetHog(ctx context.Context, hogid types.HogID) (*types.Hog, error) {
	var h types.Hog
	err := s.db.GetContext(ctx, &h, `
		SELECT hogid, pid, hostname, submittime, starttime, heartbeat, status
		FROM hogs WHERE hogid = ?`, hogid)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hog: %w", err)
	}
	return &h, nil
}

// ListHogs lists hogs, optionally filtered to one or more statuses. Used
// by the Monitor's startup reconciliation and by operator-facing tooling.
func (s *Store) ListHogs(ctx context.Context, statuses []types.HogStatus) ([]types.Hog, error) {
	query := `SELECT hogid, pid, hostname, submittime, starttime, heartbeat, status FROM hogs`
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
	query += ` ORDER BY hogid ASC`

	var hogs []types.Hog
	if err := s.db.SelectContext(ctx, &hogs, query, args...); err != nil {
		return nil, fmt.Errorf("list hogs: %w", err)
	}
	return hogs, nil
}
