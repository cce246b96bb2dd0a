package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ChuLiYu/hogqueue/pkg/types"
)

// StaleThreshold is how long a running job or hog may go without a
// heartbeat before it's presumed dead (spec.md §4.5: "ten minutes").
const StaleThreshold = 10 * time.Minute

// ReapStaleJobs marks every running job whose heartbeat is older than
// StaleThreshold as stale and returns the affected jobids. Called by the
// Monitor's reaper loop; it catches running jobs whose hog is not itself
// stale (e.g. the user's own process hung). ReapStaleHogs marks the jobs of
// a stale hog with its own update and does not call this.
func (s *Store) ReapStaleJobs(ctx context.Context) ([]types.JobID, error) {
	cutoff := time.Now().Add(-StaleThreshold).Unix()

	var ids []types.JobID
	if err := s.db.SelectContext(ctx, &ids, `
		SELECT jobid FROM jobs WHERE status = 'running' AND heartbeat < ?`, cutoff); err != nil {
		return nil, fmt.Errorf("reap stale jobs: select: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'stale' WHERE status = 'running' AND heartbeat < ?`, cutoff); err != nil {
		return nil, fmt.Errorf("reap stale jobs: update: %w", err)
	}
	return ids, nil
}

// ReapStaleHogs marks every running hog whose heartbeat is older than
// StaleThreshold as stale, cascades the same status to any job still
// allocated to it, and returns the stale hog rows so the caller can signal
// their process groups (spec.md §4.5). The hog row itself is updated only
// after its jobs are handled, so a crash mid-reap leaves the hog still
// visibly running rather than silently orphaning its jobs.
func (s *Store) ReapStaleHogs(ctx context.Context) ([]types.Hog, error) {
	cutoff := time.Now().Add(-StaleThreshold).Unix()

	var hogs []types.Hog
	if err := s.db.SelectContext(ctx, &hogs, `
		SELECT hogid, pid, hostname, submittime, starttime, heartbeat, status
		FROM hogs WHERE status = 'running' AND heartbeat < ?`, cutoff); err != nil {
		return nil, fmt.Errorf("reap stale hogs: select: %w", err)
	}
	if len(hogs) == 0 {
		return nil, nil
	}

	for _, h := range hogs {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE jobs SET status = 'stale'
			WHERE status = 'running' AND jobid IN (SELECT jobid FROM alloc WHERE hogid = ?)`,
			h.HogID); err != nil {
			return nil, fmt.Errorf("reap stale hogs: mark jobs: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `
			UPDATE hogs SET status = 'stale' WHERE hogid = ? AND status = 'running'`, h.HogID); err != nil {
			return nil, fmt.Errorf("reap stale hogs: mark hog: %w", err)
		}
	}

	return hogs, nil
}
