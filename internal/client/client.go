// Package client implements the Client-side operations the CLI exposes:
// submit, cancel, check, show, and cleanup (init calls store.Init
// directly). Every operation here
// runs a single short transaction against the store and returns (spec.md
// §4.2: "All Client ops run a single short transaction and exit").
package client

import (
	"context"
	"fmt"
	"os"

	"github.com/ChuLiYu/hogqueue/internal/store"
	"github.com/ChuLiYu/hogqueue/pkg/types"
)

// Submit captures the current process's working directory and full
// environment, inserts a waiting job, and returns its jobid (spec.md
// §4.2 "submit").
func Submit(ctx context.Context, s *store.Store, exec, stdout, stderr string) (types.JobID, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return 0, fmt.Errorf("submit: getwd: %w", err)
	}
	return s.SubmitJob(ctx, exec, cwd, stdout, stderr, captureEnv())
}

// Cancel flips a job to canceled. A job that is already terminal is left
// alone, never an error (spec.md §4.2 "cancel").
func Cancel(ctx context.Context, s *store.Store, jobid types.JobID) error {
	return s.CancelJob(ctx, jobid)
}

// Check returns a job's current status.
func Check(ctx context.Context, s *store.Store, jobid types.JobID) (*types.Job, error) {
	return s.GetJob(ctx, jobid)
}

// Show lists jobs, optionally filtered to one or more statuses. The hog
// table (spec.md §6 "show -H") is listed by ShowHogs.
func Show(ctx context.Context, s *store.Store, statuses []types.JobStatus) ([]types.Job, error) {
	return s.ListJobs(ctx, statuses)
}

// ShowHogs lists hog rows, optionally filtered to one or more statuses.
func ShowHogs(ctx context.Context, s *store.Store, statuses []types.HogStatus) ([]types.Hog, error) {
	return s.ListHogs(ctx, statuses)
}

// Cleanup deletes every job row whose status is not waiting or running,
// returning the number of rows removed.
func Cleanup(ctx context.Context, s *store.Store) (int64, error) {
	return s.Cleanup(ctx)
}

// captureEnv snapshots the submitting process's environment into a
// key/value map, matching what the store serializes alongside the job
// (spec.md §3: "env: a serialized snapshot of the submitter's
// environment").
func captureEnv() map[string]string {
	entries := os.Environ()
	env := make(map[string]string, len(entries))
	for _, kv := range entries {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env
}
