package hog

import (
	"fmt"
	"os/exec"

	"github.com/ChuLiYu/hogqueue/internal/procgroup"
	"github.com/ChuLiYu/hogqueue/pkg/types"
)

// trackedChild is the Hog's local record of a spawned job. The store's
// job row is the source of truth for status; this map exists only so the
// reap step knows which pid to signal and which waiter already reported
// an exit.
type trackedChild struct {
	jobID types.JobID
	pid   int
}

// childExit is what a per-child waiter goroutine reports once its process
// terminates. One waiter per spawned child funnels into the Hog's single
// shared channel, matching the claim-slot release model described for
// both Hog and Monitor (spec.md §5): the waiter's only job is to report
// termination so the main loop can release the local concurrency slot.
type childExit struct {
	jobID types.JobID
	err   error
}

// spawnChild starts exec as a new process group leader, with stdout/stderr
// redirected per the job's own requested paths, and launches its waiter
// goroutine. It does not touch the store or the semaphore — callers own
// both (spec.md §4.3.3).
func spawnChild(jobID types.JobID, execLine, cwd, stdoutPath, stderrPath string, env map[string]string, done chan<- childExit) (*trackedChild, error) {
	cmd, closeStreams, err := procgroup.Spawn(execLine, cwd, stdoutPath, stderrPath, env)
	if err != nil {
		return nil, fmt.Errorf("spawn child for job %d: %w", jobID, err)
	}

	go waitChild(cmd, jobID, closeStreams, done)

	return &trackedChild{jobID: jobID, pid: cmd.Process.Pid}, nil
}

// waitChild blocks until cmd exits, closes the redirected stream files, then
// reports the outcome. This runs once per child for the child's entire
// lifetime; it never loops.
func waitChild(cmd *exec.Cmd, jobID types.JobID, closeStreams func(), done chan<- childExit) {
	err := cmd.Wait()
	closeStreams()
	done <- childExit{jobID: jobID, err: err}
}
