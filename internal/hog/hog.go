// Package hog implements the Hog loop: a worker shard running inside a
// wall-time-bounded batch slot that drains the waiting job queue into
// local child processes, heartbeats itself and its children, and
// surrenders gracefully as its slot nears expiry (spec.md §4.3).
package hog

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ChuLiYu/hogqueue/internal/procgroup"
	"github.com/ChuLiYu/hogqueue/internal/store"
	"github.com/ChuLiYu/hogqueue/pkg/types"
	"golang.org/x/sync/semaphore"
)

// Hog runs the loop described in spec.md §4.3. It owns no shared state
// beyond the store: local maps and counters belong to this loop and its
// per-child waiters alone (spec.md §5).
type Hog struct {
	store *store.Store
	log   *slog.Logger
	cfg   Config

	sem *semaphore.Weighted

	mu       sync.Mutex
	children map[types.JobID]*trackedChild

	doneCh chan childExit
}

// New constructs a Hog ready to Run.
func New(s *store.Store, cfg Config, log *slog.Logger) *Hog {
	if log == nil {
		log = slog.Default()
	}
	return &Hog{
		store:    s,
		log:      log.With("component", "hog", "hogid", cfg.HogID),
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.S)),
		children: make(map[types.JobID]*trackedChild),
		doneCh:   make(chan childExit, cfg.S),
	}
}

// Run drives the heartbeat loop until an exit condition fires or ctx is
// cancelled (spec.md §4.3). It always executes the exit finalizer before
// returning, even on cancellation.
func (h *Hog) Run(ctx context.Context) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := h.store.EnsureRunning(ctx, h.cfg.HogID, hostname); err != nil {
		return err
	}
	h.log.Info("hog started", "hostname", hostname, "s", h.cfg.S, "t_hours", h.cfg.T, "m_hours", h.cfg.M)

	start := time.Now()
	slotSeconds := h.cfg.T * 3600

	for {
		iterStart := time.Now()
		remaining := slotSeconds - time.Since(start).Seconds()

		if err := h.store.HeartbeatHog(ctx, h.cfg.HogID); err != nil {
			h.log.Warn("heartbeat self failed", "error", err)
		}

		h.reap(ctx)

		if remaining < exitMargin {
			h.log.Info("slot time exhausted, exiting", "remaining_seconds", remaining)
			break
		}

		claimed, attempted := h.drain(ctx, remaining)

		h.mu.Lock()
		idle := len(h.children) == 0
		h.mu.Unlock()

		if idle && attempted && claimed == 0 {
			h.log.Info("idle with empty queue, exiting")
			break
		}

		if ctx.Err() != nil {
			break
		}

		sleepFor := time.Duration(iterationFloor)*time.Second - time.Since(iterStart)
		if sleepFor > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(sleepFor):
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	// ctx may already be cancelled here; the finalizer's store writes must
	// still go through.
	h.finalize(context.WithoutCancel(ctx))
	return nil
}

// finalize marks every still-running child outoftime, signals its process
// group, and stamps the hog row done (spec.md §4.3: "On exit... mark the
// job outoftime and send SIGTERM to the child process group").
func (h *Hog) finalize(ctx context.Context) {
	h.mu.Lock()
	remaining := make([]*trackedChild, 0, len(h.children))
	for _, c := range h.children {
		remaining = append(remaining, c)
	}
	h.children = make(map[types.JobID]*trackedChild)
	h.mu.Unlock()

	for _, c := range remaining {
		if err := h.store.FinishJob(ctx, c.jobID, types.JobOutOfTime); err != nil {
			h.log.Warn("mark outoftime failed", "jobid", c.jobID, "error", err)
		}
		if err := procgroup.Terminate(c.pid); err != nil {
			h.log.Debug("terminate on exit failed", "jobid", c.jobID, "pid", c.pid, "error", err)
		}
	}

	if err := h.store.FinishHog(ctx, h.cfg.HogID, types.HogDone); err != nil {
		h.log.Warn("finish hog failed", "error", err)
	}
}

// drainedExits collects every exit event currently buffered in doneCh
// without blocking, so reap never waits on a child that hasn't exited yet.
func (h *Hog) drainedExits() map[types.JobID]error {
	exits := make(map[types.JobID]error)
	for {
		select {
		case e := <-h.doneCh:
			exits[e.jobID] = e.err
		default:
			return exits
		}
	}
}

// reap implements spec.md §4.3.1: for each locally-tracked child, consult
// the job's store status and its process liveness (via the exit events its
// waiter has reported), then advance the job row and local state.
func (h *Hog) reap(ctx context.Context) {
	exits := h.drainedExits()

	h.mu.Lock()
	tracked := make([]*trackedChild, 0, len(h.children))
	for _, c := range h.children {
		tracked = append(tracked, c)
	}
	h.mu.Unlock()

	for _, c := range tracked {
		status, err := h.store.JobStatus(ctx, c.jobID)
		if err != nil {
			h.log.Warn("reap: job status lookup failed", "jobid", c.jobID, "error", err)
			continue
		}

		if status == types.JobCanceled {
			if err := procgroup.Terminate(c.pid); err != nil {
				h.log.Debug("reap: signal canceled child failed", "jobid", c.jobID, "error", err)
			}
			h.untrack(c.jobID)
			continue
		}

		if exitErr, exited := exits[c.jobID]; exited {
			final := types.JobDone
			if exitErr != nil {
				final = types.JobFailed
			}
			if err := h.store.FinishJob(ctx, c.jobID, final); err != nil {
				h.log.Warn("reap: finish job failed", "jobid", c.jobID, "error", err)
			}
			h.untrack(c.jobID)
			continue
		}

		if err := h.store.HeartbeatJob(ctx, c.jobID); err != nil {
			h.log.Warn("reap: heartbeat job failed", "jobid", c.jobID, "error", err)
		}
	}
}

// untrack drops a child from the local map and releases its concurrency
// slot. It is the only place a spawned child's slot is released, mirroring
// the per-child waiter model in spec.md §5; drain releases the slots it
// acquired but did not turn into a running child.
func (h *Hog) untrack(jobID types.JobID) {
	h.mu.Lock()
	delete(h.children, jobID)
	h.mu.Unlock()
	h.sem.Release(1)
}

// drain implements spec.md §4.3.2. It returns how many jobs it claimed
// this pass and whether it attempted to drain at all (false only when the
// moratorium guard suppressed the pass entirely).
func (h *Hog) drain(ctx context.Context, remainingSeconds float64) (claimed int, attempted bool) {
	if remainingSeconds/3600 < h.cfg.M {
		return 0, false
	}
	attempted = true

	for {
		if !h.sem.TryAcquire(1) {
			return claimed, true
		}

		job, err := h.store.Claim(ctx, h.cfg.HogID)
		if errors.Is(err, store.ErrQueueEmpty) {
			h.sem.Release(1)
			return claimed, true
		}
		if err != nil {
			h.log.Warn("drain: claim failed", "error", err)
			h.sem.Release(1)
			return claimed, true
		}

		child, err := spawnChild(job.JobID, job.Exec, job.Cwd, job.Stdout, job.Stderr, jobEnv(job), h.doneCh)
		if err != nil {
			h.log.Warn("drain: spawn failed", "jobid", job.JobID, "error", err)
			if ferr := h.store.FinishJob(ctx, job.JobID, types.JobFailed); ferr != nil {
				h.log.Warn("drain: mark failed job failed", "jobid", job.JobID, "error", ferr)
			}
			h.sem.Release(1)
			continue
		}

		h.mu.Lock()
		h.children[job.JobID] = child
		h.mu.Unlock()
		claimed++
	}
}

// jobEnv overlays JOBID onto the job's captured environment, per spec.md
// §6: "The submitter's full environment at submit time, overlaid with
// JOBID=<jobid>".
func jobEnv(job *types.Job) map[string]string {
	env := make(map[string]string, len(job.Env)+1)
	for k, v := range job.Env {
		env[k] = v
	}
	env["JOBID"] = jobIDString(job.JobID)
	return env
}

func jobIDString(id types.JobID) string {
	return strconv.FormatInt(int64(id), 10)
}
