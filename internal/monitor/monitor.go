// Package monitor implements the persistent supervisor that maintains a
// target population of Hogs against the batch backend, reclaiming dead
// slots and launching replacements (spec.md §4.4).
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/hogqueue/internal/procgroup"
	"github.com/ChuLiYu/hogqueue/internal/store"
	"github.com/ChuLiYu/hogqueue/pkg/types"
	"golang.org/x/sync/semaphore"
)

// Monitor runs the loop described in spec.md §4.4: reap stale hogs, then
// launch replacements up to the concurrency bound B.
type Monitor struct {
	store *store.Store
	log   *slog.Logger
	cfg   Config

	sem *semaphore.Weighted

	mu   sync.Mutex
	hogs map[types.HogID]*trackedHog

	doneCh chan hogExit
}

// New constructs a Monitor ready to Run.
func New(s *store.Store, cfg Config, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		store:  s,
		log:    log.With("component", "monitor"),
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.B)),
		hogs:   make(map[types.HogID]*trackedHog),
		doneCh: make(chan hogExit, cfg.B),
	}
}

// Run reconciles startup state, then loops reap-then-launch until ctx is
// cancelled (spec.md §4.4). Already-running hogs are left alone on
// shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.reconcile(ctx); err != nil {
		return err
	}

	for ctx.Err() == nil {
		m.drainExits()
		m.reap(ctx)

		acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout*time.Second)
		err := m.sem.Acquire(acquireCtx, 1)
		cancel()
		if err != nil {
			// Timed out waiting for a slot, or ctx was cancelled. Either
			// way, loop back to the reaper.
			continue
		}

		if err := m.launch(ctx); err != nil {
			m.log.Warn("launch failed", "error", err)
			m.sem.Release(1)
		}
	}

	m.log.Info("monitor shutting down, leaving running hogs in place")
	return nil
}

// reconcile pre-acquires one slot for every hog row already waiting or
// running at startup, so the semaphore reflects live outstanding slots
// across Monitor restarts (spec.md §4.4: "startup reconciliation").
// Extra rows beyond B are left for the reaper to eventually clean up.
func (m *Monitor) reconcile(ctx context.Context) error {
	existing, err := m.store.ListHogs(ctx, []types.HogStatus{types.HogWaiting, types.HogRunning})
	if err != nil {
		return err
	}
	acquired := 0
	for range existing {
		if !m.sem.TryAcquire(1) {
			break
		}
		acquired++
	}
	m.log.Info("startup reconciliation", "live_hogs", len(existing), "slots_acquired", acquired)
	return nil
}

// drainExits releases one slot per hog whose waiter has reported it
// exited, and drops it from local tracking.
func (m *Monitor) drainExits() {
	for {
		select {
		case e := <-m.doneCh:
			m.mu.Lock()
			_, tracked := m.hogs[e.hogID]
			delete(m.hogs, e.hogID)
			m.mu.Unlock()
			if tracked {
				m.sem.Release(1)
			}
		default:
			return
		}
	}
}

// reap implements spec.md §4.5: scan for stale jobs and stale hogs, signal
// the process groups of stale hogs, and release any Monitor slot a stale
// hog was locally tracked under.
func (m *Monitor) reap(ctx context.Context) {
	if _, err := m.store.ReapStaleJobs(ctx); err != nil {
		m.log.Warn("reap stale jobs failed", "error", err)
	}

	staleHogs, err := m.store.ReapStaleHogs(ctx)
	if err != nil {
		m.log.Warn("reap stale hogs failed", "error", err)
		return
	}

	for _, h := range staleHogs {
		if h.Pid > 0 {
			// Sent twice: the backend ignores single signals under some
			// conditions (spec.md §4.5).
			_ = procgroup.Terminate(h.Pid)
			_ = procgroup.Terminate(h.Pid)
		}

		m.mu.Lock()
		_, tracked := m.hogs[h.HogID]
		delete(m.hogs, h.HogID)
		m.mu.Unlock()
		if tracked {
			m.sem.Release(1)
		}

		m.log.Info("reaped stale hog", "hogid", h.HogID, "pid", h.Pid)
	}
}
