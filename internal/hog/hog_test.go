package hog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChuLiYu/hogqueue/internal/store"
	"github.com/ChuLiYu/hogqueue/pkg/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hogqueue.db")
	if err := store.Init(path, 5); err != nil {
		t.Fatalf("init: %v", err)
	}
	s, err := store.Open(path, 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestDrainClaimsUpToS submits more jobs than the concurrency bound allows
// and checks drain stops spawning once the semaphore is exhausted.
func TestDrainClaimsUpToS(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.SubmitJob(ctx, "/bin/sleep 5", "/tmp", "", "", nil); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	h := New(s, Config{HogID: 1, S: 2, T: 1, M: 0}, nil)
	if err := s.EnsureRunning(ctx, 1, "testhost"); err != nil {
		t.Fatalf("ensure running: %v", err)
	}

	claimed, attempted := h.drain(ctx, 3600)
	if !attempted {
		t.Fatalf("expected drain to attempt")
	}
	if claimed != 2 {
		t.Fatalf("claimed = %d, want 2 (bounded by S)", claimed)
	}

	h.mu.Lock()
	n := len(h.children)
	h.mu.Unlock()
	if n != 2 {
		t.Fatalf("tracked children = %d, want 2", n)
	}

	for _, c := range h.children {
		_ = c.pid // spawned real processes; clean up below
	}
	h.finalize(ctx)
}

// TestDrainRespectsMoratorium checks that drain refuses to claim once
// remaining time falls under the moratorium, leaving jobs waiting.
func TestDrainRespectsMoratorium(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	jobid, err := s.SubmitJob(ctx, "/bin/true", "/tmp", "", "", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	h := New(s, Config{HogID: 1, S: 1, T: 1, M: 1}, nil)
	if err := s.EnsureRunning(ctx, 1, "testhost"); err != nil {
		t.Fatalf("ensure running: %v", err)
	}

	// M is 1 hour; remaining passed in is far below that, in seconds.
	claimed, attempted := h.drain(ctx, 60)
	if attempted {
		t.Fatalf("expected moratorium to suppress the drain attempt")
	}
	if claimed != 0 {
		t.Fatalf("claimed = %d, want 0", claimed)
	}

	job, err := s.GetJob(ctx, jobid)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != types.JobWaiting {
		t.Fatalf("status = %s, want waiting", job.Status)
	}
}

// TestReapMarksCanceledJobUntracked checks a canceled job is signaled and
// dropped from local tracking without waiting for its process to exit.
func TestReapMarksCanceledJobUntracked(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	jobid, err := s.SubmitJob(ctx, "/bin/sleep 30", "/tmp", "", "", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	h := New(s, Config{HogID: 1, S: 1, T: 1, M: 0}, nil)
	if err := s.EnsureRunning(ctx, 1, "testhost"); err != nil {
		t.Fatalf("ensure running: %v", err)
	}

	claimed, _ := h.drain(ctx, 3600)
	if claimed != 1 {
		t.Fatalf("claimed = %d, want 1", claimed)
	}

	if err := s.CancelJob(ctx, jobid); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	h.reap(ctx)

	h.mu.Lock()
	_, stillTracked := h.children[jobid]
	h.mu.Unlock()
	if stillTracked {
		t.Fatalf("job %d should have been untracked after cancel", jobid)
	}

	// Allow a moment for the killed process's waiter to report, so the test
	// doesn't leak a goroutine warning.
	time.Sleep(50 * time.Millisecond)
}
