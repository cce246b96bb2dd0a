package monitor

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

func TestReconcilePreacquiresLiveHogs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.RegisterHog(ctx, "host1"); err != nil {
			t.Fatalf("register hog %d: %v", i, err)
		}
	}

	m := New(s, Config{B: 5}, nil)
	if err := m.reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if !m.sem.TryAcquire(2) {
		t.Fatalf("expected 2 slots still free after reconciling 3 of 5")
	}
}

func TestLaunchRecordsPidAndReleasesOnExit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := New(s, Config{
		B:             1,
		CommandPrefix: "",
		SelfPath:      "/bin/true",
		DBPath:        "unused.db",
		TimeoutSecs:   5,
		S:             1,
		T:             1,
		M:             0,
	}, nil)

	if !m.sem.TryAcquire(1) {
		t.Fatalf("expected a free slot")
	}
	if err := m.launch(ctx); err != nil {
		t.Fatalf("launch: %v", err)
	}

	m.mu.Lock()
	n := len(m.hogs)
	m.mu.Unlock()
	if n != 1 {
		t.Fatalf("tracked hogs = %d, want 1", n)
	}

	select {
	case e := <-m.doneCh:
		if e.err != nil {
			t.Fatalf("hog wrapper exited with error: %v", e.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for /bin/true to exit")
	}

	hogs, err := s.ListHogs(ctx, nil)
	if err != nil {
		t.Fatalf("list hogs: %v", err)
	}
	if len(hogs) != 1 {
		t.Fatalf("hogs = %d, want 1", len(hogs))
	}
	if hogs[0].Pid == 0 {
		t.Fatalf("expected pid to be recorded")
	}
	if hogs[0].Status != types.HogWaiting {
		t.Fatalf("status = %s, want waiting (the hog itself never started)", hogs[0].Status)
	}
}

func TestReapMarksAndReleasesStaleHog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	hogid, err := s.RegisterHog(ctx, "host1")
	if err != nil {
		t.Fatalf("register hog: %v", err)
	}
	if err := s.EnsureRunning(ctx, hogid, "host1"); err != nil {
		t.Fatalf("ensure running: %v", err)
	}
	old := time.Now().Add(-store.StaleThreshold - time.Minute).Unix()
	if err := s.HeartbeatHog(ctx, hogid); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	// Backdate directly; HeartbeatHog above only exercises the happy path.
	if _, err := s.DB().ExecContext(ctx, `UPDATE hogs SET heartbeat = ? WHERE hogid = ?`, old, hogid); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	m := New(s, Config{B: 1}, nil)
	m.mu.Lock()
	m.hogs[hogid] = &trackedHog{hogID: hogid, pid: 0}
	m.mu.Unlock()
	if !m.sem.TryAcquire(1) {
		t.Fatalf("expected a free slot to acquire")
	}

	m.reap(ctx)

	m.mu.Lock()
	_, stillTracked := m.hogs[hogid]
	m.mu.Unlock()
	if stillTracked {
		t.Fatalf("stale hog should have been untracked")
	}
	if !m.sem.TryAcquire(1) {
		t.Fatalf("expected reap to release the slot back to the semaphore")
	}

	hog, err := s.GetHog(ctx, hogid)
	if err != nil {
		t.Fatalf("get hog: %v", err)
	}
	if hog.Status != types.HogStale {
		t.Fatalf("status = %s, want stale", hog.Status)
	}
}
