package monitor

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/ChuLiYu/hogqueue/internal/batch"
	"github.com/ChuLiYu/hogqueue/pkg/types"
)

// trackedHog is the Monitor's local record of a hog it launched, used only
// to know which waiter owns which slot release.
type trackedHog struct {
	hogID types.HogID
	pid   int
}

// hogExit is what a launched hog's waiter reports once the submitter
// process it spawned exits (spec.md §4.4.1: "A background waiter releases
// the Monitor slot when the submitter process exits").
type hogExit struct {
	hogID types.HogID
	err   error
}

// launch implements spec.md §4.4.1: register a waiting hog row, spawn the
// batch-backend submission command, record its pid, and start the waiter
// that will eventually release this slot.
func (m *Monitor) launch(ctx context.Context) error {
	hogid, err := m.store.RegisterHog(ctx, "")
	if err != nil {
		return fmt.Errorf("launch: register hog: %w", err)
	}

	cmd, err := batch.Launch(batch.LaunchSpec{
		CommandPrefix: m.cfg.CommandPrefix,
		SelfPath:      m.cfg.SelfPath,
		DBPath:        m.cfg.DBPath,
		TimeoutSecs:   m.cfg.TimeoutSecs,
		HogID:         hogid,
		S:             m.cfg.S,
		T:             m.cfg.T,
		M:             m.cfg.M,
	})
	if err != nil {
		return fmt.Errorf("launch: hog %d: %w", hogid, err)
	}

	if err := m.store.RecordHogPid(ctx, hogid, cmd.Process.Pid); err != nil {
		m.log.Warn("launch: record pid failed", "hogid", hogid, "error", err)
	}

	m.mu.Lock()
	m.hogs[hogid] = &trackedHog{hogID: hogid, pid: cmd.Process.Pid}
	m.mu.Unlock()

	go waitHog(cmd, hogid, m.doneCh)

	m.log.Info("launched hog", "hogid", hogid, "pid", cmd.Process.Pid)
	return nil
}

// waitHog blocks until cmd exits and reports the outcome, mirroring the
// Hog's own per-child waiter (spec.md §5).
func waitHog(cmd *exec.Cmd, hogID types.HogID, done chan<- hogExit) {
	err := cmd.Wait()
	done <- hogExit{hogID: hogID, err: err}
}
