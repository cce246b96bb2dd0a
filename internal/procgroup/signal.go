package procgroup

import (
	"fmt"
	"syscall"
)

// Signal delivers sig to the entire process group led by pid. The negative
// pid is the kill(2) convention for "this process group" rather than just
// the one process.
func Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("procgroup: signal: invalid pid %d", pid)
	}
	if err := syscall.Kill(-pid, sig); err != nil {
		return fmt.Errorf("procgroup: signal pid %d: %w", pid, err)
	}
	return nil
}

// Terminate sends SIGTERM to the group, the reaper's first attempt at
// reclaiming a stale hog's children (spec.md §4.5). The system never
// follows up with SIGKILL (spec.md §5: "The system does NOT send SIGKILL
// follow-ups"); a group that ignores SIGTERM persists until its batch slot
// is torn down.
func Terminate(pid int) error {
	return Signal(pid, syscall.SIGTERM)
}
