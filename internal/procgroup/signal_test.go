package procgroup

import "testing"

func TestSignalRejectsNonPositivePid(t *testing.T) {
	if err := Signal(0, 0); err == nil {
		t.Fatalf("expected error for pid 0")
	}
	if err := Signal(-1, 0); err == nil {
		t.Fatalf("expected error for negative pid")
	}
}

func TestTerminateSignalsRealProcessGroup(t *testing.T) {
	dir := t.TempDir()
	cmd, closeStreams, err := Spawn("/bin/sleep 30", dir, "", "", nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer closeStreams()

	if err := Terminate(cmd.Process.Pid); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if err := cmd.Wait(); err == nil {
		t.Fatalf("expected sleep to be killed by SIGTERM")
	}
}
