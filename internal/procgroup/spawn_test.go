package procgroup

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// TestSpawnRedirectsStreamsSeparately checks that stdout and stderr are
// each written to their own requested file, never cross-wired (spec.md §9:
// "Use the stderr path for stderr").
func TestSpawnRedirectsStreamsSeparately(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.log")
	errPath := filepath.Join(dir, "err.log")

	cmd, closeStreams, err := Spawn(`echo to-stdout; echo to-stderr 1>&2`, dir, outPath, errPath, nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	waitErr := cmd.Wait()
	closeStreams()
	if waitErr != nil {
		t.Fatalf("wait: %v", waitErr)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read stdout file: %v", err)
	}
	errOut, err := os.ReadFile(errPath)
	if err != nil {
		t.Fatalf("read stderr file: %v", err)
	}

	if got := string(out); got != "to-stdout\n" {
		t.Fatalf("stdout file = %q, want %q", got, "to-stdout\n")
	}
	if got := string(errOut); got != "to-stderr\n" {
		t.Fatalf("stderr file = %q, want %q", got, "to-stderr\n")
	}
}

// TestSpawnEnvIsJobEnvOnly checks the child's environment is built from
// exactly the supplied job env map, with no ambient os.Environ() leakage
// and no shadowing of a job-supplied key by an ambient one (spec.md
// §4.3.3: "environment = deserialized job env, plus JOBID=<jobid>" —
// nothing else).
func TestSpawnEnvIsJobEnvOnly(t *testing.T) {
	const sentinelKey = "HOGQUEUE_TEST_AMBIENT_ONLY"
	t.Setenv(sentinelKey, "leaked-if-present")
	// PATH is near-universally set in the ambient environment; assert the
	// job's own (different) value wins rather than being shadowed by it.
	t.Setenv("PATH", "/ambient/shadowed/path")

	dir := t.TempDir()
	jobEnv := map[string]string{
		"JOBID": "42",
		"FOO":   "bar",
		"PATH":  "/job/own/path",
	}

	cmd, closeStreams, err := Spawn("true", dir, "", "", jobEnv)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer closeStreams()
	if err := cmd.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got := append([]string(nil), cmd.Env...)
	sort.Strings(got)
	want := []string{"FOO=bar", "JOBID=42", "PATH=/job/own/path"}
	sort.Strings(want)

	if len(got) != len(want) {
		t.Fatalf("cmd.Env = %v, want exactly %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cmd.Env = %v, want exactly %v", got, want)
		}
	}
}

// TestSpawnDiscardsEmptyPaths checks that an empty stdout/stderr path
// leaves the stream unredirected rather than erroring.
func TestSpawnDiscardsEmptyPaths(t *testing.T) {
	dir := t.TempDir()
	cmd, closeStreams, err := Spawn("echo hello", dir, "", "", nil)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := cmd.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	closeStreams()
}
