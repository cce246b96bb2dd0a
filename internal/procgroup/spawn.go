// Package procgroup spawns child processes in their own process group and
// signals whole groups at once, so killing a job's leader also kills
// anything the job forked off (spec.md §4.3: "signal the job's process
// group, not just its leader pid").
package procgroup

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Spawn starts exec with the given cwd and environment as the leader of a
// new process group (Setpgid), and returns the running command. stdoutPath
// and stderrPath redirect the child's standard streams to the named files,
// truncating and creating as needed; an empty path discards that stream
// (spec.md §4.3.3). stderrPath is always opened against its own file, never
// against stdoutPath. Callers are responsible for eventually calling
// cmd.Wait(), and for calling the returned closeStreams once the child
// exits.
func Spawn(execLine, cwd, stdoutPath, stderrPath string, env map[string]string) (cmd *exec.Cmd, closeStreams func(), err error) {
	outFile, err := openRedirect(stdoutPath)
	if err != nil {
		return nil, nil, fmt.Errorf("procgroup: spawn: open stdout: %w", err)
	}
	errFile, err := openRedirect(stderrPath)
	if err != nil {
		if outFile != nil {
			_ = outFile.Close()
		}
		return nil, nil, fmt.Errorf("procgroup: spawn: open stderr: %w", err)
	}

	closeStreams = func() {
		if outFile != nil {
			_ = outFile.Close()
		}
		if errFile != nil {
			_ = errFile.Close()
		}
	}

	cmd = exec.Command("/bin/sh", "-c", execLine)
	cmd.Dir = cwd
	cmd.Env = envSlice(env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// A nil *os.File assigned directly to these io.Writer fields would leave
	// a non-nil interface wrapping a nil pointer, defeating os/exec's own
	// nil check for "discard to /dev/null" — only assign when a file was
	// actually opened.
	if outFile != nil {
		cmd.Stdout = outFile
	}
	if errFile != nil {
		cmd.Stderr = errFile
	}

	if err := cmd.Start(); err != nil {
		closeStreams()
		return nil, nil, fmt.Errorf("procgroup: spawn: %w", err)
	}
	return cmd, closeStreams, nil
}

// openRedirect opens path for a child's redirected stream, truncating and
// creating it if necessary. An empty path means discard: the child's
// stream is left nil, which os/exec connects to /dev/null.
func openRedirect(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// envSlice converts the job's deserialized environment map into the envp
// form os/exec wants. This is the child's entire environment — spec.md
// §4.3.3 specifies "environment = deserialized job env, plus JOBID=<jobid>",
// nothing else, matching the original `subprocess.Popen(..., env=env, ...)`
// (slurm_hog.py), whose `env=` kwarg replaces the child's environment
// rather than layering onto the Hog's own. The Hog's ambient environment
// must never leak into a job: it was captured once at submit time on the
// submitter's host, which may not even be the host the Hog runs on.
func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
