// Package batch builds and spawns the batch-backend submission command the
// Monitor uses to start a Hog. The command_prefix itself — the actual
// cluster submission invocation — is an opaque, externally supplied string
// (spec.md §1 Non-goals); this package only knows how to append this
// program's own re-invocation to it and launch the result in its own
// process group.
package batch

import (
	"fmt"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/ChuLiYu/hogqueue/pkg/types"
)

// LaunchSpec is everything the Monitor knows about a hog it wants to start
// (spec.md §4.4.1 "Monitor Launch").
type LaunchSpec struct {
	CommandPrefix string
	SelfPath      string
	DBPath        string
	TimeoutSecs   int
	HogID         types.HogID
	S             int     // concurrency bound: simultaneous children
	T             float64 // total slot time, hours
	M             float64 // moratorium, hours remaining below which no new jobs are claimed
}

// Launch runs `<command_prefix> <self> --db <db> --timeout <t> hog <hogid>
// -s <S> -t <T> -m <M>` as the leader of a new process group and returns
// the running command. The caller records cmd.Process.Pid on the hog row
// and owns waiting on it (spec.md §4.4.1: "A background waiter releases
// the Monitor slot when the submitter process exits").
func Launch(spec LaunchSpec) (*exec.Cmd, error) {
	args := append(splitPrefix(spec.CommandPrefix),
		spec.SelfPath,
		"--db", spec.DBPath,
		"--timeout", strconv.Itoa(spec.TimeoutSecs),
		"hog", strconv.FormatInt(int64(spec.HogID), 10),
		"-s", strconv.Itoa(spec.S),
		"-t", strconv.FormatFloat(spec.T, 'f', -1, 64),
		"-m", strconv.FormatFloat(spec.M, 'f', -1, 64),
	)

	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("batch: launch hog %d: %w", spec.HogID, err)
	}
	return cmd, nil
}

// splitPrefix tokenizes the command prefix on whitespace. The prefix is
// treated as opaque by the rest of the system (spec.md §1 Non-goals); this
// is the one place it's interpreted, and only as a plain argv split — no
// shell quoting or expansion.
func splitPrefix(prefix string) []string {
	var tokens []string
	start := -1
	for i, r := range prefix {
		if r == ' ' || r == '\t' {
			if start >= 0 {
				tokens = append(tokens, prefix[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, prefix[start:])
	}
	return tokens
}
