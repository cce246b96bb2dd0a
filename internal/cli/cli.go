// Package cli wires the hogqueue subcommands onto a Cobra command tree
// (spec.md §6 External Interfaces). Each RunE opens the store fresh,
// performs its operation, and closes it — the same one-shot-transaction
// shape as the teacher's own command builders.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/ChuLiYu/hogqueue/internal/client"
	"github.com/ChuLiYu/hogqueue/internal/hog"
	"github.com/ChuLiYu/hogqueue/internal/logging"
	"github.com/ChuLiYu/hogqueue/internal/monitor"
	"github.com/ChuLiYu/hogqueue/internal/store"
	"github.com/ChuLiYu/hogqueue/pkg/types"
	"github.com/spf13/cobra"
)

var (
	dbPath      string
	busyTimeout int
	logFormat   string
	logLevel    string
)

// BuildCLI assembles the root command and every subcommand in spec.md §6.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "hogqueue",
		Short:         "A two-tier job dispatcher for SLURM-like batch backends",
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "jobs.sqlite", "path to the store database file")
	rootCmd.PersistentFlags().IntVar(&busyTimeout, "timeout", 300, "store busy-wait timeout in seconds")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log output format: console or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(buildInitCommand())
	rootCmd.AddCommand(buildSubmitCommand())
	rootCmd.AddCommand(buildCancelCommand())
	rootCmd.AddCommand(buildCheckCommand())
	rootCmd.AddCommand(buildShowCommand())
	rootCmd.AddCommand(buildCleanupCommand())
	rootCmd.AddCommand(buildHogCommand())
	rootCmd.AddCommand(buildMonitorCommand())

	return rootCmd
}

func newLogger() *slog.Logger {
	return logging.New(logging.Config{Level: logLevel, Format: logFormat})
}

func openStore() (*store.Store, error) {
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("store %q does not exist; run init first", dbPath)
		}
		return nil, err
	}
	return store.Open(dbPath, busyTimeout)
}

func buildInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the store database",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := store.Init(dbPath, busyTimeout)
			if errors.Is(err, store.ErrStoreExists) {
				return fmt.Errorf("store %q already exists", dbPath)
			}
			return err
		},
	}
}

func buildSubmitCommand() *cobra.Command {
	var stdout, stderr string

	cmd := &cobra.Command{
		Use:   "submit <exec>",
		Short: "Insert a waiting job",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			execLine := args[0]
			for _, a := range args[1:] {
				execLine += " " + a
			}

			jobid, err := client.Submit(cmd.Context(), s, execLine, stdout, stderr)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), int64(jobid))
			return nil
		},
	}

	cmd.Flags().StringVarP(&stdout, "stdout", "o", "", "path to redirect stdout, discarded if empty")
	cmd.Flags().StringVarP(&stderr, "stderr", "e", "", "path to redirect stderr, discarded if empty")
	return cmd
}

func buildCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <jobid>",
		Short: "Flip a job to canceled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobid, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			return client.Cancel(cmd.Context(), s, jobid)
		},
	}
}

func buildCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <jobid>",
		Short: "Print a job's current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobid, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			job, err := client.Check(cmd.Context(), s, jobid)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "not found")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), job.Status)
			return nil
		},
	}
}

func buildShowCommand() *cobra.Command {
	var statusFilters []string
	var showHogs bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List jobs, or hogs with -H",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if showHogs {
				return renderHogs(cmd, s, toHogStatuses(statusFilters))
			}
			return renderJobs(cmd, s, toJobStatuses(statusFilters))
		},
	}

	cmd.Flags().StringArrayVarP(&statusFilters, "status", "s", nil, "filter by status (repeatable)")
	cmd.Flags().BoolVarP(&showHogs, "hogs", "H", false, "list hogs instead of jobs")
	return cmd
}

func renderJobs(cmd *cobra.Command, s *store.Store, statuses []types.JobStatus) error {
	jobs, err := client.Show(cmd.Context(), s, statuses)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOBID\tSTATUS\tEXEC\tHEARTBEAT")
	for _, j := range jobs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", j.JobID, j.Status, j.Exec, j.Heartbeat)
	}
	return w.Flush()
}

func renderHogs(cmd *cobra.Command, s *store.Store, statuses []types.HogStatus) error {
	hogs, err := client.ShowHogs(cmd.Context(), s, statuses)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HOGID\tSTATUS\tPID\tHOSTNAME\tHEARTBEAT")
	for _, h := range hogs {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\n", h.HogID, h.Status, h.Pid, h.Hostname, h.Heartbeat)
	}
	return w.Flush()
}

func buildCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete all non-waiting/running job rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := client.Cleanup(cmd.Context(), s)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d job rows\n", n)
			return nil
		},
	}
}

func buildHogCommand() *cobra.Command {
	var s, t, m float64

	cmd := &cobra.Command{
		Use:   "hog <hogid>",
		Short: "Run the Hog loop (invoked by the Monitor)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hogidInt, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid hogid %q: %w", args[0], err)
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			h := hog.New(st, hog.Config{HogID: types.HogID(hogidInt), S: int(s), T: t, M: m}, newLogger())
			return h.Run(ctx)
		},
	}

	cmd.Flags().Float64VarP(&s, "simultaneous", "s", 24, "concurrency bound: simultaneous children")
	cmd.Flags().Float64VarP(&t, "total-time", "t", 72, "total slot time in hours")
	cmd.Flags().Float64VarP(&m, "moratorium", "m", 12, "hours remaining below which no new jobs are claimed")
	return cmd
}

func buildMonitorCommand() *cobra.Command {
	var prefix string
	var b int
	var s, t, m float64

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the Monitor loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve self path: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := monitor.Config{
				B:             b,
				CommandPrefix: prefix,
				SelfPath:      self,
				DBPath:        dbPath,
				TimeoutSecs:   busyTimeout,
				S:             int(s),
				T:             t,
				M:             m,
			}
			return monitor.New(st, cfg, newLogger()).Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&prefix, "command-prefix", "c", "", "batch-backend submission invocation prefix")
	cmd.Flags().IntVarP(&b, "max-hogs", "b", 1, "max concurrent hogs")
	cmd.Flags().Float64VarP(&s, "simultaneous", "s", 24, "concurrency bound passed to each hog")
	cmd.Flags().Float64VarP(&t, "total-time", "t", 72, "total slot time in hours passed to each hog")
	cmd.Flags().Float64VarP(&m, "moratorium", "m", 12, "moratorium in hours passed to each hog")
	return cmd
}

func parseJobID(s string) (types.JobID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid jobid %q: %w", s, err)
	}
	return types.JobID(n), nil
}

func toJobStatuses(raw []string) []types.JobStatus {
	out := make([]types.JobStatus, len(raw))
	for i, r := range raw {
		out[i] = types.JobStatus(r)
	}
	return out
}

func toHogStatuses(raw []string) []types.HogStatus {
	out := make([]types.HogStatus, len(raw))
	for i, r := range raw {
		out[i] = types.HogStatus(r)
	}
	return out
}
