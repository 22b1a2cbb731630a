package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"notion-helper/lib/batch"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(dailyCmd)
}

func jobNames[T any](jobs map[string]T) []string {
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type runFunc func(ctx context.Context, name string) (batch.Report, error)

// runJobs runs every named job and prints one row per job. The returned
// error joins every failure.
func runJobs(ctx context.Context, names []string, run runFunc) error {
	t := newTable()
	t.AppendHeader(table.Row{"Job", "Succeeded", "Failed"})

	var errs []error
	for _, name := range names {
		report, err := run(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			t.AppendRow(table.Row{name, "-", "-"})
			continue
		}
		t.AppendRow(table.Row{name, report.Succeeded, len(report.Failures)})
		if err := report.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	t.Render()
	return errors.Join(errs...)
}

var syncCmd = &cobra.Command{
	Use:   "sync [job...]",
	Short: "Refreshes database pages from their configured source, every sync job when none is named.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = jobNames(state.cfg.Sync)
		}
		return runJobs(cmd.Context(), args, state.RunSync)
	},
}

var dailyCmd = &cobra.Command{
	Use:   "daily [job...]",
	Short: "Makes sure the day pages of the configured daily jobs exist, every daily job when none is named.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = jobNames(state.cfg.Daily)
		}
		return runJobs(cmd.Context(), args, state.RunDaily)
	},
}
