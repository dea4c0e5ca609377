package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/saturn/pkg/cli"
	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/executor"
	"mercator-hq/saturn/pkg/retention/scheduler"
)

var processFlags struct {
	dryRun bool
	record string
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the retention batch once",
	Long: `Dispose of every file whose retention period has lapsed.

A dry run lists what would happen without claiming records, touching
storage or writing the audit log.

Examples:
  # Preview due records
  saturn process --dry-run

  # Run the batch now
  saturn process

  # Process a single record out of schedule
  saturn process --record 42`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().BoolVar(&processFlags.dryRun, "dry-run", false, "report due records without acting on them")
	processCmd.Flags().StringVar(&processFlags.record, "record", "", "process a single record by ID")
}

func runProcess(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if processFlags.record != "" {
			if processFlags.dryRun {
				return retention.NewValidationError("dry-run", "cannot be combined with --record")
			}
			id, err := strconv.ParseInt(processFlags.record, 10, 64)
			if err != nil || id <= 0 {
				return retention.NewValidationError("record", "must be a positive integer")
			}
			res, err := a.processor.ProcessRecord(ctx, id)
			if err != nil {
				return err
			}
			report := &scheduler.RunReport{Items: []*executor.Result{res}}
			if err := render(cmd, cli.ReportTable{RunReport: report}); err != nil {
				return err
			}
			if res.Status == executor.StatusFailed {
				return cli.NewCommandError("process", fmt.Errorf("record %d failed: %s", id, res.Message))
			}
			return nil
		}

		report, err := a.processor.Run(ctx, scheduler.RunOptions{DryRun: processFlags.dryRun})
		if err != nil {
			return err
		}
		if err := render(cmd, cli.ReportTable{RunReport: report}); err != nil {
			return err
		}
		if outputFormat != string(cli.FormatJSON) {
			fmt.Fprintf(cmd.OutOrStdout(), "\nRun %s: %d due, %d processed, %d failed, %d skipped\n",
				report.RunID, report.TotalDue, report.TotalProcessed, report.TotalErrors, report.Skipped)
		}
		if report.TotalErrors > 0 {
			return cli.NewCommandError("process", fmt.Errorf("%d records failed", report.TotalErrors))
		}
		return nil
	})
}
