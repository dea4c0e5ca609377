package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/saturn/pkg/cli"
	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/export"
)

var logsFlags struct {
	fileID      string
	policyID    int64
	runID       string
	status      string
	since       string
	until       string
	offset      int
	listLimit   int
	exportLimit int
	format      string
	out         string
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect the processing log",
	Long: `Query and export the audit log written by retention runs.

Examples:
  # Failures from the last run
  saturn logs query --run 3f2a... --status failed

  # Everything processed in March as CSV
  saturn logs export --since 2025-03-01 --until 2025-04-01 --format csv --out march.csv`,
}

var logsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List processing log entries, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := logQueryFromFlags(logsFlags.listLimit)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			entries, err := a.store.QueryLogs(ctx, q)
			if err != nil {
				return err
			}
			return render(cmd, cli.LogTable(entries))
		})
	},
}

var logsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export processing log entries as JSON or CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		exp, err := export.ForFormat(logsFlags.format)
		if err != nil {
			return err
		}
		q, err := logQueryFromFlags(logsFlags.exportLimit)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			entries, err := a.store.QueryLogs(ctx, q)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if logsFlags.out != "" {
				f, err := os.Create(logsFlags.out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", logsFlags.out, err)
				}
				defer f.Close()
				w = f
			}
			if err := exp.Export(ctx, entries, w); err != nil {
				return err
			}
			if logsFlags.out != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d entries to %s\n", len(entries), logsFlags.out)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsQueryCmd, logsExportCmd)

	f := logsCmd.PersistentFlags()
	f.StringVar(&logsFlags.fileID, "file", "", "filter by file ID")
	f.Int64Var(&logsFlags.policyID, "policy", 0, "filter by policy ID")
	f.StringVar(&logsFlags.runID, "run", "", "filter by run ID")
	f.StringVar(&logsFlags.status, "status", "", "filter by status (success, failed, skipped)")
	f.StringVar(&logsFlags.since, "since", "", "entries at or after this date (YYYY-MM-DD)")
	f.StringVar(&logsFlags.until, "until", "", "entries before this date (YYYY-MM-DD)")
	f.IntVar(&logsFlags.offset, "offset", 0, "skip this many entries")

	logsQueryCmd.Flags().IntVar(&logsFlags.listLimit, "limit", 100, "maximum entries to list")
	logsExportCmd.Flags().IntVar(&logsFlags.exportLimit, "limit", 0, "maximum entries to export (0 exports all)")
	logsExportCmd.Flags().StringVar(&logsFlags.format, "format", export.FormatJSON, "export format (json, csv)")
	logsExportCmd.Flags().StringVar(&logsFlags.out, "out", "", "write to this file instead of stdout")
}

func logQueryFromFlags(limit int) (*retention.LogQuery, error) {
	q := &retention.LogQuery{
		FileID:   logsFlags.fileID,
		PolicyID: logsFlags.policyID,
		RunID:    logsFlags.runID,
		Limit:    limit,
		Offset:   logsFlags.offset,
	}
	if logsFlags.status != "" {
		switch st := retention.LogStatus(strings.ToLower(logsFlags.status)); st {
		case retention.LogSuccess, retention.LogFailed, retention.LogSkipped:
			q.Status = st
		default:
			return nil, retention.NewValidationError("status", "must be success, failed or skipped")
		}
	}
	var err error
	if logsFlags.since != "" {
		if q.Since, err = retention.ParseDate(logsFlags.since); err != nil {
			return nil, err
		}
	}
	if logsFlags.until != "" {
		if q.Until, err = retention.ParseDate(logsFlags.until); err != nil {
			return nil, err
		}
	}
	return q, nil
}
