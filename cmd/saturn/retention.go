package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/saturn/pkg/cli"
	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/period"
	"mercator-hq/saturn/pkg/retention/records"
)

var retentionFlags struct {
	period        string
	policy        string
	start         string
	action        string
	target        string
	justification string
	notifyDays    int
	user          string
	days          int
}

var retentionCmd = &cobra.Command{
	Use:     "retention",
	Aliases: []string{"ret"},
	Short:   "Manage file retention",
	Long: `Place files under retention and inspect what is due.

Subcommands:
  set       - Place a file under retention, or change its period
  get       - Show a file's open retention record
  remove    - Cancel a file's retention
  resolve   - Show which policy applies to a file
  preview   - Compute an expiration date
  check     - Report paths already covered by retention
  upcoming  - List records expiring soon
  mine      - List records created by a user

Examples:
  # Retain a contract for five years
  saturn retention set F100 --period "5 years" --justification "signed contract"

  # What expires in the next week?
  saturn retention upcoming --days 7`,
}

var retentionSetCmd = &cobra.Command{
	Use:   "set <file-id>",
	Short: "Place a file under retention",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := setRequestFromFlags(cmd)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			if retentionFlags.policy != "" {
				pol, err := a.lookupPolicy(ctx, retentionFlags.policy)
				if err != nil {
					return err
				}
				req.PolicyID = pol.ID
			}
			rec, err := a.records.SetFileRetention(ctx, actor(), args[0], req)
			if err != nil {
				return err
			}
			return render(cmd, cli.RecordTable{rec})
		})
	},
}

var retentionGetCmd = &cobra.Command{
	Use:   "get <file-id>",
	Short: "Show a file's open retention record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			rec, err := a.records.GetFileRetention(ctx, args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return retention.NewNotFoundError("retention", args[0])
			}
			return render(cmd, cli.RecordTable{rec})
		})
	},
}

var retentionRemoveCmd = &cobra.Command{
	Use:   "remove <file-id>",
	Short: "Cancel a file's retention",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.records.RemoveFileRetention(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Retention removed from %s\n", args[0])
			return nil
		})
	},
}

var retentionResolveCmd = &cobra.Command{
	Use:   "resolve <file-id>",
	Short: "Show which policy applies to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			res, err := a.records.FindPolicyForFile(ctx, args[0])
			if err != nil {
				return err
			}
			if outputFormat == string(cli.FormatJSON) {
				return render(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "File: %s (container %s)\n", res.File.Path, res.File.ContainerID)
			if res.Policy == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No policy applies")
				return nil
			}
			return render(cmd, cli.PolicyTable{res.Policy})
		})
	},
}

var retentionPreviewCmd = &cobra.Command{
	Use:   "preview <period>",
	Short: "Compute an expiration date",
	Long: `Compute the expiration date for a period such as "6 months".

Month and year periods clamp to the last day of a shorter month, so one
month from 2024-01-31 is 2024-02-29.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := period.Parse(args[0])
		if err != nil {
			return err
		}
		start := retention.Today(time.Now())
		if retentionFlags.start != "" {
			if start, err = retention.ParseDate(retentionFlags.start); err != nil {
				return err
			}
		}
		expire, err := period.PreviewExpireDate(p.N, p.Unit, start)
		if err != nil {
			return err
		}
		if outputFormat == string(cli.FormatJSON) {
			return render(cmd, map[string]string{"expire_date": retention.FormatDate(expire)})
		}
		fmt.Fprintln(cmd.OutOrStdout(), retention.FormatDate(expire))
		return nil
	},
}

var retentionCheckCmd = &cobra.Command{
	Use:   "check <container-id> <path>...",
	Short: "Report paths already covered by retention",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			res, err := a.records.CheckRetentionBatch(ctx, args[1:], args[0])
			if err != nil {
				return err
			}
			if outputFormat == string(cli.FormatJSON) {
				return render(cmd, res)
			}
			return render(cmd, conflictTable(res))
		})
	},
}

var retentionUpcomingCmd = &cobra.Command{
	Use:   "upcoming",
	Short: "List records expiring soon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			items, err := a.records.Upcoming(ctx, retentionFlags.days)
			if err != nil {
				return err
			}
			return render(cmd, cli.OverviewTable(items))
		})
	},
}

var retentionMineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List records created by a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			items, err := a.records.UserOverview(ctx, actor())
			if err != nil {
				return err
			}
			return render(cmd, cli.OverviewTable(items))
		})
	},
}

func init() {
	rootCmd.AddCommand(retentionCmd)
	retentionCmd.AddCommand(retentionSetCmd, retentionGetCmd, retentionRemoveCmd, retentionResolveCmd,
		retentionPreviewCmd, retentionCheckCmd, retentionUpcomingCmd, retentionMineCmd)

	retentionCmd.PersistentFlags().StringVar(&retentionFlags.user, "user", "", "acting user (defaults to $USER)")

	f := retentionSetCmd.Flags()
	f.StringVar(&retentionFlags.period, "period", "", `retention period, e.g. "5 years" (required)`)
	f.StringVar(&retentionFlags.policy, "policy", "", "policy ID or name (resolved from the file when empty)")
	f.StringVar(&retentionFlags.start, "start", "", "start date YYYY-MM-DD (defaults to today)")
	f.StringVar(&retentionFlags.action, "action", "", "override the policy's disposal action")
	f.StringVar(&retentionFlags.target, "target", "", "override the policy's target folder")
	f.StringVar(&retentionFlags.justification, "justification", "", "reason for the retention")
	f.IntVar(&retentionFlags.notifyDays, "notify-days", 0, "override the policy's warning lead time")
	_ = retentionSetCmd.MarkFlagRequired("period")

	retentionPreviewCmd.Flags().StringVar(&retentionFlags.start, "start", "", "start date YYYY-MM-DD (defaults to today)")
	retentionUpcomingCmd.Flags().IntVar(&retentionFlags.days, "days", 30, "look-ahead window in days")
}

func setRequestFromFlags(cmd *cobra.Command) (records.SetRequest, error) {
	p, err := period.Parse(retentionFlags.period)
	if err != nil {
		return records.SetRequest{}, err
	}
	req := records.SetRequest{
		Period:             p.N,
		Unit:               p.Unit,
		TargetPathOverride: retentionFlags.target,
		Justification:      retentionFlags.justification,
	}
	if retentionFlags.action != "" {
		if req.ActionOverride, err = retention.ParseAction(retentionFlags.action); err != nil {
			return records.SetRequest{}, err
		}
	}
	if retentionFlags.start != "" {
		start, err := retention.ParseDate(retentionFlags.start)
		if err != nil {
			return records.SetRequest{}, err
		}
		req.StartDate = &start
	}
	if cmd.Flags().Changed("notify-days") {
		days := retentionFlags.notifyDays
		req.NotifyBeforeDaysOverride = &days
	}
	return req, nil
}

func actor() string {
	if retentionFlags.user != "" {
		return retentionFlags.user
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

// conflictTable renders CheckRetentionBatch results in path order.
type conflictTable map[string]*records.ConflictInfo

func (t conflictTable) Headers() []string {
	return []string{"PATH", "CONFLICT", "COVERED BY", "RECORD", "EXPIRES"}
}

func (t conflictTable) Rows() [][]string {
	paths := make([]string, 0, len(t))
	for p := range t {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	rows := make([][]string, 0, len(t))
	for _, p := range paths {
		c := t[p]
		row := []string{p, "no", "-", "-", "-"}
		if c.HasConflict {
			row = []string{p, "yes", c.ConflictPath, fmt.Sprint(c.RecordID), retention.FormatDate(c.ExpireDate)}
		}
		rows = append(rows, row)
	}
	return rows
}
