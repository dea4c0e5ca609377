package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/saturn/pkg/cli"
	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/policy"
	"mercator-hq/saturn/pkg/retention/provision"
)

var policyFlags struct {
	description   string
	action        string
	target        string
	periods       []string
	priority      int
	pathFilter    string
	fileTypes     []string
	notifyDays    int
	autoProcess   bool
	justification bool
	inactive      bool
	clear         bool
	file          string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage retention policies",
	Long: `Manage retention policies and their container assignments.

Subcommands:
  list     - List all policies
  show     - Show a policy and its containers
  create   - Create a policy
  assign   - Replace the containers a policy applies to
  enable   - Activate a policy
  disable  - Deactivate a policy
  delete   - Delete a policy without open records
  sync     - Apply the provisioning file

Policies are addressed by numeric ID or by name.

Examples:
  # Create a policy that archives contracts after their period
  saturn policy create contracts --action archive --target /archive \
      --period "5 years" --period "10 years" --priority 10

  # Apply it to two containers
  saturn policy assign contracts C42 C43

  # Load policies from a file
  saturn policy sync --file policies.yaml`,
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all policies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			policies, err := a.policies.ListPolicies(ctx)
			if err != nil {
				return err
			}
			return render(cmd, cli.PolicyTable(policies))
		})
	},
}

var policyShowCmd = &cobra.Command{
	Use:   "show <policy>",
	Short: "Show a policy and its containers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			pol, err := a.lookupPolicy(ctx, args[0])
			if err != nil {
				return err
			}
			containers, err := a.policies.ContainersForPolicy(ctx, pol.ID)
			if err != nil {
				return err
			}
			if outputFormat == string(cli.FormatJSON) {
				return render(cmd, struct {
					Policy     *retention.Policy `json:"policy"`
					Containers []string          `json:"containers"`
				}{pol, containers})
			}
			if err := render(cmd, cli.PolicyTable{pol}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nContainers: %s\n", joinOrNone(containers))
			if pol.PathFilter != "" || len(pol.FileTypeFilter) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Filters: path=%q types=%s\n", pol.PathFilter, joinOrNone(pol.FileTypeFilter))
			}
			return nil
		})
	},
}

var policyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			action, err := retention.ParseAction(policyFlags.action)
			if err != nil {
				return err
			}
			active := !policyFlags.inactive
			in := policyInput(args[0], action, active)

			id, err := a.policies.CreatePolicy(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created policy %q (id %d)\n", in.Name, id)
			return nil
		})
	},
}

var policyAssignCmd = &cobra.Command{
	Use:   "assign <policy> [container...]",
	Short: "Replace the containers a policy applies to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 && !policyFlags.clear {
			return retention.NewValidationError("containers", "name at least one container, or pass --clear")
		}
		return withApp(func(ctx context.Context, a *app) error {
			pol, err := a.lookupPolicy(ctx, args[0])
			if err != nil {
				return err
			}
			changed, err := a.policies.AssignContainers(ctx, pol.ID, args[1:])
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintf(cmd.OutOrStdout(), "Policy %q assignments unchanged\n", pol.Name)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Policy %q now applies to: %s\n", pol.Name, joinOrNone(args[1:]))
			return nil
		})
	},
}

var policyEnableCmd = &cobra.Command{
	Use:   "enable <policy>",
	Short: "Activate a policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return togglePolicy(cmd, args[0], true)
	},
}

var policyDisableCmd = &cobra.Command{
	Use:   "disable <policy>",
	Short: "Deactivate a policy",
	Long: `Deactivate a policy.

An inactive policy is no longer chosen for new retention records. Records
that already reference it are still processed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return togglePolicy(cmd, args[0], false)
	},
}

var policyDeleteCmd = &cobra.Command{
	Use:   "delete <policy>",
	Short: "Delete a policy",
	Long: `Delete a policy and its container assignments.

Deletion is refused while open retention records reference the policy.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			pol, err := a.lookupPolicy(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.policies.DeletePolicy(ctx, pol.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted policy %q\n", pol.Name)
			return nil
		})
	},
}

var policySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Apply the provisioning file",
	Long: `Create or update policies from a provisioning file.

Policies are matched by name. Policies missing from the file are left in
place, and an entry without is_active keeps the current activation state.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			path := policyFlags.file
			if path == "" {
				path = a.cfg.Provisioning.PoliciesFile
			}
			if path == "" {
				return retention.NewValidationError("file", "no policies file given and provisioning.policies_file is empty")
			}
			f, err := provision.LoadFile(path)
			if err != nil {
				return err
			}
			res, err := provision.NewSyncer(a.policies).Sync(ctx, f)
			if err != nil {
				return err
			}
			if outputFormat == string(cli.FormatJSON) {
				return render(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %d created, %d updated, %d unchanged, %d reassigned\n",
				path, len(res.Created), len(res.Updated), len(res.Unchanged), len(res.Assigned))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyListCmd, policyShowCmd, policyCreateCmd, policyAssignCmd,
		policyEnableCmd, policyDisableCmd, policyDeleteCmd, policySyncCmd)

	f := policyCreateCmd.Flags()
	f.StringVar(&policyFlags.description, "description", "", "policy description")
	f.StringVar(&policyFlags.action, "action", "delete", "disposal action (move, archive, delete)")
	f.StringVar(&policyFlags.target, "target", "", "target folder for move and archive")
	f.StringArrayVar(&policyFlags.periods, "period", nil, `allowed retention period, e.g. "5 years" (repeatable, none allows any)`)
	f.IntVar(&policyFlags.priority, "priority", 0, "priority; higher wins")
	f.StringVar(&policyFlags.pathFilter, "path-filter", "", "path prefix or glob the policy is limited to")
	f.StringSliceVar(&policyFlags.fileTypes, "types", nil, "file extensions the policy is limited to")
	f.IntVar(&policyFlags.notifyDays, "notify-days", 0, "days before expiry to warn the owner")
	f.BoolVar(&policyFlags.autoProcess, "auto-process", true, "dispose automatically when due")
	f.BoolVar(&policyFlags.justification, "require-justification", false, "require a justification on every record")
	f.BoolVar(&policyFlags.inactive, "inactive", false, "create the policy deactivated")

	policyAssignCmd.Flags().BoolVar(&policyFlags.clear, "clear", false, "remove all containers from the policy")
	policySyncCmd.Flags().StringVarP(&policyFlags.file, "file", "f", "", "policies file (defaults to provisioning.policies_file)")
}

func togglePolicy(cmd *cobra.Command, ref string, active bool) error {
	return withApp(func(ctx context.Context, a *app) error {
		pol, err := a.lookupPolicy(ctx, ref)
		if err != nil {
			return err
		}
		if err := a.policies.ToggleActive(ctx, pol.ID, active); err != nil {
			return err
		}
		state := "disabled"
		if active {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Policy %q %s\n", pol.Name, state)
		return nil
	})
}

func policyInput(name string, action retention.Action, active bool) policy.Input {
	return policy.Input{
		Name:                    name,
		Description:             policyFlags.description,
		IsActive:                &active,
		DefaultAction:           action,
		DefaultTargetPath:       policyFlags.target,
		NotifyBeforeDays:        policyFlags.notifyDays,
		AutoProcess:             policyFlags.autoProcess,
		AllowedRetentionPeriods: policyFlags.periods,
		RequireJustification:    policyFlags.justification,
		Priority:                policyFlags.priority,
		PathFilter:              policyFlags.pathFilter,
		FileTypeFilter:          policyFlags.fileTypes,
	}
}

// lookupPolicy accepts a numeric ID or a policy name.
func (a *app) lookupPolicy(ctx context.Context, ref string) (*retention.Policy, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return a.policies.GetPolicy(ctx, id)
	}
	return a.policies.GetPolicyByName(ctx, ref)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
