package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/saturn/pkg/cli"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "saturn",
	Short: "Saturn - file retention policy engine",
	Long: `Saturn applies retention policies to files in managed storage.

Policies define the allowed retention periods, the disposal action (move,
archive or delete) and the containers they apply to. Files placed under
retention are disposed of by a scheduled batch once their period lapses,
and every action is recorded in an audit log.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a status derived from the
// error kind.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus SATURN_* environment when empty)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// render writes a command result in the selected output format.
func render(cmd *cobra.Command, data any) error {
	f, err := cli.NewFormatter(outputFormat)
	if err != nil {
		return err
	}
	return f.FormatTo(cmd.OutOrStdout(), data)
}
