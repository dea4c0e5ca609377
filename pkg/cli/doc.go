/*
Package cli provides the output, error and signal helpers shared by the
saturn commands.

Output Formatting:

Command results print as aligned text tables or as JSON:

	f, err := cli.NewFormatter(format)
	if err != nil {
		return err
	}
	return f.FormatTo(os.Stdout, cli.PolicyTable(policies))

Exit Codes:

ExitCode maps an error onto the process exit status so scripts can tell
bad input (2), missing objects (3) and conflicts (4) from other failures (1).

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
