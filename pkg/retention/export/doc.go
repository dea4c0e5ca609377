// Package export writes processing log entries as JSON or CSV for
// compliance reporting. Both the CLI and the HTTP API use it.
//
//	exp, err := export.ForFormat("csv")
//	if err != nil {
//	    return err
//	}
//	entries, _ := st.QueryLogs(ctx, &retention.LogQuery{Since: from})
//	return exp.Export(ctx, entries, os.Stdout)
package export
