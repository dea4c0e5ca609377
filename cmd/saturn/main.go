// Saturn is a file retention policy engine.
//
// Administrators define retention policies and assign them to storage
// containers. Users put a retention period on individual files, and a
// scheduled batch moves, archives or deletes each file once its period
// lapses, recording every action in an audit log.
//
// Usage:
//
//	# Start the API server and the nightly scheduler
//	saturn run --config saturn.yaml
//
//	# Process everything that is due right now, or only report it
//	saturn process
//	saturn process --dry-run
//
//	# Manage policies
//	saturn policy create --name Contracts --action move --target /archive --period "5 years"
//	saturn policy assign 1 C42 C43
//
//	# Put a file under retention
//	saturn retention set C42/contracts/x.pdf --period 5 --unit years
//
//	# Export the audit log
//	saturn logs export --format csv --since 2025-01-01 > audit.csv
package main

func main() {
	Execute()
}
