// Package logging configures the process-wide structured logger.
//
// # Overview
//
// The logging package builds a log/slog logger from the telemetry
// configuration and installs it as the slog default:
//   - JSON or text output
//   - Configurable log levels (debug, info, warn, error)
//   - Run, user, file and request identifiers taken from the context
//   - Redaction of secret-bearing attributes (passwords, tokens, DSNs)
//
// # Usage
//
//	logger, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//
//	// Components derive their loggers from the default.
//	log := slog.Default().With("component", "retention.scheduler")
//
//	// Context fields are added to every record logged with that context.
//	ctx = logging.WithRunID(ctx, runID)
//	log.InfoContext(ctx, "retention run started")
package logging
