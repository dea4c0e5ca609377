// Package telemetry groups the observability packages of Saturn.
//
//   - logging: structured slog output with run, file and user context
//   - metrics: Prometheus counters and gauges for runs and the API
//   - tracing: OpenTelemetry spans for runs, records and requests
//   - health: liveness and readiness probes
package telemetry
