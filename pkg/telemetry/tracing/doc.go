// Package tracing provides OpenTelemetry distributed tracing for Saturn.
//
// Spans are exported over OTLP gRPC to a collector. When tracing is disabled
// the global provider stays a no-op, so instrumented code calls Start
// unconditionally.
//
// # Spans
//
//	retention.run                one batch run
//	retention.record             one record within a run
//	HTTP <method> <route>        one API request
//
// Retention spans carry the attributes defined in attributes.go. Incoming
// API requests continue the caller's trace through W3C Trace Context
// headers, and the trace ID is echoed in the X-Trace-ID response header.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracing.Start(ctx, "retention.run", tracing.RunAttributes(runID, false)...)
//	defer tracing.End(span, err)
package tracing
