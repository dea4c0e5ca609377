package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/saturn/pkg/retention"
)

// Attribute keys. HTTP keys follow the OpenTelemetry semantic conventions;
// retention keys use the "saturn.*" namespace.
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"
	AttrRequestID      = "saturn.request_id"
	AttrUser           = "saturn.user"

	AttrRunID        = "saturn.run.id"
	AttrRunDryRun    = "saturn.run.dry_run"
	AttrRunDue       = "saturn.run.due"
	AttrRunProcessed = "saturn.run.processed"
	AttrRunErrors    = "saturn.run.errors"
	AttrRecordID     = "saturn.record.id"
	AttrFileID       = "saturn.file.id"
	AttrPolicyID     = "saturn.policy.id"
	AttrAction       = "saturn.action"
	AttrActionStatus = "saturn.action.status"
)

// RunAttributes describes a batch run at its start.
func RunAttributes(runID string, dryRun bool) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String(AttrRunID, runID),
		attribute.Bool(AttrRunDryRun, dryRun),
	)
}

// SetRunTotals records the outcome counters of a run.
func SetRunTotals(span trace.Span, due, processed, errors int) {
	span.SetAttributes(
		attribute.Int(AttrRunDue, due),
		attribute.Int(AttrRunProcessed, processed),
		attribute.Int(AttrRunErrors, errors),
	)
}

// RecordAttributes describes the record a span acts on.
func RecordAttributes(rec *retention.Record) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.Int64(AttrRecordID, rec.ID),
		attribute.String(AttrFileID, rec.FileID),
		attribute.Int64(AttrPolicyID, rec.PolicyID),
	)
}

// SetActionResult records the action taken on a record and its outcome.
func SetActionResult(span trace.Span, action retention.Action, status string) {
	span.SetAttributes(
		attribute.String(AttrAction, string(action)),
		attribute.String(AttrActionStatus, status),
	)
}

// SetHTTPResult records the matched route and response status of a request.
func SetHTTPResult(span trace.Span, route string, status int) {
	span.SetAttributes(
		attribute.String(AttrHTTPRoute, route),
		attribute.Int(AttrHTTPStatusCode, status),
	)
}
