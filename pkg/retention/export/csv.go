package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"mercator-hq/saturn/pkg/retention"
)

var csvHeader = []string{
	"id", "created_at", "run_id", "record_id", "file_id", "policy_id",
	"action", "status", "file_path", "target_path", "message",
}

// CSVExporter writes one row per entry.
type CSVExporter struct {
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// ContentType implements Exporter.
func (e *CSVExporter) ContentType() string { return "text/csv" }

// Export writes entries in order. It stops early when ctx is cancelled.
func (e *CSVExporter) Export(ctx context.Context, entries []*retention.LogEntry, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return &ExportError{Format: FormatCSV, Entries: len(entries), Cause: err}
		}
	}

	for i, entry := range entries {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := writer.Write(row(entry)); err != nil {
			return &ExportError{Format: FormatCSV, Entries: len(entries), Cause: err}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return &ExportError{Format: FormatCSV, Entries: len(entries), Cause: err}
	}
	return nil
}

func row(e *retention.LogEntry) []string {
	return []string{
		strconv.FormatInt(e.ID, 10),
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.RunID,
		strconv.FormatInt(e.RecordID, 10),
		e.FileID,
		strconv.FormatInt(e.PolicyID, 10),
		e.Action,
		string(e.Status),
		e.FilePath,
		e.TargetPath,
		e.Message,
	}
}
