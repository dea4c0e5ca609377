package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/saturn/pkg/retention"
)

// JSONExporter writes entries as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// ContentType implements Exporter.
func (e *JSONExporter) ContentType() string { return "application/json" }

// Export writes entries as one array. An empty slice is written as [].
func (e *JSONExporter) Export(ctx context.Context, entries []*retention.LogEntry, w io.Writer) error {
	if entries == nil {
		entries = []*retention.LogEntry{}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(entries); err != nil {
		return &ExportError{Format: FormatJSON, Entries: len(entries), Cause: err}
	}
	return nil
}
