package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"mercator-hq/saturn/pkg/retention"
)

// Supported formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Exporter writes log entries to w.
type Exporter interface {
	Export(ctx context.Context, entries []*retention.LogEntry, w io.Writer) error
	ContentType() string
}

// ExportError reports a failed export.
type ExportError struct {
	Format  string
	Entries int
	Cause   error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s (%d entries): %v", e.Format, e.Entries, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// ForFormat returns the exporter for a format name. An empty name means JSON.
func ForFormat(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		return NewJSONExporter(false), nil
	case FormatCSV:
		return NewCSVExporter(true), nil
	default:
		return nil, retention.NewValidationError("format", fmt.Sprintf("must be json or csv (got %q)", format))
	}
}
