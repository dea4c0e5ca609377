package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/retention"
)

func testEntries() []*retention.LogEntry {
	at := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	return []*retention.LogEntry{
		{ID: 2, RunID: "run-1", RecordID: 7, FileID: "F7", PolicyID: 3, Action: "move", Status: retention.LogSuccess,
			FilePath: "/legal/a.pdf", TargetPath: "/archive/a.pdf", CreatedAt: at},
		{ID: 1, RunID: "run-1", RecordID: 8, FileID: "F8", PolicyID: 3, Action: "delete", Status: retention.LogFailed,
			Message: "permission denied, \"locked\"", FilePath: "/legal/b.pdf", CreatedAt: at},
	}
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format   string
		wantType string
		wantErr  bool
	}{
		{"", "application/json", false},
		{"JSON", "application/json", false},
		{"csv", "text/csv", false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exp, err := ForFormat(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ForFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if tt.wantErr {
				if !retention.IsValidation(err) {
					t.Errorf("ForFormat(%q) error = %v, want validation error", tt.format, err)
				}
				return
			}
			if got := exp.ContentType(); got != tt.wantType {
				t.Errorf("ContentType() = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func TestJSONExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONExporter(true).Export(context.Background(), testEntries(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var got []*retention.LogEntry
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(got) != 2 || got[1].Message != `permission denied, "locked"` {
		t.Errorf("decoded = %+v, want both entries intact", got)
	}
}

func TestJSONExporter_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONExporter(false).Export(context.Background(), nil, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("Export(nil) = %q, want []", got)
	}
}

func TestCSVExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(context.Background(), testEntries(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "id" || rows[0][len(rows[0])-1] != "message" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "2024-06-01T02:00:00Z" || rows[1][7] != "success" {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[2][10] != `permission denied, "locked"` {
		t.Errorf("message = %q, want quoting preserved", rows[2][10])
	}
}

func TestCSVExporter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if err := NewCSVExporter(false).Export(ctx, testEntries(), &buf); err == nil {
		t.Error("Export() with cancelled context error = nil, want context.Canceled")
	}
}
