package cli

import (
	"encoding/json"
	"strconv"
	"strings"

	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/records"
	"mercator-hq/saturn/pkg/retention/scheduler"
)

// PolicyTable renders policies.
type PolicyTable []*retention.Policy

// Headers implements Table.
func (t PolicyTable) Headers() []string {
	return []string{"ID", "NAME", "ACTIVE", "ACTION", "TARGET", "PRIORITY", "AUTO", "PERIODS"}
}

// Rows implements Table.
func (t PolicyTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, p := range t {
		rows = append(rows, []string{
			strconv.FormatInt(p.ID, 10),
			p.Name,
			strconv.FormatBool(p.IsActive),
			string(p.DefaultAction),
			dash(p.DefaultTargetPath),
			strconv.Itoa(p.Priority),
			strconv.FormatBool(p.AutoProcess),
			dash(strings.Join(p.AllowedRetentionPeriods, ", ")),
		})
	}
	return rows
}

// MarshalJSON encodes the plain slice.
func (t PolicyTable) MarshalJSON() ([]byte, error) {
	return json.Marshal([]*retention.Policy(t))
}

// RecordTable renders retention records.
type RecordTable []*retention.Record

// Headers implements Table.
func (t RecordTable) Headers() []string {
	return []string{"ID", "FILE", "PATH", "POLICY", "PERIOD", "EXPIRES", "STATUS", "ATTEMPTS"}
}

// Rows implements Table.
func (t RecordTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.FileID,
			r.FilePath,
			strconv.FormatInt(r.PolicyID, 10),
			strconv.Itoa(r.RetentionPeriod) + " " + string(r.RetentionUnit),
			retention.FormatDate(r.ExpireDate),
			string(r.Status),
			strconv.Itoa(r.Attempts),
		})
	}
	return rows
}

// MarshalJSON encodes the plain slice.
func (t RecordTable) MarshalJSON() ([]byte, error) {
	return json.Marshal([]*retention.Record(t))
}

// OverviewTable renders records with their disposal and countdown.
type OverviewTable []*records.OverviewItem

// Headers implements Table.
func (t OverviewTable) Headers() []string {
	return []string{"FILE", "PATH", "POLICY", "EXPIRES", "DAYS", "ACTION", "TARGET"}
}

// Rows implements Table.
func (t OverviewTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, it := range t {
		rows = append(rows, []string{
			it.Record.FileID,
			it.Path,
			it.PolicyName,
			retention.FormatDate(it.Record.ExpireDate),
			strconv.Itoa(it.DaysRemaining),
			string(it.Disposal.Action),
			dash(it.Disposal.TargetPath),
		})
	}
	return rows
}

// MarshalJSON encodes the plain slice.
func (t OverviewTable) MarshalJSON() ([]byte, error) {
	return json.Marshal([]*records.OverviewItem(t))
}

// LogTable renders processing log entries.
type LogTable []*retention.LogEntry

// Headers implements Table.
func (t LogTable) Headers() []string {
	return []string{"TIME", "RUN", "FILE", "ACTION", "STATUS", "PATH", "TARGET", "MESSAGE"}
}

// Rows implements Table.
func (t LogTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		rows = append(rows, []string{
			e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			shortID(e.RunID),
			e.FileID,
			e.Action,
			string(e.Status),
			e.FilePath,
			dash(e.TargetPath),
			dash(e.Message),
		})
	}
	return rows
}

// MarshalJSON encodes the plain slice.
func (t LogTable) MarshalJSON() ([]byte, error) {
	return json.Marshal([]*retention.LogEntry(t))
}

// ReportTable renders the items of a run report.
type ReportTable struct {
	*scheduler.RunReport
}

// Headers implements Table.
func (t ReportTable) Headers() []string {
	return []string{"RECORD", "FILE", "ACTION", "STATUS", "PATH", "TARGET", "MESSAGE"}
}

// Rows implements Table.
func (t ReportTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Items))
	for _, it := range t.Items {
		rows = append(rows, []string{
			strconv.FormatInt(it.RecordID, 10),
			it.FileID,
			string(it.Action),
			string(it.Status),
			it.FilePath,
			dash(it.TargetPath),
			dash(it.Message),
		})
	}
	return rows
}

// MarshalJSON encodes the report itself.
func (t ReportTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.RunReport)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return dash(id)
}
