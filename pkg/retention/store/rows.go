package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mercator-hq/saturn/pkg/retention"
)

// Row types mirror the table layout. Timestamps are unix milliseconds and
// calendar dates are YYYY-MM-DD text so the same queries work on SQLite
// and PostgreSQL.

type policyRow struct {
	ID                   int64  `db:"id"`
	Name                 string `db:"name"`
	Description          string `db:"description"`
	IsActive             bool   `db:"is_active"`
	DefaultAction        string `db:"default_action"`
	DefaultTargetPath    string `db:"default_target_path"`
	NotifyBeforeDays     int    `db:"notify_before_days"`
	AutoProcess          bool   `db:"auto_process"`
	AllowedPeriods       string `db:"allowed_retention_periods"`
	RequireJustification bool   `db:"require_justification"`
	Priority             int    `db:"priority"`
	PathFilter           string `db:"path_filter"`
	FileTypeFilter       string `db:"file_type_filter"`
	CreatedAt            int64  `db:"created_at"`
	UpdatedAt            int64  `db:"updated_at"`
}

func toPolicyRow(p *retention.Policy) (*policyRow, error) {
	periods, err := encodeList(p.AllowedRetentionPeriods)
	if err != nil {
		return nil, fmt.Errorf("encode allowed_retention_periods: %w", err)
	}
	types, err := encodeList(p.FileTypeFilter)
	if err != nil {
		return nil, fmt.Errorf("encode file_type_filter: %w", err)
	}
	return &policyRow{
		ID:                   p.ID,
		Name:                 p.Name,
		Description:          p.Description,
		IsActive:             p.IsActive,
		DefaultAction:        string(p.DefaultAction),
		DefaultTargetPath:    p.DefaultTargetPath,
		NotifyBeforeDays:     p.NotifyBeforeDays,
		AutoProcess:          p.AutoProcess,
		AllowedPeriods:       periods,
		RequireJustification: p.RequireJustification,
		Priority:             p.Priority,
		PathFilter:           p.PathFilter,
		FileTypeFilter:       types,
		CreatedAt:            p.CreatedAt.UnixMilli(),
		UpdatedAt:            p.UpdatedAt.UnixMilli(),
	}, nil
}

func (r *policyRow) toPolicy() (*retention.Policy, error) {
	p := &retention.Policy{
		ID:                   r.ID,
		Name:                 r.Name,
		Description:          r.Description,
		IsActive:             r.IsActive,
		DefaultAction:        retention.Action(r.DefaultAction),
		DefaultTargetPath:    r.DefaultTargetPath,
		NotifyBeforeDays:     r.NotifyBeforeDays,
		AutoProcess:          r.AutoProcess,
		RequireJustification: r.RequireJustification,
		Priority:             r.Priority,
		PathFilter:           r.PathFilter,
		CreatedAt:            time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:            time.UnixMilli(r.UpdatedAt).UTC(),
	}
	if err := decodeList(r.AllowedPeriods, &p.AllowedRetentionPeriods); err != nil {
		return nil, fmt.Errorf("policy %d: decode allowed_retention_periods: %w", r.ID, err)
	}
	if err := decodeList(r.FileTypeFilter, &p.FileTypeFilter); err != nil {
		return nil, fmt.Errorf("policy %d: decode file_type_filter: %w", r.ID, err)
	}
	return p, nil
}

func policiesFromRows(rows []policyRow) ([]*retention.Policy, error) {
	out := make([]*retention.Policy, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toPolicy()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type recordRow struct {
	ID                 int64         `db:"id"`
	FileID             string        `db:"file_id"`
	ContainerID        string        `db:"container_id"`
	FilePath           string        `db:"file_path"`
	PolicyID           int64         `db:"policy_id"`
	RetentionPeriod    int           `db:"retention_period"`
	RetentionUnit      string        `db:"retention_unit"`
	StartDate          string        `db:"start_date"`
	ExpireDate         string        `db:"expire_date"`
	ActionOverride     string        `db:"action_override"`
	TargetPathOverride string        `db:"target_path_override"`
	Justification      string        `db:"justification"`
	NotifyOverride     sql.NullInt64 `db:"notify_before_days_override"`
	Status             string        `db:"status"`
	Attempts           int           `db:"attempts"`
	LastError          string        `db:"last_error"`
	ClaimedAt          sql.NullInt64 `db:"claimed_at"`
	CreatedBy          string        `db:"created_by"`
	CreatedAt          int64         `db:"created_at"`
	UpdatedAt          int64         `db:"updated_at"`
	ProcessedAt        sql.NullInt64 `db:"processed_at"`
}

func toRecordRow(r *retention.Record) *recordRow {
	row := &recordRow{
		ID:                 r.ID,
		FileID:             r.FileID,
		ContainerID:        r.ContainerID,
		FilePath:           r.FilePath,
		PolicyID:           r.PolicyID,
		RetentionPeriod:    r.RetentionPeriod,
		RetentionUnit:      string(r.RetentionUnit),
		StartDate:          retention.FormatDate(r.StartDate),
		ExpireDate:         retention.FormatDate(r.ExpireDate),
		ActionOverride:     string(r.ActionOverride),
		TargetPathOverride: r.TargetPathOverride,
		Justification:      r.Justification,
		Status:             string(r.Status),
		Attempts:           r.Attempts,
		LastError:          r.LastError,
		CreatedBy:          r.CreatedBy,
		CreatedAt:          r.CreatedAt.UnixMilli(),
		UpdatedAt:          r.UpdatedAt.UnixMilli(),
		ClaimedAt:          nullMillis(r.ClaimedAt),
		ProcessedAt:        nullMillis(r.ProcessedAt),
	}
	if r.NotifyBeforeDaysOverride != nil {
		row.NotifyOverride = sql.NullInt64{Int64: int64(*r.NotifyBeforeDaysOverride), Valid: true}
	}
	return row
}

func (row *recordRow) toRecord() (*retention.Record, error) {
	start, err := time.Parse(retention.DateLayout, row.StartDate)
	if err != nil {
		return nil, fmt.Errorf("record %d: parse start_date: %w", row.ID, err)
	}
	expire, err := time.Parse(retention.DateLayout, row.ExpireDate)
	if err != nil {
		return nil, fmt.Errorf("record %d: parse expire_date: %w", row.ID, err)
	}

	r := &retention.Record{
		ID:                 row.ID,
		FileID:             row.FileID,
		ContainerID:        row.ContainerID,
		FilePath:           row.FilePath,
		PolicyID:           row.PolicyID,
		RetentionPeriod:    row.RetentionPeriod,
		RetentionUnit:      retention.Unit(row.RetentionUnit),
		StartDate:          start,
		ExpireDate:         expire,
		ActionOverride:     retention.Action(row.ActionOverride),
		TargetPathOverride: row.TargetPathOverride,
		Justification:      row.Justification,
		Status:             retention.RecordStatus(row.Status),
		Attempts:           row.Attempts,
		LastError:          row.LastError,
		CreatedBy:          row.CreatedBy,
		CreatedAt:          time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt:          time.UnixMilli(row.UpdatedAt).UTC(),
		ClaimedAt:          millisPtr(row.ClaimedAt),
		ProcessedAt:        millisPtr(row.ProcessedAt),
	}
	if row.NotifyOverride.Valid {
		v := int(row.NotifyOverride.Int64)
		r.NotifyBeforeDaysOverride = &v
	}
	return r, nil
}

func recordsFromRows(rows []recordRow) ([]*retention.Record, error) {
	out := make([]*retention.Record, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

type logRow struct {
	ID         int64  `db:"id"`
	RunID      string `db:"run_id"`
	RecordID   int64  `db:"record_id"`
	FileID     string `db:"file_id"`
	PolicyID   int64  `db:"policy_id"`
	Action     string `db:"action"`
	Status     string `db:"status"`
	Message    string `db:"message"`
	FilePath   string `db:"file_path"`
	TargetPath string `db:"target_path"`
	CreatedAt  int64  `db:"created_at"`
}

func toLogRow(e *retention.LogEntry) *logRow {
	return &logRow{
		ID:         e.ID,
		RunID:      e.RunID,
		RecordID:   e.RecordID,
		FileID:     e.FileID,
		PolicyID:   e.PolicyID,
		Action:     e.Action,
		Status:     string(e.Status),
		Message:    e.Message,
		FilePath:   e.FilePath,
		TargetPath: e.TargetPath,
		CreatedAt:  e.CreatedAt.UnixMilli(),
	}
}

func (r *logRow) toEntry() *retention.LogEntry {
	return &retention.LogEntry{
		ID:         r.ID,
		RunID:      r.RunID,
		RecordID:   r.RecordID,
		FileID:     r.FileID,
		PolicyID:   r.PolicyID,
		Action:     r.Action,
		Status:     retention.LogStatus(r.Status),
		Message:    r.Message,
		FilePath:   r.FilePath,
		TargetPath: r.TargetPath,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
	}
}

type notificationRow struct {
	ID            int64         `db:"id"`
	FileID        string        `db:"file_id"`
	RetentionID   int64         `db:"retention_id"`
	UserID        string        `db:"user_id"`
	Type          string        `db:"notification_type"`
	ScheduledDate string        `db:"scheduled_date"`
	SentAt        sql.NullInt64 `db:"sent_at"`
	Status        string        `db:"status"`
	Message       string        `db:"message"`
}

func toNotificationRow(n *retention.Notification) *notificationRow {
	return &notificationRow{
		ID:            n.ID,
		FileID:        n.FileID,
		RetentionID:   n.RetentionID,
		UserID:        n.UserID,
		Type:          string(n.Type),
		ScheduledDate: retention.FormatDate(n.ScheduledDate),
		SentAt:        nullMillis(n.SentAt),
		Status:        string(n.Status),
		Message:       n.Message,
	}
}

func (r *notificationRow) toNotification() (*retention.Notification, error) {
	date, err := time.Parse(retention.DateLayout, r.ScheduledDate)
	if err != nil {
		return nil, fmt.Errorf("notification %d: parse scheduled_date: %w", r.ID, err)
	}
	return &retention.Notification{
		ID:            r.ID,
		FileID:        r.FileID,
		RetentionID:   r.RetentionID,
		UserID:        r.UserID,
		Type:          retention.NotificationType(r.Type),
		ScheduledDate: date,
		SentAt:        millisPtr(r.SentAt),
		Status:        retention.NotificationStatus(r.Status),
		Message:       r.Message,
	}, nil
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(raw string, dst *[]string) error {
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return err
	}
	if len(list) > 0 {
		*dst = list
	}
	return nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
