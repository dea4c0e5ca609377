package retention

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for start and expire dates.
const DateLayout = "2006-01-02"

// Action is a disposal action applied when a file's retention lapses.
type Action string

const (
	// ActionMove relocates the file to the target path.
	ActionMove Action = "move"
	// ActionDelete permanently removes the file.
	ActionDelete Action = "delete"
	// ActionArchive relocates the file to the target path and is logged
	// under its own tag.
	ActionArchive Action = "archive"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionMove, ActionDelete, ActionArchive:
		return true
	}
	return false
}

// NeedsTarget reports whether the action relocates the file.
func (a Action) NeedsTarget() bool {
	return a == ActionMove || a == ActionArchive
}

// ParseAction parses an action name case-insensitively.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", NewValidationError("action",
			fmt.Sprintf("must be one of move, delete, archive (got %q)", s))
	}
	return a, nil
}

// Unit is the calendar unit of a retention period.
type Unit string

const (
	UnitDays   Unit = "days"
	UnitWeeks  Unit = "weeks"
	UnitMonths Unit = "months"
	UnitYears  Unit = "years"
)

// Valid reports whether u is one of the known units.
func (u Unit) Valid() bool {
	switch u {
	case UnitDays, UnitWeeks, UnitMonths, UnitYears:
		return true
	}
	return false
}

// RecordStatus is the lifecycle state of a retention record.
type RecordStatus string

const (
	StatusActive     RecordStatus = "active"
	StatusProcessing RecordStatus = "processing"
	StatusProcessed  RecordStatus = "processed"
	StatusCancelled  RecordStatus = "cancelled"
)

// LogStatus is the outcome recorded in a processing log entry.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogFailed  LogStatus = "failed"
	LogSkipped LogStatus = "skipped"
)

// NotificationType identifies which reminder a scheduled notification is.
type NotificationType string

const (
	NotifyWarning      NotificationType = "warning"
	NotifyFinalWarning NotificationType = "final_warning"
	NotifyExpired      NotificationType = "expired"
)

// NotificationStatus is the delivery state of a scheduled notification.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationFailed    NotificationStatus = "failed"
	NotificationCancelled NotificationStatus = "cancelled"
)

// Policy is an administrator-defined rule set for disposing of files in the
// containers it is assigned to.
type Policy struct {
	ID                      int64     `json:"id"`
	Name                    string    `json:"name"`
	Description             string    `json:"description,omitempty"`
	IsActive                bool      `json:"is_active"`
	DefaultAction           Action    `json:"default_action"`
	DefaultTargetPath       string    `json:"default_target_path,omitempty"`
	NotifyBeforeDays        int       `json:"notify_before_days"`
	AutoProcess             bool      `json:"auto_process"`
	AllowedRetentionPeriods []string  `json:"allowed_retention_periods"`
	RequireJustification    bool      `json:"require_justification"`
	Priority                int       `json:"priority"`
	PathFilter              string    `json:"path_filter,omitempty"`
	FileTypeFilter          []string  `json:"file_type_filter,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the policy.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	c := *p
	c.AllowedRetentionPeriods = append([]string(nil), p.AllowedRetentionPeriods...)
	c.FileTypeFilter = append([]string(nil), p.FileTypeFilter...)
	return &c
}

// Assignment binds a policy to a managed container.
type Assignment struct {
	PolicyID    int64  `json:"policy_id"`
	ContainerID string `json:"container_id"`
}

// Record is the retention binding of one file to a policy.
type Record struct {
	ID                       int64        `json:"id"`
	FileID                   string       `json:"file_id"`
	ContainerID              string       `json:"container_id"`
	FilePath                 string       `json:"file_path"`
	PolicyID                 int64        `json:"policy_id"`
	RetentionPeriod          int          `json:"retention_period"`
	RetentionUnit            Unit         `json:"retention_unit"`
	StartDate                time.Time    `json:"start_date"`
	ExpireDate               time.Time    `json:"expire_date"`
	ActionOverride           Action       `json:"action_override,omitempty"`
	TargetPathOverride       string       `json:"target_path_override,omitempty"`
	Justification            string       `json:"justification,omitempty"`
	NotifyBeforeDaysOverride *int         `json:"notify_before_days_override,omitempty"`
	Status                   RecordStatus `json:"status"`
	Attempts                 int          `json:"attempts"`
	LastError                string       `json:"last_error,omitempty"`
	ClaimedAt                *time.Time   `json:"claimed_at,omitempty"`
	CreatedBy                string       `json:"created_by"`
	CreatedAt                time.Time    `json:"created_at"`
	UpdatedAt                time.Time    `json:"updated_at"`
	ProcessedAt              *time.Time   `json:"processed_at,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.NotifyBeforeDaysOverride != nil {
		v := *r.NotifyBeforeDaysOverride
		c.NotifyBeforeDaysOverride = &v
	}
	if r.ClaimedAt != nil {
		v := *r.ClaimedAt
		c.ClaimedAt = &v
	}
	if r.ProcessedAt != nil {
		v := *r.ProcessedAt
		c.ProcessedAt = &v
	}
	return &c
}

// IsOpen reports whether the record still occupies the file's single
// retention slot.
func (r *Record) IsOpen() bool {
	return r.Status == StatusActive || r.Status == StatusProcessing
}

// LogEntry is one append-only entry of the processing audit trail.
type LogEntry struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id,omitempty"`
	RecordID   int64     `json:"record_id"`
	FileID     string    `json:"file_id"`
	PolicyID   int64     `json:"policy_id"`
	Action     string    `json:"action"`
	Status     LogStatus `json:"status"`
	Message    string    `json:"message,omitempty"`
	FilePath   string    `json:"file_path,omitempty"`
	TargetPath string    `json:"target_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// LogQuery filters processing log entries. Zero values mean "any".
type LogQuery struct {
	FileID   string
	PolicyID int64
	RunID    string
	Status   LogStatus
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// Notification is a reminder scheduled for the owner of a retention record.
// Delivery happens elsewhere; the engine only keeps the schedule current.
type Notification struct {
	ID            int64              `json:"id"`
	FileID        string             `json:"file_id"`
	RetentionID   int64              `json:"retention_id"`
	UserID        string             `json:"user_id"`
	Type          NotificationType   `json:"notification_type"`
	ScheduledDate time.Time          `json:"scheduled_date"`
	SentAt        *time.Time         `json:"sent_at,omitempty"`
	Status        NotificationStatus `json:"status"`
	Message       string             `json:"message,omitempty"`
}

// Stats aggregates the state of the engine for dashboards.
type Stats struct {
	TotalPolicies    int64            `json:"total_policies"`
	ActivePolicies   int64            `json:"active_policies"`
	RecordsByStatus  map[string]int64 `json:"records_by_status"`
	DueRecords       int64            `json:"due_records"`
	LogsByStatus     map[string]int64 `json:"logs_by_status"`
	PendingReminders int64            `json:"pending_notifications"`
	LastRun          *time.Time       `json:"last_run,omitempty"`
}

// AuditSink receives processing log entries.
type AuditSink interface {
	AppendLog(ctx context.Context, entry *LogEntry) error
}

// Disposal is the effective action and target for a record.
type Disposal struct {
	Action     Action `json:"action"`
	TargetPath string `json:"target_path,omitempty"`
}

// EffectiveDisposal applies the override-or-default precedence: a record's
// action and target override win, otherwise the policy defaults apply.
func EffectiveDisposal(rec *Record, pol *Policy) Disposal {
	d := Disposal{}
	if pol != nil {
		d.Action = pol.DefaultAction
		d.TargetPath = pol.DefaultTargetPath
	}
	if rec != nil {
		if rec.ActionOverride != "" {
			d.Action = rec.ActionOverride
		}
		if rec.TargetPathOverride != "" {
			d.TargetPath = rec.TargetPathOverride
		}
	}
	if !d.Action.NeedsTarget() {
		d.TargetPath = ""
	}
	return d
}

// EffectiveNotifyBeforeDays returns the record override when present,
// otherwise the policy lead time.
func EffectiveNotifyBeforeDays(rec *Record, pol *Policy) int {
	if rec != nil && rec.NotifyBeforeDaysOverride != nil {
		return *rec.NotifyBeforeDaysOverride
	}
	if pol != nil {
		return pol.NotifyBeforeDays
	}
	return 0
}

// DateOf truncates t to its calendar date, expressed at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar date of the instant t on the UTC calendar.
// Start, expire and due dates all use it, so the host's zone never shifts
// a record by a day.
func Today(t time.Time) time.Time {
	return DateOf(t.UTC())
}

// FormatDate renders a calendar date.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate parses a calendar date in DateLayout.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, NewValidationError("date",
			fmt.Sprintf("must be formatted as YYYY-MM-DD (got %q)", s))
	}
	return t, nil
}
