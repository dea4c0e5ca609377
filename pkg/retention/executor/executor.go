// Package executor applies the disposal action of one retention record and
// appends the outcome to the audit trail.
//
// The executor never changes record status. Its caller (the scheduler)
// owns the claim and decides, from the Result, whether the record is marked
// processed or released back to active.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"mercator-hq/saturn/pkg/identity"
	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/storage"
	"mercator-hq/saturn/pkg/telemetry/logging"
)

// Status is the outcome of one execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"

	// StatusPending is reported by dry runs for records that would be acted on.
	StatusPending Status = "pending"
)

// Result describes what happened, or in a dry run what would happen, to one record.
type Result struct {
	RecordID   int64            `json:"record_id"`
	FileID     string           `json:"file_id"`
	PolicyID   int64            `json:"policy_id"`
	Action     retention.Action `json:"action"`
	Status     Status           `json:"status"`
	Message    string           `json:"message,omitempty"`
	FilePath   string           `json:"file_path,omitempty"`
	TargetPath string           `json:"target_path,omitempty"`

	// Err is set when Status is StatusFailed.
	Err error `json:"-"`
}

// Config contains configuration for the executor.
type Config struct {
	// ActionTimeout bounds each storage call. 0 means no timeout.
	ActionTimeout time.Duration
}

// Executor performs disposal actions against a storage backend.
type Executor struct {
	backend storage.Backend
	audit   retention.AuditSink
	config  Config
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an executor.
func New(backend storage.Backend, audit retention.AuditSink, config Config) *Executor {
	return &Executor{
		backend: backend,
		audit:   audit,
		config:  config,
		now:     time.Now,
		logger:  slog.Default().With("component", "retention.executor"),
	}
}

// SetClock overrides the time source used for log timestamps.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
}

// Execute applies the effective disposal of rec.
//
// Records that are no longer open are skipped and logged as such without a
// storage call. In a dry run nothing is called or logged and the result
// reports StatusPending with the target the file would be moved to.
// Storage operations carry the execution context bound to ctx.
func (e *Executor) Execute(ctx context.Context, exec *identity.ExecutionContext, rec *retention.Record, pol *retention.Policy, runID string, dryRun bool) *Result {
	if logging.GetRunID(ctx) == "" && runID != "" {
		ctx = logging.WithRunID(ctx, runID)
	}
	if logging.GetFileID(ctx) == "" {
		ctx = logging.WithFileID(ctx, rec.FileID)
	}

	d := retention.EffectiveDisposal(rec, pol)
	res := &Result{
		RecordID: rec.ID,
		FileID:   rec.FileID,
		PolicyID: rec.PolicyID,
		Action:   d.Action,
		FilePath: rec.FilePath,
	}
	if d.Action.NeedsTarget() && d.TargetPath != "" {
		res.TargetPath = path.Join(d.TargetPath, path.Base(rec.FilePath))
	}

	if !rec.IsOpen() {
		res.Status = StatusSkipped
		res.Message = fmt.Sprintf("record is %s", rec.Status)
		if !dryRun {
			e.appendLog(ctx, runID, res)
		}
		return res
	}

	if err := validateDisposal(d, pol); err != nil {
		return e.fail(ctx, runID, rec, res, err, dryRun)
	}

	if dryRun {
		res.Status = StatusPending
		res.Message = fmt.Sprintf("would %s", d.Action)
		return res
	}

	if exec != nil {
		ctx = identity.WithExecution(ctx, exec)
	}
	if e.config.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ActionTimeout)
		defer cancel()
	}

	switch d.Action {
	case retention.ActionMove, retention.ActionArchive:
		newPath, err := e.backend.MoveFile(ctx, rec.FileID, d.TargetPath)
		if err != nil {
			return e.fail(ctx, runID, rec, res, err, false)
		}
		res.TargetPath = newPath
		res.Message = fmt.Sprintf("%s to %s", pastTense(d.Action), newPath)
	case retention.ActionDelete:
		if err := e.backend.DeleteFile(ctx, rec.FileID); err != nil {
			return e.fail(ctx, runID, rec, res, err, false)
		}
		res.Message = "deleted"
	}

	res.Status = StatusSuccess
	e.appendLog(ctx, runID, res)

	e.logger.InfoContext(ctx, "retention action applied",
		"record_id", rec.ID,
		"action", d.Action,
		"target_path", res.TargetPath,
	)
	return res
}

func (e *Executor) fail(ctx context.Context, runID string, rec *retention.Record, res *Result, cause error, dryRun bool) *Result {
	res.Status = StatusFailed
	res.Err = retention.NewProcessingError(rec, res.Action, cause)
	res.Message = cause.Error()
	if !dryRun {
		e.appendLog(ctx, runID, res)
	}

	e.logger.WarnContext(ctx, "retention action failed",
		"record_id", rec.ID,
		"action", res.Action,
		"error", cause,
	)
	return res
}

func (e *Executor) appendLog(ctx context.Context, runID string, res *Result) {
	if e.audit == nil {
		return
	}
	entry := &retention.LogEntry{
		RunID:      runID,
		RecordID:   res.RecordID,
		FileID:     res.FileID,
		PolicyID:   res.PolicyID,
		Action:     string(res.Action),
		Status:     retention.LogStatus(res.Status),
		Message:    res.Message,
		FilePath:   res.FilePath,
		TargetPath: res.TargetPath,
		CreatedAt:  e.now().UTC(),
	}
	// The storage call may have consumed a timeout-bound context.
	if err := e.audit.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.ErrorContext(ctx, "failed to append processing log",
			"record_id", res.RecordID,
			"status", res.Status,
			"error", err,
		)
	}
}

var errNoPolicy = errors.New("policy not found and record has no action override")

func validateDisposal(d retention.Disposal, pol *retention.Policy) error {
	if d.Action == "" && pol == nil {
		return errNoPolicy
	}
	if !d.Action.Valid() {
		return fmt.Errorf("unknown action %q", d.Action)
	}
	if d.Action.NeedsTarget() {
		if _, ok := storage.CleanPath(d.TargetPath); !ok {
			return fmt.Errorf("%w: %s requires a target path (got %q)", storage.ErrInvalidTarget, d.Action, d.TargetPath)
		}
	}
	return nil
}

func pastTense(a retention.Action) string {
	if a == retention.ActionArchive {
		return "archived"
	}
	return "moved"
}
