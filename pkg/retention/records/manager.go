// Package records manages per-file retention records: setting a retention
// period on a file within the constraints of its policy, reading and
// removing it, and the read-only diagnostics built on top (overviews,
// ancestor conflict checks, previews and upcoming actions).
package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/period"
	"mercator-hq/saturn/pkg/retention/policy"
	"mercator-hq/saturn/pkg/retention/resolver"
	"mercator-hq/saturn/pkg/retention/store"
	"mercator-hq/saturn/pkg/storage"
)

// FileResolver looks up where a file lives.
type FileResolver interface {
	ResolveFile(ctx context.Context, fileID string) (*storage.FileInfo, error)
}

// PolicyResolver picks the policy that applies to a file.
type PolicyResolver interface {
	Resolve(ctx context.Context, file resolver.FileInfo) (*retention.Policy, error)
}

// SetRequest carries the user's retention choice for a file.
type SetRequest struct {
	// PolicyID selects the policy explicitly. Zero resolves it from the
	// file's container, path and extension.
	PolicyID int64 `json:"policy_id,omitempty"`

	Period int            `json:"retention_period"`
	Unit   retention.Unit `json:"retention_unit"`

	// StartDate anchors the period. Nil means today.
	StartDate *time.Time `json:"start_date,omitempty"`

	ActionOverride           retention.Action `json:"action_override,omitempty"`
	TargetPathOverride       string           `json:"target_path_override,omitempty"`
	Justification            string           `json:"justification,omitempty"`
	NotifyBeforeDaysOverride *int             `json:"notify_before_days_override,omitempty"`
}

// Manager owns the lifecycle of file retention records.
type Manager struct {
	store    store.Store
	files    FileResolver
	resolver PolicyResolver
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a record manager.
func NewManager(st store.Store, files FileResolver, res PolicyResolver, opts ...Option) *Manager {
	m := &Manager{
		store:    st,
		files:    files,
		resolver: res,
		now:      time.Now,
		logger:   slog.Default().With("component", "retention.records"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetFileRetention creates or updates the open retention record of a file.
//
// The policy is taken from the request or resolved from the file's
// location. The period and justification are validated against it, the
// expire date is computed from the start date, and the file's single open
// record is updated in place or inserted. Scheduled notifications are
// rebuilt from the new dates.
func (m *Manager) SetFileRetention(ctx context.Context, actor, fileID string, req SetRequest) (*retention.Record, error) {
	file, err := m.resolveFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	pol, err := m.policyFor(ctx, file, req.PolicyID)
	if err != nil {
		return nil, err
	}

	if err := period.ValidateAllowedPeriod(pol, req.Period, req.Unit); err != nil {
		return nil, err
	}
	if err := period.ValidateJustification(pol, req.Justification); err != nil {
		return nil, err
	}
	if err := validateOverrides(&req, pol); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	start := retention.Today(now)
	if req.StartDate != nil {
		start = retention.DateOf(*req.StartDate)
	}
	expire, err := period.PreviewExpireDate(req.Period, req.Unit, start)
	if err != nil {
		return nil, err
	}

	rec, err := m.store.GetOpenRecord(ctx, file.FileID)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.Status == retention.StatusProcessing {
		return nil, retention.NewConflictError("file", file.FileID,
			"retention is being processed and cannot be changed")
	}
	if rec == nil {
		rec = &retention.Record{
			FileID:    file.FileID,
			Status:    retention.StatusActive,
			CreatedBy: actor,
			CreatedAt: now,
		}
	}

	rec.ContainerID = file.ContainerID
	rec.FilePath = file.Path
	rec.PolicyID = pol.ID
	rec.RetentionPeriod = req.Period
	rec.RetentionUnit = req.Unit
	rec.StartDate = start
	rec.ExpireDate = expire
	rec.ActionOverride = req.ActionOverride
	rec.TargetPathOverride = req.TargetPathOverride
	rec.Justification = strings.TrimSpace(req.Justification)
	rec.NotifyBeforeDaysOverride = req.NotifyBeforeDaysOverride
	rec.UpdatedAt = now

	if err := m.store.SaveRecord(ctx, rec); err != nil {
		return nil, err
	}

	if err := m.refreshNotifications(ctx, rec, pol); err != nil {
		return nil, err
	}

	m.logger.Info("file retention set",
		"file_id", rec.FileID,
		"record_id", rec.ID,
		"policy_id", pol.ID,
		"expire_date", retention.FormatDate(rec.ExpireDate),
		"actor", actor,
	)
	return rec.Clone(), nil
}

// GetFileRetention returns the open record of a file, or nil when it has none.
func (m *Manager) GetFileRetention(ctx context.Context, fileID string) (*retention.Record, error) {
	return m.store.GetOpenRecord(ctx, fileID)
}

// RemoveFileRetention cancels the active record of a file and its pending
// notifications. It returns a NotFoundError when the file has no active record.
func (m *Manager) RemoveFileRetention(ctx context.Context, fileID string) error {
	rec, err := m.store.GetOpenRecord(ctx, fileID)
	if err != nil {
		return err
	}
	if rec == nil {
		return retention.NewNotFoundError("retention", fileID)
	}
	if rec.Status == retention.StatusProcessing {
		return retention.NewConflictError("file", fileID,
			"retention is being processed and cannot be removed")
	}

	ok, err := m.store.CancelRecord(ctx, rec.ID, m.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return retention.NewNotFoundError("retention", fileID)
	}
	if err := m.store.CancelNotifications(ctx, rec.ID); err != nil {
		return err
	}

	m.logger.Info("file retention removed", "file_id", fileID, "record_id", rec.ID)
	return nil
}

// PreviewExpireDate computes the expire date for a period without persisting
// anything. A zero start means today.
func (m *Manager) PreviewExpireDate(n int, unit retention.Unit, start time.Time) (time.Time, error) {
	if start.IsZero() {
		start = retention.Today(m.now())
	}
	return period.PreviewExpireDate(n, unit, retention.DateOf(start))
}

// Resolution is the diagnostic answer to "which policy applies to this file".
type Resolution struct {
	File   *storage.FileInfo `json:"file"`
	Policy *retention.Policy `json:"policy"`
}

// FindPolicyForFile resolves a file's applicable policy without side effects.
// Resolution.Policy is nil when no policy applies.
func (m *Manager) FindPolicyForFile(ctx context.Context, fileID string) (*Resolution, error) {
	file, err := m.resolveFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	pol, err := m.resolver.Resolve(ctx, resolverInput(file))
	if err != nil {
		return nil, err
	}
	return &Resolution{File: file, Policy: pol}, nil
}

// Stats returns aggregate counts as of today.
func (m *Manager) Stats(ctx context.Context) (*retention.Stats, error) {
	return m.store.Stats(ctx, retention.Today(m.now()))
}

func (m *Manager) resolveFile(ctx context.Context, fileID string) (*storage.FileInfo, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, retention.NewValidationError("file_id", "is required")
	}
	file, err := m.files.ResolveFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			nf := retention.NewNotFoundError("file", fileID)
			nf.Cause = err
			return nil, nf
		}
		return nil, fmt.Errorf("failed to resolve file %s: %w", fileID, err)
	}
	return file, nil
}

func (m *Manager) policyFor(ctx context.Context, file *storage.FileInfo, policyID int64) (*retention.Policy, error) {
	if policyID != 0 {
		return m.explicitPolicy(ctx, file, policyID)
	}
	pol, err := m.resolver.Resolve(ctx, resolverInput(file))
	if err != nil {
		return nil, err
	}
	if pol == nil {
		return nil, retention.NewValidationError("policy_id",
			fmt.Sprintf("no retention policy applies to %s", file.Path))
	}
	return pol, nil
}

// explicitPolicy loads a policy named by the caller. It must be one the
// resolver could have chosen for the file: active, assigned to the file's
// container, and admitting the file's path and extension.
func (m *Manager) explicitPolicy(ctx context.Context, file *storage.FileInfo, id int64) (*retention.Policy, error) {
	pol, err := m.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	if !pol.IsActive {
		return nil, retention.NewValidationError("policy_id",
			fmt.Sprintf("policy %q is inactive", pol.Name))
	}

	containers, err := m.store.ContainersForPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(containers, file.ContainerID) {
		return nil, retention.NewValidationError("policy_id",
			fmt.Sprintf("policy %q is not assigned to container %s", pol.Name, file.ContainerID))
	}

	if !policy.MatchesPath(pol, file.Path) || !policy.MatchesType(pol, file.Extension) {
		return nil, retention.NewValidationError("policy_id",
			fmt.Sprintf("policy %q does not cover %s", pol.Name, file.Path))
	}
	return pol, nil
}

func resolverInput(file *storage.FileInfo) resolver.FileInfo {
	return resolver.FileInfo{
		ContainerID: file.ContainerID,
		Path:        file.Path,
		Extension:   file.Extension,
	}
}

func validateOverrides(req *SetRequest, pol *retention.Policy) error {
	if req.ActionOverride != "" {
		a, err := retention.ParseAction(string(req.ActionOverride))
		if err != nil {
			return retention.NewValidationError("action_override",
				fmt.Sprintf("must be one of move, delete, archive (got %q)", req.ActionOverride))
		}
		req.ActionOverride = a
	}

	if req.TargetPathOverride != "" {
		clean, ok := storage.CleanPath(req.TargetPathOverride)
		if !ok {
			return retention.NewValidationError("target_path_override",
				fmt.Sprintf("invalid path %q", req.TargetPathOverride))
		}
		req.TargetPathOverride = clean
	}

	if req.NotifyBeforeDaysOverride != nil && *req.NotifyBeforeDaysOverride < 0 {
		return retention.NewValidationError("notify_before_days_override", "must be >= 0")
	}

	d := retention.EffectiveDisposal(&retention.Record{
		ActionOverride:     req.ActionOverride,
		TargetPathOverride: req.TargetPathOverride,
	}, pol)
	if d.Action.NeedsTarget() && d.TargetPath == "" {
		return retention.NewValidationError("target_path_override",
			fmt.Sprintf("action %s requires a target path", d.Action))
	}
	return nil
}
