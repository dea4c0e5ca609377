// Package policy implements administrative management of retention
// policies: creation with validation, partial updates, activation, deletion
// and the many-to-many assignment of policies to managed containers.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/period"
	"mercator-hq/saturn/pkg/retention/store"
)

// ContainerLister enumerates the universe of managed containers.
type ContainerLister interface {
	ListContainers(ctx context.Context) ([]string, error)
}

// ChangeListener is notified after any policy or assignment mutation.
type ChangeListener interface {
	PoliciesChanged()
}

// Input carries the fields of a new policy.
type Input struct {
	Name                    string           `json:"name" yaml:"name"`
	Description             string           `json:"description" yaml:"description"`
	IsActive                *bool            `json:"is_active" yaml:"is_active"`
	DefaultAction           retention.Action `json:"default_action" yaml:"default_action"`
	DefaultTargetPath       string           `json:"default_target_path" yaml:"default_target_path"`
	NotifyBeforeDays        int              `json:"notify_before_days" yaml:"notify_before_days"`
	AutoProcess             bool             `json:"auto_process" yaml:"auto_process"`
	AllowedRetentionPeriods []string         `json:"allowed_retention_periods" yaml:"allowed_retention_periods"`
	RequireJustification    bool             `json:"require_justification" yaml:"require_justification"`
	Priority                int              `json:"priority" yaml:"priority"`
	PathFilter              string           `json:"path_filter" yaml:"path_filter"`
	FileTypeFilter          []string         `json:"file_type_filter" yaml:"file_type_filter"`
}

// Patch carries a partial update. Nil fields are left unchanged.
type Patch struct {
	Name                    *string           `json:"name"`
	Description             *string           `json:"description"`
	IsActive                *bool             `json:"is_active"`
	DefaultAction           *retention.Action `json:"default_action"`
	DefaultTargetPath       *string           `json:"default_target_path"`
	NotifyBeforeDays        *int              `json:"notify_before_days"`
	AutoProcess             *bool             `json:"auto_process"`
	AllowedRetentionPeriods *[]string         `json:"allowed_retention_periods"`
	RequireJustification    *bool             `json:"require_justification"`
	Priority                *int              `json:"priority"`
	PathFilter              *string           `json:"path_filter"`
	FileTypeFilter          *[]string         `json:"file_type_filter"`
}

// Service manages retention policies.
type Service struct {
	store      store.Store
	containers ContainerLister
	listeners  []ChangeListener
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithChangeListener registers a listener called after every mutation.
func WithChangeListener(l ChangeListener) Option {
	return func(s *Service) { s.listeners = append(s.listeners, l) }
}

// NewService creates a policy service. containers may be nil, in which
// case ContainersWithoutPolicy always returns an empty list.
func NewService(st store.Store, containers ContainerLister, opts ...Option) *Service {
	s := &Service{
		store:      st,
		containers: containers,
		now:        time.Now,
		logger:     slog.Default().With("component", "retention.policy"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePolicy validates and stores a new policy.
func (s *Service) CreatePolicy(ctx context.Context, in Input) (int64, error) {
	now := s.now().UTC()
	pol := &retention.Policy{
		Name:                    strings.TrimSpace(in.Name),
		Description:             in.Description,
		IsActive:                true,
		DefaultAction:           in.DefaultAction,
		DefaultTargetPath:       strings.TrimSpace(in.DefaultTargetPath),
		NotifyBeforeDays:        in.NotifyBeforeDays,
		AutoProcess:             in.AutoProcess,
		AllowedRetentionPeriods: in.AllowedRetentionPeriods,
		RequireJustification:    in.RequireJustification,
		Priority:                in.Priority,
		PathFilter:              strings.TrimSpace(in.PathFilter),
		FileTypeFilter:          normalizeExtensions(in.FileTypeFilter),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if in.IsActive != nil {
		pol.IsActive = *in.IsActive
	}

	if err := Validate(pol); err != nil {
		return 0, err
	}
	if existing, err := s.store.GetPolicyByName(ctx, pol.Name); err == nil && existing != nil {
		return 0, retention.NewConflictError("policy", pol.Name, "a policy with this name already exists")
	}

	id, err := s.store.CreatePolicy(ctx, pol)
	if err != nil {
		return 0, err
	}

	s.logger.Info("policy created",
		"policy_id", id,
		"name", pol.Name,
		"action", pol.DefaultAction,
		"priority", pol.Priority,
	)
	s.notify()
	return id, nil
}

// UpdatePolicy merges the supplied fields into an existing policy. Fields
// left nil in the patch keep their stored values. Concurrent updates are
// last-write-wins.
func (s *Service) UpdatePolicy(ctx context.Context, id int64, patch Patch) (bool, error) {
	pol, err := s.store.GetPolicy(ctx, id)
	if err != nil {
		return false, err
	}

	if patch.Name != nil && strings.TrimSpace(*patch.Name) != pol.Name {
		name := strings.TrimSpace(*patch.Name)
		if existing, err := s.store.GetPolicyByName(ctx, name); err == nil && existing.ID != id {
			return false, retention.NewConflictError("policy", name, "a policy with this name already exists")
		}
		pol.Name = name
	}
	applyPatch(pol, patch)
	pol.UpdatedAt = s.now().UTC()

	if err := Validate(pol); err != nil {
		return false, err
	}
	if err := s.store.UpdatePolicy(ctx, pol); err != nil {
		return false, err
	}

	s.logger.Info("policy updated", "policy_id", id, "name", pol.Name)
	s.notify()
	return true, nil
}

func applyPatch(pol *retention.Policy, p Patch) {
	if p.Description != nil {
		pol.Description = *p.Description
	}
	if p.IsActive != nil {
		pol.IsActive = *p.IsActive
	}
	if p.DefaultAction != nil {
		pol.DefaultAction = *p.DefaultAction
	}
	if p.DefaultTargetPath != nil {
		pol.DefaultTargetPath = strings.TrimSpace(*p.DefaultTargetPath)
	}
	if p.NotifyBeforeDays != nil {
		pol.NotifyBeforeDays = *p.NotifyBeforeDays
	}
	if p.AutoProcess != nil {
		pol.AutoProcess = *p.AutoProcess
	}
	if p.AllowedRetentionPeriods != nil {
		pol.AllowedRetentionPeriods = *p.AllowedRetentionPeriods
	}
	if p.RequireJustification != nil {
		pol.RequireJustification = *p.RequireJustification
	}
	if p.Priority != nil {
		pol.Priority = *p.Priority
	}
	if p.PathFilter != nil {
		pol.PathFilter = strings.TrimSpace(*p.PathFilter)
	}
	if p.FileTypeFilter != nil {
		pol.FileTypeFilter = normalizeExtensions(*p.FileTypeFilter)
	}
}

// GetPolicy returns a policy by ID.
func (s *Service) GetPolicy(ctx context.Context, id int64) (*retention.Policy, error) {
	return s.store.GetPolicy(ctx, id)
}

// GetPolicyByName returns a policy by its unique name.
func (s *Service) GetPolicyByName(ctx context.Context, name string) (*retention.Policy, error) {
	return s.store.GetPolicyByName(ctx, strings.TrimSpace(name))
}

// ListPolicies returns every policy ordered by priority.
func (s *Service) ListPolicies(ctx context.Context) ([]*retention.Policy, error) {
	return s.store.ListPolicies(ctx)
}

// DeletePolicy removes a policy and its container assignments. Deletion is
// refused with a ConflictError while active or in-flight records still
// reference the policy; those records must be removed or processed first.
func (s *Service) DeletePolicy(ctx context.Context, id int64) error {
	if _, err := s.store.GetPolicy(ctx, id); err != nil {
		return err
	}

	open, err := s.store.CountOpenRecordsForPolicy(ctx, id)
	if err != nil {
		return err
	}
	if open > 0 {
		return retention.NewConflictError("policy", id,
			fmt.Sprintf("%d active retention record(s) still reference this policy", open))
	}

	if err := s.store.DeletePolicy(ctx, id); err != nil {
		return err
	}

	s.logger.Info("policy deleted", "policy_id", id)
	s.notify()
	return nil
}

// ToggleActive enables or disables a policy. Inactive policies are skipped
// by resolution; records already bound to them are still processed.
func (s *Service) ToggleActive(ctx context.Context, id int64, active bool) error {
	if err := s.store.SetPolicyActive(ctx, id, active, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Info("policy activation changed", "policy_id", id, "is_active", active)
	s.notify()
	return nil
}

// AssignContainers replaces the full set of containers a policy applies to.
// Containers missing from the list are unassigned, new ones are assigned
// and unchanged ones are left alone. Duplicates and blanks are ignored.
func (s *Service) AssignContainers(ctx context.Context, policyID int64, containerIDs []string) (bool, error) {
	seen := make(map[string]struct{}, len(containerIDs))
	clean := make([]string, 0, len(containerIDs))
	for _, c := range containerIDs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		clean = append(clean, c)
	}

	if err := s.store.ReplaceAssignments(ctx, policyID, clean); err != nil {
		return false, err
	}

	s.logger.Info("policy containers assigned",
		"policy_id", policyID,
		"container_count", len(clean),
	)
	s.notify()
	return true, nil
}

// ContainersForPolicy returns the containers a policy is assigned to.
func (s *Service) ContainersForPolicy(ctx context.Context, policyID int64) ([]string, error) {
	return s.store.ContainersForPolicy(ctx, policyID)
}

// PoliciesForContainer returns the policies assigned to a container,
// highest priority first and lowest ID first among equals.
func (s *Service) PoliciesForContainer(ctx context.Context, containerID string) ([]*retention.Policy, error) {
	return s.store.PoliciesForContainer(ctx, containerID)
}

// ContainersWithoutPolicy returns the managed containers that no policy is
// assigned to.
func (s *Service) ContainersWithoutPolicy(ctx context.Context) ([]string, error) {
	if s.containers == nil {
		return []string{}, nil
	}

	universe, err := s.containers.ListContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	assigned, err := s.store.AssignedContainers(ctx)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]struct{}, len(assigned))
	for _, c := range assigned {
		taken[c] = struct{}{}
	}

	out := []string{}
	for _, c := range universe {
		if _, ok := taken[c]; !ok {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Service) notify() {
	for _, l := range s.listeners {
		l.PoliciesChanged()
	}
}

// Validate checks a policy's fields.
func Validate(pol *retention.Policy) error {
	if pol.Name == "" {
		return retention.NewValidationError("name", "is required")
	}
	if !pol.DefaultAction.Valid() {
		return retention.NewValidationError("default_action",
			fmt.Sprintf("must be one of move, delete, archive (got %q)", pol.DefaultAction))
	}
	if pol.DefaultAction.NeedsTarget() && pol.DefaultTargetPath == "" {
		return retention.NewValidationError("default_target_path",
			fmt.Sprintf("is required when the action is %s", pol.DefaultAction))
	}
	if pol.NotifyBeforeDays < 0 {
		return retention.NewValidationError("notify_before_days", "must not be negative")
	}
	if err := period.ValidateAllowedList(pol.AllowedRetentionPeriods); err != nil {
		return err
	}
	if pol.PathFilter != "" && strings.ContainsAny(pol.PathFilter, "*?[") {
		if _, err := matchPattern(pol.PathFilter, "/"); err != nil {
			return &retention.ValidationError{Field: "path_filter", Message: "invalid glob pattern", Cause: err}
		}
	}
	for _, ext := range pol.FileTypeFilter {
		if ext == "" {
			return retention.NewValidationError("file_type_filter", "entries must not be empty")
		}
	}
	return nil
}

// normalizeExtensions lower-cases extensions and strips leading dots.
func normalizeExtensions(exts []string) []string {
	if len(exts) == 0 {
		return nil
	}
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		out = append(out, NormalizeExtension(e))
	}
	return out
}

// NormalizeExtension lower-cases an extension and strips any leading dot.
func NormalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
