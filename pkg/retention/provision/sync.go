package provision

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/policy"
)

// Result summarizes one synchronization pass.
type Result struct {
	Created   []string `json:"created"`
	Updated   []string `json:"updated"`
	Unchanged []string `json:"unchanged"`
	Assigned  []string `json:"assigned"`
}

// Syncer applies a policies file to the policy service.
type Syncer struct {
	policies *policy.Service
	logger   *slog.Logger
}

// NewSyncer creates a syncer on top of the policy service.
func NewSyncer(policies *policy.Service) *Syncer {
	return &Syncer{
		policies: policies,
		logger:   slog.Default().With("component", "retention.provision"),
	}
}

// Sync creates or updates every policy in f. It stops at the first entry
// that fails validation; entries before it have already been applied.
func (s *Syncer) Sync(ctx context.Context, f *File) (*Result, error) {
	res := &Result{}
	for _, e := range f.Policies {
		if err := s.syncEntry(ctx, e, res); err != nil {
			return res, fmt.Errorf("policy %q: %w", e.Name, err)
		}
	}

	s.logger.Info("policies provisioned",
		"created", len(res.Created),
		"updated", len(res.Updated),
		"unchanged", len(res.Unchanged),
		"assigned", len(res.Assigned),
	)
	return res, nil
}

func (s *Syncer) syncEntry(ctx context.Context, e Entry, res *Result) error {
	existing, err := s.policies.GetPolicyByName(ctx, e.Name)
	if err != nil && !retention.IsNotFound(err) {
		return err
	}

	var id int64
	switch {
	case existing == nil:
		if id, err = s.policies.CreatePolicy(ctx, e.Input); err != nil {
			return err
		}
		res.Created = append(res.Created, e.Name)
	case differs(existing, e.Input):
		id = existing.ID
		if _, err := s.policies.UpdatePolicy(ctx, id, patchFor(e.Input)); err != nil {
			return err
		}
		res.Updated = append(res.Updated, e.Name)
	default:
		id = existing.ID
		res.Unchanged = append(res.Unchanged, e.Name)
	}

	if e.Containers == nil {
		return nil
	}
	current, err := s.policies.ContainersForPolicy(ctx, id)
	if err != nil {
		return err
	}
	want := normalizeContainers(e.Containers)
	if slices.Equal(current, want) {
		return nil
	}
	if _, err := s.policies.AssignContainers(ctx, id, want); err != nil {
		return err
	}
	res.Assigned = append(res.Assigned, e.Name)
	return nil
}

// patchFor turns a declaration into a full patch. IsActive is only
// patched when the file sets it, so toggles made at runtime survive.
func patchFor(in policy.Input) policy.Patch {
	return policy.Patch{
		Description:             &in.Description,
		IsActive:                in.IsActive,
		DefaultAction:           &in.DefaultAction,
		DefaultTargetPath:       &in.DefaultTargetPath,
		NotifyBeforeDays:        &in.NotifyBeforeDays,
		AutoProcess:             &in.AutoProcess,
		AllowedRetentionPeriods: &in.AllowedRetentionPeriods,
		RequireJustification:    &in.RequireJustification,
		Priority:                &in.Priority,
		PathFilter:              &in.PathFilter,
		FileTypeFilter:          &in.FileTypeFilter,
	}
}

func differs(pol *retention.Policy, in policy.Input) bool {
	exts := make([]string, 0, len(in.FileTypeFilter))
	for _, e := range in.FileTypeFilter {
		exts = append(exts, policy.NormalizeExtension(e))
	}

	return pol.Description != in.Description ||
		(in.IsActive != nil && pol.IsActive != *in.IsActive) ||
		pol.DefaultAction != in.DefaultAction ||
		pol.DefaultTargetPath != strings.TrimSpace(in.DefaultTargetPath) ||
		pol.NotifyBeforeDays != in.NotifyBeforeDays ||
		pol.AutoProcess != in.AutoProcess ||
		!slices.Equal(pol.AllowedRetentionPeriods, in.AllowedRetentionPeriods) ||
		pol.RequireJustification != in.RequireJustification ||
		pol.Priority != in.Priority ||
		pol.PathFilter != strings.TrimSpace(in.PathFilter) ||
		!slices.Equal(pol.FileTypeFilter, exts)
}

// normalizeContainers trims, de-duplicates and sorts container IDs the way
// the store reports them.
func normalizeContainers(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
