package records

import (
	"context"
	"path"
	"time"

	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/store"
	"mercator-hq/saturn/pkg/storage"
)

// OverviewItem is one row of a retention listing.
type OverviewItem struct {
	Record        *retention.Record  `json:"record"`
	PolicyName    string             `json:"policy_name"`
	Path          string             `json:"path"`
	Disposal      retention.Disposal `json:"disposal"`
	DaysRemaining int                `json:"days_remaining"`
}

// ConflictInfo reports whether a candidate path is already covered by an
// open retention record, on itself or on an ancestor folder.
type ConflictInfo struct {
	Path         string    `json:"path"`
	HasConflict  bool      `json:"has_conflict"`
	Inherited    bool      `json:"inherited,omitempty"`
	ConflictPath string    `json:"conflict_path,omitempty"`
	RecordID     int64     `json:"record_id,omitempty"`
	FileID       string    `json:"file_id,omitempty"`
	ExpireDate   time.Time `json:"expire_date,omitzero"`
}

// UserOverview lists the open records created by a user, soonest expiry
// first, with their current path and policy name.
func (m *Manager) UserOverview(ctx context.Context, userID string) ([]*OverviewItem, error) {
	recs, err := m.store.ListOpenRecords(ctx, store.RecordFilter{CreatedBy: userID})
	if err != nil {
		return nil, err
	}
	return m.overview(ctx, recs, true)
}

// Upcoming lists open records expiring between today and withinDays from
// now, inclusive.
func (m *Manager) Upcoming(ctx context.Context, withinDays int) ([]*OverviewItem, error) {
	if withinDays < 0 {
		return nil, retention.NewValidationError("days", "must be >= 0")
	}
	today := retention.Today(m.now())
	recs, err := m.store.ListOpenRecords(ctx, store.RecordFilter{
		ExpiresFrom: today,
		ExpiresTo:   today.AddDate(0, 0, withinDays),
	})
	if err != nil {
		return nil, err
	}
	return m.overview(ctx, recs, false)
}

func (m *Manager) overview(ctx context.Context, recs []*retention.Record, resolvePaths bool) ([]*OverviewItem, error) {
	today := retention.Today(m.now())
	policies := make(map[int64]*retention.Policy)

	items := make([]*OverviewItem, 0, len(recs))
	for _, rec := range recs {
		pol, ok := policies[rec.PolicyID]
		if !ok {
			p, err := m.store.GetPolicy(ctx, rec.PolicyID)
			if err != nil && !retention.IsNotFound(err) {
				return nil, err
			}
			pol = p
			policies[rec.PolicyID] = p
		}

		item := &OverviewItem{
			Record:        rec,
			Path:          rec.FilePath,
			Disposal:      retention.EffectiveDisposal(rec, pol),
			DaysRemaining: int(rec.ExpireDate.Sub(today).Hours() / 24),
		}
		if pol != nil {
			item.PolicyName = pol.Name
		}
		if resolvePaths {
			if file, err := m.files.ResolveFile(ctx, rec.FileID); err == nil {
				item.Path = file.Path
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// CheckRetentionBatch reports, for every candidate path, whether an open
// record already exists on that path or on one of its ancestor folders in
// the same container. It never mutates state.
func (m *Manager) CheckRetentionBatch(ctx context.Context, paths []string, containerID string) (map[string]*ConflictInfo, error) {
	recs, err := m.store.ListOpenRecords(ctx, store.RecordFilter{ContainerID: containerID})
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*retention.Record, len(recs))
	for _, rec := range recs {
		if p, ok := storage.CleanPath(rec.FilePath); ok {
			byPath[p] = rec
		}
	}

	out := make(map[string]*ConflictInfo, len(paths))
	for _, raw := range paths {
		info := &ConflictInfo{Path: raw}
		out[raw] = info

		p, ok := storage.CleanPath(raw)
		if !ok {
			continue
		}
		for cur, inherited := p, false; cur != "/"; cur, inherited = path.Dir(cur), true {
			rec, found := byPath[cur]
			if !found {
				continue
			}
			info.HasConflict = true
			info.Inherited = inherited
			info.ConflictPath = cur
			info.RecordID = rec.ID
			info.FileID = rec.FileID
			info.ExpireDate = rec.ExpireDate
			break
		}
	}
	return out, nil
}
