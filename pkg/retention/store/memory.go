package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/saturn/pkg/retention"
)

// MemoryStore implements Store in memory.
// This implementation is intended for testing only and should not be used in production.
type MemoryStore struct {
	mu            sync.RWMutex
	policies      map[int64]*retention.Policy
	assignments   map[int64]map[string]struct{}
	records       map[int64]*retention.Record
	logs          []*retention.LogEntry
	notifications map[int64]*retention.Notification

	nextPolicyID int64
	nextRecordID int64
	nextLogID    int64
	nextNoteID   int64
	closed       bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies:      make(map[int64]*retention.Policy),
		assignments:   make(map[int64]map[string]struct{}),
		records:       make(map[int64]*retention.Record),
		notifications: make(map[int64]*retention.Notification),
	}
}

// CreatePolicy inserts a policy.
func (s *MemoryStore) CreatePolicy(ctx context.Context, pol *retention.Policy) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPolicyID++
	c := pol.Clone()
	c.ID = s.nextPolicyID
	s.policies[c.ID] = c
	return c.ID, nil
}

// UpdatePolicy overwrites an existing policy.
func (s *MemoryStore) UpdatePolicy(ctx context.Context, pol *retention.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[pol.ID]; !ok {
		return retention.NewNotFoundError("policy", pol.ID)
	}
	s.policies[pol.ID] = pol.Clone()
	return nil
}

// GetPolicy returns a policy by ID.
func (s *MemoryStore) GetPolicy(ctx context.Context, id int64) (*retention.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pol, ok := s.policies[id]
	if !ok {
		return nil, retention.NewNotFoundError("policy", id)
	}
	return pol.Clone(), nil
}

// GetPolicyByName returns a policy by name.
func (s *MemoryStore) GetPolicyByName(ctx context.Context, name string) (*retention.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pol := range s.policies {
		if pol.Name == name {
			return pol.Clone(), nil
		}
	}
	return nil, retention.NewNotFoundError("policy", name)
}

// ListPolicies returns all policies.
func (s *MemoryStore) ListPolicies(ctx context.Context) ([]*retention.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*retention.Policy, 0, len(s.policies))
	for _, pol := range s.policies {
		out = append(out, pol.Clone())
	}
	sortPolicies(out)
	return out, nil
}

// DeletePolicy removes a policy and its assignments.
func (s *MemoryStore) DeletePolicy(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[id]; !ok {
		return retention.NewNotFoundError("policy", id)
	}
	delete(s.policies, id)
	delete(s.assignments, id)
	return nil
}

// SetPolicyActive flips the is_active flag.
func (s *MemoryStore) SetPolicyActive(ctx context.Context, id int64, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pol, ok := s.policies[id]
	if !ok {
		return retention.NewNotFoundError("policy", id)
	}
	pol.IsActive = active
	pol.UpdatedAt = at
	return nil
}

// ReplaceAssignments replaces the assignment set of a policy.
func (s *MemoryStore) ReplaceAssignments(ctx context.Context, policyID int64, containerIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[policyID]; !ok {
		return retention.NewNotFoundError("policy", policyID)
	}
	set := make(map[string]struct{}, len(containerIDs))
	for _, c := range containerIDs {
		set[c] = struct{}{}
	}
	s.assignments[policyID] = set
	return nil
}

// ContainersForPolicy returns the containers assigned to a policy.
func (s *MemoryStore) ContainersForPolicy(ctx context.Context, policyID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.policies[policyID]; !ok {
		return nil, retention.NewNotFoundError("policy", policyID)
	}
	out := make([]string, 0, len(s.assignments[policyID]))
	for c := range s.assignments[policyID] {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// AssignedContainers returns every container with an assignment.
func (s *MemoryStore) AssignedContainers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, set := range s.assignments {
		for c := range set {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// PoliciesForContainer returns the policies assigned to a container.
func (s *MemoryStore) PoliciesForContainer(ctx context.Context, containerID string) ([]*retention.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*retention.Policy
	for id, set := range s.assignments {
		if _, ok := set[containerID]; !ok {
			continue
		}
		if pol, ok := s.policies[id]; ok {
			out = append(out, pol.Clone())
		}
	}
	sortPolicies(out)
	return out, nil
}

// CountOpenRecordsForPolicy counts open records of a policy.
func (s *MemoryStore) CountOpenRecordsForPolicy(ctx context.Context, policyID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, rec := range s.records {
		if rec.PolicyID == policyID && rec.IsOpen() {
			n++
		}
	}
	return n, nil
}

// GetOpenRecord returns the open record of a file, or nil.
func (s *MemoryStore) GetOpenRecord(ctx context.Context, fileID string) (*retention.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.FileID == fileID && rec.IsOpen() {
			return rec.Clone(), nil
		}
	}
	return nil, nil
}

// GetRecord returns a record by ID.
func (s *MemoryStore) GetRecord(ctx context.Context, id int64) (*retention.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, retention.NewNotFoundError("record", id)
	}
	return rec.Clone(), nil
}

// SaveRecord inserts or updates a record.
func (s *MemoryStore) SaveRecord(ctx context.Context, rec *retention.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == 0 {
		for _, existing := range s.records {
			if existing.FileID == rec.FileID && existing.IsOpen() && rec.IsOpen() {
				return retention.NewConflictError("file", rec.FileID, "file already has an open retention record")
			}
		}
		s.nextRecordID++
		rec.ID = s.nextRecordID
		s.records[rec.ID] = rec.Clone()
		return nil
	}

	cur, ok := s.records[rec.ID]
	if !ok {
		return retention.NewNotFoundError("record", rec.ID)
	}
	if cur.Status != retention.StatusActive {
		return staleUpdate(rec.ID, cur.Status)
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

// CancelRecord moves an active record to cancelled.
func (s *MemoryStore) CancelRecord(ctx context.Context, id int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status != retention.StatusActive {
		return false, nil
	}
	rec.Status = retention.StatusCancelled
	rec.UpdatedAt = at
	return true, nil
}

// ListOpenRecords returns open records matching the filter.
func (s *MemoryStore) ListOpenRecords(ctx context.Context, filter RecordFilter) ([]*retention.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*retention.Record
	for _, rec := range s.records {
		if !rec.IsOpen() {
			continue
		}
		if filter.CreatedBy != "" && rec.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.ContainerID != "" && rec.ContainerID != filter.ContainerID {
			continue
		}
		if filter.PolicyID != 0 && rec.PolicyID != filter.PolicyID {
			continue
		}
		if !filter.ExpiresFrom.IsZero() && rec.ExpireDate.Before(filter.ExpiresFrom) {
			continue
		}
		if !filter.ExpiresTo.IsZero() && rec.ExpireDate.After(filter.ExpiresTo) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sortRecordsByExpiry(out)
	return out, nil
}

// DueRecords returns active, expired records of auto-processing policies.
func (s *MemoryStore) DueRecords(ctx context.Context, today time.Time, limit int) ([]*retention.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today = retention.Today(today)
	var out []*retention.Record
	for _, rec := range s.records {
		if rec.Status != retention.StatusActive || rec.ExpireDate.After(today) {
			continue
		}
		pol, ok := s.policies[rec.PolicyID]
		if !ok || !pol.AutoProcess {
			continue
		}
		out = append(out, rec.Clone())
	}
	sortRecordsByExpiry(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClaimRecord atomically moves a record from active to processing.
func (s *MemoryStore) ClaimRecord(ctx context.Context, id int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status != retention.StatusActive {
		return false, nil
	}
	rec.Status = retention.StatusProcessing
	claimed := at
	rec.ClaimedAt = &claimed
	rec.UpdatedAt = at
	return true, nil
}

// MarkProcessed moves a claimed record to processed.
func (s *MemoryStore) MarkProcessed(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status != retention.StatusProcessing {
		return retention.NewNotFoundError("processing record", id)
	}
	rec.Status = retention.StatusProcessed
	processed := at
	rec.ProcessedAt = &processed
	rec.ClaimedAt = nil
	rec.Attempts++
	rec.LastError = ""
	rec.UpdatedAt = at
	return nil
}

// ReleaseClaim returns a claimed record to active.
func (s *MemoryStore) ReleaseClaim(ctx context.Context, id int64, lastError string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status != retention.StatusProcessing {
		return retention.NewNotFoundError("processing record", id)
	}
	rec.Status = retention.StatusActive
	rec.ClaimedAt = nil
	rec.Attempts++
	rec.LastError = lastError
	rec.UpdatedAt = at
	return nil
}

// ReclaimStale releases claims taken before olderThan.
func (s *MemoryStore) ReclaimStale(ctx context.Context, olderThan, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.records {
		if rec.Status == retention.StatusProcessing && rec.ClaimedAt != nil && rec.ClaimedAt.Before(olderThan) {
			rec.Status = retention.StatusActive
			rec.ClaimedAt = nil
			rec.Attempts++
			rec.LastError = claimExpired
			rec.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

// AppendLog appends an entry to the processing log.
func (s *MemoryStore) AppendLog(ctx context.Context, entry *retention.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLogID++
	entry.ID = s.nextLogID
	c := *entry
	s.logs = append(s.logs, &c)
	return nil
}

// QueryLogs returns matching log entries newest first.
func (s *MemoryStore) QueryLogs(ctx context.Context, q *retention.LogQuery) ([]*retention.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if q == nil {
		q = &retention.LogQuery{}
	}

	var out []*retention.LogEntry
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if q.FileID != "" && e.FileID != q.FileID {
			continue
		}
		if q.PolicyID != 0 && e.PolicyID != q.PolicyID {
			continue
		}
		if q.RunID != "" && e.RunID != q.RunID {
			continue
		}
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		if !q.Since.IsZero() && e.CreatedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.CreatedAt.After(q.Until) {
			continue
		}
		c := *e
		out = append(out, &c)
	}

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []*retention.LogEntry{}, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// ReplaceNotifications swaps the pending schedule of a record.
func (s *MemoryStore) ReplaceNotifications(ctx context.Context, recordID int64, notes []*retention.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelPendingLocked(recordID)
	for _, n := range notes {
		s.nextNoteID++
		n.ID = s.nextNoteID
		n.RetentionID = recordID
		c := *n
		s.notifications[c.ID] = &c
	}
	return nil
}

// CancelNotifications cancels pending notifications of a record.
func (s *MemoryStore) CancelNotifications(ctx context.Context, recordID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelPendingLocked(recordID)
	return nil
}

func (s *MemoryStore) cancelPendingLocked(recordID int64) {
	for _, n := range s.notifications {
		if n.RetentionID == recordID && n.Status == retention.NotificationPending {
			n.Status = retention.NotificationCancelled
		}
	}
}

// ListNotifications returns the notifications of a record.
func (s *MemoryStore) ListNotifications(ctx context.Context, recordID int64) ([]*retention.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*retention.Notification
	for _, n := range s.notifications {
		if n.RetentionID == recordID {
			c := *n
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ScheduledDate.Before(out[j].ScheduledDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Stats aggregates counts.
func (s *MemoryStore) Stats(ctx context.Context, today time.Time) (*retention.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today = retention.Today(today)
	st := &retention.Stats{
		RecordsByStatus: make(map[string]int64),
		LogsByStatus:    make(map[string]int64),
	}
	for _, pol := range s.policies {
		st.TotalPolicies++
		if pol.IsActive {
			st.ActivePolicies++
		}
	}
	for _, rec := range s.records {
		st.RecordsByStatus[string(rec.Status)]++
		if rec.Status == retention.StatusActive && !rec.ExpireDate.After(today) {
			st.DueRecords++
		}
	}
	for _, e := range s.logs {
		st.LogsByStatus[string(e.Status)]++
		if st.LastRun == nil || e.CreatedAt.After(*st.LastRun) {
			at := e.CreatedAt
			st.LastRun = &at
		}
	}
	for _, n := range s.notifications {
		if n.Status == retention.NotificationPending {
			st.PendingReminders++
		}
	}
	return st, nil
}

// Ping reports whether the store is open.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return NewStorageError("memory", "ping", errClosed)
	}
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// sortPolicies orders policies by priority descending, id ascending.
func sortPolicies(policies []*retention.Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		if policies[i].Priority != policies[j].Priority {
			return policies[i].Priority > policies[j].Priority
		}
		return policies[i].ID < policies[j].ID
	})
}

func sortRecordsByExpiry(records []*retention.Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ExpireDate.Equal(records[j].ExpireDate) {
			return records[i].ExpireDate.Before(records[j].ExpireDate)
		}
		return records[i].ID < records[j].ID
	})
}
