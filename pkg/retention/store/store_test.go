package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/retention"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// backends returns every Store implementation the contract runs against.
func backends(_ *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite3": func(t *testing.T) Store {
			return newSQLTestStore(t, DriverSQLite3)
		},
		"sqlite": func(t *testing.T) Store {
			return newSQLTestStore(t, DriverSQLite)
		},
	}
}

func newSQLTestStore(t *testing.T, driver string) Store {
	t.Helper()
	cfg := DefaultSQLConfig()
	cfg.Driver = driver
	cfg.DSN = filepath.Join(t.TempDir(), "saturn.db")

	s, err := NewSQLStore(cfg)
	if err != nil {
		t.Fatalf("NewSQLStore(%s) error = %v", driver, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newPolicy(name string, priority int) *retention.Policy {
	return &retention.Policy{
		Name:                    name,
		IsActive:                true,
		DefaultAction:           retention.ActionMove,
		DefaultTargetPath:       "/Archive",
		NotifyBeforeDays:        7,
		AutoProcess:             true,
		AllowedRetentionPeriods: []string{"1 year", "5 years"},
		Priority:                priority,
		FileTypeFilter:          []string{"pdf"},
		CreatedAt:               t0,
		UpdatedAt:               t0,
	}
}

func newRecord(fileID string, policyID int64, expire time.Time) *retention.Record {
	return &retention.Record{
		FileID:          fileID,
		ContainerID:     "C42",
		FilePath:        "/C42/" + fileID + ".pdf",
		PolicyID:        policyID,
		RetentionPeriod: 1,
		RetentionUnit:   retention.UnitYears,
		StartDate:       expire.AddDate(-1, 0, 0),
		ExpireDate:      expire,
		Status:          retention.StatusActive,
		CreatedBy:       "alice",
		CreatedAt:       t0,
		UpdatedAt:       t0,
	}
}

func TestStore_Policies(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			low, err := s.CreatePolicy(ctx, newPolicy("low", 1))
			if err != nil {
				t.Fatalf("CreatePolicy() error = %v", err)
			}
			high, _ := s.CreatePolicy(ctx, newPolicy("high", 10))
			tie, _ := s.CreatePolicy(ctx, newPolicy("tie", 10))

			got, err := s.GetPolicy(ctx, low)
			if err != nil {
				t.Fatalf("GetPolicy() error = %v", err)
			}
			if got.Name != "low" || len(got.AllowedRetentionPeriods) != 2 || got.FileTypeFilter[0] != "pdf" {
				t.Errorf("GetPolicy() = %+v, fields not round-tripped", got)
			}
			if !got.IsActive || !got.AutoProcess {
				t.Errorf("GetPolicy() booleans = active %v auto %v, want true true", got.IsActive, got.AutoProcess)
			}

			list, err := s.ListPolicies(ctx)
			if err != nil {
				t.Fatalf("ListPolicies() error = %v", err)
			}
			wantOrder := []int64{high, tie, low}
			for i, p := range list {
				if p.ID != wantOrder[i] {
					t.Errorf("ListPolicies()[%d].ID = %d, want %d", i, p.ID, wantOrder[i])
				}
			}

			got.Priority = 99
			got.AllowedRetentionPeriods = nil
			if err := s.UpdatePolicy(ctx, got); err != nil {
				t.Fatalf("UpdatePolicy() error = %v", err)
			}
			got, _ = s.GetPolicy(ctx, low)
			if got.Priority != 99 || len(got.AllowedRetentionPeriods) != 0 {
				t.Errorf("UpdatePolicy() not persisted: %+v", got)
			}

			if err := s.SetPolicyActive(ctx, low, false, t0); err != nil {
				t.Fatalf("SetPolicyActive() error = %v", err)
			}
			got, _ = s.GetPolicy(ctx, low)
			if got.IsActive {
				t.Error("SetPolicyActive(false) did not persist")
			}

			byName, err := s.GetPolicyByName(ctx, "tie")
			if err != nil || byName.ID != tie {
				t.Errorf("GetPolicyByName() = %v, %v, want id %d", byName, err, tie)
			}

			if _, err := s.GetPolicy(ctx, 12345); !retention.IsNotFound(err) {
				t.Errorf("GetPolicy(unknown) error = %v, want NotFoundError", err)
			}
			if err := s.UpdatePolicy(ctx, &retention.Policy{ID: 12345, Name: "x"}); !retention.IsNotFound(err) {
				t.Errorf("UpdatePolicy(unknown) error = %v, want NotFoundError", err)
			}
		})
	}
}

func TestStore_Assignments(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			a, _ := s.CreatePolicy(ctx, newPolicy("a", 1))
			b, _ := s.CreatePolicy(ctx, newPolicy("b", 5))

			if err := s.ReplaceAssignments(ctx, a, []string{"C1", "C2", "C2"}); err != nil {
				t.Fatalf("ReplaceAssignments() error = %v", err)
			}
			if err := s.ReplaceAssignments(ctx, b, []string{"C2"}); err != nil {
				t.Fatalf("ReplaceAssignments() error = %v", err)
			}

			// Replacing is a set operation, not additive.
			if err := s.ReplaceAssignments(ctx, a, []string{"C2", "C3"}); err != nil {
				t.Fatalf("ReplaceAssignments() error = %v", err)
			}
			got, _ := s.ContainersForPolicy(ctx, a)
			if len(got) != 2 || got[0] != "C2" || got[1] != "C3" {
				t.Errorf("ContainersForPolicy() = %v, want [C2 C3]", got)
			}

			pols, err := s.PoliciesForContainer(ctx, "C2")
			if err != nil {
				t.Fatalf("PoliciesForContainer() error = %v", err)
			}
			if len(pols) != 2 || pols[0].ID != b || pols[1].ID != a {
				t.Errorf("PoliciesForContainer(C2) order wrong: %v", pols)
			}

			all, _ := s.AssignedContainers(ctx)
			if len(all) != 2 || all[0] != "C2" || all[1] != "C3" {
				t.Errorf("AssignedContainers() = %v, want [C2 C3]", all)
			}

			if err := s.DeletePolicy(ctx, a); err != nil {
				t.Fatalf("DeletePolicy() error = %v", err)
			}
			all, _ = s.AssignedContainers(ctx)
			if len(all) != 1 || all[0] != "C2" {
				t.Errorf("AssignedContainers() after delete = %v, want [C2]", all)
			}
			if err := s.ReplaceAssignments(ctx, a, []string{"C9"}); !retention.IsNotFound(err) {
				t.Errorf("ReplaceAssignments(deleted) error = %v, want NotFoundError", err)
			}
		})
	}
}

func TestStore_RecordLifecycle(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			pid, _ := s.CreatePolicy(ctx, newPolicy("p", 1))
			rec := newRecord("F1", pid, day(2024, 5, 31))
			notify := 3
			rec.NotifyBeforeDaysOverride = &notify
			rec.Justification = "statutory"

			if err := s.SaveRecord(ctx, rec); err != nil {
				t.Fatalf("SaveRecord() error = %v", err)
			}
			if rec.ID == 0 {
				t.Fatal("SaveRecord() did not assign an ID")
			}

			cur, err := s.GetOpenRecord(ctx, "F1")
			if err != nil || cur == nil {
				t.Fatalf("GetOpenRecord() = %v, %v", cur, err)
			}
			if !cur.ExpireDate.Equal(day(2024, 5, 31)) || *cur.NotifyBeforeDaysOverride != 3 || cur.Justification != "statutory" {
				t.Errorf("GetOpenRecord() = %+v, fields not round-tripped", cur)
			}

			if n, _ := s.CountOpenRecordsForPolicy(ctx, pid); n != 1 {
				t.Errorf("CountOpenRecordsForPolicy() = %d, want 1", n)
			}

			due, err := s.DueRecords(ctx, day(2024, 6, 1), 0)
			if err != nil || len(due) != 1 {
				t.Fatalf("DueRecords() = %d records, %v, want 1", len(due), err)
			}

			ok, err := s.ClaimRecord(ctx, rec.ID, t0)
			if err != nil || !ok {
				t.Fatalf("ClaimRecord() = %v, %v, want true", ok, err)
			}
			ok, _ = s.ClaimRecord(ctx, rec.ID, t0)
			if ok {
				t.Error("second ClaimRecord() = true, want false")
			}
			if due, _ := s.DueRecords(ctx, day(2024, 6, 1), 0); len(due) != 0 {
				t.Errorf("DueRecords() while claimed = %d, want 0", len(due))
			}

			if err := s.ReleaseClaim(ctx, rec.ID, "disk full", t0); err != nil {
				t.Fatalf("ReleaseClaim() error = %v", err)
			}
			got, _ := s.GetRecord(ctx, rec.ID)
			if got.Status != retention.StatusActive || got.Attempts != 1 || got.LastError != "disk full" {
				t.Errorf("after ReleaseClaim() = status %s attempts %d err %q", got.Status, got.Attempts, got.LastError)
			}

			s.ClaimRecord(ctx, rec.ID, t0)
			if err := s.MarkProcessed(ctx, rec.ID, t0); err != nil {
				t.Fatalf("MarkProcessed() error = %v", err)
			}
			got, _ = s.GetRecord(ctx, rec.ID)
			if got.Status != retention.StatusProcessed || got.ProcessedAt == nil {
				t.Errorf("after MarkProcessed() = %+v", got)
			}
			if cur, _ := s.GetOpenRecord(ctx, "F1"); cur != nil {
				t.Errorf("GetOpenRecord() after processing = %+v, want nil", cur)
			}

			// A processed record frees the file for a new record.
			again := newRecord("F1", pid, day(2025, 1, 1))
			if err := s.SaveRecord(ctx, again); err != nil {
				t.Fatalf("SaveRecord(new after processed) error = %v", err)
			}
			if ok, _ := s.CancelRecord(ctx, again.ID, t0); !ok {
				t.Error("CancelRecord() = false, want true")
			}
			if ok, _ := s.CancelRecord(ctx, again.ID, t0); ok {
				t.Error("CancelRecord() twice = true, want false")
			}
		})
	}
}

func TestStore_SaveRecordRequiresActive(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			pid, _ := s.CreatePolicy(ctx, newPolicy("p", 1))
			rec := newRecord("F1", pid, day(2024, 5, 31))
			if err := s.SaveRecord(ctx, rec); err != nil {
				t.Fatalf("SaveRecord() error = %v", err)
			}

			stale, _ := s.GetOpenRecord(ctx, "F1")
			if ok, _ := s.ClaimRecord(ctx, rec.ID, t0); !ok {
				t.Fatal("ClaimRecord() = false, want true")
			}

			stale.ExpireDate = day(2030, 1, 1)
			if err := s.SaveRecord(ctx, stale); !retention.IsConflict(err) {
				t.Errorf("SaveRecord(claimed) error = %v, want ConflictError", err)
			}
			got, _ := s.GetRecord(ctx, rec.ID)
			if got.Status != retention.StatusProcessing || !got.ExpireDate.Equal(day(2024, 5, 31)) {
				t.Errorf("claimed record = status %s expire %s, want processing 2024-05-31",
					got.Status, retention.FormatDate(got.ExpireDate))
			}

			missing := newRecord("F9", pid, day(2024, 5, 31))
			missing.ID = 999
			if err := s.SaveRecord(ctx, missing); !retention.IsNotFound(err) {
				t.Errorf("SaveRecord(unknown id) error = %v, want NotFoundError", err)
			}
		})
	}
}

func TestStore_DueRecordsRespectsAutoProcess(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			auto, _ := s.CreatePolicy(ctx, newPolicy("auto", 1))
			manual := newPolicy("manual", 1)
			manual.AutoProcess = false
			manualID, _ := s.CreatePolicy(ctx, manual)

			s.SaveRecord(ctx, newRecord("A", auto, day(2024, 5, 1)))
			s.SaveRecord(ctx, newRecord("B", manualID, day(2024, 5, 1)))
			s.SaveRecord(ctx, newRecord("C", auto, day(2024, 7, 1)))
			s.SaveRecord(ctx, newRecord("D", auto, day(2024, 6, 1)))

			due, err := s.DueRecords(ctx, day(2024, 6, 1), 0)
			if err != nil {
				t.Fatalf("DueRecords() error = %v", err)
			}
			if len(due) != 2 || due[0].FileID != "A" || due[1].FileID != "D" {
				t.Errorf("DueRecords() = %v, want [A D]", fileIDs(due))
			}

			limited, _ := s.DueRecords(ctx, day(2024, 6, 1), 1)
			if len(limited) != 1 {
				t.Errorf("DueRecords(limit 1) = %d records, want 1", len(limited))
			}
		})
	}
}

func TestStore_ReclaimStale(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			pid, _ := s.CreatePolicy(ctx, newPolicy("p", 1))
			old := newRecord("old", pid, day(2024, 5, 1))
			fresh := newRecord("fresh", pid, day(2024, 5, 1))
			s.SaveRecord(ctx, old)
			s.SaveRecord(ctx, fresh)

			s.ClaimRecord(ctx, old.ID, t0.Add(-2*time.Hour))
			s.ClaimRecord(ctx, fresh.ID, t0)

			n, err := s.ReclaimStale(ctx, t0.Add(-time.Hour), t0)
			if err != nil || n != 1 {
				t.Fatalf("ReclaimStale() = %d, %v, want 1", n, err)
			}
			got, _ := s.GetRecord(ctx, old.ID)
			if got.Status != retention.StatusActive {
				t.Errorf("stale record status = %s, want active", got.Status)
			}
			if got.Attempts != 1 || got.LastError != "claim expired" || !got.UpdatedAt.Equal(t0) {
				t.Errorf("stale record = attempts %d err %q updated %v, want 1 %q %v",
					got.Attempts, got.LastError, got.UpdatedAt, "claim expired", t0)
			}
			got, _ = s.GetRecord(ctx, fresh.ID)
			if got.Status != retention.StatusProcessing {
				t.Errorf("fresh record status = %s, want processing", got.Status)
			}
		})
	}
}

func TestStore_LogsAndNotifications(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			for i, st := range []retention.LogStatus{retention.LogSuccess, retention.LogFailed, retention.LogSuccess} {
				e := &retention.LogEntry{
					RunID:     "run-1",
					RecordID:  int64(i + 1),
					FileID:    "F1",
					PolicyID:  1,
					Action:    "move",
					Status:    st,
					CreatedAt: t0.Add(time.Duration(i) * time.Minute),
				}
				if err := s.AppendLog(ctx, e); err != nil {
					t.Fatalf("AppendLog() error = %v", err)
				}
				if e.ID == 0 {
					t.Error("AppendLog() did not assign an ID")
				}
			}

			all, _ := s.QueryLogs(ctx, &retention.LogQuery{FileID: "F1"})
			if len(all) != 3 || all[0].RecordID != 3 {
				t.Errorf("QueryLogs() = %d entries, first record %d; want 3 newest first", len(all), all[0].RecordID)
			}
			failed, _ := s.QueryLogs(ctx, &retention.LogQuery{Status: retention.LogFailed})
			if len(failed) != 1 {
				t.Errorf("QueryLogs(failed) = %d entries, want 1", len(failed))
			}
			page, _ := s.QueryLogs(ctx, &retention.LogQuery{Limit: 1, Offset: 1})
			if len(page) != 1 || page[0].RecordID != 2 {
				t.Errorf("QueryLogs(limit 1 offset 1) = %v, want record 2", page)
			}

			notes := []*retention.Notification{
				{FileID: "F1", UserID: "alice", Type: retention.NotifyWarning, ScheduledDate: day(2024, 7, 1), Status: retention.NotificationPending},
				{FileID: "F1", UserID: "alice", Type: retention.NotifyExpired, ScheduledDate: day(2024, 7, 8), Status: retention.NotificationPending},
			}
			if err := s.ReplaceNotifications(ctx, 1, notes); err != nil {
				t.Fatalf("ReplaceNotifications() error = %v", err)
			}
			replacement := []*retention.Notification{
				{FileID: "F1", UserID: "alice", Type: retention.NotifyExpired, ScheduledDate: day(2024, 8, 8), Status: retention.NotificationPending},
			}
			s.ReplaceNotifications(ctx, 1, replacement)

			list, _ := s.ListNotifications(ctx, 1)
			pending := 0
			for _, n := range list {
				if n.Status == retention.NotificationPending {
					pending++
				}
			}
			if len(list) != 3 || pending != 1 {
				t.Errorf("ListNotifications() = %d total, %d pending; want 3, 1", len(list), pending)
			}

			s.CancelNotifications(ctx, 1)
			st, err := s.Stats(ctx, day(2024, 6, 1))
			if err != nil {
				t.Fatalf("Stats() error = %v", err)
			}
			if st.PendingReminders != 0 || st.LogsByStatus["success"] != 2 || st.LastRun == nil {
				t.Errorf("Stats() = %+v", st)
			}
		})
	}
}

func fileIDs(records []*retention.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.FileID)
	}
	return out
}
