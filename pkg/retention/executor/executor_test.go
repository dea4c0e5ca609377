package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/identity"
	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/store"
	"mercator-hq/saturn/pkg/storage"
)

type recordingBackend struct {
	*storage.MemoryBackend
	sawIdentity bool
}

func (b *recordingBackend) MoveFile(ctx context.Context, fileID, targetDir string) (string, error) {
	_, b.sawIdentity = identity.FromContext(ctx)
	return b.MemoryBackend.MoveFile(ctx, fileID, targetDir)
}

func setup(t *testing.T) (*Executor, *recordingBackend, *store.MemoryStore) {
	t.Helper()
	mem := storage.NewMemoryBackend()
	mem.AddFile("F100", "/C42/contracts/x.pdf")
	backend := &recordingBackend{MemoryBackend: mem}
	st := store.NewMemoryStore()
	ex := New(backend, st, Config{})
	ex.SetClock(func() time.Time { return time.Date(2029, 6, 2, 3, 0, 0, 0, time.UTC) })
	return ex, backend, st
}

func legal() *retention.Policy {
	return &retention.Policy{
		ID:                7,
		Name:              "Legal-5y",
		DefaultAction:     retention.ActionMove,
		DefaultTargetPath: "/Archive/Legal",
	}
}

func claimed() *retention.Record {
	return &retention.Record{
		ID:       1,
		FileID:   "F100",
		PolicyID: 7,
		FilePath: "/C42/contracts/x.pdf",
		Status:   retention.StatusProcessing,
	}
}

func logs(t *testing.T, st *store.MemoryStore) []*retention.LogEntry {
	t.Helper()
	entries, err := st.QueryLogs(context.Background(), &retention.LogQuery{})
	if err != nil {
		t.Fatal(err)
	}
	return entries
}

func TestExecute_Move(t *testing.T) {
	ex, backend, st := setup(t)
	exec := &identity.ExecutionContext{SessionID: "s1"}

	res := ex.Execute(context.Background(), exec, claimed(), legal(), "run-1", false)
	if res.Status != StatusSuccess {
		t.Fatalf("Execute() status = %s (%s), want success", res.Status, res.Message)
	}
	if res.TargetPath != "/Archive/Legal/x.pdf" {
		t.Errorf("TargetPath = %q", res.TargetPath)
	}
	if !backend.sawIdentity {
		t.Error("storage call did not carry the execution context")
	}

	entries := logs(t, st)
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Status != retention.LogSuccess || e.Action != "move" || e.RunID != "run-1" ||
		e.FilePath != "/C42/contracts/x.pdf" || e.TargetPath != "/Archive/Legal/x.pdf" {
		t.Errorf("log entry = %+v", e)
	}
}

func TestExecute_Precedence(t *testing.T) {
	tests := []struct {
		name       string
		action     retention.Action
		target     string
		wantAction retention.Action
		wantTarget string
	}{
		{"policy default", "", "", retention.ActionMove, "/Archive/Legal/x.pdf"},
		{"target override", "", "/Vault", retention.ActionMove, "/Vault/x.pdf"},
		{"archive override keeps default target", retention.ActionArchive, "", retention.ActionArchive, "/Archive/Legal/x.pdf"},
		{"delete override drops target", retention.ActionDelete, "/Vault", retention.ActionDelete, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, _, st := setup(t)
			rec := claimed()
			rec.ActionOverride = tt.action
			rec.TargetPathOverride = tt.target

			res := ex.Execute(context.Background(), nil, rec, legal(), "", false)
			if res.Status != StatusSuccess {
				t.Fatalf("Execute() = %s: %s", res.Status, res.Message)
			}
			if res.Action != tt.wantAction || res.TargetPath != tt.wantTarget {
				t.Errorf("Execute() = %s %q, want %s %q", res.Action, res.TargetPath, tt.wantAction, tt.wantTarget)
			}
			if got := logs(t, st)[0].Action; got != string(tt.wantAction) {
				t.Errorf("logged action = %s, want %s", got, tt.wantAction)
			}
		})
	}
}

func TestExecute_Delete(t *testing.T) {
	ex, backend, _ := setup(t)
	rec := claimed()
	pol := &retention.Policy{ID: 7, DefaultAction: retention.ActionDelete}

	res := ex.Execute(context.Background(), nil, rec, pol, "", false)
	if res.Status != StatusSuccess {
		t.Fatalf("Execute() = %s: %s", res.Status, res.Message)
	}
	if backend.Exists("F100") {
		t.Error("file still exists after delete")
	}
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*recordingBackend, *retention.Record, *retention.Policy)
		wantErr error
	}{
		{"missing file", func(b *recordingBackend, r *retention.Record, p *retention.Policy) { r.FileID = "gone" }, storage.ErrNotFound},
		{"permission", func(b *recordingBackend, r *retention.Record, p *retention.Policy) {
			b.FailOn("F100", storage.ErrPermission)
		}, storage.ErrPermission},
		{"no target", func(b *recordingBackend, r *retention.Record, p *retention.Policy) { p.DefaultTargetPath = "" }, storage.ErrInvalidTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, backend, st := setup(t)
			rec, pol := claimed(), legal()
			tt.prepare(backend, rec, pol)

			res := ex.Execute(context.Background(), nil, rec, pol, "", false)
			if res.Status != StatusFailed {
				t.Fatalf("Execute() status = %s, want failed", res.Status)
			}
			if !errors.Is(res.Err, tt.wantErr) || !retention.IsProcessing(res.Err) {
				t.Errorf("Execute() err = %v, want ProcessingError wrapping %v", res.Err, tt.wantErr)
			}
			entries := logs(t, st)
			if len(entries) != 1 || entries[0].Status != retention.LogFailed || entries[0].Message == "" {
				t.Errorf("log entries = %+v, want one failed entry with message", entries)
			}
		})
	}
}

func TestExecute_SkipsClosedRecords(t *testing.T) {
	for _, status := range []retention.RecordStatus{retention.StatusProcessed, retention.StatusCancelled} {
		ex, backend, st := setup(t)
		rec := claimed()
		rec.Status = status

		res := ex.Execute(context.Background(), nil, rec, legal(), "", false)
		if res.Status != StatusSkipped {
			t.Errorf("Execute(%s) status = %s, want skipped", status, res.Status)
		}
		if len(backend.Moves()) != 0 {
			t.Errorf("Execute(%s) called storage", status)
		}
		if entries := logs(t, st); len(entries) != 1 || entries[0].Status != retention.LogSkipped {
			t.Errorf("Execute(%s) log = %+v, want one skipped entry", status, entries)
		}
	}
}

func TestExecute_DryRun(t *testing.T) {
	ex, backend, st := setup(t)
	rec := claimed()
	rec.Status = retention.StatusActive

	res := ex.Execute(context.Background(), nil, rec, legal(), "", true)
	if res.Status != StatusPending || res.TargetPath != "/Archive/Legal/x.pdf" {
		t.Errorf("Execute(dry run) = %s %q, want pending /Archive/Legal/x.pdf", res.Status, res.TargetPath)
	}
	if len(backend.Moves()) != 0 || !backend.Exists("F100") {
		t.Error("dry run touched storage")
	}
	if entries := logs(t, st); len(entries) != 0 {
		t.Errorf("dry run wrote %d log entries", len(entries))
	}
}

func TestExecute_Timeout(t *testing.T) {
	mem := storage.NewMemoryBackend()
	mem.AddFile("F100", "/C42/contracts/x.pdf")
	st := store.NewMemoryStore()
	ex := New(&slowBackend{MemoryBackend: mem}, st, Config{ActionTimeout: 10 * time.Millisecond})

	res := ex.Execute(context.Background(), nil, claimed(), legal(), "", false)
	if res.Status != StatusFailed || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Execute() = %s %v, want failed with deadline exceeded", res.Status, res.Err)
	}
	if entries := logs(t, st); len(entries) != 1 {
		t.Errorf("log entries = %d, want 1 despite expired context", len(entries))
	}
}

type slowBackend struct {
	*storage.MemoryBackend
}

func (b *slowBackend) MoveFile(ctx context.Context, fileID, targetDir string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
