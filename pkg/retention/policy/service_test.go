package policy

import (
	"context"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/store"
)

type fakeContainers []string

func (f fakeContainers) ListContainers(ctx context.Context) ([]string, error) {
	return f, nil
}

type countingListener struct{ n int }

func (c *countingListener) PoliciesChanged() { c.n++ }

func fixedClock() time.Time {
	return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
}

func validInput(name string) Input {
	return Input{
		Name:                    name,
		DefaultAction:           retention.ActionMove,
		DefaultTargetPath:       "/Archive/Legal",
		NotifyBeforeDays:        14,
		AutoProcess:             true,
		AllowedRetentionPeriods: []string{"5 years"},
		RequireJustification:    true,
		Priority:                10,
		FileTypeFilter:          []string{".PDF"},
	}
}

func newTestService(containers ContainerLister) (*Service, *store.MemoryStore, *countingListener) {
	st := store.NewMemoryStore()
	l := &countingListener{}
	return NewService(st, containers, WithClock(fixedClock), WithChangeListener(l)), st, l
}

func TestService_CreatePolicyValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Input)
		wantErr bool
	}{
		{"valid", func(in *Input) {}, false},
		{"delete needs no target", func(in *Input) { in.DefaultAction = retention.ActionDelete; in.DefaultTargetPath = "" }, false},
		{"missing name", func(in *Input) { in.Name = "  " }, true},
		{"unknown action", func(in *Input) { in.DefaultAction = "shred" }, true},
		{"move without target", func(in *Input) { in.DefaultTargetPath = "" }, true},
		{"archive without target", func(in *Input) { in.DefaultAction = retention.ActionArchive; in.DefaultTargetPath = "" }, true},
		{"empty allowed period", func(in *Input) { in.AllowedRetentionPeriods = []string{"1 year", ""} }, true},
		{"unparseable allowed period", func(in *Input) { in.AllowedRetentionPeriods = []string{"forever"} }, true},
		{"negative notify", func(in *Input) { in.NotifyBeforeDays = -1 }, true},
		{"bad glob", func(in *Input) { in.PathFilter = "/C42/[" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(nil)
			in := validInput("Legal-5y")
			tt.mutate(&in)

			id, err := svc.CreatePolicy(context.Background(), in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreatePolicy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !retention.IsValidation(err) {
					t.Errorf("CreatePolicy() error type = %T, want *ValidationError", err)
				}
				return
			}
			if id == 0 {
				t.Error("CreatePolicy() returned zero id")
			}
		})
	}
}

func TestService_CreatePolicyNormalizes(t *testing.T) {
	svc, _, l := newTestService(nil)
	ctx := context.Background()

	id, err := svc.CreatePolicy(ctx, validInput("Legal-5y"))
	if err != nil {
		t.Fatalf("CreatePolicy() error = %v", err)
	}
	pol, _ := svc.GetPolicy(ctx, id)
	if !pol.IsActive {
		t.Error("new policy should default to active")
	}
	if pol.FileTypeFilter[0] != "pdf" {
		t.Errorf("FileTypeFilter = %v, want [pdf]", pol.FileTypeFilter)
	}
	if !pol.CreatedAt.Equal(fixedClock()) {
		t.Errorf("CreatedAt = %v, want %v", pol.CreatedAt, fixedClock())
	}
	if l.n != 1 {
		t.Errorf("listener called %d times, want 1", l.n)
	}

	if _, err := svc.CreatePolicy(ctx, validInput("Legal-5y")); !retention.IsConflict(err) {
		t.Errorf("CreatePolicy(duplicate name) error = %v, want ConflictError", err)
	}
}

func TestService_UpdatePolicyMerges(t *testing.T) {
	svc, _, _ := newTestService(nil)
	ctx := context.Background()
	id, _ := svc.CreatePolicy(ctx, validInput("Legal-5y"))

	priority := 42
	ok, err := svc.UpdatePolicy(ctx, id, Patch{Priority: &priority})
	if err != nil || !ok {
		t.Fatalf("UpdatePolicy() = %v, %v", ok, err)
	}

	pol, _ := svc.GetPolicy(ctx, id)
	if pol.Priority != 42 {
		t.Errorf("Priority = %d, want 42", pol.Priority)
	}
	if pol.DefaultTargetPath != "/Archive/Legal" || !pol.RequireJustification || len(pol.AllowedRetentionPeriods) != 1 {
		t.Errorf("UpdatePolicy() reset untouched fields: %+v", pol)
	}

	empty := ""
	if _, err := svc.UpdatePolicy(ctx, id, Patch{DefaultTargetPath: &empty}); !retention.IsValidation(err) {
		t.Errorf("UpdatePolicy(clear target on move) error = %v, want ValidationError", err)
	}
	if _, err := svc.UpdatePolicy(ctx, 999, Patch{Priority: &priority}); !retention.IsNotFound(err) {
		t.Errorf("UpdatePolicy(unknown) error = %v, want NotFoundError", err)
	}
}

func TestService_AssignContainersReplaces(t *testing.T) {
	svc, _, _ := newTestService(fakeContainers{"C1", "C2", "C3", "C42"})
	ctx := context.Background()
	id, _ := svc.CreatePolicy(ctx, validInput("Legal-5y"))

	svc.AssignContainers(ctx, id, []string{"C1", "C2"})
	ok, err := svc.AssignContainers(ctx, id, []string{"C2", "C42", "C42", " "})
	if err != nil || !ok {
		t.Fatalf("AssignContainers() = %v, %v", ok, err)
	}

	got, _ := svc.ContainersForPolicy(ctx, id)
	if len(got) != 2 || got[0] != "C2" || got[1] != "C42" {
		t.Errorf("ContainersForPolicy() = %v, want [C2 C42]", got)
	}

	without, err := svc.ContainersWithoutPolicy(ctx)
	if err != nil {
		t.Fatalf("ContainersWithoutPolicy() error = %v", err)
	}
	if len(without) != 2 || without[0] != "C1" || without[1] != "C3" {
		t.Errorf("ContainersWithoutPolicy() = %v, want [C1 C3]", without)
	}

	if _, err := svc.AssignContainers(ctx, 999, []string{"C1"}); !retention.IsNotFound(err) {
		t.Errorf("AssignContainers(unknown) error = %v, want NotFoundError", err)
	}
}

func TestService_PoliciesForContainerOrder(t *testing.T) {
	svc, _, _ := newTestService(nil)
	ctx := context.Background()

	mk := func(name string, prio int) int64 {
		in := validInput(name)
		in.Priority = prio
		id, err := svc.CreatePolicy(ctx, in)
		if err != nil {
			t.Fatalf("CreatePolicy(%s) error = %v", name, err)
		}
		svc.AssignContainers(ctx, id, []string{"C42"})
		return id
	}
	low := mk("low", 1)
	first := mk("first", 5)
	second := mk("second", 5)

	pols, _ := svc.PoliciesForContainer(ctx, "C42")
	want := []int64{first, second, low}
	for i, p := range pols {
		if p.ID != want[i] {
			t.Errorf("PoliciesForContainer()[%d] = %d, want %d", i, p.ID, want[i])
		}
	}
}

func TestService_DeletePolicyBlockedByActiveRecords(t *testing.T) {
	svc, st, _ := newTestService(nil)
	ctx := context.Background()
	id, _ := svc.CreatePolicy(ctx, validInput("Legal-5y"))
	svc.AssignContainers(ctx, id, []string{"C42"})

	rec := &retention.Record{FileID: "F1", PolicyID: id, Status: retention.StatusActive}
	st.SaveRecord(ctx, rec)

	if err := svc.DeletePolicy(ctx, id); !retention.IsConflict(err) {
		t.Fatalf("DeletePolicy() with active record error = %v, want ConflictError", err)
	}

	st.CancelRecord(ctx, rec.ID, fixedClock())
	if err := svc.DeletePolicy(ctx, id); err != nil {
		t.Fatalf("DeletePolicy() error = %v", err)
	}
	if _, err := svc.GetPolicy(ctx, id); !retention.IsNotFound(err) {
		t.Errorf("GetPolicy(deleted) error = %v, want NotFoundError", err)
	}
	if pols, _ := svc.PoliciesForContainer(ctx, "C42"); len(pols) != 0 {
		t.Errorf("assignments survived policy deletion: %v", pols)
	}
	if err := svc.DeletePolicy(ctx, id); !retention.IsNotFound(err) {
		t.Errorf("DeletePolicy(twice) error = %v, want NotFoundError", err)
	}
}

func TestService_ToggleActive(t *testing.T) {
	svc, _, l := newTestService(nil)
	ctx := context.Background()
	id, _ := svc.CreatePolicy(ctx, validInput("Legal-5y"))

	if err := svc.ToggleActive(ctx, id, false); err != nil {
		t.Fatalf("ToggleActive() error = %v", err)
	}
	pol, _ := svc.GetPolicy(ctx, id)
	if pol.IsActive {
		t.Error("ToggleActive(false) did not deactivate")
	}
	if l.n != 2 {
		t.Errorf("listener called %d times, want 2", l.n)
	}
	if err := svc.ToggleActive(ctx, 999, true); !retention.IsNotFound(err) {
		t.Errorf("ToggleActive(unknown) error = %v, want NotFoundError", err)
	}
}

func TestMatchesPath(t *testing.T) {
	tests := []struct {
		filter string
		path   string
		want   bool
	}{
		{"", "/anything/at/all.txt", true},
		{"/C42/legal", "/C42/legal/a.pdf", true},
		{"/C42/legal", "/C42/legal", true},
		{"/C42/legal/", "/C42/legal/sub/a.pdf", true},
		{"/C42/legal", "/C42/legal-old/a.pdf", false},
		{"C42/legal", "/C42/legal/a.pdf", true},
		{"/C42/*/x.pdf", "/C42/contracts/x.pdf", true},
		{"/C42/contracts/*", "/C42/contracts/sub/deep.pdf", true},
		{"/C42/*.pdf", "/C42/a.docx", false},
		{"/C9/*", "/C42/a.pdf", false},
	}

	for _, tt := range tests {
		pol := &retention.Policy{PathFilter: tt.filter}
		if got := MatchesPath(pol, tt.path); got != tt.want {
			t.Errorf("MatchesPath(%q, %q) = %v, want %v", tt.filter, tt.path, got, tt.want)
		}
	}
}

func TestMatchesType(t *testing.T) {
	pol := &retention.Policy{FileTypeFilter: []string{"pdf", "DOCX"}}
	tests := []struct {
		ext  string
		want bool
	}{
		{"pdf", true},
		{".PDF", true},
		{"docx", true},
		{"txt", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := MatchesType(pol, tt.ext); got != tt.want {
			t.Errorf("MatchesType(%q) = %v, want %v", tt.ext, got, tt.want)
		}
	}
	if !MatchesType(&retention.Policy{}, "anything") {
		t.Error("MatchesType() with empty filter should match")
	}
}
