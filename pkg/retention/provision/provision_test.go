package provision

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/policy"
	"mercator-hq/saturn/pkg/retention/store"
)

const policiesYAML = `
policies:
  - name: finance-7y
    default_action: archive
    default_target_path: /archive/finance
    notify_before_days: 14
    auto_process: true
    allowed_retention_periods: ["7 years"]
    priority: 10
    file_type_filter: [".PDF", "xlsx"]
    containers: [payroll, finance, finance]
  - name: scratch
    default_action: delete
    allowed_retention_periods: ["30 days"]
`

func newSyncer() (*Syncer, *policy.Service) {
	svc := policy.NewService(store.NewMemoryStore(), nil)
	return NewSyncer(svc), svc
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    int
		wantErr bool
	}{
		{"valid", policiesYAML, 2, false},
		{"empty", "", 0, false},
		{"unknown key", "policies:\n  - name: a\n    colour: red\n", 0, true},
		{"missing name", "policies:\n  - default_action: delete\n", 0, true},
		{"duplicate name", "policies:\n  - name: a\n  - name: ' a '\n", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(f.Policies) != tt.want {
				t.Errorf("Parse() policies = %d, want %d", len(f.Policies), tt.want)
			}
		})
	}
}

func TestSyncer_Sync(t *testing.T) {
	ctx := context.Background()
	syncer, svc := newSyncer()

	f, err := Parse([]byte(policiesYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	res, err := syncer.Sync(ctx, f)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(res.Created) != 2 || len(res.Assigned) != 1 {
		t.Errorf("first Sync() = %+v, want 2 created and 1 assigned", res)
	}

	pol, err := svc.GetPolicyByName(ctx, "finance-7y")
	if err != nil {
		t.Fatalf("GetPolicyByName() error = %v", err)
	}
	if !slices.Equal(pol.FileTypeFilter, []string{"pdf", "xlsx"}) {
		t.Errorf("FileTypeFilter = %v, want [pdf xlsx]", pol.FileTypeFilter)
	}
	containers, _ := svc.ContainersForPolicy(ctx, pol.ID)
	if !slices.Equal(containers, []string{"finance", "payroll"}) {
		t.Errorf("containers = %v, want [finance payroll]", containers)
	}

	res, err = syncer.Sync(ctx, f)
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if len(res.Unchanged) != 2 || len(res.Created)+len(res.Updated)+len(res.Assigned) != 0 {
		t.Errorf("second Sync() = %+v, want everything unchanged", res)
	}

	f.Policies[0].Priority = 20
	f.Policies[0].Containers = []string{"finance"}
	res, err = syncer.Sync(ctx, f)
	if err != nil {
		t.Fatalf("third Sync() error = %v", err)
	}
	if !slices.Equal(res.Updated, []string{"finance-7y"}) || !slices.Equal(res.Assigned, []string{"finance-7y"}) {
		t.Errorf("third Sync() = %+v, want finance-7y updated and reassigned", res)
	}
	pol, _ = svc.GetPolicy(ctx, pol.ID)
	if pol.Priority != 20 {
		t.Errorf("Priority = %d, want 20", pol.Priority)
	}
}

func TestSyncer_KeepsRuntimeToggle(t *testing.T) {
	ctx := context.Background()
	syncer, svc := newSyncer()
	f, _ := Parse([]byte(policiesYAML))

	if _, err := syncer.Sync(ctx, f); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	pol, _ := svc.GetPolicyByName(ctx, "scratch")
	if err := svc.ToggleActive(ctx, pol.ID, false); err != nil {
		t.Fatalf("ToggleActive() error = %v", err)
	}

	if _, err := syncer.Sync(ctx, f); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	pol, _ = svc.GetPolicy(ctx, pol.ID)
	if pol.IsActive {
		t.Error("IsActive = true after resync, want the runtime toggle kept")
	}
}

func TestSyncer_InvalidEntry(t *testing.T) {
	syncer, _ := newSyncer()
	f, _ := Parse([]byte("policies:\n  - name: bad\n    default_action: move\n"))

	_, err := syncer.Sync(context.Background(), f)
	if !retention.IsValidation(err) {
		t.Errorf("Sync() error = %v, want validation error", err)
	}
}

func TestDebouncer(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30 * time.Millisecond)

	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("callbacks = %d, want 1", got)
	}

	d.Stop()
	d.Trigger(func() { calls.Add(1) })
	time.Sleep(60 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("callbacks after Stop = %d, want 1", got)
	}
}

func TestProvisioner_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte(policiesYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	syncer, svc := newSyncer()
	p := New(path, syncer, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := p.Apply(ctx); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx) }()
	time.Sleep(50 * time.Millisecond)

	updated := policiesYAML + "  - name: added\n    default_action: delete\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := svc.GetPolicyByName(ctx, "added"); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if _, err := svc.GetPolicyByName(ctx, "added"); err != nil {
		t.Errorf("policy not provisioned after file change: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Watch() did not return after cancel")
	}
}
