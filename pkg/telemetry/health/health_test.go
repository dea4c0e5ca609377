package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeLister struct{ err error }

func (f fakeLister) ListContainers(ctx context.Context) ([]string, error) {
	return []string{"C42"}, f.err
}

func TestChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantStatus string
		wantFailed []string
	}{
		{
			name:       "no checks",
			checks:     nil,
			wantStatus: StatusReady,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"database":  StoreCheck(fakePinger{}),
				"storage":   StorageCheck(fakeLister{}),
				"scheduler": SchedulerCheck(func() bool { return true }),
			},
			wantStatus: StatusReady,
		},
		{
			name: "storage unhealthy",
			checks: map[string]CheckFunc{
				"database": StoreCheck(fakePinger{}),
				"storage":  StorageCheck(fakeLister{err: errors.New("permission denied")}),
			},
			wantStatus: StatusDegraded,
			wantFailed: []string{"storage"},
		},
		{
			name: "scheduler stopped",
			checks: map[string]CheckFunc{
				"scheduler": SchedulerCheck(func() bool { return false }),
			},
			wantStatus: StatusDegraded,
			wantFailed: []string{"scheduler"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(time.Second)
			for name, check := range tt.checks {
				checker.Register(name, check)
			}

			report := checker.Readiness(context.Background())
			if report.Status != tt.wantStatus {
				t.Errorf("Readiness().Status = %q, want %q", report.Status, tt.wantStatus)
			}
			if len(report.Checks) != len(tt.checks) {
				t.Errorf("Readiness().Checks = %d entries, want %d", len(report.Checks), len(tt.checks))
			}
			for _, name := range tt.wantFailed {
				if r := report.Checks[name]; r.Status != StatusUnhealthy || r.Message == "" {
					t.Errorf("check %s = %+v, want unhealthy with message", name, r)
				}
			}
		})
	}
}

func TestChecker_Timeout(t *testing.T) {
	checker := New(20 * time.Millisecond)
	checker.Register("database", func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	})

	start := time.Now()
	report := checker.Readiness(context.Background())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Readiness() took %v, want bounded by the check timeout", elapsed)
	}
	if got := report.Checks["database"].Message; got != ErrCheckTimeout.Error() {
		t.Errorf("message = %q, want %q", got, ErrCheckTimeout.Error())
	}
}

func TestChecker_Names(t *testing.T) {
	checker := New(0)
	checker.Register("storage", StorageCheck(fakeLister{}))
	checker.Register("database", StoreCheck(fakePinger{}))
	checker.Register("database", StoreCheck(fakePinger{}))

	names := checker.Names()
	if len(names) != 2 || names[0] != "database" || names[1] != "storage" {
		t.Errorf("Names() = %v, want [database storage]", names)
	}
}

func TestHandlers(t *testing.T) {
	checker := New(time.Second)
	checker.Register("database", StoreCheck(fakePinger{err: errors.New("connection refused")}))

	tests := []struct {
		name     string
		handler  http.HandlerFunc
		method   string
		wantCode int
		wantBody string
	}{
		{"liveness ok despite failing check", checker.LivenessHandler(), http.MethodGet, http.StatusOK, StatusOK},
		{"readiness degraded", checker.ReadinessHandler(), http.MethodGet, http.StatusServiceUnavailable, StatusDegraded},
		{"head has no body", checker.LivenessHandler(), http.MethodHead, http.StatusOK, ""},
		{"post rejected", checker.LivenessHandler(), http.MethodPost, http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(tt.method, "/", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody == "" {
				if tt.method == http.MethodHead && rec.Body.Len() != 0 {
					t.Errorf("HEAD body = %q, want empty", rec.Body.String())
				}
				return
			}
			var report Report
			if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
				t.Fatalf("body is not a report: %v", err)
			}
			if report.Status != tt.wantBody {
				t.Errorf("report status = %q, want %q", report.Status, tt.wantBody)
			}
		})
	}
}
