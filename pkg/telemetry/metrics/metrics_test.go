package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/saturn/pkg/config"
	"mercator-hq/saturn/pkg/retention"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:                true,
		Namespace:              "test",
		Subsystem:              "retention",
		RunDurationBuckets:     []float64{1, 10, 100},
		RequestDurationBuckets: []float64{0.01, 0.1, 1},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector.Registry() != registry {
		t.Error("Registry() did not return the provided registry")
	}
	if cfg.Namespace != "saturn" || cfg.Subsystem != "retention" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if len(cfg.RunDurationBuckets) == 0 || len(cfg.RequestDurationBuckets) == 0 {
		t.Error("bucket defaults not applied")
	}
}

func TestCollector_RecordRun(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	at := time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC)
	collector.now = func() time.Time { return at }

	collector.RecordRun("completed", false, 3*time.Second, 10, 2)
	collector.RecordRun("escalated", false, 5*time.Second, 8, 6)
	collector.RecordRun("completed", true, time.Second, 4, 0)
	collector.RecordRun("aborted", false, 0, 0, 0)

	rm := collector.runMetrics
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"completed runs", testutil.ToFloat64(rm.runsTotal.WithLabelValues("completed", "false")), 1},
		{"escalated runs", testutil.ToFloat64(rm.runsTotal.WithLabelValues("escalated", "false")), 1},
		{"dry runs", testutil.ToFloat64(rm.runsTotal.WithLabelValues("completed", "true")), 1},
		{"aborted runs", testutil.ToFloat64(rm.runsTotal.WithLabelValues("aborted", "false")), 1},
		{"processed", testutil.ToFloat64(rm.processedTotal.WithLabelValues("false")), 18},
		{"errors", testutil.ToFloat64(rm.errorsTotal.WithLabelValues("false")), 8},
		{"dry-run processed", testutil.ToFloat64(rm.processedTotal.WithLabelValues("true")), 4},
		{"last run", testutil.ToFloat64(rm.lastRunTimestamp.WithLabelValues("false")), float64(at.Unix())},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	// Aborted runs are not observed in the duration histogram.
	if n := testutil.CollectAndCount(rm.runDuration); n != 2 {
		t.Errorf("run duration series = %d, want 2", n)
	}
}

func TestCollector_RecordAction(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordAction("move", "success")
	collector.RecordAction("move", "success")
	collector.RecordAction("delete", "failed")
	collector.RecordAction("", "failed")

	am := collector.actionMetrics
	if got := testutil.ToFloat64(am.actionsTotal.WithLabelValues("move", "success")); got != 2 {
		t.Errorf("move/success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(am.actionsTotal.WithLabelValues("delete", "failed")); got != 1 {
		t.Errorf("delete/failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(am.actionsTotal.WithLabelValues("unknown", "failed")); got != 1 {
		t.Errorf("unknown/failed = %v, want 1", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, prometheus.NewRegistry())

	collector.RecordRun("completed", false, time.Second, 1, 0)
	collector.RecordAction("move", "success")
	collector.RecordHTTPRequest("GET", "/api/v1/policies", 200, time.Millisecond)

	if n := testutil.CollectAndCount(collector.runMetrics.runsTotal); n != 0 {
		t.Errorf("runs recorded while disabled: %d", n)
	}
	if n := testutil.CollectAndCount(collector.actionMetrics.actionsTotal); n != 0 {
		t.Errorf("actions recorded while disabled: %d", n)
	}
	if n := testutil.CollectAndCount(collector.httpMetrics.requestsTotal); n != 0 {
		t.Errorf("requests recorded while disabled: %d", n)
	}
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordHTTPRequest("GET", "/api/v1/policies/{id}", 200, 20*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/api/v1/policies/{id}", 404, 5*time.Millisecond)
	collector.RecordHTTPRequest("GET", "", 404, time.Millisecond)

	hm := collector.httpMetrics
	if got := testutil.ToFloat64(hm.requestsTotal.WithLabelValues("GET", "/api/v1/policies/{id}", "404")); got != 1 {
		t.Errorf("404 count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(hm.requestsTotal.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched count = %v, want 1", got)
	}
}

func TestCollector_RegisterStats(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	err := collector.RegisterStats(func(ctx context.Context) (*retention.Stats, error) {
		return &retention.Stats{
			TotalPolicies:    3,
			ActivePolicies:   2,
			RecordsByStatus:  map[string]int64{"active": 7, "processed": 4},
			DueRecords:       1,
			PendingReminders: 5,
		}, nil
	}, time.Second)
	if err != nil {
		t.Fatalf("RegisterStats() error = %v", err)
	}

	expected := `
# HELP test_retention_due_records Number of active records whose expire date has passed
# TYPE test_retention_due_records gauge
test_retention_due_records 1
# HELP test_retention_policies Number of retention policies by state
# TYPE test_retention_policies gauge
test_retention_policies{state="active"} 2
test_retention_policies{state="inactive"} 1
# HELP test_retention_records Number of retention records by status
# TYPE test_retention_records gauge
test_retention_records{status="active"} 7
test_retention_records{status="cancelled"} 0
test_retention_records{status="processed"} 4
test_retention_records{status="processing"} 0
`
	err = testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected),
		"test_retention_due_records", "test_retention_policies", "test_retention_records")
	if err != nil {
		t.Error(err)
	}
}

func TestCollector_RegisterStats_Error(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	if err := collector.RegisterStats(func(ctx context.Context) (*retention.Stats, error) {
		return nil, errors.New("database is locked")
	}, 0); err != nil {
		t.Fatal(err)
	}

	// A failing stats source yields no samples rather than a scrape error.
	if n, err := testutil.GatherAndCount(collector.Registry(), "test_retention_records"); err != nil || n != 0 {
		t.Errorf("GatherAndCount() = %d, %v; want 0, nil", n, err)
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.RecordAction("archive", "success")

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_retention_actions_total{action="archive",status="success"} 1`) {
		t.Errorf("metrics output missing action counter:\n%s", rec.Body.String())
	}
}
