package metrics

import (
	"context"
	"log/slog"
	"time"

	"mercator-hq/saturn/pkg/config"
	"mercator-hq/saturn/pkg/retention"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the main orchestrator for all Prometheus metrics in Saturn.
// It manages metric registration and provides a unified interface for
// recording metrics across components.
//
// Collector satisfies the scheduler's Recorder interface, so it can be
// handed directly to the batch processor.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry
	now      func() time.Time

	runMetrics    *RunMetrics
	actionMetrics *ActionMetrics
	httpMetrics   *HTTPMetrics
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a new registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "saturn",
//		Subsystem: "retention",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RunDurationBuckets) == 0 {
		// Batch runs take seconds to an hour.
		cfg.RunDurationBuckets = []float64{1, 5, 15, 60, 300, 900, 3600}
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = prometheus.DefBuckets
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
		now:      time.Now,
	}

	c.runMetrics = NewRunMetrics(cfg, registry)
	c.actionMetrics = NewActionMetrics(cfg, registry)
	c.httpMetrics = NewHTTPMetrics(cfg, registry)

	return c
}

// RecordRun records a finished batch run.
//
// Parameters:
//   - outcome: "completed", "escalated", "failed" or "aborted"
//   - dryRun: whether the run was a dry run
//   - duration: wall-clock duration of the run
//   - processed, errors: per-run totals
func (c *Collector) RecordRun(outcome string, dryRun bool, duration time.Duration, processed, errors int) {
	if !c.config.Enabled {
		return
	}

	c.runMetrics.RecordRun(outcome, dryRun, duration, processed, errors, c.now())
}

// RecordAction records one disposal action.
//
// Parameters:
//   - action: "move", "archive" or "delete"
//   - status: "success", "failed" or "skipped"
func (c *Collector) RecordAction(action, status string) {
	if !c.config.Enabled {
		return
	}

	c.actionMetrics.RecordAction(action, status)
}

// RecordHTTPRequest records a completed API request.
func (c *Collector) RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	c.httpMetrics.RecordRequest(method, route, code, duration)
}

// StatsFunc returns the current retention statistics.
type StatsFunc func(ctx context.Context) (*retention.Stats, error)

// RegisterStats exposes record, policy and notification counts, computed by
// fn at scrape time. Each scrape queries fn once, bounded by timeout.
func (c *Collector) RegisterStats(fn StatsFunc, timeout time.Duration) error {
	return c.registry.Register(newStatsCollector(c.config, fn, timeout))
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// statsCollector is a prometheus.Collector over a StatsFunc.
type statsCollector struct {
	fn      StatsFunc
	timeout time.Duration
	logger  *slog.Logger

	records       *prometheus.Desc
	due           *prometheus.Desc
	policies      *prometheus.Desc
	notifications *prometheus.Desc
}

func newStatsCollector(cfg *config.MetricsConfig, fn StatsFunc, timeout time.Duration) *statsCollector {
	name := func(n string) string {
		return prometheus.BuildFQName(cfg.Namespace, cfg.Subsystem, n)
	}
	return &statsCollector{
		fn:      fn,
		timeout: timeout,
		logger:  slog.Default().With("component", "metrics.stats"),
		records: prometheus.NewDesc(name("records"),
			"Number of retention records by status", []string{"status"}, nil),
		due: prometheus.NewDesc(name("due_records"),
			"Number of active records whose expire date has passed", nil, nil),
		policies: prometheus.NewDesc(name("policies"),
			"Number of retention policies by state", []string{"state"}, nil),
		notifications: prometheus.NewDesc(name("pending_notifications"),
			"Number of scheduled notifications not yet sent", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (s *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.records
	ch <- s.due
	ch <- s.policies
	ch <- s.notifications
}

// Collect implements prometheus.Collector.
func (s *statsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	stats, err := s.fn(ctx)
	if err != nil {
		s.logger.Warn("failed to collect retention stats", "error", err)
		return
	}

	for _, status := range []retention.RecordStatus{
		retention.StatusActive, retention.StatusProcessing,
		retention.StatusProcessed, retention.StatusCancelled,
	} {
		ch <- prometheus.MustNewConstMetric(s.records, prometheus.GaugeValue,
			float64(stats.RecordsByStatus[string(status)]), string(status))
	}
	ch <- prometheus.MustNewConstMetric(s.due, prometheus.GaugeValue, float64(stats.DueRecords))
	ch <- prometheus.MustNewConstMetric(s.policies, prometheus.GaugeValue,
		float64(stats.ActivePolicies), "active")
	ch <- prometheus.MustNewConstMetric(s.policies, prometheus.GaugeValue,
		float64(stats.TotalPolicies-stats.ActivePolicies), "inactive")
	ch <- prometheus.MustNewConstMetric(s.notifications, prometheus.GaugeValue, float64(stats.PendingReminders))
}
