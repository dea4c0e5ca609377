package metrics

import (
	"strconv"
	"time"

	"mercator-hq/saturn/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics tracks retention batch runs.
//
// Metrics:
//   - saturn_retention_runs_total: Batch runs by outcome and dry-run flag
//   - saturn_retention_run_duration_seconds: Batch run duration histogram
//   - saturn_retention_records_processed_total: Records handled by runs
//   - saturn_retention_record_errors_total: Records that failed in runs
//   - saturn_retention_last_run_timestamp_seconds: Unix time of the last finished run
type RunMetrics struct {
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	processedTotal   *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	lastRunTimestamp *prometheus.GaugeVec
}

// NewRunMetrics creates and registers run metrics with the provided registry.
func NewRunMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RunMetrics {
	rm := &RunMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "runs_total",
				Help:      "Total number of retention batch runs",
			},
			[]string{"outcome", "dry_run"},
		),

		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "run_duration_seconds",
				Help:      "Duration of retention batch runs in seconds",
				Buckets:   cfg.RunDurationBuckets,
			},
			[]string{"dry_run"},
		),

		processedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "records_processed_total",
				Help:      "Total number of retention records handled by batch runs",
			},
			[]string{"dry_run"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "record_errors_total",
				Help:      "Total number of retention records that failed in batch runs",
			},
			[]string{"dry_run"},
		),

		lastRunTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix timestamp of the last finished batch run",
			},
			[]string{"dry_run"},
		),
	}

	registry.MustRegister(
		rm.runsTotal,
		rm.runDuration,
		rm.processedTotal,
		rm.errorsTotal,
		rm.lastRunTimestamp,
	)

	return rm
}

// RecordRun records a finished batch run. Aborted runs only count towards
// runs_total.
func (rm *RunMetrics) RecordRun(outcome string, dryRun bool, duration time.Duration, processed, errors int, at time.Time) {
	dry := strconv.FormatBool(dryRun)
	rm.runsTotal.WithLabelValues(outcome, dry).Inc()
	if outcome == "aborted" {
		return
	}

	rm.runDuration.WithLabelValues(dry).Observe(duration.Seconds())
	rm.processedTotal.WithLabelValues(dry).Add(float64(processed))
	rm.errorsTotal.WithLabelValues(dry).Add(float64(errors))
	rm.lastRunTimestamp.WithLabelValues(dry).Set(float64(at.Unix()))
}

// ActionMetrics tracks individual disposal actions.
//
// Metrics:
//   - saturn_retention_actions_total: Disposal actions by action and status
type ActionMetrics struct {
	actionsTotal *prometheus.CounterVec
}

// NewActionMetrics creates and registers action metrics with the provided registry.
func NewActionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ActionMetrics {
	am := &ActionMetrics{
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "actions_total",
				Help:      "Total number of disposal actions by action and status",
			},
			[]string{"action", "status"},
		),
	}

	registry.MustRegister(am.actionsTotal)

	return am
}

// RecordAction records one disposal action.
func (am *ActionMetrics) RecordAction(action, status string) {
	if action == "" {
		action = "unknown"
	}
	am.actionsTotal.WithLabelValues(action, status).Inc()
}
