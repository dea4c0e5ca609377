// Package metrics provides Prometheus metrics collection for Saturn.
//
// # Metrics Categories
//
//   - Run Metrics: batch run count by outcome, duration, records handled
//     and failed, time of the last run
//   - Action Metrics: disposal actions by action and status
//   - HTTP Metrics: API request count and duration by route
//   - Stats: record, policy and notification gauges computed at scrape time
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	// The collector is the batch processor's recorder.
//	processor := scheduler.NewProcessor(st, ex, ids, schedCfg,
//		scheduler.WithRecorder(collector))
//
//	// Gauges backed by the store.
//	collector.RegisterStats(func(ctx context.Context) (*retention.Stats, error) {
//		return st.Stats(ctx, time.Now())
//	}, 5*time.Second)
//
//	// Expose metrics.
//	router.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// All recording methods are no-ops when metrics are disabled.
package metrics
