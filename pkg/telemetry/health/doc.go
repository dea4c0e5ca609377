// Package health provides liveness and readiness probes.
//
// Liveness only confirms the process is serving HTTP. Readiness runs every
// registered component check concurrently, each bounded by the check
// timeout, and answers 503 when any of them fails.
//
// # Usage
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.Register("database", health.StoreCheck(st))
//	checker.Register("storage", health.StorageCheck(backend))
//	checker.Register("scheduler", health.SchedulerCheck(sched.IsRunning))
//
//	router.Get("/health", checker.LivenessHandler())
//	router.Get("/ready", checker.ReadinessHandler())
package health
