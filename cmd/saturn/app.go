package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/saturn/pkg/cli"
	"mercator-hq/saturn/pkg/config"
	"mercator-hq/saturn/pkg/identity"
	"mercator-hq/saturn/pkg/retention/executor"
	"mercator-hq/saturn/pkg/retention/policy"
	"mercator-hq/saturn/pkg/retention/provision"
	"mercator-hq/saturn/pkg/retention/records"
	"mercator-hq/saturn/pkg/retention/resolver"
	"mercator-hq/saturn/pkg/retention/scheduler"
	"mercator-hq/saturn/pkg/retention/store"
	"mercator-hq/saturn/pkg/storage"
	"mercator-hq/saturn/pkg/telemetry/logging"
	"mercator-hq/saturn/pkg/telemetry/metrics"
	"mercator-hq/saturn/pkg/telemetry/tracing"
)

// app is the assembled retention engine.
type app struct {
	cfg        *config.Config
	store      store.Store
	files      storage.Backend
	identities identity.Provider
	resolver   *resolver.Resolver
	policies   *policy.Service
	records    *records.Manager
	executor   *executor.Executor
	processor  *scheduler.Processor
	metrics    *metrics.Collector
	tracer     *tracing.Tracer
}

// loadConfig returns the process configuration, loading it on first use.
func loadConfig() (*config.Config, error) {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg, nil
	}
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("config", err.Error())
	}
	return config.GetConfig(), nil
}

// setupLogging installs the root logger. One-shot commands log warnings
// only unless --verbose is set, so their output stays readable.
func setupLogging(cfg *config.Config, quiet bool) error {
	lc := logging.FromConfig(cfg.Telemetry.Logging)
	switch {
	case verbose:
		lc.Level = "debug"
	case quiet:
		lc.Level = "warn"
	}
	_, err := logging.Setup(lc)
	return err
}

// newApp wires every component from cfg.
func newApp(cfg *config.Config) (*app, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	files, err := openStorage(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a := &app{cfg: cfg, store: st, files: files, tracer: tracer}

	a.identities = identity.NewStaticProvider(&identity.Identity{
		ID:    cfg.Identity.ServiceAccount.ID,
		Name:  cfg.Identity.ServiceAccount.Name,
		Roles: cfg.Identity.ServiceAccount.Roles,
	}, cfg.Identity.RequiredRole)

	a.resolver = resolver.New(st, &resolver.Config{
		CacheSize: cfg.Resolver.CacheSize,
		CacheTTL:  cfg.Resolver.CacheTTL,
	})
	a.policies = policy.NewService(st, files, policy.WithChangeListener(a.resolver))
	a.records = records.NewManager(st, files, a.resolver)
	a.executor = executor.New(files, st, executor.Config{ActionTimeout: cfg.Scheduler.ActionTimeout})

	a.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
	if cfg.Telemetry.Metrics.Enabled {
		if err := a.metrics.RegisterStats(a.records.Stats, cfg.Telemetry.Health.CheckTimeout); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to register stats collector: %w", err)
		}
		if err := a.metrics.RegisterRuntimeCollectors(); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to register runtime collectors: %w", err)
		}
	}
	a.processor = scheduler.NewProcessor(st, a.executor, a.identities, &scheduler.Config{
		Schedule:       cfg.Scheduler.Schedule,
		ClaimTimeout:   cfg.Scheduler.ClaimTimeout,
		BatchLimit:     cfg.Scheduler.BatchLimit,
		ErrorThreshold: cfg.Scheduler.ErrorThreshold,
	},
		scheduler.WithRecorder(a.metrics),
		scheduler.WithEscalation(escalate),
	)

	return a, nil
}

// withApp loads configuration, wires the engine for a one-shot command and
// runs fn with a context cancelled on interrupt.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := setupLogging(cfg, true); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
	return fn(ctx, a)
}

// Close flushes pending spans and releases the store.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		slog.Warn("failed to flush traces", "error", err)
	}
	return a.store.Close()
}

// syncPolicies applies the provisioning file when one is configured.
func (a *app) syncPolicies(ctx context.Context) (*provision.Provisioner, error) {
	path := a.cfg.Provisioning.PoliciesFile
	if path == "" {
		return nil, nil
	}
	p := provision.New(path, provision.NewSyncer(a.policies), a.cfg.Provisioning.DebounceInterval)
	if _, err := p.Apply(ctx); err != nil {
		return nil, fmt.Errorf("failed to provision policies: %w", err)
	}
	return p, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	st, err := store.NewSQLStore(&store.SQLConfig{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Database.Driver, err)
	}
	return st, nil
}

func openStorage(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "s3":
		s3 := cfg.Storage.S3
		return storage.NewS3Backend(storage.S3Config{
			Bucket:          s3.Bucket,
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			UsePathStyle:    s3.UsePathStyle,
		})
	case "memory":
		return storage.NewMemoryBackend(), nil
	default:
		return storage.NewLocalBackend(storage.LocalConfig{
			Root:            cfg.Storage.Local.Root,
			RequireIdentity: cfg.Storage.Local.RequireIdentity,
		})
	}
}

// escalate reports a run whose failures crossed the error threshold.
func escalate(ctx context.Context, report *scheduler.RunReport) {
	slog.ErrorContext(ctx, "retention run exceeded error threshold",
		"total_errors", report.TotalErrors,
		"total_processed", report.TotalProcessed,
	)
}
