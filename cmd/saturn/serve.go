package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/saturn/pkg/api"
	"mercator-hq/saturn/pkg/cli"
	"mercator-hq/saturn/pkg/retention/scheduler"
	"mercator-hq/saturn/pkg/server"
	"mercator-hq/saturn/pkg/telemetry/health"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	noScheduler   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the retention service",
	Long: `Start the HTTP API and the scheduled retention batch.

The service applies the provisioning file (if configured), starts the cron
scheduler and serves the API until interrupted.

Examples:
  # Start with defaults
  saturn serve

  # Start with a config file
  saturn serve --config /etc/saturn/config.yaml

  # Override listen address
  saturn serve --listen 0.0.0.0:9090

  # Validate config and wiring without serving
  saturn serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate configuration and exit")
	serveCmd.Flags().BoolVar(&serveFlags.noScheduler, "no-scheduler", false, "serve the API without scheduled processing")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
	}
	if err := setupLogging(cfg, false); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	a, err := newApp(cfg)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer a.Close()

	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	prov, err := a.syncPolicies(ctx)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	if prov != nil && cfg.Provisioning.Watch {
		go func() {
			if err := prov.Watch(ctx); err != nil {
				slog.Error("policy file watcher stopped", "error", err)
			}
		}()
	}

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.Register("database", health.StoreCheck(a.store))
	checker.Register("storage", health.StorageCheck(a.files))

	if cfg.Scheduler.Enabled && !serveFlags.noScheduler {
		sched := scheduler.NewScheduler(a.processor, cfg.Scheduler.Schedule)
		if err := sched.Start(ctx); err != nil {
			return cli.NewCommandError("serve", err)
		}
		defer sched.Stop()
		checker.Register("scheduler", health.SchedulerCheck(sched.IsRunning))
		if next := sched.NextRun(); next != nil {
			slog.Info("retention scheduler started", "schedule", cfg.Scheduler.Schedule, "next_run", next)
		}
	}

	if !cfg.Server.Enabled {
		slog.Info("HTTP API disabled, running scheduler only")
		<-ctx.Done()
		return nil
	}

	handler := api.NewRouter(cfg, api.Deps{
		Policies:  a.policies,
		Records:   a.records,
		Processor: a.processor,
		Logs:      a.store,
		Health:    checker,
		Metrics:   a.metrics.Handler(),
		Recorder:  a.metrics,
	})
	srv := server.New(&cfg.Server, handler)

	slog.Info("saturn starting",
		"version", Version,
		"listen_address", cfg.Server.ListenAddress,
		"database", cfg.Database.Driver,
		"storage", cfg.Storage.Backend,
		"auth_enabled", cfg.Auth.Enabled,
	)
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Server stopped")
	return nil
}
