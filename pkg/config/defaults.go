package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultServerEnabled   = true
	DefaultListenAddress   = "127.0.0.1:8090"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultCORSMaxAge      = 300
	DefaultTLSMinVersion   = "1.3"
	DefaultTLSReload       = 5 * time.Minute

	// Database defaults
	DefaultDatabaseDriver       = "sqlite3"
	DefaultDatabasePath         = "data/saturn.db"
	DefaultDatabaseMaxOpenConns = 10
	DefaultDatabaseMaxIdleConns = 5
	DefaultDatabaseBusyTimeout  = 5 * time.Second
	DefaultPostgresPort         = 5432
	DefaultPostgresSSLMode      = "require"

	// Storage defaults
	DefaultStorageBackend       = "local"
	DefaultLocalRoot            = "data/files"
	DefaultLocalRequireIdentity = true
	DefaultS3Region             = "us-east-1"

	// Scheduler defaults
	DefaultSchedulerEnabled = true
	DefaultSchedule         = "0 2 * * *"
	DefaultClaimTimeout     = time.Hour
	DefaultErrorThreshold   = 5

	// Resolver defaults
	DefaultResolverCacheSize = 1024
	DefaultResolverCacheTTL  = 5 * time.Minute

	// Identity defaults
	DefaultServiceAccountID   = "saturn"
	DefaultServiceAccountName = "Saturn retention service"
	DefaultRequiredRole       = "retention-admin"

	// Auth defaults
	DefaultUserClaim   = "sub"
	MinAPIKeyLength    = 16
	MinJWTSecretLength = 32

	// Provisioning defaults
	DefaultProvisioningDebounce = 200 * time.Millisecond

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsEnabled   = true
	DefaultPrometheusPath   = "/metrics"
	DefaultMetricsNamespace = "saturn"
	DefaultMetricsSubsystem = "retention"
	DefaultLivenessPath     = "/health"
	DefaultReadinessPath    = "/ready"
	DefaultCheckTimeout     = 5 * time.Second
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingTimeout   = 10 * time.Second
	DefaultTracingSampler   = "ratio"
	DefaultSampleRatio      = 1.0
	DefaultServiceName      = "saturn"
)

// Default returns a configuration with every field set to its default,
// including the switches whose zero value means "disabled".
// LoadConfig decodes the YAML file on top of this value.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Enabled = DefaultServerEnabled
	cfg.Storage.Local.RequireIdentity = DefaultLocalRequireIdentity
	cfg.Scheduler.Enabled = DefaultSchedulerEnabled
	cfg.Scheduler.ClaimTimeout = DefaultClaimTimeout
	cfg.Resolver.CacheSize = DefaultResolverCacheSize
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.SampleRatio = DefaultSampleRatio
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field that has a non-zero default.
// Fields where zero means "disabled" are left untouched; see Default.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	applyCORSDefaults(&cfg.Server.CORS)
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Server.TLS.ReloadInterval == 0 {
		cfg.Server.TLS.ReloadInterval = DefaultTLSReload
	}

	// Database defaults
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DefaultDatabaseDriver
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDatabaseMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDatabaseMaxIdleConns
	}
	if cfg.Database.BusyTimeout == 0 {
		cfg.Database.BusyTimeout = DefaultDatabaseBusyTimeout
	}
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = DefaultPostgresPort
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = DefaultPostgresSSLMode
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.Local.Root == "" {
		cfg.Storage.Local.Root = DefaultLocalRoot
	}
	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = DefaultS3Region
	}

	// Scheduler defaults. ClaimTimeout, ActionTimeout and BatchLimit use 0
	// as "disabled", so only the schedule and threshold are filled.
	if cfg.Scheduler.Schedule == "" {
		cfg.Scheduler.Schedule = DefaultSchedule
	}
	if cfg.Scheduler.ErrorThreshold == 0 {
		cfg.Scheduler.ErrorThreshold = DefaultErrorThreshold
	}

	// Resolver defaults
	if cfg.Resolver.CacheTTL == 0 {
		cfg.Resolver.CacheTTL = DefaultResolverCacheTTL
	}

	// Identity defaults
	if cfg.Identity.ServiceAccount.ID == "" {
		cfg.Identity.ServiceAccount.ID = DefaultServiceAccountID
	}
	if cfg.Identity.ServiceAccount.Name == "" {
		cfg.Identity.ServiceAccount.Name = DefaultServiceAccountName
	}
	if cfg.Identity.RequiredRole == "" {
		cfg.Identity.RequiredRole = DefaultRequiredRole
	}
	if len(cfg.Identity.ServiceAccount.Roles) == 0 {
		cfg.Identity.ServiceAccount.Roles = []string{cfg.Identity.RequiredRole}
	}

	// Auth defaults
	if cfg.Auth.UserClaim == "" {
		cfg.Auth.UserClaim = DefaultUserClaim
	}

	// Provisioning defaults
	if cfg.Provisioning.DebounceInterval == 0 {
		cfg.Provisioning.DebounceInterval = DefaultProvisioningDebounce
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.RunDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RunDurationBuckets = []float64{1, 5, 15, 60, 300, 900, 3600}
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RequestDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	}
	if cfg.Telemetry.Health.LivenessPath == "" {
		cfg.Telemetry.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Telemetry.Health.ReadinessPath == "" {
		cfg.Telemetry.Health.ReadinessPath = DefaultReadinessPath
	}
	if cfg.Telemetry.Health.CheckTimeout == 0 {
		cfg.Telemetry.Health.CheckTimeout = DefaultCheckTimeout
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultServiceName
	}
}

func applyCORSDefaults(cors *CORSConfig) {
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID", "X-User-ID", "X-API-Key"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}
