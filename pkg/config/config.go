package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration structure for Saturn.
// It contains all configuration sections for the API server, persistence,
// the storage backend, the retention scheduler and telemetry.
type Config struct {
	// Server contains HTTP API server configuration including listen address,
	// timeouts, and CORS.
	Server ServerConfig `yaml:"server"`

	// Database selects and configures the SQL store holding policies,
	// retention records and the processing log.
	Database DatabaseConfig `yaml:"database"`

	// Storage selects the file storage backend disposal actions run against.
	Storage StorageConfig `yaml:"storage"`

	// Scheduler contains configuration for background retention processing.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Resolver contains policy resolution cache settings.
	Resolver ResolverConfig `yaml:"resolver"`

	// Identity configures the privileged service account used by batch runs.
	Identity IdentityConfig `yaml:"identity"`

	// Auth configures bearer token authentication for the HTTP API.
	Auth AuthConfig `yaml:"auth"`

	// Provisioning configures declarative policy files.
	Provisioning ProvisioningConfig `yaml:"provisioning"`

	// Telemetry contains configuration for logging, metrics and health endpoints.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// Enabled controls whether the API server is started by "saturn run".
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address and port for the API to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8090", "0.0.0.0:8090").
	// Default: "127.0.0.1:8090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Log exports can be large, so keep this generous.
	// Default: 60s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`

	// TLS serves the API over HTTPS.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures HTTPS for the API server.
type TLSConfig struct {
	// Enabled serves HTTPS instead of plain HTTP.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the PEM-encoded certificate chain.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the lowest accepted protocol version ("1.2" or "1.3").
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// CipherSuites restricts TLS 1.2 cipher suites. Empty uses Go's defaults.
	CipherSuites []string `yaml:"cipher_suites"`

	// ReloadInterval is how often the key pair is checked for renewal.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods for CORS requests.
	// Default: ["GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers for CORS requests.
	// Default: ["Authorization", "Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight request cache.
	// Default: 300
	MaxAge int `yaml:"max_age"`

	// AllowCredentials controls whether credentials are allowed in CORS requests.
	// Default: false
	AllowCredentials bool `yaml:"allow_credentials"`
}

// DatabaseConfig contains configuration for the SQL store.
type DatabaseConfig struct {
	// Driver selects the database driver.
	// Options: "sqlite3" (cgo), "sqlite" (pure Go), "postgres"
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// Path is the database file for the SQLite drivers.
	// Default: "data/saturn.db"
	Path string `yaml:"path"`

	// Postgres contains PostgreSQL connection settings.
	// Only used when Driver is "postgres".
	Postgres PostgresConfig `yaml:"postgres"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `yaml:"host"`

	// Port is the PostgreSQL server port.
	// Default: 5432
	Port int `yaml:"port"`

	// Database is the database name.
	Database string `yaml:"database"`

	// User is the database user.
	User string `yaml:"user"`

	// Password is the database password.
	// Should be loaded from an environment variable.
	Password string `yaml:"password"`

	// SSLMode is the SSL mode for connections.
	// Options: "disable", "require", "verify-ca", "verify-full"
	// Default: "require"
	SSLMode string `yaml:"ssl_mode"`
}

// URL returns the postgres:// connection URL.
func (p PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": {p.SSLMode}}.Encode(),
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	return u.String()
}

// DSN returns the data source name for the configured driver: the file
// path for SQLite and a connection URL for PostgreSQL.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return d.Postgres.URL()
	}
	return d.Path
}

// StorageConfig selects the file storage backend.
type StorageConfig struct {
	// Backend is the storage backend type.
	// Options: "local", "s3", "memory"
	// Default: "local"
	Backend string `yaml:"backend"`

	// Local contains local filesystem backend configuration.
	Local LocalStorageConfig `yaml:"local"`

	// S3 contains S3 backend configuration.
	S3 S3StorageConfig `yaml:"s3"`
}

// LocalStorageConfig configures the local filesystem backend.
type LocalStorageConfig struct {
	// Root is the directory containing one subdirectory per container.
	// Default: "data/files"
	Root string `yaml:"root"`

	// RequireIdentity rejects mutations that do not carry an execution
	// context.
	// Default: true
	RequireIdentity bool `yaml:"require_identity"`
}

// S3StorageConfig configures the S3 backend. Containers are top-level
// key prefixes of the bucket.
type S3StorageConfig struct {
	// Bucket is the S3 bucket name.
	Bucket string `yaml:"bucket"`

	// Region is the AWS region.
	// Default: "us-east-1"
	Region string `yaml:"region"`

	// Endpoint is a custom endpoint for S3-compatible stores (MinIO etc.).
	Endpoint string `yaml:"endpoint"`

	// AccessKeyID and SecretAccessKey are static credentials.
	// Should be loaded from environment variables.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// UsePathStyle forces path-style addressing.
	// Default: false
	UsePathStyle bool `yaml:"use_path_style"`
}

// SchedulerConfig contains configuration for background retention processing.
type SchedulerConfig struct {
	// Enabled controls whether "saturn run" starts the cron scheduler.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression for batch runs.
	// Default: "0 2 * * *" (daily at 2 AM)
	Schedule string `yaml:"schedule"`

	// ClaimTimeout releases processing claims older than this at the start
	// of each run. 0 disables stale-claim recovery.
	// Default: 1h
	ClaimTimeout time.Duration `yaml:"claim_timeout"`

	// ActionTimeout bounds each storage call. 0 means no timeout.
	// Default: 0
	ActionTimeout time.Duration `yaml:"action_timeout"`

	// BatchLimit caps the records handled per run. 0 means unlimited.
	// Default: 0
	BatchLimit int `yaml:"batch_limit"`

	// ErrorThreshold is the number of failures above which a run escalates.
	// Default: 5
	ErrorThreshold int `yaml:"error_threshold"`
}

// ResolverConfig contains policy resolution cache settings.
type ResolverConfig struct {
	// CacheSize is the number of containers whose policy lists are cached.
	// 0 disables caching.
	// Default: 1024
	CacheSize int `yaml:"cache_size"`

	// CacheTTL bounds how long a cached list is served.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// IdentityConfig configures the privileged service account.
type IdentityConfig struct {
	// ServiceAccount is the identity batch runs execute as.
	ServiceAccount ServiceAccountConfig `yaml:"service_account"`

	// RequiredRole is the role the service account must hold.
	// Default: "retention-admin"
	RequiredRole string `yaml:"required_role"`
}

// ServiceAccountConfig describes a service account.
type ServiceAccountConfig struct {
	// ID is the account identifier written to the processing log.
	// Default: "saturn"
	ID string `yaml:"id"`

	// Name is a display name.
	// Default: "Saturn retention service"
	Name string `yaml:"name"`

	// Roles granted to the account.
	// Default: ["retention-admin"]
	Roles []string `yaml:"roles"`
}

// AuthConfig configures bearer token authentication for the HTTP API.
type AuthConfig struct {
	// Enabled requires a valid bearer token on every API route except the
	// health and metrics endpoints.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// JWTSecret is the HS256 signing secret.
	// Should be loaded from an environment variable.
	JWTSecret string `yaml:"jwt_secret"`

	// Issuer, when set, must match the token's iss claim.
	Issuer string `yaml:"issuer"`

	// UserClaim is the claim holding the acting user ID.
	// Default: "sub"
	UserClaim string `yaml:"user_claim"`

	// APIKeys authenticate service clients sending the X-API-Key header.
	APIKeys []APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig maps a static API key to the user it acts as.
type APIKeyConfig struct {
	Key      string `yaml:"key"`
	User     string `yaml:"user"`
	Disabled bool   `yaml:"disabled"`
}

// ProvisioningConfig configures declarative policy files.
type ProvisioningConfig struct {
	// PoliciesFile is a YAML file (or directory of files) whose policies are
	// synced into the store by name at startup. Empty disables provisioning.
	PoliciesFile string `yaml:"policies_file"`

	// Watch re-syncs policies when the file changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period before a change triggers a sync.
	// Default: 200ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "saturn"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "retention"
	Subsystem string `yaml:"subsystem"`

	// RunDurationBuckets defines histogram buckets for batch run duration (seconds).
	// Default: [1, 5, 15, 60, 300, 900, 3600]
	RunDurationBuckets []float64 `yaml:"run_duration_buckets"`

	// RequestDurationBuckets defines histogram buckets for API request duration (seconds).
	// Default: [0.005, 0.01, 0.05, 0.1, 0.5, 1, 5]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout is the timeout for individual component health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export call.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Sampler selects the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces kept by the "ratio" sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "saturn"
	ServiceName string `yaml:"service_name"`
}
