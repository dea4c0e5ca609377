package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "SATURN_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded over Default, so omitted fields keep their defaults.
// The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML over the default configuration and fills remaining
// defaults. Unknown keys are rejected. It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention SATURN_SECTION_FIELD (e.g., SATURN_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from the defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envBool("SERVER_ENABLED", &cfg.Server.Enabled)
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envBool("SERVER_CORS_ENABLED", &cfg.Server.CORS.Enabled)
	envList("SERVER_CORS_ALLOWED_ORIGINS", &cfg.Server.CORS.AllowedOrigins)
	envBool("SERVER_TLS_ENABLED", &cfg.Server.TLS.Enabled)
	envString("SERVER_TLS_CERT_FILE", &cfg.Server.TLS.CertFile)
	envString("SERVER_TLS_KEY_FILE", &cfg.Server.TLS.KeyFile)

	// Database overrides
	envString("DATABASE_DRIVER", &cfg.Database.Driver)
	envString("DATABASE_PATH", &cfg.Database.Path)
	envString("DATABASE_POSTGRES_HOST", &cfg.Database.Postgres.Host)
	envInt("DATABASE_POSTGRES_PORT", &cfg.Database.Postgres.Port)
	envString("DATABASE_POSTGRES_DATABASE", &cfg.Database.Postgres.Database)
	envString("DATABASE_POSTGRES_USER", &cfg.Database.Postgres.User)
	envString("DATABASE_POSTGRES_PASSWORD", &cfg.Database.Postgres.Password)
	envString("DATABASE_POSTGRES_SSL_MODE", &cfg.Database.Postgres.SSLMode)

	// Storage overrides
	envString("STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("STORAGE_LOCAL_ROOT", &cfg.Storage.Local.Root)
	envBool("STORAGE_LOCAL_REQUIRE_IDENTITY", &cfg.Storage.Local.RequireIdentity)
	envString("STORAGE_S3_BUCKET", &cfg.Storage.S3.Bucket)
	envString("STORAGE_S3_REGION", &cfg.Storage.S3.Region)
	envString("STORAGE_S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	envString("STORAGE_S3_ACCESS_KEY_ID", &cfg.Storage.S3.AccessKeyID)
	envString("STORAGE_S3_SECRET_ACCESS_KEY", &cfg.Storage.S3.SecretAccessKey)
	envBool("STORAGE_S3_USE_PATH_STYLE", &cfg.Storage.S3.UsePathStyle)

	// Scheduler overrides
	envBool("SCHEDULER_ENABLED", &cfg.Scheduler.Enabled)
	envString("SCHEDULER_SCHEDULE", &cfg.Scheduler.Schedule)
	envDuration("SCHEDULER_CLAIM_TIMEOUT", &cfg.Scheduler.ClaimTimeout)
	envDuration("SCHEDULER_ACTION_TIMEOUT", &cfg.Scheduler.ActionTimeout)
	envInt("SCHEDULER_BATCH_LIMIT", &cfg.Scheduler.BatchLimit)
	envInt("SCHEDULER_ERROR_THRESHOLD", &cfg.Scheduler.ErrorThreshold)

	// Resolver overrides
	envInt("RESOLVER_CACHE_SIZE", &cfg.Resolver.CacheSize)
	envDuration("RESOLVER_CACHE_TTL", &cfg.Resolver.CacheTTL)

	// Identity overrides
	envString("IDENTITY_SERVICE_ACCOUNT_ID", &cfg.Identity.ServiceAccount.ID)
	envList("IDENTITY_SERVICE_ACCOUNT_ROLES", &cfg.Identity.ServiceAccount.Roles)
	envString("IDENTITY_REQUIRED_ROLE", &cfg.Identity.RequiredRole)

	// Auth overrides
	envBool("AUTH_ENABLED", &cfg.Auth.Enabled)
	envString("AUTH_JWT_SECRET", &cfg.Auth.JWTSecret)
	envString("AUTH_ISSUER", &cfg.Auth.Issuer)

	// Provisioning overrides
	envString("PROVISIONING_POLICIES_FILE", &cfg.Provisioning.PoliciesFile)
	envBool("PROVISIONING_WATCH", &cfg.Provisioning.Watch)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envBool("TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
	envFloat("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
}

// Malformed numeric, boolean and duration values are ignored and the
// current value is kept.

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envFloat(key string, dst *float64) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

// envList reads a comma-separated list.
func envList(key string, dst *[]string) {
	val := os.Getenv(EnvPrefix + key)
	if val == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
