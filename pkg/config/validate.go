package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateScheduler(&cfg.Scheduler)...)
	errs = append(errs, validateResolver(&cfg.Resolver)...)
	errs = append(errs, validateIdentity(&cfg.Identity)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address %q: %v", cfg.ListenAddress, err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}

	return append(errs, validateTLS(&cfg.TLS)...)
}

func validateTLS(cfg *TLSConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}
	if cfg.CertFile == "" {
		errs = append(errs, FieldError{Field: "server.tls.cert_file", Message: "certificate file is required when TLS is enabled"})
	}
	if cfg.KeyFile == "" {
		errs = append(errs, FieldError{Field: "server.tls.key_file", Message: "key file is required when TLS is enabled"})
	}
	switch cfg.MinVersion {
	case "", "1.2", "1.3":
	default:
		errs = append(errs, FieldError{
			Field:   "server.tls.min_version",
			Message: fmt.Sprintf("unsupported TLS version %q (use 1.2 or 1.3)", cfg.MinVersion),
		})
	}
	if cfg.ReloadInterval < 0 {
		errs = append(errs, FieldError{Field: "server.tls.reload_interval", Message: "reload interval must be positive"})
	}

	return errs
}

func validateDatabase(cfg *DatabaseConfig) []FieldError {
	var errs []FieldError

	switch cfg.Driver {
	case "sqlite3", "sqlite":
		if cfg.Path == "" {
			errs = append(errs, FieldError{
				Field:   "database.path",
				Message: "path is required for SQLite drivers",
			})
		}
	case "postgres":
		if cfg.Postgres.Host == "" {
			errs = append(errs, FieldError{
				Field:   "database.postgres.host",
				Message: "PostgreSQL host is required when driver is 'postgres'",
			})
		}
		if cfg.Postgres.Port < 1 || cfg.Postgres.Port > 65535 {
			errs = append(errs, FieldError{
				Field:   "database.postgres.port",
				Message: "PostgreSQL port must be between 1 and 65535",
			})
		}
		if cfg.Postgres.Database == "" {
			errs = append(errs, FieldError{
				Field:   "database.postgres.database",
				Message: "PostgreSQL database is required when driver is 'postgres'",
			})
		}
		if cfg.Postgres.User == "" {
			errs = append(errs, FieldError{
				Field:   "database.postgres.user",
				Message: "PostgreSQL user is required when driver is 'postgres'",
			})
		}
		validSSLModes := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
		if !validSSLModes[cfg.Postgres.SSLMode] {
			errs = append(errs, FieldError{
				Field:   "database.postgres.ssl_mode",
				Message: fmt.Sprintf("invalid SSL mode %q: must be 'disable', 'require', 'verify-ca', or 'verify-full'", cfg.Postgres.SSLMode),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "database.driver",
			Message: fmt.Sprintf("invalid driver %q: must be 'sqlite3', 'sqlite', or 'postgres'", cfg.Driver),
		})
	}

	if cfg.MaxOpenConns < 0 {
		errs = append(errs, FieldError{Field: "database.max_open_conns", Message: "must be non-negative"})
	}
	if cfg.MaxIdleConns < 0 {
		errs = append(errs, FieldError{Field: "database.max_idle_conns", Message: "must be non-negative"})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "local":
		if cfg.Local.Root == "" {
			errs = append(errs, FieldError{
				Field:   "storage.local.root",
				Message: "root directory is required when backend is 'local'",
			})
		}
	case "s3":
		if cfg.S3.Bucket == "" {
			errs = append(errs, FieldError{
				Field:   "storage.s3.bucket",
				Message: "S3 bucket is required when backend is 's3'",
			})
		}
		if cfg.S3.Region == "" {
			errs = append(errs, FieldError{
				Field:   "storage.s3.region",
				Message: "S3 region is required when backend is 's3'",
			})
		}
		if (cfg.S3.AccessKeyID == "") != (cfg.S3.SecretAccessKey == "") {
			errs = append(errs, FieldError{
				Field:   "storage.s3.access_key_id",
				Message: "access key ID and secret access key must be set together",
			})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'local', 's3', or 'memory'", cfg.Backend),
		})
	}

	return errs
}

func validateScheduler(cfg *SchedulerConfig) []FieldError {
	var errs []FieldError

	if cfg.Enabled {
		if cfg.Schedule == "" {
			errs = append(errs, FieldError{
				Field:   "scheduler.schedule",
				Message: "schedule is required when the scheduler is enabled",
			})
		} else if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "scheduler.schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err),
			})
		}
	}

	if cfg.ClaimTimeout < 0 {
		errs = append(errs, FieldError{Field: "scheduler.claim_timeout", Message: "claim timeout must be non-negative"})
	}
	if cfg.ActionTimeout < 0 {
		errs = append(errs, FieldError{Field: "scheduler.action_timeout", Message: "action timeout must be non-negative"})
	}
	if cfg.ClaimTimeout > 0 && cfg.ActionTimeout > cfg.ClaimTimeout {
		errs = append(errs, FieldError{
			Field:   "scheduler.action_timeout",
			Message: "action timeout must not exceed the claim timeout",
		})
	}
	if cfg.BatchLimit < 0 {
		errs = append(errs, FieldError{Field: "scheduler.batch_limit", Message: "batch limit must be non-negative"})
	}
	if cfg.ErrorThreshold < 0 {
		errs = append(errs, FieldError{Field: "scheduler.error_threshold", Message: "error threshold must be non-negative"})
	}

	return errs
}

func validateResolver(cfg *ResolverConfig) []FieldError {
	var errs []FieldError

	if cfg.CacheSize < 0 {
		errs = append(errs, FieldError{Field: "resolver.cache_size", Message: "cache size must be non-negative"})
	}
	if cfg.CacheTTL < 0 {
		errs = append(errs, FieldError{Field: "resolver.cache_ttl", Message: "cache TTL must be non-negative"})
	}

	return errs
}

func validateIdentity(cfg *IdentityConfig) []FieldError {
	var errs []FieldError

	if cfg.ServiceAccount.ID == "" {
		errs = append(errs, FieldError{
			Field:   "identity.service_account.id",
			Message: "service account ID is required",
		})
	}

	// A service account without the required role would abort every run.
	hasRole := false
	for _, r := range cfg.ServiceAccount.Roles {
		if r == cfg.RequiredRole {
			hasRole = true
			break
		}
	}
	if !hasRole {
		errs = append(errs, FieldError{
			Field:   "identity.service_account.roles",
			Message: fmt.Sprintf("service account must hold the required role %q", cfg.RequiredRole),
		})
	}

	return errs
}

func validateAuth(cfg *AuthConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	switch {
	case cfg.JWTSecret == "" && len(cfg.APIKeys) == 0:
		errs = append(errs, FieldError{
			Field:   "auth.jwt_secret",
			Message: "a JWT secret or at least one API key is required when auth is enabled",
		})
	case cfg.JWTSecret != "" && len(cfg.JWTSecret) < MinJWTSecretLength:
		errs = append(errs, FieldError{
			Field:   "auth.jwt_secret",
			Message: fmt.Sprintf("JWT secret must be at least %d bytes", MinJWTSecretLength),
		})
	}

	seen := make(map[string]bool, len(cfg.APIKeys))
	for i, k := range cfg.APIKeys {
		field := fmt.Sprintf("auth.api_keys[%d]", i)
		if len(k.Key) < MinAPIKeyLength {
			errs = append(errs, FieldError{Field: field + ".key", Message: fmt.Sprintf("API key must be at least %d characters", MinAPIKeyLength)})
		} else if seen[k.Key] {
			errs = append(errs, FieldError{Field: field + ".key", Message: "duplicate API key"})
		}
		seen[k.Key] = true
		if strings.TrimSpace(k.User) == "" {
			errs = append(errs, FieldError{Field: field + ".user", Message: "user is required"})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}

	if t := cfg.Tracing; t.Enabled {
		switch t.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never' or 'ratio'", t.Sampler),
			})
		}
		if t.SampleRatio < 0 || t.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: fmt.Sprintf("sample ratio must be between 0.0 and 1.0, got %g", t.SampleRatio),
			})
		}
		if t.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
	}

	return errs
}
