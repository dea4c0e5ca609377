package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "saturn.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(Default()) = %v", err)
	}
	if !cfg.Server.Enabled || !cfg.Scheduler.Enabled || !cfg.Storage.Local.RequireIdentity || !cfg.Telemetry.Metrics.Enabled {
		t.Errorf("Default() switches = %+v", cfg)
	}
	if cfg.Scheduler.ClaimTimeout != DefaultClaimTimeout {
		t.Errorf("ClaimTimeout = %v, want %v", cfg.Scheduler.ClaimTimeout, DefaultClaimTimeout)
	}
	if cfg.Resolver.CacheSize != DefaultResolverCacheSize {
		t.Errorf("CacheSize = %d, want %d", cfg.Resolver.CacheSize, DefaultResolverCacheSize)
	}
	if got := cfg.Identity.ServiceAccount.Roles; len(got) != 1 || got[0] != DefaultRequiredRole {
		t.Errorf("service account roles = %v", got)
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9000"
  read_timeout: "10s"

database:
  driver: "sqlite"
  path: "/var/lib/saturn/saturn.db"

storage:
  backend: "s3"
  s3:
    bucket: "files"
    endpoint: "http://minio:9000"
    use_path_style: true

scheduler:
  schedule: "*/15 * * * *"
  claim_timeout: "0s"
  action_timeout: "2m"

telemetry:
  logging:
    level: "debug"
    format: "text"
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("read timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("write timeout = %v, want default %v", cfg.Server.WriteTimeout, DefaultWriteTimeout)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN() != "/var/lib/saturn/saturn.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Storage.S3.Region != DefaultS3Region || !cfg.Storage.S3.UsePathStyle {
		t.Errorf("s3 = %+v", cfg.Storage.S3)
	}
	// Explicit zero disables stale-claim recovery rather than falling back.
	if cfg.Scheduler.ClaimTimeout != 0 {
		t.Errorf("claim timeout = %v, want 0", cfg.Scheduler.ClaimTimeout)
	}
	if cfg.Scheduler.ActionTimeout != 2*time.Minute {
		t.Errorf("action timeout = %v", cfg.Scheduler.ActionTimeout)
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics enabled, want disabled by file")
	}
	if !cfg.Scheduler.Enabled {
		t.Error("scheduler disabled, want default enabled")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "server:\n  listen_adress: \":80\"\n", "listen_adress"},
		{"bad yaml", "server: [\n", "failed to parse"},
		{"bad cron", "scheduler:\n  schedule: \"every day\"\n", "scheduler.schedule"},
		{"bad backend", "storage:\n  backend: \"ftp\"\n", "storage.backend"},
		{"s3 without bucket", "storage:\n  backend: \"s3\"\n", "storage.s3.bucket"},
		{"postgres without host", "database:\n  driver: \"postgres\"\n", "database.postgres.host"},
		{"auth without secret", "auth:\n  enabled: true\n", "auth.jwt_secret"},
		{"short api key", "auth:\n  enabled: true\n  api_keys:\n    - key: \"abc\"\n      user: \"etl\"\n", "auth.api_keys[0].key"},
		{"api key without user", "auth:\n  enabled: true\n  api_keys:\n    - key: \"0123456789abcdef\"\n", "auth.api_keys[0].user"},
		{"role missing", "identity:\n  service_account:\n    roles: [\"viewer\"]\n", "identity.service_account.roles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("LoadConfig() error = nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig() error = %v, want os.ErrNotExist", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  listen_address: \"127.0.0.1:9000\"\n")

	t.Setenv("SATURN_SERVER_LISTEN_ADDRESS", "0.0.0.0:7000")
	t.Setenv("SATURN_SCHEDULER_CLAIM_TIMEOUT", "30m")
	t.Setenv("SATURN_SCHEDULER_BATCH_LIMIT", "not-a-number")
	t.Setenv("SATURN_STORAGE_LOCAL_REQUIRE_IDENTITY", "false")
	t.Setenv("SATURN_SERVER_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7000" {
		t.Errorf("listen address = %q, want env value", cfg.Server.ListenAddress)
	}
	if cfg.Scheduler.ClaimTimeout != 30*time.Minute {
		t.Errorf("claim timeout = %v", cfg.Scheduler.ClaimTimeout)
	}
	if cfg.Scheduler.BatchLimit != 0 {
		t.Errorf("batch limit = %d, want malformed override ignored", cfg.Scheduler.BatchLimit)
	}
	if cfg.Storage.Local.RequireIdentity {
		t.Error("require identity = true, want env override false")
	}
	if got := cfg.Server.CORS.AllowedOrigins; len(got) != 2 || got[1] != "https://b.example" {
		t.Errorf("allowed origins = %v", got)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("SATURN_DATABASE_DRIVER", "postgres")
	t.Setenv("SATURN_DATABASE_POSTGRES_HOST", "db")
	t.Setenv("SATURN_DATABASE_POSTGRES_DATABASE", "saturn")
	t.Setenv("SATURN_DATABASE_POSTGRES_USER", "svc")
	t.Setenv("SATURN_DATABASE_POSTGRES_PASSWORD", "p@ss")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides(\"\") error = %v", err)
	}
	want := "postgres://svc:p%40ss@db:5432/saturn?sslmode=require"
	if got := cfg.Database.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "mysql"
	cfg.Telemetry.Logging.Level = "verbose"

	err := Validate(cfg)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %T, want ValidationError", err)
	}
	if len(verr.Errors) != 2 {
		t.Errorf("errors = %d, want 2: %v", len(verr.Errors), verr)
	}
	if !strings.Contains(verr.Error(), "validation failed with 2 errors") {
		t.Errorf("Error() = %q", verr.Error())
	}
}

func TestValidate_Scheduler(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*SchedulerConfig)
		wantError bool
	}{
		{"defaults", func(*SchedulerConfig) {}, false},
		{"disabled ignores schedule", func(s *SchedulerConfig) { s.Enabled = false; s.Schedule = "bogus" }, false},
		{"negative claim timeout", func(s *SchedulerConfig) { s.ClaimTimeout = -time.Second }, true},
		{"action timeout above claim timeout", func(s *SchedulerConfig) { s.ActionTimeout = 2 * time.Hour }, true},
		{"action timeout without claim timeout", func(s *SchedulerConfig) { s.ClaimTimeout = 0; s.ActionTimeout = 2 * time.Hour }, false},
		{"negative batch limit", func(s *SchedulerConfig) { s.BatchLimit = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg.Scheduler)
			errs := validateScheduler(&cfg.Scheduler)
			if (len(errs) > 0) != tt.wantError {
				t.Errorf("validateScheduler() = %v, wantError %v", errs, tt.wantError)
			}
		})
	}
}

func TestValidate_Tracing(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*TracingConfig)
		wantError bool
	}{
		{"disabled ignores sampler", func(c *TracingConfig) { c.Sampler = "sometimes" }, false},
		{"enabled defaults", func(c *TracingConfig) { c.Enabled = true }, false},
		{"unknown sampler", func(c *TracingConfig) { c.Enabled = true; c.Sampler = "sometimes" }, true},
		{"ratio above one", func(c *TracingConfig) { c.Enabled = true; c.SampleRatio = 1.5 }, true},
		{"missing endpoint", func(c *TracingConfig) { c.Enabled = true; c.Endpoint = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg.Telemetry.Tracing)
			errs := validateTelemetry(&cfg.Telemetry)
			if (len(errs) > 0) != tt.wantError {
				t.Errorf("validateTelemetry() = %v, wantError %v", errs, tt.wantError)
			}
		})
	}
}

func TestValidate_TLS(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*TLSConfig)
		wantError bool
	}{
		{"disabled", func(c *TLSConfig) {}, false},
		{"enabled with key pair", func(c *TLSConfig) { c.Enabled = true; c.CertFile = "cert.pem"; c.KeyFile = "key.pem" }, false},
		{"missing key", func(c *TLSConfig) { c.Enabled = true; c.CertFile = "cert.pem" }, true},
		{"tls 1.1", func(c *TLSConfig) { c.Enabled = true; c.CertFile = "c"; c.KeyFile = "k"; c.MinVersion = "1.1" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg.Server.TLS)
			errs := validateTLS(&cfg.Server.TLS)
			if (len(errs) > 0) != tt.wantError {
				t.Errorf("validateTLS() = %v, wantError %v", errs, tt.wantError)
			}
		})
	}
}

func TestSingleton(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	path := writeConfig(t, "scheduler:\n  schedule: \"0 4 * * *\"\n")
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := MustGetConfig().Scheduler.Schedule; got != "0 4 * * *" {
		t.Errorf("schedule = %q", got)
	}

	// Subsequent calls are ignored.
	if err := Initialize(writeConfig(t, "scheduler:\n  schedule: \"0 5 * * *\"\n")); err != nil {
		t.Fatal(err)
	}
	if got := GetConfig().Scheduler.Schedule; got != "0 4 * * *" {
		t.Errorf("schedule after second Initialize = %q", got)
	}

	if err := ReloadConfig(writeConfig(t, "scheduler:\n  schedule: \"bad\"\n")); err == nil {
		t.Error("ReloadConfig() with invalid file succeeded")
	}
	if got := GetConfig().Scheduler.Schedule; got != "0 4 * * *" {
		t.Errorf("schedule after failed reload = %q", got)
	}

	// An empty path re-reads the file Initialize loaded.
	if err := os.WriteFile(path, []byte("scheduler:\n  schedule: \"0 6 * * *\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := ReloadConfig(""); err != nil {
		t.Fatalf("ReloadConfig(\"\") error = %v", err)
	}
	if got := GetConfig().Scheduler.Schedule; got != "0 6 * * *" {
		t.Errorf("schedule after reload = %q, want 0 6 * * *", got)
	}
}
