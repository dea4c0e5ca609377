// Package config provides configuration management for Saturn.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("saturn.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("saturn.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention SATURN_SECTION_FIELD.
// For example:
//
//   - SATURN_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - SATURN_DATABASE_POSTGRES_PASSWORD overrides database.postgres.password
//   - SATURN_SCHEDULER_SCHEDULE overrides scheduler.schedule
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
//	// At application startup
//	if err := config.Initialize("saturn.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Anywhere in the application
//	cfg := config.GetConfig()
//
// For testing, prefer dependency injection with explicit Config instances
// rather than the global singleton.
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8443"
//	  tls:
//	    enabled: true
//	    cert_file: "/etc/saturn/tls/server.crt"
//	    key_file: "/etc/saturn/tls/server.key"
//
//	auth:
//	  enabled: true
//	  api_keys:
//	    - key: "change-me-to-a-long-random-key"
//	      user: "etl"
//
//	database:
//	  driver: "sqlite3"
//	  path: "data/saturn.db"
//
//	storage:
//	  backend: "local"
//	  local:
//	    root: "/srv/files"
//
//	scheduler:
//	  schedule: "0 2 * * *"
//	  claim_timeout: "1h"
//
//	provisioning:
//	  policies_file: "./policies.yaml"
//	  watch: true
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//	  tracing:
//	    enabled: true
//	    endpoint: "otel-collector:4317"
//	    sample_ratio: 0.25
package config
