// Package config loads engine configuration from environment variables.
package config

import "github.com/kelseyhightower/envconfig"

// Database holds PostgreSQL configuration.
type Database struct {
	DSN string `envconfig:"MIGRATION_DATABASE_DSN" required:"true"`
}

// Redis holds the feature-flag store configuration.
type Redis struct {
	Addr     string `envconfig:"MIGRATION_REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"MIGRATION_REDIS_PASSWORD"`
	DB       int    `envconfig:"MIGRATION_REDIS_DB" default:"0"`
}

// Signing holds the report signing key configuration.
type Signing struct {
	KeyPath string `envconfig:"MIGRATION_SIGNING_KEY_PATH" default:"signing.key"`
}

// Telemetry holds OTEL exporter configuration.
type Telemetry struct {
	Enabled  bool   `envconfig:"MIGRATION_OTEL_ENABLED" default:"false"`
	Endpoint string `envconfig:"MIGRATION_OTEL_ENDPOINT"`
	Insecure bool   `envconfig:"MIGRATION_OTEL_INSECURE" default:"false"`
}

// Engine holds evaluation and reporting defaults.
type Engine struct {
	GuardrailWindowMinutes int `envconfig:"MIGRATION_GUARDRAIL_WINDOW_MINUTES" default:"60"`
	ReportLookbackDays     int `envconfig:"MIGRATION_REPORT_LOOKBACK_DAYS" default:"14"`
	AuditRetentionDays     int `envconfig:"MIGRATION_AUDIT_RETENTION_DAYS" default:"2555"`
}

// Config is the full engine configuration.
type Config struct {
	Database  Database
	Redis     Redis
	Signing   Signing
	Telemetry Telemetry
	Engine    Engine
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg.Database); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", &cfg.Redis); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", &cfg.Signing); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", &cfg.Telemetry); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", &cfg.Engine); err != nil {
		return nil, err
	}
	return &cfg, nil
}
