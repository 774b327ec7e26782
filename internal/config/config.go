package config

import (
	"time"
)

// Config represents the complete application configuration
// following the Fulmen Forge Workhorse Standard three-layer pattern:
// Layer 1: Crucible defaults (config/shoplens/v0/shoplens-defaults.yaml)
// Layer 2: User overrides (~/.config/shoplens/shoplens/config.yaml)
// Layer 3: Environment variables and runtime overrides
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Store         StoreConfig         `mapstructure:"store"`
	Shopify       ShopifyConfig       `mapstructure:"shopify"`
	Plan          PlanConfig          `mapstructure:"plan"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Health        HealthConfig        `mapstructure:"health"`
	Debug         DebugConfig         `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// ShopifyConfig identifies the shop endpoint and credentials.
type ShopifyConfig struct {
	// Shop is the myshopify domain, e.g. "example.myshopify.com".
	Shop string `mapstructure:"shop"`

	// APIVersion selects the versioned GraphQL endpoint path.
	APIVersion string `mapstructure:"api_version"`

	// AccessToken authenticates Admin API requests.
	AccessToken string `mapstructure:"access_token"`

	// Storefront switches to the Storefront API endpoint and token header.
	Storefront bool `mapstructure:"storefront"`

	// MaxAttempts bounds consecutive throttled responses per call.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// PlanConfig selects the rate-limit plan tier.
type PlanConfig struct {
	// Tier is one of: standard, advanced, plus, enterprise.
	Tier string `mapstructure:"tier"`

	// WarningPercentage overrides the approaching-limit threshold.
	WarningPercentage float64 `mapstructure:"warning_percentage"`
}

// CacheConfig contains response cache configuration.
type CacheConfig struct {
	MaxEntries    int           `mapstructure:"max_entries"`
	Shards        int           `mapstructure:"shards"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
}

// NotificationsConfig bounds the in-memory event log.
type NotificationsConfig struct {
	Max int `mapstructure:"max"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles per Fulmen Forge Workhorse Standard:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
// - ENTERPRISE: Multiple sinks, middleware, throttling, policy enforcement (production)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	// See: gofulmen/docs/crucible-go/standards/observability/logging.md
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	// Metrics are also available at the main HTTP port in JSON format
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
