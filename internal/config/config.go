// Package config loads and validates the hub configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the MODHUB_ prefix (e.g.,
// MODHUB_REDIS_DOCS_URL overrides redis.docs_url in the YAML). This layering
// allows the same binary to run with a config.yaml in local development and
// with pure environment variables in containerized deployments.
//
// The HOSTING_TOKEN variable has no MODHUB_ prefix because it is typically
// injected by infrastructure tooling (e.g., Kubernetes secrets) that treats it
// as a generic secret name.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Redis     RedisConfig     `mapstructure:"redis"`
	Hosting   HostingConfig   `mapstructure:"hosting"`
	Hub       HubConfig       `mapstructure:"hub"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// RedisConfig holds the connection targets for the three Redis roles. The
// search and queue URLs fall back to the document store URL when empty, which
// mirrors a single-instance deployment.
type RedisConfig struct {
	DocsURL   string `mapstructure:"docs_url"`
	SearchURL string `mapstructure:"search_url"`
	QueueURL  string `mapstructure:"queue_url"`
}

// GetSearchURL returns the search index connection target, falling back to
// the document store target when none is configured.
func (r *RedisConfig) GetSearchURL() string {
	if r.SearchURL != "" {
		return r.SearchURL
	}
	return r.DocsURL
}

// GetQueueURL returns the job queue connection target, falling back to the
// document store target when none is configured.
func (r *RedisConfig) GetQueueURL() string {
	if r.QueueURL != "" {
		return r.QueueURL
	}
	return r.DocsURL
}

// HostingConfig holds the external VCS hosting API settings
type HostingConfig struct {
	// Token authenticates every hosting API call. Supports ${VAR} expansion so
	// it can reference a secret injected by the environment.
	Token string `mapstructure:"token"`
	// BaseURL overrides the hosting API endpoint (tests, enterprise installs).
	BaseURL string `mapstructure:"base_url"`
	// RequestTimeout bounds each individual hosting API call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// RequestsPerMinute is the shared call budget across all workers. Zero
	// disables rate limiting.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// HubConfig holds the canonical hub repository settings
type HubConfig struct {
	// Repo is the hub repository id ("owner/name") that submissions open pull
	// requests against and that initial ingestion reads from.
	Repo string `mapstructure:"repo"`
	// ModulesPath is the directory inside the hub repository holding one JSON
	// file per module.
	ModulesPath string `mapstructure:"modules_path"`
	// SubmitEnabled seeds the catalog's submit_enabled flag at bootstrap. The
	// live switch is the persisted catalog field, not this value.
	SubmitEnabled bool `mapstructure:"submit_enabled"`
	// RefreshInterval is the recurring stats refresh period per module.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// IngestConfig holds local-directory ingestion settings
type IngestConfig struct {
	// LocalPath, when set, is a directory of module JSON files ingested at
	// worker startup and watched for changes.
	LocalPath string `mapstructure:"local_path"`
	// Watch enables the fsnotify watcher on LocalPath.
	Watch bool `mapstructure:"watch"`
	// MergePolicy decides what ingestion does when the module document already
	// exists: "skip" leaves it untouched, "replace" overwrites and re-indexes.
	MergePolicy string `mapstructure:"merge_policy"`
}

// WorkerConfig holds queue worker settings
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	// MaxRetry caps queue-level retries for submission processing jobs.
	MaxRetry int `mapstructure:"max_retry"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds metrics configuration
type TelemetryConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// bindEnvVars explicitly binds environment variables for nested structures.
// AutomaticEnv() alone does not cooperate with Unmarshal(), so every key is
// listed here.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"redis.docs_url",
		"redis.search_url",
		"redis.queue_url",

		"hosting.token",
		"hosting.base_url",
		"hosting.request_timeout",
		"hosting.requests_per_minute",

		"hub.repo",
		"hub.modules_path",
		"hub.submit_enabled",
		"hub.refresh_interval",

		"ingest.local_path",
		"ingest.watch",
		"ingest.merge_policy",

		"worker.concurrency",
		"worker.max_retry",

		"logging.level",
		"logging.format",

		"telemetry.metrics_enabled",
		"telemetry.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/modhub")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("MODHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Hosting.Token = os.ExpandEnv(cfg.Hosting.Token)
	if cfg.Hosting.Token == "" {
		cfg.Hosting.Token = os.Getenv("HOSTING_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.docs_url", "redis://localhost:6379/0")
	v.SetDefault("redis.search_url", "")
	v.SetDefault("redis.queue_url", "")

	v.SetDefault("hosting.base_url", "")
	v.SetDefault("hosting.request_timeout", "30s")
	v.SetDefault("hosting.requests_per_minute", 60)

	v.SetDefault("hub.repo", "")
	v.SetDefault("hub.modules_path", "modules")
	v.SetDefault("hub.submit_enabled", true)
	v.SetDefault("hub.refresh_interval", "1h")

	v.SetDefault("ingest.local_path", "")
	v.SetDefault("ingest.watch", false)
	v.SetDefault("ingest.merge_policy", "skip")

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.max_retry", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Redis.DocsURL == "" {
		return fmt.Errorf("redis.docs_url is required")
	}

	if c.Hub.Repo != "" && !strings.Contains(c.Hub.Repo, "/") {
		return fmt.Errorf("hub.repo must be in owner/name form, got %q", c.Hub.Repo)
	}

	if c.Hub.RefreshInterval <= 0 {
		return fmt.Errorf("hub.refresh_interval must be positive")
	}

	switch c.Ingest.MergePolicy {
	case "skip", "replace":
	default:
		return fmt.Errorf("invalid ingest.merge_policy: %s (must be skip or replace)", c.Ingest.MergePolicy)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}
