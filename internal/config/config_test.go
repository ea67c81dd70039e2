package config

import (
	"os"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// RedisConfig fallbacks
// ---------------------------------------------------------------------------

func TestRedisConfigFallbacks(t *testing.T) {
	tests := []struct {
		name       string
		cfg        RedisConfig
		wantSearch string
		wantQueue  string
	}{
		{
			name:       "all explicit",
			cfg:        RedisConfig{DocsURL: "redis://a:6379/0", SearchURL: "redis://b:6379/0", QueueURL: "redis://c:6379/0"},
			wantSearch: "redis://b:6379/0",
			wantQueue:  "redis://c:6379/0",
		},
		{
			name:       "fall back to docs",
			cfg:        RedisConfig{DocsURL: "redis://a:6379/0"},
			wantSearch: "redis://a:6379/0",
			wantQueue:  "redis://a:6379/0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetSearchURL(); got != tt.wantSearch {
				t.Errorf("GetSearchURL() = %q, want %q", got, tt.wantSearch)
			}
			if got := tt.cfg.GetQueueURL(); got != tt.wantQueue {
				t.Errorf("GetQueueURL() = %q, want %q", got, tt.wantQueue)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Load (defaults + env overrides)
// ---------------------------------------------------------------------------

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.DocsURL == "" {
		t.Error("expected default redis.docs_url")
	}
	if cfg.Hub.RefreshInterval != time.Hour {
		t.Errorf("hub.refresh_interval = %v, want 1h", cfg.Hub.RefreshInterval)
	}
	if cfg.Ingest.MergePolicy != "skip" {
		t.Errorf("ingest.merge_policy = %q, want skip", cfg.Ingest.MergePolicy)
	}
	if !cfg.Hub.SubmitEnabled {
		t.Error("hub.submit_enabled should default to true")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("MODHUB_HUB_REPO", "acme/hub")
	os.Setenv("MODHUB_WORKER_CONCURRENCY", "8")
	defer os.Unsetenv("MODHUB_HUB_REPO")
	defer os.Unsetenv("MODHUB_WORKER_CONCURRENCY")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hub.Repo != "acme/hub" {
		t.Errorf("hub.repo = %q, want acme/hub", cfg.Hub.Repo)
	}
	if cfg.Worker.Concurrency != 8 {
		t.Errorf("worker.concurrency = %d, want 8", cfg.Worker.Concurrency)
	}
}

func TestLoadUnprefixedTokenFallback(t *testing.T) {
	os.Setenv("HOSTING_TOKEN", "tok-from-secret")
	defer os.Unsetenv("HOSTING_TOKEN")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hosting.Token != "tok-from-secret" {
		t.Errorf("hosting.token = %q, want tok-from-secret", cfg.Hosting.Token)
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Redis:   RedisConfig{DocsURL: "redis://localhost:6379/0"},
			Hub:     HubConfig{Repo: "acme/hub", RefreshInterval: time.Hour},
			Ingest:  IngestConfig{MergePolicy: "skip"},
			Worker:  WorkerConfig{Concurrency: 4},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	c := base()
	c.Redis.DocsURL = ""
	if err := c.Validate(); err == nil {
		t.Error("expected error for missing docs_url")
	}

	c = base()
	c.Hub.Repo = "not-a-repo-id"
	if err := c.Validate(); err == nil {
		t.Error("expected error for malformed hub.repo")
	}

	c = base()
	c.Ingest.MergePolicy = "merge"
	if err := c.Validate(); err == nil {
		t.Error("expected error for unknown merge policy")
	}

	c = base()
	c.Logging.Level = "verbose"
	if err := c.Validate(); err == nil {
		t.Error("expected error for invalid logging level")
	}
}
