// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and the environment on top of the defaults.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":4000".
	Addr string `koanf:"addr"`
	// Port is the bare port form accepted from the PORT variable.
	Port int `koanf:"port"`
	// AllowedOrigins lists CORS origins.
	AllowedOrigins []string `koanf:"allowed_origins"`

	NeynarAPIKey  string `koanf:"neynar_api_key"`
	NeynarBaseURL string `koanf:"neynar_base_url"`

	// RateLimitPerMinute bounds outbound social-graph API calls.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`
	// UpstreamAttempts bounds attempts per upstream call.
	UpstreamAttempts int `koanf:"upstream_attempts"`

	MetricsWindowDays int           `koanf:"metrics_window_days"`
	MetricsCacheTTL   time.Duration `koanf:"metrics_cache_ttl"`
	MetricsCacheSweep time.Duration `koanf:"metrics_cache_sweep"`
	MaxPostPages      int           `koanf:"max_post_pages"`
	PostPageSize      int           `koanf:"post_page_size"`

	// DatabaseDSN selects the store: memory://, sqlite://<path> or postgres://...
	DatabaseDSN string `koanf:"database_dsn"`

	WorkerCount     int           `koanf:"worker_count"`
	JobAttempts     int           `koanf:"job_attempts"`
	JobRetention    time.Duration `koanf:"job_retention"`
	MaxRetainedJobs int           `koanf:"max_retained_jobs"`
	DailyBatchHour  int           `koanf:"daily_batch_hour"`
	Timezone        string        `koanf:"timezone"`

	PollInterval  time.Duration `koanf:"poll_interval"`
	PollTimeout   time.Duration `koanf:"poll_timeout"`
	ShareBasePath string        `koanf:"share_base_path"`

	NotifyWebhookURL    string `koanf:"notify_webhook_url"`
	NotifyWebhookSecret string `koanf:"notify_webhook_secret"`
	RedisAddr           string `koanf:"redis_addr"`
	RedisChannel        string `koanf:"redis_channel"`

	// WebhookSecret verifies inbound webhook signatures when set.
	WebhookSecret string `koanf:"webhook_secret"`
	// DedupeSize bounds the inbound webhook event id memory.
	DedupeSize int `koanf:"dedupe_size"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":4000",
		AllowedOrigins:      []string{"http://localhost:3000"},
		NeynarBaseURL:       "https://api.neynar.com",
		RateLimitPerMinute:  300,
		UpstreamAttempts:    3,
		MetricsWindowDays:   45,
		MetricsCacheTTL:     30 * time.Minute,
		MetricsCacheSweep:   5 * time.Minute,
		MaxPostPages:        5,
		PostPageSize:        100,
		DatabaseDSN:         "sqlite://somurie.db",
		WorkerCount:         1,
		JobAttempts:         3,
		JobRetention:        time.Hour,
		MaxRetainedJobs:     10_000,
		DailyBatchHour:      2,
		Timezone:            "UTC",
		PollInterval:        500 * time.Millisecond,
		PollTimeout:         10 * time.Second,
		ShareBasePath:       "/share/",
		RedisChannel:        "somurie:notifications",
		DedupeSize:          50_000,
	}
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
