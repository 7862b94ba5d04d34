package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names consulted before the prefixed layer.
const (
	envPrefix     = "SOMURIE_"
	envConfigFile = "SOMURIE_CONFIG"
	envDotenv     = "SOMURIE_DOTENV"
	defaultDotenv = ".env"
)

// legacyEnv maps the unprefixed variables used by existing deployments to
// config keys. Prefixed variables still win.
var legacyEnv = map[string]string{ //nolint:gochecknoglobals // static lookup table
	"PORT":            "port",
	"NEYNAR_API_KEY":  "neynar_api_key",
	"DATABASE_URL":    "database_dsn",
	"ALLOWED_ORIGINS": "allowed_origins",
	"LOG_LEVEL":       "log_level",
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. .env file, merged into the process env without overriding it
//  3. file (YAML) if SOMURIE_CONFIG is set
//  4. legacy unprefixed env (PORT, NEYNAR_API_KEY, ...)
//  5. env (prefix SOMURIE_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	dotenv := os.Getenv(envDotenv)
	if dotenv == "" {
		dotenv = defaultDotenv
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: dotenv %s: %w", ErrLoadConfig, dotenv, err)
	}

	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	legacy := env.Provider("", ".", func(s string) string {
		return legacyEnv[s]
	})
	if err := k.Load(legacy, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// SOMURIE_WORKER_COUNT -> worker_count (flat keys, underscores preserved).
	prefixed := env.Provider(envPrefix, ".", func(s string) string {
		if s == envConfigFile || s == envDotenv {
			return ""
		}
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(prefixed, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if cfg.Port > 0 && !k.Exists("addr") {
		cfg.Addr = ":" + strconv.Itoa(cfg.Port)
	}
	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitOrigins normalizes origins given either as a list or as one
// comma-separated string.
func splitOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.Addr != "", "addr must not be empty")
	check(c.LogFormat == "text" || c.LogFormat == "json", "log_format must be text or json")
	check(c.RateLimitPerMinute > 0, "rate_limit_per_minute must be positive")
	check(c.UpstreamAttempts > 0, "upstream_attempts must be positive")
	check(c.MetricsWindowDays > 0, "metrics_window_days must be positive")
	check(c.MetricsCacheTTL > 0, "metrics_cache_ttl must be positive")
	check(c.MetricsCacheSweep > 0, "metrics_cache_sweep must be positive")
	check(c.MaxPostPages > 0, "max_post_pages must be positive")
	check(c.PostPageSize > 0 && c.PostPageSize <= 150, "post_page_size must be in 1..150")
	check(c.DatabaseDSN != "", "database_dsn must not be empty")
	check(c.WorkerCount > 0, "worker_count must be positive")
	check(c.JobAttempts > 0, "job_attempts must be positive")
	check(c.JobRetention > 0, "job_retention must be positive")
	check(c.MaxRetainedJobs > 0, "max_retained_jobs must be positive")
	check(c.DailyBatchHour >= 0 && c.DailyBatchHour < 24, "daily_batch_hour must be in 0..23")
	check(c.PollInterval > 0 && c.PollInterval < c.PollTimeout, "poll_interval must be positive and below poll_timeout")
	check(c.PollTimeout <= time.Minute, "poll_timeout must not exceed one minute")
	check(strings.HasPrefix(c.ShareBasePath, "/"), "share_base_path must start with /")
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
