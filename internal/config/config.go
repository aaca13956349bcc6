// Package config loads pipeline configuration from a YAML file with
// environment variable overrides. Numeric knobs arrive from the embedding
// middleware; everything has a usable default so a zero-config start works.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pipeline configuration.
type Config struct {
	// Provider selects the analysis backend: "anthropic" or "openai".
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model. Empty uses the
	// provider default.
	Model string `yaml:"model"`

	// MaxConcurrency bounds simultaneously running analysis calls.
	MaxConcurrency int `yaml:"max_concurrency"`

	// MaxQueueLength bounds how many admitted requests may wait for a
	// concurrency slot. Beyond it, requests are rejected.
	MaxQueueLength int `yaml:"max_queue_length"`

	// CacheLimit is the advice cache entry bound. 0 disables caching.
	CacheLimit int `yaml:"cache_limit"`

	// CacheTTLSeconds is the advice entry lifetime.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	// CachePurgeSeconds is the janitor interval. 0 disables the janitor
	// (expiry still happens lazily on reads).
	CachePurgeSeconds int `yaml:"cache_purge_seconds"`

	// DedupWindowSeconds suppresses re-analysis of a fingerprint for this
	// long after one completes, independent of cache TTL.
	DedupWindowSeconds int `yaml:"dedup_window_seconds"`

	// Retry tuning for the external call.
	RetryMaxAttempts   int     `yaml:"retry_max_attempts"`
	RetryBaseDelayMs   int     `yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs    int     `yaml:"retry_max_delay_ms"`
	RetryJitter        bool    `yaml:"retry_jitter"`
	CallTimeoutMs      int     `yaml:"call_timeout_ms"`
	CallRateLimitRPS   float64 `yaml:"call_rate_limit_rps"`
	CallRateLimitBurst int     `yaml:"call_rate_limit_burst"`

	// MaxProviderCalls bounds provider calls in flight inside the
	// executor, across every queue feeding it. 0 disables the gate; the
	// admission queue already bounds its own concurrency.
	MaxProviderCalls int `yaml:"max_provider_calls"`

	// Circuit breaker tuning.
	BreakerFailureThreshold  int `yaml:"breaker_failure_threshold"`
	BreakerRecoveryTimeoutMs int `yaml:"breaker_recovery_timeout_ms"`

	// MetricsIntervalMs is the queue metrics log period. 0 disables.
	MetricsIntervalMs int `yaml:"metrics_interval_ms"`
}

// Default returns the configuration used when no file or overrides are
// present.
func Default() Config {
	return Config{
		Provider:                 "anthropic",
		MaxConcurrency:           2,
		MaxQueueLength:           8,
		CacheLimit:               256,
		CacheTTLSeconds:          1800,
		CachePurgeSeconds:        60,
		DedupWindowSeconds:       30,
		RetryMaxAttempts:         3,
		RetryBaseDelayMs:         1000,
		RetryMaxDelayMs:          30000,
		RetryJitter:              true,
		CallTimeoutMs:            60000,
		BreakerFailureThreshold:  5,
		BreakerRecoveryTimeoutMs: 30000,
		MetricsIntervalMs:        60000,
	}
}

// Load reads cfg from path (optional, "" skips the file) and then applies
// ERRSIGHT_* environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays ERRSIGHT_* environment variables. Invalid values are
// ignored in favor of what is already set.
func (c *Config) applyEnv() {
	if v := os.Getenv("ERRSIGHT_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("ERRSIGHT_MODEL"); v != "" {
		c.Model = v
	}
	envInt("ERRSIGHT_MAX_CONCURRENCY", &c.MaxConcurrency)
	envInt("ERRSIGHT_MAX_QUEUE_LENGTH", &c.MaxQueueLength)
	envInt("ERRSIGHT_CACHE_LIMIT", &c.CacheLimit)
	envInt("ERRSIGHT_CACHE_TTL_SECONDS", &c.CacheTTLSeconds)
	envInt("ERRSIGHT_CACHE_PURGE_SECONDS", &c.CachePurgeSeconds)
	envInt("ERRSIGHT_DEDUP_WINDOW_SECONDS", &c.DedupWindowSeconds)
	envInt("ERRSIGHT_RETRY_MAX_ATTEMPTS", &c.RetryMaxAttempts)
	envInt("ERRSIGHT_RETRY_BASE_DELAY_MS", &c.RetryBaseDelayMs)
	envInt("ERRSIGHT_RETRY_MAX_DELAY_MS", &c.RetryMaxDelayMs)
	envBool("ERRSIGHT_RETRY_JITTER", &c.RetryJitter)
	envInt("ERRSIGHT_CALL_TIMEOUT_MS", &c.CallTimeoutMs)
	envFloat("ERRSIGHT_CALL_RATE_LIMIT_RPS", &c.CallRateLimitRPS)
	envInt("ERRSIGHT_CALL_RATE_LIMIT_BURST", &c.CallRateLimitBurst)
	envInt("ERRSIGHT_MAX_PROVIDER_CALLS", &c.MaxProviderCalls)
	envInt("ERRSIGHT_BREAKER_FAILURE_THRESHOLD", &c.BreakerFailureThreshold)
	envInt("ERRSIGHT_BREAKER_RECOVERY_TIMEOUT_MS", &c.BreakerRecoveryTimeoutMs)
	envInt("ERRSIGHT_METRICS_INTERVAL_MS", &c.MetricsIntervalMs)
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

func envFloat(name string, dst *float64) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return
	}
	*dst = f
}

func envBool(name string, dst *bool) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return
	}
	*dst = b
}

// Validate checks for values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Provider != "anthropic" && c.Provider != "openai" && c.Provider != "" {
		return fmt.Errorf("unknown provider %q (want anthropic or openai)", c.Provider)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1 (got %d)", c.MaxConcurrency)
	}
	if c.MaxQueueLength < 0 {
		return fmt.Errorf("max_queue_length cannot be negative (got %d)", c.MaxQueueLength)
	}
	if c.CacheLimit < 0 {
		return fmt.Errorf("cache_limit cannot be negative (got %d)", c.CacheLimit)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry_max_attempts must be at least 1 (got %d)", c.RetryMaxAttempts)
	}
	if c.MaxProviderCalls < 0 {
		return fmt.Errorf("max_provider_calls cannot be negative (got %d)", c.MaxProviderCalls)
	}
	if c.BreakerFailureThreshold < 1 {
		return fmt.Errorf("breaker_failure_threshold must be at least 1 (got %d)", c.BreakerFailureThreshold)
	}
	return nil
}

// Durations derived from the millisecond/second knobs.

func (c Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSeconds) * time.Second }

func (c Config) CachePurgeInterval() time.Duration {
	return time.Duration(c.CachePurgeSeconds) * time.Second
}

func (c Config) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowSeconds) * time.Second
}

func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

func (c Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

func (c Config) CallTimeout() time.Duration { return time.Duration(c.CallTimeoutMs) * time.Millisecond }

func (c Config) BreakerRecoveryTimeout() time.Duration {
	return time.Duration(c.BreakerRecoveryTimeoutMs) * time.Millisecond
}

func (c Config) MetricsInterval() time.Duration {
	return time.Duration(c.MetricsIntervalMs) * time.Millisecond
}
