// Package config loads engine settings from an optional YAML file with
// environment overrides. Thresholds that look architectural (escalation
// count, proactive expiry window) are product decisions and stay tunable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all engine tunables.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string
	// DBPath is the SQLite database file.
	DBPath string

	// EscalationThreshold is the consecutive-failure count at which a
	// single-failure alert escalates to a multiple-failures alert.
	EscalationThreshold int
	// ProactiveExpiryWindow triggers a token-expiring notification when a
	// token's expiry falls within it.
	ProactiveExpiryWindow time.Duration
	// SweepCooldown skips requeueing tasks retried within this window.
	SweepCooldown time.Duration
	// NotifyThrottleTTL suppresses repeat notifications per (user,
	// provider, event) for this long unless the status changes first.
	NotifyThrottleTTL time.Duration

	// WorkerCount is the upload worker pool size.
	WorkerCount int
	// TaskTimeout bounds one upload attempt; overruns classify as
	// network errors.
	TaskTimeout time.Duration
	// RetryBaseDelay and RetryMaxDelay bound the requeue backoff.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// CheckInterval paces the periodic connection health check.
	CheckInterval time.Duration

	// MaxUploadBytes caps single-file uploads before any network call.
	MaxUploadBytes int64

	// BlockedExtensions are rejected before any network call.
	BlockedExtensions []string
}

// Default returns the shipped defaults.
func Default() Config {
	return Config{
		Addr:                  "127.0.0.1:8080",
		DBPath:                "sentinel.db",
		EscalationThreshold:   5,
		ProactiveExpiryWindow: time.Hour,
		SweepCooldown:         5 * time.Minute,
		NotifyThrottleTTL:     30 * time.Minute,
		WorkerCount:           4,
		TaskTimeout:           2 * time.Minute,
		RetryBaseDelay:        30 * time.Second,
		RetryMaxDelay:         15 * time.Minute,
		CheckInterval:         15 * time.Minute,
		MaxUploadBytes:        100 * 1024 * 1024,
		BlockedExtensions:     []string{"exe", "bat", "cmd", "sh", "msi", "scr"},
	}
}

// fileConfig is the YAML shape. Durations arrive as strings ("5m", "1h")
// since yaml.v3 cannot decode into time.Duration directly; absent fields
// leave the default untouched.
type fileConfig struct {
	Addr                  *string  `yaml:"addr"`
	DBPath                *string  `yaml:"db_path"`
	EscalationThreshold   *int     `yaml:"escalation_threshold"`
	ProactiveExpiryWindow *string  `yaml:"proactive_expiry_window"`
	SweepCooldown         *string  `yaml:"sweep_cooldown"`
	NotifyThrottleTTL     *string  `yaml:"notify_throttle_ttl"`
	WorkerCount           *int     `yaml:"worker_count"`
	TaskTimeout           *string  `yaml:"task_timeout"`
	RetryBaseDelay        *string  `yaml:"retry_base_delay"`
	RetryMaxDelay         *string  `yaml:"retry_max_delay"`
	CheckInterval         *string  `yaml:"check_interval"`
	MaxUploadBytes        *int64   `yaml:"max_upload_bytes"`
	BlockedExtensions     []string `yaml:"blocked_extensions"`
}

// Load reads the YAML file at path (if it exists) over the defaults, then
// applies SENTINEL_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := applyFile(&cfg, data); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	if fc.Addr != nil {
		cfg.Addr = *fc.Addr
	}
	if fc.DBPath != nil {
		cfg.DBPath = *fc.DBPath
	}
	if fc.EscalationThreshold != nil {
		cfg.EscalationThreshold = *fc.EscalationThreshold
	}
	if fc.WorkerCount != nil {
		cfg.WorkerCount = *fc.WorkerCount
	}
	if fc.MaxUploadBytes != nil {
		cfg.MaxUploadBytes = *fc.MaxUploadBytes
	}
	if fc.BlockedExtensions != nil {
		cfg.BlockedExtensions = fc.BlockedExtensions
	}

	durations := []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{deref(fc.ProactiveExpiryWindow), &cfg.ProactiveExpiryWindow, "proactive_expiry_window"},
		{deref(fc.SweepCooldown), &cfg.SweepCooldown, "sweep_cooldown"},
		{deref(fc.NotifyThrottleTTL), &cfg.NotifyThrottleTTL, "notify_throttle_ttl"},
		{deref(fc.TaskTimeout), &cfg.TaskTimeout, "task_timeout"},
		{deref(fc.RetryBaseDelay), &cfg.RetryBaseDelay, "retry_base_delay"},
		{deref(fc.RetryMaxDelay), &cfg.RetryMaxDelay, "retry_max_delay"},
		{deref(fc.CheckInterval), &cfg.CheckInterval, "check_interval"},
	}
	for _, entry := range durations {
		if entry.raw == "" {
			continue
		}
		d, err := time.ParseDuration(entry.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
		*entry.dst = d
	}

	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SENTINEL_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("SENTINEL_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SENTINEL_ESCALATION_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EscalationThreshold = n
		}
	}
	if v := os.Getenv("SENTINEL_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WorkerCount = n
		}
	}
	if d := envDuration("SENTINEL_PROACTIVE_EXPIRY_WINDOW"); d > 0 {
		cfg.ProactiveExpiryWindow = d
	}
	if d := envDuration("SENTINEL_SWEEP_COOLDOWN"); d > 0 {
		cfg.SweepCooldown = d
	}
	if d := envDuration("SENTINEL_NOTIFY_THROTTLE_TTL"); d > 0 {
		cfg.NotifyThrottleTTL = d
	}
	if d := envDuration("SENTINEL_TASK_TIMEOUT"); d > 0 {
		cfg.TaskTimeout = d
	}
	if d := envDuration("SENTINEL_CHECK_INTERVAL"); d > 0 {
		cfg.CheckInterval = d
	}
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func (c Config) validate() error {
	if c.EscalationThreshold <= 0 {
		return fmt.Errorf("escalation_threshold must be positive, got %d", c.EscalationThreshold)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker_count must be positive, got %d", c.WorkerCount)
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("invalid retry delays: base=%s max=%s", c.RetryBaseDelay, c.RetryMaxDelay)
	}
	return nil
}

// ExtensionBlocked reports whether the file name carries a blocked extension.
func (c Config) ExtensionBlocked(fileName string) bool {
	idx := strings.LastIndex(fileName, ".")
	if idx < 0 || idx == len(fileName)-1 {
		return false
	}
	ext := strings.ToLower(fileName[idx+1:])
	for _, blocked := range c.BlockedExtensions {
		if ext == blocked {
			return true
		}
	}
	return false
}
