package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.cwlogd/config.toml.
type Config struct {
	Listen   string `toml:"listen"`
	DataDir  string `toml:"data_dir"`
	Timezone string `toml:"timezone"`

	Upstream UpstreamConfig `toml:"upstream"`
	AutoSave AutoSaveConfig `toml:"autosave"`
}

// UpstreamConfig tunes the Chatwork API client and the fetch pipeline.
type UpstreamConfig struct {
	BaseURL            string `toml:"base_url"`
	RequestTimeoutSecs int    `toml:"request_timeout_secs"`
	RateLimitMillis    int    `toml:"rate_limit_millis"`
	WindowSpanDays     int    `toml:"window_span_days"`
}

// AutoSaveConfig tunes the watch list and the scheduler pass.
type AutoSaveConfig struct {
	DefaultIntervalDays int `toml:"default_interval_days"`
	WatchCap            int `toml:"watch_cap"`
	LogCap              int `toml:"log_cap"`
	InitialDelaySecs    int `toml:"initial_delay_secs"`
	PassPeriodMins      int `toml:"pass_period_mins"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:   "127.0.0.1:8137",
		Timezone: "Local",
		Upstream: UpstreamConfig{
			BaseURL:            "https://api.chatwork.com/v2",
			RequestTimeoutSecs: 30,
			RateLimitMillis:    500,
			WindowSpanDays:     30,
		},
		AutoSave: AutoSaveConfig{
			DefaultIntervalDays: 3,
			WatchCap:            10,
			LogCap:              50,
			InitialDelaySecs:    2,
			PassPeriodMins:      360,
		},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return &cfg, nil
}

// LoadOrDefault reads config from path, falling back to Default when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// fillDefaults backfills any field left unset in the file so a partial
// config still yields a runnable daemon.
func (c *Config) fillDefaults() {
	def := Default()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = def.Upstream.BaseURL
	}
	if c.Upstream.RequestTimeoutSecs <= 0 {
		c.Upstream.RequestTimeoutSecs = def.Upstream.RequestTimeoutSecs
	}
	if c.Upstream.RateLimitMillis <= 0 {
		c.Upstream.RateLimitMillis = def.Upstream.RateLimitMillis
	}
	if c.Upstream.WindowSpanDays <= 0 {
		c.Upstream.WindowSpanDays = def.Upstream.WindowSpanDays
	}
	if c.AutoSave.DefaultIntervalDays <= 0 {
		c.AutoSave.DefaultIntervalDays = def.AutoSave.DefaultIntervalDays
	}
	if c.AutoSave.WatchCap <= 0 {
		c.AutoSave.WatchCap = def.AutoSave.WatchCap
	}
	if c.AutoSave.LogCap <= 0 {
		c.AutoSave.LogCap = def.AutoSave.LogCap
	}
	if c.AutoSave.InitialDelaySecs < 0 {
		c.AutoSave.InitialDelaySecs = def.AutoSave.InitialDelaySecs
	}
	if c.AutoSave.PassPeriodMins <= 0 {
		c.AutoSave.PassPeriodMins = def.AutoSave.PassPeriodMins
	}
}

// Location resolves the configured timezone. "Local" or empty means the
// process-local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
