package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Port               int     `yaml:"port"`
		AdminAPIKey        string  `yaml:"admin_api_key"`
		RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
		RateLimitBurst     int     `yaml:"rate_limit_burst"`
	} `yaml:"http"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Availability AvailabilityConfig `yaml:"availability"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Backup BackupConfig `yaml:"backup"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// AvailabilityConfig controls slot generation and how settings are fetched.
type AvailabilityConfig struct {
	Timezone            string `yaml:"timezone"`
	SlotIntervalMinutes int    `yaml:"slot_interval_minutes"`
	WindowDays          int    `yaml:"window_days"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
	MaxRangeDays        int    `yaml:"max_range_days"`
	HoursConfigPath     string `yaml:"hours_config_path"`
	HoursReloadSeconds  int    `yaml:"hours_reload_seconds"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.RateLimitPerSecond <= 0 {
		c.HTTP.RateLimitPerSecond = 10
	}
	if c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = 20
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/tablebook.db"
	}
	if c.Availability.HoursConfigPath == "" {
		c.Availability.HoursConfigPath = "configs/hours.yaml"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 14
	}
}

// Location returns the restaurant timezone; an empty value means the server's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Availability.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Availability.Timezone)
	if err != nil {
		return nil, fmt.Errorf("availability.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) SlotInterval() time.Duration {
	if c.Availability.SlotIntervalMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Availability.SlotIntervalMinutes) * time.Minute
}

// WindowDays is the number of days of overrides preloaded from today.
func (c *Config) WindowDays() int {
	if c.Availability.WindowDays <= 0 {
		return 30
	}
	return c.Availability.WindowDays
}

func (c *Config) FetchTimeout() time.Duration {
	if c.Availability.FetchTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Availability.FetchTimeoutSeconds) * time.Second
}

func (c *Config) MaxRangeDays() int {
	if c.Availability.MaxRangeDays <= 0 {
		return 90
	}
	return c.Availability.MaxRangeDays
}

func (c *Config) HoursReloadInterval() time.Duration {
	if c.Availability.HoursReloadSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Availability.HoursReloadSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}
