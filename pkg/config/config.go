package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shaneisley/relay/pkg/backoff"
	"github.com/shaneisley/relay/pkg/version"
)

// Config holds the service configuration. All values are injected at
// startup; the running service never mutates them.
type Config struct {
	ListenPort            int           `mapstructure:"listen_port"`
	Workers               int           `mapstructure:"workers"`
	MaxAttempts           int           `mapstructure:"max_attempts"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	DefaultTTL            time.Duration `mapstructure:"default_ttl"`
	CacheCapacity         int           `mapstructure:"cache_capacity"`
	RedisAddr             string        `mapstructure:"redis_addr"`
	BatchConcurrency      int           `mapstructure:"batch_concurrency"`
	CountersResetInterval time.Duration `mapstructure:"counters_reset_interval"`
	BackoffStrategy       string        `mapstructure:"backoff_strategy"`
	BackoffBaseDelay      time.Duration `mapstructure:"backoff_base_delay"`
	BackoffMultiplier     float64       `mapstructure:"backoff_multiplier"`
	BackoffMaxDelay       time.Duration `mapstructure:"backoff_max_delay"`
	LogLevel              string        `mapstructure:"log_level"`
	DatabasePath          string        `mapstructure:"database_path"`
	CurrentVersion        string        `mapstructure:"current_version"`
	Versions              []Version     `mapstructure:"versions"`
}

// Version is one supported-version entry of the protocol table.
type Version struct {
	Version            string   `mapstructure:"version"`
	SupportedFeatures  []string `mapstructure:"supported_features"`
	DeprecatedFeatures []string `mapstructure:"deprecated_features"`
	BreakingChanges    []string `mapstructure:"breaking_changes"`
	ReleaseDate        string   `mapstructure:"release_date"`
	EndOfLife          string   `mapstructure:"end_of_life"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s value '%v': %s", e.Field, e.Value, e.Message)
}

// setDefaults applies the built-in defaults to a viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_port", 8080)
	v.SetDefault("workers", 4)
	v.SetDefault("max_attempts", 5)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("default_ttl", 5*time.Minute)
	v.SetDefault("cache_capacity", 1000)
	v.SetDefault("redis_addr", "")
	v.SetDefault("batch_concurrency", 4)
	v.SetDefault("counters_reset_interval", time.Hour)
	v.SetDefault("backoff_strategy", "schedule")
	v.SetDefault("backoff_base_delay", time.Second)
	v.SetDefault("backoff_multiplier", 2.0)
	v.SetDefault("backoff_max_delay", 30*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("database_path", "relay.db")
	v.SetDefault("current_version", "2.0.0")
}

// Load resolves configuration with the standard precedence: defaults,
// then config file (when present), then RELAY_* environment variables.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Versions) == 0 {
		cfg.Versions = defaultVersions()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// defaultVersions is the built-in supported version table, used when the
// config file does not define one.
func defaultVersions() []Version {
	return []Version{
		{Version: "1.0.0", ReleaseDate: "2023-01-15", DeprecatedFeatures: []string{"legacy-auth"}},
		{Version: "1.5.0", ReleaseDate: "2023-09-01"},
		{Version: "2.0.0", ReleaseDate: "2024-04-10"},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return ValidationError{Field: "workers", Value: c.Workers, Message: "must be positive"}
	}
	if c.Workers > 256 {
		return ValidationError{Field: "workers", Value: c.Workers, Message: "must not exceed 256"}
	}
	if c.MaxAttempts <= 0 {
		return ValidationError{Field: "max_attempts", Value: c.MaxAttempts, Message: "must be positive"}
	}
	if c.MaxAttempts > 20 {
		return ValidationError{Field: "max_attempts", Value: c.MaxAttempts, Message: "must not exceed 20"}
	}
	if c.RequestTimeout <= 0 {
		return ValidationError{Field: "request_timeout", Value: c.RequestTimeout, Message: "must be positive"}
	}
	if c.DefaultTTL <= 0 {
		return ValidationError{Field: "default_ttl", Value: c.DefaultTTL, Message: "must be positive"}
	}
	if c.CacheCapacity <= 0 {
		return ValidationError{Field: "cache_capacity", Value: c.CacheCapacity, Message: "must be positive"}
	}
	switch c.BackoffStrategy {
	case "schedule", "fixed", "exponential":
	default:
		return ValidationError{Field: "backoff_strategy", Value: c.BackoffStrategy, Message: "must be one of schedule, fixed, exponential"}
	}
	if c.BackoffStrategy != "schedule" && c.BackoffBaseDelay <= 0 {
		return ValidationError{Field: "backoff_base_delay", Value: c.BackoffBaseDelay, Message: "must be positive"}
	}
	if c.BackoffStrategy == "exponential" && c.BackoffMultiplier < 1 {
		return ValidationError{Field: "backoff_multiplier", Value: c.BackoffMultiplier, Message: "must be at least 1"}
	}
	if c.CurrentVersion == "" {
		return ValidationError{Field: "current_version", Value: c.CurrentVersion, Message: "must not be empty"}
	}
	if len(c.Versions) == 0 {
		return ValidationError{Field: "versions", Value: nil, Message: "at least one supported version is required"}
	}
	return nil
}

// RetryStrategy builds the configured backoff strategy. "schedule" (the
// default) selects the standard stepped sequence; "fixed" and
// "exponential" use the backoff_* tunables.
func (c *Config) RetryStrategy() backoff.Strategy {
	switch c.BackoffStrategy {
	case "fixed":
		return backoff.NewFixed(c.BackoffBaseDelay)
	case "exponential":
		return backoff.NewExponential(c.BackoffBaseDelay, c.BackoffMultiplier, c.BackoffMaxDelay)
	default:
		return backoff.DefaultSchedule()
	}
}

// VersionTable builds the immutable supported version table from the
// configuration entries.
func (c *Config) VersionTable() (*version.Table, error) {
	descriptors := make([]version.Descriptor, 0, len(c.Versions))
	for _, entry := range c.Versions {
		d := version.Descriptor{
			Version:            entry.Version,
			SupportedFeatures:  entry.SupportedFeatures,
			DeprecatedFeatures: entry.DeprecatedFeatures,
			BreakingChanges:    entry.BreakingChanges,
		}
		if entry.ReleaseDate != "" {
			released, err := time.Parse("2006-01-02", entry.ReleaseDate)
			if err != nil {
				return nil, ValidationError{Field: "versions.release_date", Value: entry.ReleaseDate, Message: "must be YYYY-MM-DD"}
			}
			d.ReleaseDate = released
		}
		if entry.EndOfLife != "" {
			eol, err := time.Parse("2006-01-02", entry.EndOfLife)
			if err != nil {
				return nil, ValidationError{Field: "versions.end_of_life", Value: entry.EndOfLife, Message: "must be YYYY-MM-DD"}
			}
			d.EndOfLife = &eol
		}
		descriptors = append(descriptors, d)
	}

	return version.NewTable(c.CurrentVersion, descriptors)
}
