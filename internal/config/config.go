package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Engine   EngineConfig   `yaml:"engine"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Worker   WorkerConfig   `yaml:"worker"`
	Export   ExportConfig   `yaml:"export"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// EngineConfig contains routing engine tunables.
type EngineConfig struct {
	HorizonWeeks   int `yaml:"horizon_weeks"`
	ScorePrecision int `yaml:"score_precision"`
	ClaimRetries   int `yaml:"claim_retries"`
	// StaleMaxAge is how long an evergreen entry may sit queued before
	// the staleness review flags it.
	StaleMaxAge Duration `yaml:"stale_max_age"`
	// PerishableWindow is the tighter age bound for time-sensitive entries.
	PerishableWindow Duration `yaml:"perishable_window"`
}

// AlertsConfig contains dashboard alert thresholds.
type AlertsConfig struct {
	IntakeFreshness    Duration `yaml:"intake_freshness"`
	MinEvergreenBuffer int      `yaml:"min_evergreen_buffer"`
	DuplicateWindow    Duration `yaml:"duplicate_window"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	StalenessInterval Duration `yaml:"staleness_interval"`
	AlertScanInterval Duration `yaml:"alert_scan_interval"`
	ExportInterval    Duration `yaml:"export_interval"`
}

// ExportConfig contains schedule export settings. The S3 credentials are
// env-only and never read from YAML.
type ExportConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	UseSSL          bool   `yaml:"use_ssl"`
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("DESKFLOW_CONFIG_PATH", "config/deskflow.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/deskflow.db",
		},
		Engine: EngineConfig{
			HorizonWeeks:     8,
			ScorePrecision:   0,
			ClaimRetries:     3,
			StaleMaxAge:      Duration(30 * 24 * time.Hour),
			PerishableWindow: Duration(7 * 24 * time.Hour),
		},
		Alerts: AlertsConfig{
			IntakeFreshness:    Duration(48 * time.Hour),
			MinEvergreenBuffer: 3,
			DuplicateWindow:    Duration(30 * 24 * time.Hour),
		},
		Worker: WorkerConfig{
			StalenessInterval: Duration(24 * time.Hour),
			AlertScanInterval: Duration(15 * time.Minute),
			ExportInterval:    Duration(1 * time.Hour),
		},
		Export: ExportConfig{
			Enabled: false,
			Bucket:  "deskflow-schedule",
			Prefix:  "exports",
			UseSSL:  true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("DESKFLOW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DESKFLOW_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("DESKFLOW_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("DESKFLOW_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("DESKFLOW_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Auth
	if v := os.Getenv("DESKFLOW_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Engine
	if v := os.Getenv("DESKFLOW_HORIZON_WEEKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.HorizonWeeks = n
		}
	}
	if v := os.Getenv("DESKFLOW_SCORE_PRECISION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.ScorePrecision = n
		}
	}
	if v := os.Getenv("DESKFLOW_CLAIM_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.ClaimRetries = n
		}
	}
	if v := os.Getenv("DESKFLOW_STALE_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.StaleMaxAge = Duration(d)
		}
	}
	if v := os.Getenv("DESKFLOW_PERISHABLE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.PerishableWindow = Duration(d)
		}
	}

	// Alerts
	if v := os.Getenv("DESKFLOW_INTAKE_FRESHNESS"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerts.IntakeFreshness = Duration(d)
		}
	}
	if v := os.Getenv("DESKFLOW_MIN_EVERGREEN_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Alerts.MinEvergreenBuffer = n
		}
	}
	if v := os.Getenv("DESKFLOW_DUPLICATE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerts.DuplicateWindow = Duration(d)
		}
	}

	// Worker
	if v := os.Getenv("DESKFLOW_STALENESS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.StalenessInterval = Duration(d)
		}
	}
	if v := os.Getenv("DESKFLOW_ALERT_SCAN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.AlertScanInterval = Duration(d)
		}
	}
	if v := os.Getenv("DESKFLOW_EXPORT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.ExportInterval = Duration(d)
		}
	}

	// Export
	if v := os.Getenv("DESKFLOW_EXPORT_ENABLED"); v != "" {
		cfg.Export.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DESKFLOW_EXPORT_ENDPOINT"); v != "" {
		cfg.Export.Endpoint = v
	}
	if v := os.Getenv("DESKFLOW_EXPORT_BUCKET"); v != "" {
		cfg.Export.Bucket = v
	}
	if v := os.Getenv("DESKFLOW_EXPORT_PREFIX"); v != "" {
		cfg.Export.Prefix = v
	}
	if v := os.Getenv("DESKFLOW_EXPORT_ACCESS_KEY"); v != "" {
		cfg.Export.AccessKeyID = v
	}
	if v := os.Getenv("DESKFLOW_EXPORT_SECRET_KEY"); v != "" {
		cfg.Export.SecretAccessKey = v
	}

	// Log
	if v := os.Getenv("DESKFLOW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DESKFLOW_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
// In dev mode (DESKFLOW_DEV_MODE=true), API key validation is skipped.
func (c *Config) validate() error {
	if c.Engine.HorizonWeeks <= 0 {
		return errors.New("engine.horizon_weeks must be positive")
	}
	if c.Engine.ScorePrecision < 0 {
		return errors.New("engine.score_precision must not be negative")
	}
	if c.Export.Enabled && c.Export.Endpoint == "" {
		return errors.New("export.endpoint is required when export is enabled")
	}

	// Dev mode bypasses API key validation
	if os.Getenv("DESKFLOW_DEV_MODE") == "true" {
		return nil
	}

	if c.Auth.APIKey == "" {
		return errors.New("DESKFLOW_API_KEY is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
