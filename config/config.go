// Package config loads the service configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"farecast/logging"
	"farecast/ml"
	"farecast/pipeline"

	"gopkg.in/yaml.v2"
)

const (
	DefaultModelPath    = "taxi_fare_model.json"
	DefaultFeaturesPath = "feature_columns.json"
	DefaultPort         = 8000
	DefaultDomain       = "taxi"
)

// Environment overrides.
const (
	EnvModelPath    = "MODEL_PATH"
	EnvFeaturesPath = "FEATURES_PATH"
	EnvPort         = "PORT"
	EnvDomain       = "FARECAST_DOMAIN"
)

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxUploadMB    int64         `yaml:"max_upload_mb"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type ModelConfig struct {
	Path         string `yaml:"path"`
	FeaturesPath string `yaml:"features_path"`
	Domain       string `yaml:"domain"`
	CacheSize    int    `yaml:"cache_size"`
	Watch        bool   `yaml:"watch"`
}

type DatabaseConfig struct {
	Enabled                bool `yaml:"enabled"`
	pipeline.StorageConfig `yaml:",inline"`
}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      logging.Config `yaml:"log"`
	Model    ModelConfig    `yaml:"model"`
	Database DatabaseConfig `yaml:"database"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           DefaultPort,
			Timeout:        30 * time.Second,
			MaxUploadMB:    32,
			AllowedOrigins: []string{"*"},
		},
		Log: logging.Config{Level: "info", Format: "json"},
		Model: ModelConfig{
			Path:         DefaultModelPath,
			FeaturesPath: DefaultFeaturesPath,
			Domain:       DefaultDomain,
			CacheSize:    1024,
			Watch:        true,
		},
		Database: DatabaseConfig{
			StorageConfig: pipeline.StorageConfig{DBPath: "data/predictions.db", EnableWAL: true},
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.UnmarshalStrict(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvModelPath); ok && v != "" {
		c.Model.Path = v
	}
	if v, ok := lookup(EnvFeaturesPath); ok && v != "" {
		c.Model.FeaturesPath = v
	}
	if v, ok := lookup(EnvDomain); ok && v != "" {
		c.Model.Domain = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not a port number", EnvPort, v)
		}
		c.HTTP.Port = port
	}
	return nil
}

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative")
	}
	if c.Model.Path == "" || c.Model.FeaturesPath == "" {
		return fmt.Errorf("model.path and model.features_path are required")
	}
	if _, err := ml.ProfileByName(c.Model.Domain); err != nil {
		return err
	}
	if c.Model.CacheSize < 0 {
		return fmt.Errorf("model.cache_size must not be negative")
	}
	if c.Database.Enabled && c.Database.DBPath == "" {
		return fmt.Errorf("database.path is required when the database is enabled")
	}
	return nil
}
