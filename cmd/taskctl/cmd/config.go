package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/taskflow/internal/client"
)

// Environment overrides.
const (
	envConfigPath = "TASKFLOW_CONFIG"
	envAPIURL     = "TASKFLOW_API_URL"
	envStatePath  = "TASKFLOW_STATE_PATH"
)

// Config represents the CLI configuration.
type Config struct {
	API     APIConfig   `yaml:"api"`
	State   StateConfig `yaml:"state"`
	Verbose bool        `yaml:"-"` // set via CLI flag
}

// APIConfig contains backend connection settings.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`        // backend base URL including /api
	Timeout        time.Duration `yaml:"timeout"`         // per-request timeout (default: 15s)
	RefreshTimeout time.Duration `yaml:"refresh_timeout"` // token renewal timeout (default: 30s)
	RateLimit      float64       `yaml:"rate_limit"`      // requests per second, 0 = unlimited
	Burst          int           `yaml:"burst"`           // limiter burst (default: 1)
}

// StateConfig contains local state settings.
type StateConfig struct {
	Path string `yaml:"path"` // sqlite file holding the session
}

// LoadConfig loads configuration from path. An empty path falls back to
// $TASKFLOW_CONFIG and then the user config directory; a missing default
// file yields defaults, a missing explicit file is an error.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(envConfigPath)
		explicit = path != ""
	}
	if !explicit {
		path = defaultConfigPath()
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envAPIURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(envStatePath); v != "" {
		c.State.Path = v
	}
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = client.DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 15 * time.Second
	}
	if c.API.RefreshTimeout == 0 {
		c.API.RefreshTimeout = 30 * time.Second
	}
	if c.API.Burst == 0 {
		c.API.Burst = 1
	}
	if c.State.Path == "" {
		c.State.Path = filepath.Join(configDir(), "state.db")
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must be an http or https URL")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if c.API.RefreshTimeout < 0 {
		return fmt.Errorf("api.refresh_timeout must not be negative")
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}
	if c.API.Burst < 0 {
		return fmt.Errorf("api.burst must not be negative")
	}
	if c.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	return nil
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".taskflow"
	}
	return filepath.Join(dir, "taskflow")
}

func defaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}
