package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv(envAPIURL, "")
	t.Setenv(envStatePath, "")
	path := writeConfig(t, `
api:
  base_url: https://tasks.example.com/api
  timeout: 5s
  rate_limit: 2.5
  burst: 4
state:
  path: /tmp/taskflow-test.db
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.BaseURL != "https://tasks.example.com/api" {
		t.Errorf("base_url = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", cfg.API.Timeout)
	}
	if cfg.API.RefreshTimeout != 30*time.Second {
		t.Errorf("refresh_timeout = %v, want default 30s", cfg.API.RefreshTimeout)
	}
	if cfg.API.RateLimit != 2.5 || cfg.API.Burst != 4 {
		t.Errorf("rate limit = %v/%d", cfg.API.RateLimit, cfg.API.Burst)
	}
	if cfg.State.Path != "/tmp/taskflow-test.db" {
		t.Errorf("state.path = %q", cfg.State.Path)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: http://file.example.com/api\n")
	t.Setenv(envAPIURL, "http://env.example.com/api")
	t.Setenv(envStatePath, "/tmp/env-state.db")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.BaseURL != "http://env.example.com/api" {
		t.Errorf("base_url = %q, want env override", cfg.API.BaseURL)
	}
	if cfg.State.Path != "/tmp/env-state.db" {
		t.Errorf("state.path = %q, want env override", cfg.State.Path)
	}
}

func TestLoadConfig_ConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, "api:\n  burst: 9\n")
	t.Setenv(envConfigPath, path)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.Burst != 9 {
		t.Errorf("burst = %d, want 9", cfg.API.Burst)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "api: [unclosed")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:5000/api" {
		t.Errorf("base_url = %q", cfg.API.BaseURL)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"non-http base url", func(c *Config) { c.API.BaseURL = "ftp://example.com" }},
		{"negative timeout", func(c *Config) { c.API.Timeout = -time.Second }},
		{"negative rate limit", func(c *Config) { c.API.RateLimit = -1 }},
		{"negative burst", func(c *Config) { c.API.Burst = -1 }},
		{"empty state path", func(c *Config) { c.State.Path = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
