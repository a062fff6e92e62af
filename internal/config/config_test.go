package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Default config", func(t *testing.T) {
		cfg, err := LoadConfig("", nil)
		if err != nil {
			t.Fatalf("Failed to load default config: %v", err)
		}

		if cfg.Replay.Format != "auto" {
			t.Errorf("Expected default format 'auto', got %s", cfg.Replay.Format)
		}
		if !cfg.Replay.ReuseConnection || cfg.Replay.ResetSettings {
			t.Errorf("Expected sticky navigation defaults, got reuse=%v reset=%v",
				cfg.Replay.ReuseConnection, cfg.Replay.ResetSettings)
		}
		if cfg.Replay.CookieJar != "" {
			t.Errorf("Expected header mode by default, got jar %q", cfg.Replay.CookieJar)
		}
		if cfg.Log.Level != "info" {
			t.Errorf("Expected default log level 'info', got %s", cfg.Log.Level)
		}
		if cfg.Transport.Timeout != 30 {
			t.Errorf("Expected default transport timeout 30, got %d", cfg.Transport.Timeout)
		}
		if cfg.Web.Port != 38889 || cfg.Web.AdminPath != "/api" {
			t.Errorf("Unexpected web defaults: %+v", cfg.Web)
		}
		if cfg.Web.ShutdownTimeout != 5*time.Second {
			t.Errorf("Expected 5s shutdown timeout, got %s", cfg.Web.ShutdownTimeout)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Expected default config to validate, got %v", err)
		}
	})
}

func validConfig() *Config {
	return &Config{
		Replay: ReplayConfig{Format: "auto", ReuseConnection: true},
		Transport: TransportConfig{
			Timeout:      30,
			MaxRedirects: 10,
		},
		Log:    LogConfig{Level: "info"},
		Output: OutputConfig{Mode: "console", Locale: "en"},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "./data/reqreplay.db",
		},
		Web: WebConfig{
			Port:      38889,
			AdminPath: "/api",
			Export:    WebExportConfig{Enable: true, Formats: []string{"har"}},
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:   "Valid config",
			mutate: func(*Config) {},
		},
		{
			name:     "Unknown format",
			mutate:   func(c *Config) { c.Replay.Format = "pcap" },
			errorMsg: "replay format must be",
		},
		{
			name:     "Reset without reuse",
			mutate:   func(c *Config) { c.Replay.ReuseConnection = false; c.Replay.ResetSettings = true },
			errorMsg: "reset_settings requires reuse_connection",
		},
		{
			name:     "Negative timeout",
			mutate:   func(c *Config) { c.Transport.Timeout = -1 },
			errorMsg: "transport timeout cannot be negative",
		},
		{
			name:     "Invalid log level",
			mutate:   func(c *Config) { c.Log.Level = "invalid" },
			errorMsg: "invalid log level",
		},
		{
			name: "File logging enabled but empty path",
			mutate: func(c *Config) {
				c.Log.FileLogging = FileLogConfig{Enable: true}
			},
			errorMsg: "log file path cannot be empty",
		},
		{
			name:     "Invalid output mode",
			mutate:   func(c *Config) { c.Output.Mode = "xml" },
			errorMsg: "output mode must be",
		},
		{
			name: "Unsupported storage driver",
			mutate: func(c *Config) {
				c.Storage.Enable = true
				c.Storage.Driver = "postgres"
			},
			errorMsg: "storage driver must be sqlite",
		},
		{
			name: "Storage driver ignored when disabled",
			mutate: func(c *Config) {
				c.Storage.Driver = "postgres"
			},
		},
		{
			name:     "Invalid web port",
			mutate:   func(c *Config) { c.Web.Port = 70000 },
			errorMsg: "invalid web port",
		},
		{
			name:     "Relative admin path",
			mutate:   func(c *Config) { c.Web.AdminPath = "api" },
			errorMsg: "web admin path must start with '/'",
		},
		{
			name:     "Unsupported export format",
			mutate:   func(c *Config) { c.Web.Export.Formats = []string{"csv"} },
			errorMsg: "unsupported web export format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.errorMsg != "" {
				if err == nil {
					t.Errorf("Expected error containing '%s', but got no error", tt.errorMsg)
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error, but got: %v", err)
			}
		})
	}
}

func TestValidateNormalizesFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Replay.Format = " XML "
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Replay.Format != "tamperdata" {
		t.Errorf("Expected xml alias to normalize to tamperdata, got %s", cfg.Replay.Format)
	}
}

func TestLoadConfigWithFile(t *testing.T) {
	configContent := `
replay:
  capture_file: "./capture.xml"
  format: "tamperdata"
  mime_filter:
    - "text/html"
    - " text/html "
    - "application/json"
  cookie_jar: "./jar.yaml"
  reuse_connection: true
  reset_settings: true

transport:
  timeout: 60
  follow_redirects: true
  tls_insecure_skip_verify: true

log:
  level: "debug"
  file_logging:
    enable: true
    path: "/tmp/test.log"
    max_size_mb: 5
    max_backups: 3
    max_age_days: 7
    compress: false

storage:
  enable: true
  path: "/tmp/replays.db"
  retention: "24h"

web:
  port: 9999
  export:
    formats: ["HAR", "json"]
`

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write config content: %v", err)
	}

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Replay.CaptureFile != "./capture.xml" || cfg.Replay.Format != "tamperdata" {
		t.Errorf("Unexpected replay section: %+v", cfg.Replay)
	}
	if len(cfg.Replay.MimeFilter) != 2 {
		t.Errorf("Expected deduplicated mime filter, got %v", cfg.Replay.MimeFilter)
	}
	if cfg.Replay.CookieJar != "./jar.yaml" || !cfg.Replay.ResetSettings {
		t.Errorf("Unexpected cookie/reset settings: %+v", cfg.Replay)
	}
	if cfg.Transport.Timeout != 60 || !cfg.Transport.FollowRedirects || !cfg.Transport.TLSInsecureSkipVerify {
		t.Errorf("Unexpected transport section: %+v", cfg.Transport)
	}
	if cfg.Transport.MaxRedirects != 10 {
		t.Errorf("Expected default max redirects to survive, got %d", cfg.Transport.MaxRedirects)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.FileLogging.Enable || cfg.Log.FileLogging.Compress {
		t.Errorf("Unexpected log section: %+v", cfg.Log)
	}
	if !cfg.Storage.Enable || cfg.Storage.Path != "/tmp/replays.db" || cfg.Storage.Retention != 24*time.Hour {
		t.Errorf("Unexpected storage section: %+v", cfg.Storage)
	}
	if cfg.Web.Port != 9999 {
		t.Errorf("Expected web port 9999, got %d", cfg.Web.Port)
	}
	if strings.Join(cfg.Web.Export.Formats, ",") != "har,json" {
		t.Errorf("Expected lower-cased export formats, got %v", cfg.Web.Export.Formats)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected loaded config to validate, got %v", err)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("REQREPLAY_TRANSPORT_TIMEOUT", "5")
	t.Setenv("REQREPLAY_REPLAY_COOKIE_JAR", "/tmp/env-jar.yaml")

	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Transport.Timeout != 5 {
		t.Errorf("Expected env timeout 5, got %d", cfg.Transport.Timeout)
	}
	if cfg.Replay.CookieJar != "/tmp/env-jar.yaml" {
		t.Errorf("Expected env cookie jar, got %q", cfg.Replay.CookieJar)
	}
}

func TestLoadConfigInvalidFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml", nil)
	if err == nil {
		t.Error("Expected error for missing config file")
	}
	if cfg != nil {
		t.Error("Expected nil config for missing file")
	}
}
