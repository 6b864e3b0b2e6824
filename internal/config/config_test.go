package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"LogLevel", cfg.LogLevel, "info"},
		{"JSONLogs", cfg.JSONLogs, false},
		{"Workers", cfg.Workers, 4},
		{"CacheSize", cfg.CacheSize, 256},
		{"CacheDir", cfg.CacheDir, ""},
		{"Format", cfg.Format, FormatJSON},
		{"ExpandAllLocations", cfg.ExpandAllLocations, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "yaml format", mutate: func(c *Config) { c.Format = FormatYAML }},
		{name: "warning alias", mutate: func(c *Config) { c.LogLevel = "warning" }},
		{name: "unknown level", mutate: func(c *Config) { c.LogLevel = "trace" }, errContains: "invalid log_level"},
		{name: "unknown format", mutate: func(c *Config) { c.Format = "xml" }, errContains: "invalid format"},
		{name: "zero workers", mutate: func(c *Config) { c.Workers = 0 }, errContains: "workers must be positive"},
		{name: "negative cache", mutate: func(c *Config) { c.CacheSize = -1 }, errContains: "cache_size must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.errContains == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.errContains)
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Error = %q, should contain %q", err.Error(), tt.errContains)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		envVars     map[string]string
		checkCfg    func(*testing.T, *Config)
		errContains string
	}{
		{
			name: "load valid config from file",
			configYAML: `
log_level: debug
json_logs: true
workers: 8
cache_size: 32
cache_dir: /tmp/grf-cache
format: msgpack
expand_all_locations: false
`,
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.LogLevel != "debug" {
					t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
				}
				if !cfg.JSONLogs {
					t.Error("JSONLogs = false, want true")
				}
				if cfg.Workers != 8 {
					t.Errorf("Workers = %v, want 8", cfg.Workers)
				}
				if cfg.CacheSize != 32 {
					t.Errorf("CacheSize = %v, want 32", cfg.CacheSize)
				}
				if cfg.CacheDir != "/tmp/grf-cache" {
					t.Errorf("CacheDir = %v, want /tmp/grf-cache", cfg.CacheDir)
				}
				if cfg.Format != FormatMsgpack {
					t.Errorf("Format = %v, want %v", cfg.Format, FormatMsgpack)
				}
				if cfg.ExpandAllLocations {
					t.Error("ExpandAllLocations = true, want false")
				}
			},
		},
		{
			name:       "partial file keeps defaults",
			configYAML: "workers: 2\n",
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.Workers != 2 {
					t.Errorf("Workers = %v, want 2", cfg.Workers)
				}
				if cfg.CacheSize != 256 {
					t.Errorf("CacheSize = %v, want 256 (default)", cfg.CacheSize)
				}
				if !cfg.ExpandAllLocations {
					t.Error("ExpandAllLocations = false, want true (default)")
				}
			},
		},
		{
			name:       "env var overrides file values",
			configYAML: "workers: 2\nformat: yaml\n",
			envVars: map[string]string{
				"GRF_WORKERS":              "6",
				"GRF_EXPAND_ALL_LOCATIONS": "0",
			},
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.Workers != 6 {
					t.Errorf("Workers = %v, want 6 (from env)", cfg.Workers)
				}
				if cfg.Format != FormatYAML {
					t.Errorf("Format = %v, want yaml (from file)", cfg.Format)
				}
				if cfg.ExpandAllLocations {
					t.Error("ExpandAllLocations = true, want false (from env)")
				}
			},
		},
		{
			name:        "invalid yaml",
			configYAML:  "workers: 2\n  invalid: indent\n",
			errContains: "failed to parse",
		},
		{
			name:        "invalid format in file",
			configYAML:  "format: xml\n",
			errContains: "invalid format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to write config file: %v", err)
			}

			cfg, err := LoadFromFile(configPath)

			if tt.errContains != "" {
				if err == nil {
					t.Errorf("Expected error containing %q, got nil", tt.errContains)
				} else if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Error = %q, should contain %q", err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.checkCfg != nil {
				tt.checkCfg(t, cfg)
			}
		})
	}
}

func TestApplyEnvOverridesIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("GRF_WORKERS", "many")
	t.Setenv("GRF_CACHE_SIZE", "-3")
	t.Setenv("GRF_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Workers != 4 {
		t.Errorf("Workers = %v, want 4", cfg.Workers)
	}
	if cfg.CacheSize != 256 {
		t.Errorf("CacheSize = %v, want 256", cfg.CacheSize)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %v, want warn", cfg.LogLevel)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 3
	cfg.Format = FormatYAML

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() = %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("loaded %+v, want %+v", *loaded, *cfg)
	}
}
