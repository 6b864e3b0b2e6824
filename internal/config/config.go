package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects the encoding of exported fact tables.
type OutputFormat string

const (
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatMsgpack OutputFormat = "msgpack"
)

// Config holds all configuration for grf
type Config struct {
	// Logging
	LogLevel string `yaml:"log_level" env:"GRF_LOG_LEVEL"`
	JSONLogs bool   `yaml:"json_logs" env:"GRF_JSON_LOGS"`

	// Workers bounds the number of procedures enriched in parallel.
	Workers int `yaml:"workers" env:"GRF_WORKERS"`

	// CacheSize is the number of enriched bodies kept in memory.
	CacheSize int `yaml:"cache_size" env:"GRF_CACHE_SIZE"`

	// CacheDir holds persisted fact tables. Empty disables persistence.
	CacheDir string `yaml:"cache_dir" env:"GRF_CACHE_DIR"`

	// Format is the default export format of the CLI.
	Format OutputFormat `yaml:"format" env:"GRF_FORMAT"`

	// ExpandAllLocations repeats constraints that hold everywhere at every
	// point of the body in subset_base.
	ExpandAllLocations bool `yaml:"expand_all_locations" env:"GRF_EXPAND_ALL_LOCATIONS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:           "info",
		JSONLogs:           false,
		Workers:            4,
		CacheSize:          256,
		CacheDir:           "",
		Format:             FormatJSON,
		ExpandAllLocations: true,
	}
}

// GlobalConfigPath returns the global config file path (~/.grf/config.yaml)
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".grf/config.yaml"
	}
	return filepath.Join(home, ".grf", "config.yaml")
}

// ProjectConfigPath returns the project-level config file path (./.grf/config.yaml)
func ProjectConfigPath() string {
	return ".grf/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.grf/config.yaml)
// 3. Global config (~/.grf/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigPath(), ProjectConfigPath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRF_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GRF_JSON_LOGS"); v != "" {
		cfg.JSONLogs = parseBool(v)
	}
	if v := os.Getenv("GRF_WORKERS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Workers = i
		}
	}
	if v := os.Getenv("GRF_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.CacheSize = i
		}
	}
	if v := os.Getenv("GRF_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("GRF_FORMAT"); v != "" {
		cfg.Format = OutputFormat(v)
	}
	if v := os.Getenv("GRF_EXPAND_ALL_LOCATIONS"); v != "" {
		cfg.ExpandAllLocations = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn or error)", c.LogLevel)
	}

	switch c.Format {
	case FormatJSON, FormatYAML, FormatMsgpack:
	default:
		return fmt.Errorf("invalid format: %s (must be 'json', 'yaml' or 'msgpack')", c.Format)
	}

	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive")
	}

	return nil
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}
