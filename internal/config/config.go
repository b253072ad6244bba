package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for go-taint-query
type Config struct {
	// FactStore is the SQLite database produced by the extractors
	FactStore string `yaml:"fact_store" env:"GTQ_FACT_STORE"`

	// SourceRoot is where fact-store file paths are resolved for CFG building
	SourceRoot string `yaml:"source_root" env:"GTQ_SOURCE_ROOT"`

	// PatternPacks are extra YAML pattern files, applied before built-in frameworks
	PatternPacks []string `yaml:"pattern_packs" env:"GTQ_PATTERN_PACKS"`

	// Frameworks restricts built-in plugins; empty means detect all
	Frameworks []string `yaml:"frameworks" env:"GTQ_FRAMEWORKS"`

	// Analysis
	Workers  int           `yaml:"workers" env:"GTQ_WORKERS"`
	Budget   time.Duration `yaml:"budget" env:"GTQ_BUDGET"`
	MaxFacts int           `yaml:"max_facts" env:"GTQ_MAX_FACTS"`
	UseCFG   bool          `yaml:"use_cfg" env:"GTQ_USE_CFG"`

	// CacheSize bounds the number of CFGs kept during one run
	CacheSize int `yaml:"cache_size" env:"GTQ_CACHE_SIZE"`

	// FactSetPath is where analyze writes and query/serve read the fact set
	FactSetPath string `yaml:"factset_path" env:"GTQ_FACTSET_PATH"`

	ServeAddr string `yaml:"serve_addr" env:"GTQ_SERVE_ADDR"`

	// Logging
	Verbose bool `yaml:"verbose" env:"GTQ_VERBOSE"`
	LogJSON bool `yaml:"log_json" env:"GTQ_LOG_JSON"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		FactStore:   ".pf/repo_index.db",
		SourceRoot:  ".",
		Workers:     0,
		Budget:      10 * time.Minute,
		MaxFacts:    0,
		UseCFG:      true,
		CacheSize:   4096,
		FactSetPath: ".gtq/factset.msgpack",
		ServeAddr:   "127.0.0.1:8787",
	}
}

// globalConfigFilePath returns the global config file path (~/.gtq/config.yaml)
func globalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gtq/config.yaml"
	}
	return filepath.Join(home, ".gtq", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.gtq/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".gtq", "config.yaml")
}

// EffectiveConfigFilePath returns the highest-priority config file that
// exists, or "" when neither does.
func EffectiveConfigFilePath() string {
	for _, path := range []string{ProjectConfigFilePath(), globalConfigFilePath()} {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.gtq/config.yaml)
// 3. Global config (~/.gtq/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{globalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

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

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

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
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("GTQ_FACT_STORE"); v != "" {
		cfg.FactStore = v
	}
	if v := os.Getenv("GTQ_SOURCE_ROOT"); v != "" {
		cfg.SourceRoot = v
	}
	if v := os.Getenv("GTQ_PATTERN_PACKS"); v != "" {
		cfg.PatternPacks = splitList(v)
	}
	if v := os.Getenv("GTQ_FRAMEWORKS"); v != "" {
		cfg.Frameworks = splitList(v)
	}
	if v := os.Getenv("GTQ_WORKERS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Workers = i
		}
	}
	if v := os.Getenv("GTQ_BUDGET"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid GTQ_BUDGET %q: %w", v, err)
		}
		cfg.Budget = d
	}
	if v := os.Getenv("GTQ_MAX_FACTS"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.MaxFacts = i
		}
	}
	if v := os.Getenv("GTQ_USE_CFG"); v != "" {
		cfg.UseCFG = parseBool(v)
	}
	if v := os.Getenv("GTQ_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.CacheSize = i
		}
	}
	if v := os.Getenv("GTQ_FACTSET_PATH"); v != "" {
		cfg.FactSetPath = v
	}
	if v := os.Getenv("GTQ_SERVE_ADDR"); v != "" {
		cfg.ServeAddr = v
	}
	if v := os.Getenv("GTQ_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
	if v := os.Getenv("GTQ_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	return nil
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.FactStore == "" {
		return fmt.Errorf("fact_store is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if c.Budget < 0 {
		return fmt.Errorf("budget must be non-negative")
	}
	if c.MaxFacts < 0 {
		return fmt.Errorf("max_facts must be non-negative")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive")
	}
	if c.FactSetPath == "" {
		return fmt.Errorf("factset_path is required")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return -1
	}
	return i
}
