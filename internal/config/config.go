package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Memory  MemoryConfig  `yaml:"memory"`
	Decay   DecayConfig   `yaml:"decay"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"` // "debug" or "release"
}

// Addr returns the listen address in host:port form
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

type MemoryConfig struct {
	MaxInteractions int `yaml:"max_interactions"`
}

type DecayConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	RunOnStart bool          `yaml:"run_on_start"`
}

// UnmarshalYAML accepts durations in "24h" form and keeps absent keys
// at their layered defaults.
func (d *DecayConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Enabled    *bool  `yaml:"enabled"`
		Interval   string `yaml:"interval"`
		RunOnStart *bool  `yaml:"run_on_start"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Enabled != nil {
		d.Enabled = *raw.Enabled
	}
	if raw.RunOnStart != nil {
		d.RunOnStart = *raw.RunOnStart
	}
	if raw.Interval != "" {
		parsed, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("invalid decay interval %q: %w", raw.Interval, err)
		}
		d.Interval = parsed
	}
	return nil
}

type StorageConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load builds the configuration from defaults and environment variables
func Load() *Config {
	cfg := defaultConfig()
	applyEnv(cfg)
	return cfg
}

// LoadFile layers a YAML file between the defaults and the environment:
// file values override defaults, environment variables override both.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    "7080",
			GinMode: "release",
		},
		Memory: MemoryConfig{
			MaxInteractions: 100,
		},
		Decay: DecayConfig{
			Enabled:    true,
			Interval:   24 * time.Hour,
			RunOnStart: true,
		},
		Storage: StorageConfig{
			Enabled:  true,
			Path:     "recall.db",
			InMemory: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("RECALL_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("RECALL_PORT", cfg.Server.Port)
	cfg.Server.GinMode = getEnv("RECALL_GIN_MODE", cfg.Server.GinMode)

	cfg.Memory.MaxInteractions = getIntEnv("RECALL_MAX_INTERACTIONS", cfg.Memory.MaxInteractions)

	cfg.Decay.Enabled = getBoolEnv("RECALL_DECAY_ENABLED", cfg.Decay.Enabled)
	cfg.Decay.Interval = getDurationEnv("RECALL_DECAY_INTERVAL", cfg.Decay.Interval)
	cfg.Decay.RunOnStart = getBoolEnv("RECALL_DECAY_RUN_ON_START", cfg.Decay.RunOnStart)

	cfg.Storage.Enabled = getBoolEnv("RECALL_DB_ENABLED", cfg.Storage.Enabled)
	cfg.Storage.Path = getEnv("RECALL_DB_PATH", cfg.Storage.Path)
	cfg.Storage.InMemory = getBoolEnv("RECALL_DB_IN_MEMORY", cfg.Storage.InMemory)

	cfg.Logging.Level = getEnv("RECALL_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("RECALL_LOG_FORMAT", cfg.Logging.Format)

	cfg.Metrics.Enabled = getBoolEnv("RECALL_METRICS_ENABLED", cfg.Metrics.Enabled)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
