// Package config handles configuration loading for Foreman.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the coordinator.
type Config struct {
	State   StateConfig   `mapstructure:"state"`
	Health  HealthConfig  `mapstructure:"health"`
	Workers WorkersConfig `mapstructure:"workers"`
	Memory  MemoryConfig  `mapstructure:"memory"`
}

// StateConfig holds state store settings.
type StateConfig struct {
	// Path is the location of the durable coordination document.
	Path string `mapstructure:"path"`
	// FlushInterval is how often queued mutations are persisted.
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	// MaxFlushFailures is the consecutive flush-failure ceiling before the
	// store reports a fatal persistence error.
	MaxFlushFailures int `mapstructure:"max_flush_failures"`
}

// HealthConfig holds health supervisor settings.
type HealthConfig struct {
	// PollInterval is how often the supervisor re-evaluates agents.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// StalenessThreshold is the maximum heartbeat age before an agent is
	// considered unhealthy.
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold"`
	// MaxRestarts bounds restart attempts per agent.
	MaxRestarts int `mapstructure:"max_restarts"`
	// RestartDelay is the backoff delay between restart attempts.
	RestartDelay time.Duration `mapstructure:"restart_delay"`
	// Backoff selects the delay policy: "fixed" or "exponential".
	Backoff string `mapstructure:"backoff"`
}

// WorkersConfig holds worker process settings.
type WorkersConfig struct {
	// Command is the executable run for each worker.
	Command string `mapstructure:"command"`
	// Args are passed to every worker command.
	Args []string `mapstructure:"args"`
	// RolesFile is the YAML file declaring roles and worker assignments.
	RolesFile string `mapstructure:"roles_file"`
	// WorkspaceRoot is where per-worker worktrees are created.
	WorkspaceRoot string `mapstructure:"workspace_root"`
}

// MemoryConfig holds semantic memory settings.
type MemoryConfig struct {
	// Path is the location of the memory database.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (FOREMAN_*)
// 2. Project config (.foreman.yaml in current directory or parent)
// 3. User config (~/.config/foreman/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("FOREMAN")
	v.AutomaticEnv()
	v.BindEnv("state.path", "FOREMAN_STATE_PATH")
	v.BindEnv("state.flush_interval", "FOREMAN_FLUSH_INTERVAL")
	v.BindEnv("health.poll_interval", "FOREMAN_POLL_INTERVAL")
	v.BindEnv("health.staleness_threshold", "FOREMAN_STALENESS_THRESHOLD")
	v.BindEnv("health.max_restarts", "FOREMAN_MAX_RESTARTS")
	v.BindEnv("health.restart_delay", "FOREMAN_RESTART_DELAY")
	v.BindEnv("workers.command", "FOREMAN_WORKER_COMMAND")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("state.path", filepath.Join(".foreman", "state.json"))
	v.SetDefault("state.flush_interval", "2s")
	v.SetDefault("state.max_flush_failures", 5)

	v.SetDefault("health.poll_interval", "10s")
	v.SetDefault("health.staleness_threshold", "30s")
	v.SetDefault("health.max_restarts", 3)
	v.SetDefault("health.restart_delay", "5s")
	v.SetDefault("health.backoff", "fixed")

	v.SetDefault("workers.command", "")
	v.SetDefault("workers.roles_file", "roles.yaml")
	v.SetDefault("workers.workspace_root", filepath.Join(".foreman", "worktrees"))

	v.SetDefault("memory.path", filepath.Join(".foreman", "memory.db"))
}

// getUserConfigDir returns the XDG config directory for Foreman.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "foreman")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "foreman")
	}
	return filepath.Join(home, ".config", "foreman")
}

// findProjectConfig searches for .foreman.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".foreman.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}
