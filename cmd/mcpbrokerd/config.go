package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// Config holds the mcpbrokerd process configuration. Grounded on the
// teacher's cmd/mcp-proxy/config.go env-then-flags pattern, narrowed to
// this plugin's much smaller surface (no YAML layer, no auth tokens —
// those are the embedding host's concern per spec.md §1).
type Config struct {
	Host            string
	Port            int
	SettingsPath    string
	LogLevel        string
	LogJSON         bool
	ShutdownTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            7060,
		SettingsPath:    "mcp_settings.json",
		LogLevel:        "info",
		LogJSON:         false,
		ShutdownTimeout: 10 * time.Second,
	}
}

func LoadConfig(cmd *cobra.Command) (*Config, error) {
	cfg := DefaultConfig()
	loadFromEnv(cfg)
	if err := loadFromFlags(cfg, cmd); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	if val := os.Getenv("MCPBROKER_HOST"); val != "" {
		cfg.Host = val
	}
	if val := os.Getenv("MCPBROKER_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Port = port
		} else {
			fmt.Fprintf(os.Stderr, "Warning: invalid MCPBROKER_PORT value %q: %v\n", val, err)
		}
	}
	if val := os.Getenv("MCPBROKER_SETTINGS_PATH"); val != "" {
		cfg.SettingsPath = val
	}
	if val := os.Getenv("MCPBROKER_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}
	if val := os.Getenv("MCPBROKER_LOG_JSON"); val != "" {
		cfg.LogJSON = val == "true" || val == "1"
	}
	if val := os.Getenv("MCPBROKER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.ShutdownTimeout = d
		} else {
			fmt.Fprintf(os.Stderr, "Warning: invalid MCPBROKER_SHUTDOWN_TIMEOUT value %q: %v\n", val, err)
		}
	}
}

func loadFromFlags(cfg *Config, cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("host") {
		v, err := flags.GetString("host")
		if err != nil {
			return err
		}
		cfg.Host = v
	}
	if flags.Changed("port") {
		v, err := flags.GetInt("port")
		if err != nil {
			return err
		}
		cfg.Port = v
	}
	if flags.Changed("settings-path") {
		v, err := flags.GetString("settings-path")
		if err != nil {
			return err
		}
		cfg.SettingsPath = v
	}
	if flags.Changed("log-level") {
		v, err := flags.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = v
	}
	if flags.Changed("log-json") {
		v, err := flags.GetBool("log-json")
		if err != nil {
			return err
		}
		cfg.LogJSON = v
	}
	if flags.Changed("shutdown-timeout") {
		v, err := flags.GetDuration("shutdown-timeout")
		if err != nil {
			return err
		}
		cfg.ShutdownTimeout = v
	}
	return nil
}
