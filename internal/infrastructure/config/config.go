// Package config loads daemon configuration.
//
// Precedence, lowest to highest: built-in defaults, an optional TOML
// config file, environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all daemon configuration.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Terminal     TerminalConfig     `toml:"terminal"`
	Registration RegistrationConfig `toml:"registration"`
	Logging      LogConfig          `toml:"logging"`
	RateLimit    RateLimitConfig    `toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `envconfig:"HOST" toml:"host"`
	Port string `envconfig:"PORT" toml:"port"`
}

// TerminalConfig holds session manager configuration.
type TerminalConfig struct {
	// Shell overrides the interactive shell; empty means $SHELL or /bin/bash.
	Shell             string        `envconfig:"TERMINAL_SHELL" toml:"shell"`
	SettleDelay       time.Duration `envconfig:"TERMINAL_SETTLE_DELAY" toml:"settle_delay"`
	PollInterval      time.Duration `envconfig:"TERMINAL_POLL_INTERVAL" toml:"poll_interval"`
	CommandTimeout    time.Duration `envconfig:"TERMINAL_COMMAND_TIMEOUT" toml:"command_timeout"`
	GracePeriod       time.Duration `envconfig:"TERMINAL_GRACE_PERIOD" toml:"grace_period"`
	PromptTerminators string        `envconfig:"TERMINAL_PROMPT_TERMINATORS" toml:"prompt_terminators"`
}

// RegistrationConfig holds backend registration configuration. Disabled
// unless an API URL is configured.
type RegistrationConfig struct {
	Enabled bool `envconfig:"REGISTRATION_ENABLED" toml:"enabled"`

	// DeviceID identifies this daemon toward the backend; generated when
	// empty.
	DeviceID string `envconfig:"DEVICE_ID" toml:"device_id"`

	// APIURL is the backend control plane base URL.
	APIURL string `envconfig:"BACKEND_API_URL" toml:"api_url"`

	// PublicHTTPURL is the externally reachable URL for this daemon's
	// HTTP API, e.g. an ngrok tunnel. The backend uses it when the local
	// address is not routable. Managing the tunnel itself is out of scope.
	PublicHTTPURL string `envconfig:"PUBLIC_HTTP_URL" toml:"public_http_url"`

	Interval time.Duration `envconfig:"REGISTRATION_INTERVAL" toml:"interval"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" toml:"enabled"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8081",
		},
		Terminal: TerminalConfig{
			SettleDelay:       100 * time.Millisecond,
			PollInterval:      100 * time.Millisecond,
			CommandTimeout:    5 * time.Second,
			GracePeriod:       2 * time.Second,
			PromptTerminators: "$#",
		},
		Registration: RegistrationConfig{
			Enabled:  false,
			Interval: 60 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Load builds configuration from defaults and environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile builds configuration from defaults, an optional TOML file and
// environment variables, in that order of precedence.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// No default struct tags: envconfig only touches fields whose
	// variables are actually set, preserving file values.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads configuration from the environment or falls back to
// defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}
