// Package config provides 12-factor configuration for the queue device
// server and its client.
//
// Configuration is loaded from environment variables with defaults.
//
// Configuration Sections:
//   - Server: HTTP listen address
//   - Device: queue capacity, initial mode, memory limits
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting of the adapter
//   - CORS: origins allowed to call the adapter from a browser
//   - Client: device server URL, timeout and retries for devctl
//
// Environment Variables:
//   - PORT, HOST
//   - DEVICE_CAPACITY, DEVICE_MODE, DEVICE_MAX_PRIVATE_QUEUES, DEVICE_MEMORY_LIMIT
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - CORS_ORIGINS (comma-separated, "*" allows all)
//   - DEVICE_URL, CLIENT_TIMEOUT, CLIENT_RETRIES
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Device    DeviceConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Client    ClientConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DeviceConfig holds queue device configuration.
type DeviceConfig struct {
	Capacity         int    `envconfig:"DEVICE_CAPACITY" default:"1000"`
	Mode             string `envconfig:"DEVICE_MODE" default:"shared"`
	MaxPrivateQueues int64  `envconfig:"DEVICE_MAX_PRIVATE_QUEUES" default:"0"`
	MemoryLimit      int64  `envconfig:"DEVICE_MEMORY_LIMIT" default:"0"`
}

// InitialMode parses the configured mode name.
func (d DeviceConfig) InitialMode() (device.Mode, error) {
	return device.ParseMode(d.Mode)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// CORSConfig holds cross-origin configuration.
type CORSConfig struct {
	Origins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// ClientConfig holds device client configuration.
type ClientConfig struct {
	URL     string        `envconfig:"DEVICE_URL" default:"http://localhost:8000"`
	Timeout time.Duration `envconfig:"CLIENT_TIMEOUT" default:"10s"`
	Retries int           `envconfig:"CLIENT_RETRIES" default:"2"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.Device.Capacity <= 0 {
		return fmt.Errorf("invalid config: DEVICE_CAPACITY must be positive, got %d", c.Device.Capacity)
	}
	if _, err := c.Device.InitialMode(); err != nil {
		return fmt.Errorf("invalid config: DEVICE_MODE: %w", err)
	}
	if c.Device.MaxPrivateQueues < 0 || c.Device.MemoryLimit < 0 {
		return fmt.Errorf("invalid config: device limits must not be negative")
	}
	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("invalid config: CORS_ORIGINS must list at least one origin")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Device: DeviceConfig{
			Capacity: device.Capacity,
			Mode:     device.ModeShared.String(),
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
		CORS: CORSConfig{
			Origins: []string{"*"},
		},
		Client: ClientConfig{
			URL:     "http://localhost:8000",
			Timeout: 10 * time.Second,
			Retries: 2,
		},
	}
}
