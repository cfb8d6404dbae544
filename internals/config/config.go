// Package config loads the delivery engine's configuration from environment
// variables (optionally seeded by a .env file), validates it, and reports it
// through structured logging.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every tunable of the broker. Tags:
//
//	env: environment variable name
//	envDefault: value used when the variable is unset
type Config struct {
	// Server basics
	Host   string `env:"PUBSUBD_HOST" envDefault:"0.0.0.0"`
	Port   string `env:"PUBSUBD_PORT" envDefault:"8080"`
	WSPath string `env:"PUBSUBD_WS_PATH" envDefault:"/ws"`

	// Topic delivery tunables
	IngressQueueCapacity int           `env:"PUBSUBD_QUEUE_CAPACITY" envDefault:"2000"`
	RingBufferCapacity   int           `env:"PUBSUBD_RING_CAPACITY" envDefault:"100"`
	BatchSize            int           `env:"PUBSUBD_BATCH_SIZE" envDefault:"10"`
	BatchTimeout         time.Duration `env:"PUBSUBD_BATCH_TIMEOUT" envDefault:"20ms"`
	SendDeadline         time.Duration `env:"PUBSUBD_SEND_DEADLINE" envDefault:"500ms"`

	// Subscriber rate limiting (publish path)
	RateLimitRPS   float64 `env:"PUBSUBD_RATE_LIMIT_RPS" envDefault:"1000"`
	RateLimitBurst int     `env:"PUBSUBD_RATE_LIMIT_BURST" envDefault:"500"`

	// Protocol limits
	MaxPayloadBytes int `env:"PUBSUBD_MAX_PAYLOAD_BYTES" envDefault:"65536"`

	// Connection timeouts
	WriteTimeout time.Duration `env:"PUBSUBD_WRITE_TIMEOUT" envDefault:"30s"`
	ReadTimeout  time.Duration `env:"PUBSUBD_READ_TIMEOUT" envDefault:"60s"`

	// Shutdown
	ShutdownDeadline time.Duration `env:"PUBSUBD_SHUTDOWN_DEADLINE" envDefault:"5s"`

	// Observability
	LogLevel        string        `env:"PUBSUBD_LOG_LEVEL" envDefault:"info"`
	ProcessStatsTick time.Duration `env:"PUBSUBD_PROCESS_STATS_INTERVAL" envDefault:"5s"`
}

// Load reads configuration from a .env file (if present) and the process
// environment, applies defaults, and validates the result. Environment
// variables always take precedence over .env file contents.
func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, using environment variables only")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that would make the broker misbehave.
func (c *Config) Validate() error {
	if c.IngressQueueCapacity < 1 {
		return fmt.Errorf("PUBSUBD_QUEUE_CAPACITY must be > 0, got %d", c.IngressQueueCapacity)
	}
	if c.RingBufferCapacity < 1 {
		return fmt.Errorf("PUBSUBD_RING_CAPACITY must be > 0, got %d", c.RingBufferCapacity)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("PUBSUBD_BATCH_SIZE must be > 0, got %d", c.BatchSize)
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("PUBSUBD_RATE_LIMIT_RPS must be > 0, got %f", c.RateLimitRPS)
	}
	if c.RateLimitBurst < 1 {
		return fmt.Errorf("PUBSUBD_RATE_LIMIT_BURST must be > 0, got %d", c.RateLimitBurst)
	}
	if c.MaxPayloadBytes < 1 {
		return fmt.Errorf("PUBSUBD_MAX_PAYLOAD_BYTES must be > 0, got %d", c.MaxPayloadBytes)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("PUBSUBD_LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}

	return nil
}

// LogFields logs the loaded configuration via structured logging.
func (c *Config) LogFields(logger zerolog.Logger) {
	logger.Info().
		Str("host", c.Host).
		Str("port", c.Port).
		Str("ws_path", c.WSPath).
		Int("queue_capacity", c.IngressQueueCapacity).
		Int("ring_capacity", c.RingBufferCapacity).
		Int("batch_size", c.BatchSize).
		Dur("batch_timeout", c.BatchTimeout).
		Dur("send_deadline", c.SendDeadline).
		Float64("rate_limit_rps", c.RateLimitRPS).
		Int("rate_limit_burst", c.RateLimitBurst).
		Int("max_payload_bytes", c.MaxPayloadBytes).
		Dur("shutdown_deadline", c.ShutdownDeadline).
		Str("log_level", c.LogLevel).
		Msg("configuration loaded")
}
