package config

import (
	"fmt"
	"os"

	"github.com/kapipe/pkg/pipeline"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over DefaultConfig and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors and fills in zero values.
func Validate(cfg *Config) error {
	if cfg.Target.URL == "" {
		return fmt.Errorf("target.url is required")
	}
	if _, err := pipeline.ParseTarget(cfg.Target.URL, cfg.Target.User, cfg.Target.Password); err != nil {
		return fmt.Errorf("target.url: %w", err)
	}
	if cfg.Target.IdleTimeout == 0 {
		cfg.Target.IdleTimeout = pipeline.DefaultIdleTimeout
	}
	if cfg.Target.ConnectTimeout <= 0 {
		cfg.Target.ConnectTimeout = pipeline.DefaultConnectTimeout
	}
	if cfg.Target.UserAgent == "" {
		cfg.Target.UserAgent = pipeline.DefaultUserAgent
	}

	b := cfg.Target.Backoff
	if b.Initial <= 0 {
		return fmt.Errorf("target.backoff.initial must be positive")
	}
	if b.Factor < 1 {
		return fmt.Errorf("target.backoff.factor must be >= 1")
	}
	if b.Max < b.Initial {
		return fmt.Errorf("target.backoff.max must be >= initial")
	}
	if b.Jitter < 0 || b.Jitter > 1 {
		return fmt.Errorf("target.backoff.jitter must be between 0 and 1")
	}

	if cfg.Replay.Workers <= 0 {
		return fmt.Errorf("replay.workers must be positive")
	}
	switch {
	case cfg.Replay.Connections < 0:
		return fmt.Errorf("replay.connections must not be negative")
	case cfg.Replay.Connections == 0:
		cfg.Replay.Connections = 1
	}
	if cfg.Replay.Rate < 0 {
		return fmt.Errorf("replay.rate must not be negative")
	}

	if cfg.Peer.Enabled && cfg.Peer.Address == "" {
		return fmt.Errorf("peer.address is required when the peer is enabled")
	}

	if cfg.Health.Enabled {
		if cfg.Health.Path == "" {
			return fmt.Errorf("health.path is required when health checks are enabled")
		}
		if cfg.Health.Interval <= 0 {
			return fmt.Errorf("health.interval must be positive")
		}
		if cfg.Health.Timeout <= 0 {
			cfg.Health.Timeout = cfg.Health.Interval
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}
