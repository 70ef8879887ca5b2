package config

import (
	"time"

	"github.com/kapipe/pkg/pipeline"
)

// Config is the root configuration structure.
type Config struct {
	Target  Target  `yaml:"target"`
	Replay  Replay  `yaml:"replay"`
	Peer    Peer    `yaml:"peer"`
	Health  Health  `yaml:"health"`
	Metrics Metrics `yaml:"metrics"`
}

// Target defines the tracker the queries are pipelined to.
type Target struct {
	URL            string                 `yaml:"url"`
	User           string                 `yaml:"user,omitempty"`
	Password       string                 `yaml:"password,omitempty"`
	RetryForever   bool                   `yaml:"retry_forever"`
	IdleTimeout    time.Duration          `yaml:"idle_timeout"`
	ConnectTimeout time.Duration          `yaml:"connect_timeout"`
	UserAgent      string                 `yaml:"user_agent"`
	TLSInsecure    bool                   `yaml:"tls_insecure"`
	Backoff        pipeline.BackoffConfig `yaml:"backoff"`
}

// Policy returns the reconnection policy selected by RetryForever.
func (t Target) Policy() pipeline.PolicyKind {
	if t.RetryForever {
		return pipeline.RetryForever
	}
	return pipeline.FailFast
}

// Replay configures the request log replay.
type Replay struct {
	Log         string  `yaml:"log"`
	Workers     int     `yaml:"workers"`
	Connections int     `yaml:"connections"` // pipelined connections the workers take turns on
	Rate        float64 `yaml:"rate"`        // queries per second across all workers, 0 = unlimited
	Loop        bool    `yaml:"loop"`
	Rewrite     Rewrite `yaml:"rewrite"`
}

// Rewrite controls how logged announces are rewritten before replay.
type Rewrite struct {
	PeerID bool   `yaml:"peer_id"`
	IP     string `yaml:"ip"`
	Port   string `yaml:"port"`
}

// Peer configures the fake BitTorrent peer that answers handshakes.
type Peer struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Health configures the tracker health probe.
type Health struct {
	Enabled  bool          `yaml:"enabled"`
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Metrics configures Prometheus metrics.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Target: Target{
			URL:            "http://localhost:8000",
			RetryForever:   true,
			IdleTimeout:    pipeline.DefaultIdleTimeout,
			ConnectTimeout: pipeline.DefaultConnectTimeout,
			UserAgent:      pipeline.DefaultUserAgent,
			Backoff:        pipeline.DefaultBackoff(),
		},
		Replay: Replay{
			Log:         "requests.log",
			Workers:     100,
			Connections: 1,
			Loop:        true,
			Rewrite: Rewrite{
				PeerID: true,
				IP:     "127.0.0.1",
				Port:   "6881",
			},
		},
		Peer: Peer{
			Enabled: true,
			Address: ":6881",
		},
		Health: Health{
			Enabled:  false,
			Path:     "/scrape",
			Interval: 10 * time.Second,
			Timeout:  5 * time.Second,
		},
		Metrics: Metrics{
			Enabled: true,
			Address: ":9090",
			Path:    "/metrics",
		},
	}
}
