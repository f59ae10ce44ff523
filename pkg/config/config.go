// Package config holds the startup configuration for the bridge. The
// configuration is supplied once at startup and treated as immutable by the
// core.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/odvcencio/cdpbridge/pkg/cdp"
)

// Default configuration values exported for documentation and validation
const (
	DefaultPoolSize          = 4
	DefaultAcquireTimeout    = 5 * time.Second
	DefaultCommandTimeout    = 30 * time.Second
	DefaultActivationTimeout = 10 * time.Second
	DefaultDialTimeout       = 10 * time.Second
	DefaultSweepInterval     = 30 * time.Second
	DefaultBufferCapacity    = 1000
	DefaultBind              = "127.0.0.1:4499"
)

// Default idle timeouts per risk tier. High-risk domains are torn down
// quickly; inert ones may stay enabled for minutes.
const (
	DefaultIdleTimeoutLow    = 300 * time.Second
	DefaultIdleTimeoutMedium = 120 * time.Second
	DefaultIdleTimeoutHigh   = 30 * time.Second
)

// Config represents the complete bridge configuration.
type Config struct {
	// Endpoint is the browser's debug websocket URL
	// (e.g. "ws://127.0.0.1:9222/devtools/browser/<id>").
	Endpoint string        `yaml:"endpoint"`
	Pool     PoolConfig    `yaml:"pool"`
	Commands CommandConfig `yaml:"commands"`
	Domains  DomainConfig  `yaml:"domains"`
	Events   EventConfig   `yaml:"events"`
	Server   ServerConfig  `yaml:"server"`
	NATS     NATSConfig    `yaml:"nats"`
	Logging  LoggingConfig `yaml:"logging"`
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	Size           int           `yaml:"size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
}

// CommandConfig bounds command dispatch.
type CommandConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	ActivationTimeout time.Duration `yaml:"activation_timeout"`
	// RateLimit caps dispatches per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// DomainConfig governs domain lifecycle sweeping.
type DomainConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	IdleTimeouts  TierTimeouts  `yaml:"idle_timeouts"`
	// Tiers overrides the built-in risk classification per domain name.
	Tiers map[string]cdp.RiskTier `yaml:"tiers"`
}

// TierTimeouts holds the idle timeout per risk tier.
type TierTimeouts struct {
	Low    time.Duration `yaml:"low"`
	Medium time.Duration `yaml:"medium"`
	High   time.Duration `yaml:"high"`
}

// For returns the idle timeout for a tier.
func (t TierTimeouts) For(tier cdp.RiskTier) time.Duration {
	switch tier {
	case cdp.RiskLow:
		return t.Low
	case cdp.RiskHigh:
		return t.High
	default:
		return t.Medium
	}
}

// EventConfig sizes the per-domain event buffers.
type EventConfig struct {
	BufferCapacity int `yaml:"buffer_capacity"`
}

// ServerConfig controls the ops HTTP surface.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
}

// NATSConfig controls optional event forwarding to a NATS bus.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LoggingConfig selects the minimum log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			Size:           DefaultPoolSize,
			AcquireTimeout: DefaultAcquireTimeout,
			DialTimeout:    DefaultDialTimeout,
		},
		Commands: CommandConfig{
			Timeout:           DefaultCommandTimeout,
			ActivationTimeout: DefaultActivationTimeout,
		},
		Domains: DomainConfig{
			SweepInterval: DefaultSweepInterval,
			IdleTimeouts: TierTimeouts{
				Low:    DefaultIdleTimeoutLow,
				Medium: DefaultIdleTimeoutMedium,
				High:   DefaultIdleTimeoutHigh,
			},
		},
		Events: EventConfig{
			BufferCapacity: DefaultBufferCapacity,
		},
		Server: ServerConfig{
			Enabled: true,
			Bind:    DefaultBind,
		},
		NATS: NATSConfig{
			SubjectPrefix: "cdp.events",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for values the bridge cannot run with.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("parsing endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint must be a ws:// or wss:// URL, got %q", u.Scheme)
	}
	if c.Pool.Size < 1 {
		return fmt.Errorf("pool size must be at least 1, got %d", c.Pool.Size)
	}
	if c.Events.BufferCapacity < 1 {
		return fmt.Errorf("event buffer capacity must be at least 1, got %d", c.Events.BufferCapacity)
	}
	if c.Domains.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	for domain, tier := range c.Domains.Tiers {
		switch tier {
		case cdp.RiskLow, cdp.RiskMedium, cdp.RiskHigh:
		default:
			return fmt.Errorf("domain %s: unknown risk tier %q", domain, tier)
		}
	}
	return nil
}
